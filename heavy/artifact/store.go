package artifact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

// StoreRecorder mirrors run stages into a RunStore.
type StoreRecorder struct {
	store ports.RunStore
	guard *harness.Guardrails
	now   func() time.Time

	mu     sync.Mutex
	finals map[string]string
}

func NewStoreRecorder(store ports.RunStore, guard *harness.Guardrails) *StoreRecorder {
	return &StoreRecorder{store: store, guard: guard, now: time.Now, finals: make(map[string]string)}
}

func (s *StoreRecorder) Begin(ctx context.Context, run majority.RunInfo) error {
	err := s.store.BeginRun(ctx, ports.RunRecord{
		ID:        run.ID,
		Mode:      string(run.Mode),
		Model:     run.Model,
		Prompt:    s.redact(run.Prompt),
		State:     string(majority.StateCollecting),
		StartedAt: run.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (s *StoreRecorder) Candidates(ctx context.Context, run majority.RunInfo, candidates []majority.Candidate) error {
	for _, c := range candidates {
		if err := s.append(ctx, run.ID, ports.EntryCandidate, c.AgentID, c.Text); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreRecorder) Aggregation(ctx context.Context, run majority.RunInfo, agg majority.Aggregation) error {
	for _, b := range agg.Ballots {
		if err := s.append(ctx, run.ID, ports.EntryVote, b.Round, b.Reply); err != nil {
			return err
		}
	}
	return s.append(ctx, run.ID, ports.EntryAggregate, agg.Winner+1, agg.Text)
}

func (s *StoreRecorder) Final(ctx context.Context, run majority.RunInfo, text string) error {
	if err := s.append(ctx, run.ID, ports.EntryFinal, 0, text); err != nil {
		return err
	}
	s.mu.Lock()
	s.finals[run.ID] = s.redact(text)
	s.mu.Unlock()
	return nil
}

func (s *StoreRecorder) Finish(ctx context.Context, run majority.RunInfo, state majority.State, _ error) error {
	s.mu.Lock()
	final := s.finals[run.ID]
	delete(s.finals, run.ID)
	s.mu.Unlock()

	if err := s.store.FinishRun(ctx, run.ID, string(state), final, s.now()); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

func (s *StoreRecorder) append(ctx context.Context, runID, kind string, index int, content string) error {
	err := s.store.AppendEntry(ctx, runID, ports.RunEntry{
		Kind:      kind,
		Index:     index,
		Content:   s.redact(content),
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return nil
}

func (s *StoreRecorder) redact(v string) string {
	if s.guard == nil {
		return v
	}
	return s.guard.SanitizeOutput(v)
}

var _ majority.Recorder = (*StoreRecorder)(nil)
