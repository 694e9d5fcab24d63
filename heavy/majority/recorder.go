package majority

import (
	"context"
	"errors"
	"time"
)

// RunInfo identifies one orchestration run.
type RunInfo struct {
	ID        string
	Mode      Mode
	Model     string
	Prompt    string
	StartedAt time.Time
}

// Recorder persists the stages of a run in order: Begin, Candidates,
// Aggregation, Final, Finish. Finish is always called once Begin succeeded.
type Recorder interface {
	Begin(ctx context.Context, run RunInfo) error
	Candidates(ctx context.Context, run RunInfo, candidates []Candidate) error
	Aggregation(ctx context.Context, run RunInfo, agg Aggregation) error
	Final(ctx context.Context, run RunInfo, text string) error
	Finish(ctx context.Context, run RunInfo, state State, runErr error) error
}

// Recorders fans every stage out to each recorder in order, stopping at the
// first error.
type Recorders []Recorder

// Begin starts every recorder in order. When one fails, the recorders that
// already started are finished as aborted so none is left open.
func (rs Recorders) Begin(ctx context.Context, run RunInfo) error {
	for i, r := range rs {
		if err := r.Begin(ctx, run); err != nil {
			if ferr := rs[:i].Finish(ctx, run, StateAborted, err); ferr != nil {
				return errors.Join(err, ferr)
			}
			return err
		}
	}
	return nil
}

func (rs Recorders) Candidates(ctx context.Context, run RunInfo, candidates []Candidate) error {
	for _, r := range rs {
		if err := r.Candidates(ctx, run, candidates); err != nil {
			return err
		}
	}
	return nil
}

func (rs Recorders) Aggregation(ctx context.Context, run RunInfo, agg Aggregation) error {
	for _, r := range rs {
		if err := r.Aggregation(ctx, run, agg); err != nil {
			return err
		}
	}
	return nil
}

func (rs Recorders) Final(ctx context.Context, run RunInfo, text string) error {
	for _, r := range rs {
		if err := r.Final(ctx, run, text); err != nil {
			return err
		}
	}
	return nil
}

// Finish reaches every recorder even when one fails and returns the first error.
func (rs Recorders) Finish(ctx context.Context, run RunInfo, state State, runErr error) error {
	var first error
	for _, r := range rs {
		if err := r.Finish(ctx, run, state, runErr); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopRecorder struct{}

func (nopRecorder) Begin(context.Context, RunInfo) error { return nil }

func (nopRecorder) Candidates(context.Context, RunInfo, []Candidate) error { return nil }

func (nopRecorder) Aggregation(context.Context, RunInfo, Aggregation) error { return nil }

func (nopRecorder) Final(context.Context, RunInfo, string) error { return nil }

func (nopRecorder) Finish(context.Context, RunInfo, State, error) error { return nil }

var (
	_ Recorder = Recorders(nil)
	_ Recorder = nopRecorder{}
)
