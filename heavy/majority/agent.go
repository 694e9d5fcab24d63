package majority

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/sourcegraph/conc/pool"
)

// Placement decides where the agent role turn goes.
type Placement int

const (
	PlacementAppend Placement = iota
	PlacementPrepend
)

// ParsePlacement maps the config value; anything but "prepend" appends.
func ParsePlacement(s string) Placement {
	if s == "prepend" {
		return PlacementPrepend
	}
	return PlacementAppend
}

// Candidate is one agent's raw output.
type Candidate struct {
	AgentID int    // 1..N
	Seq     int    // 1-based completion order within the run
	Text    string
}

// AgentRunner issues one model call per agent with its role instruction.
type AgentRunner struct {
	gen         Generator
	model       string
	temperature float64
	placement   Placement
}

func NewAgentRunner(gen Generator, model string, temperature float64, placement Placement) *AgentRunner {
	return &AgentRunner{gen: gen, model: model, temperature: temperature, placement: placement}
}

// Run returns agent id's candidate text for conv.
func (r *AgentRunner) Run(ctx context.Context, conv Conversation, id int) (string, error) {
	role := System(AgentInstruction(id))

	if r.placement == PlacementPrepend {
		conv = conv.Prepend(role)
	} else {
		conv = conv.With(role)
	}

	return r.gen.Generate(ctx, conv.Messages(), ports.Options{
		Model:       r.model,
		Temperature: r.temperature,
		Slot:        fmt.Sprintf("agent-%d", id),
	})
}

// Collect runs agents 1..n. With workers > 1 they run on a bounded pool and
// every agent is awaited; otherwise strictly one after another. The result is
// in completion order (Seq). The first agent error aborts the collection.
func Collect(ctx context.Context, runner *AgentRunner, conv Conversation, n, workers int) ([]Candidate, error) {
	var seq atomic.Int64

	candidates, err := fanOut(ctx, n, workers, func(ctx context.Context, id int) (Candidate, error) {
		text, err := runner.Run(ctx, conv, id)
		if err != nil {
			return Candidate{}, fmt.Errorf("agent %d: %w", id, err)
		}
		return Candidate{AgentID: id, Seq: int(seq.Add(1)), Text: text}, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Seq < candidates[j].Seq })
	return candidates, nil
}

// SortByAgent orders candidates by originating agent id.
func SortByAgent(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// fanOut runs task for 1..n and waits for all of them.
func fanOut[T any](ctx context.Context, n, workers int, task func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if workers <= 1 {
		out := make([]T, 0, n)
		for i := 1; i <= n; i++ {
			v, err := task(ctx, i)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	p := pool.NewWithResults[T]().
		WithContext(ctx).
		WithMaxGoroutines(workers).
		WithCancelOnError().
		WithFirstError()

	for i := 1; i <= n; i++ {
		p.Go(func(ctx context.Context) (T, error) {
			return task(ctx, i)
		})
	}

	return p.Wait()
}
