package majority

import (
	"context"
	"errors"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// Mode selects the aggregation strategy.
type Mode string

const (
	ModeAspects Mode = "aspects"
	ModeNumeric Mode = "numeric"
)

var ErrNoCandidates = errors.New("no candidates to aggregate")

// Aggregation is the reduced result of the candidate set.
type Aggregation struct {
	Mode      Mode
	Text      string
	Winner    int // 0-based index into the candidate slice, -1 in aspects mode
	Tally     Tally
	Ballots   []Ballot
	Discarded int
}

// Aggregator reduces N candidates to one text.
type Aggregator interface {
	Mode() Mode
	Aggregate(ctx context.Context, conv Conversation, candidates []Candidate) (Aggregation, error)
}

// AspectAggregator asks the model to evaluate the candidates aspect by aspect
// and merge the best content. The returned structure is not validated.
type AspectAggregator struct {
	gen         Generator
	model       string
	temperature float64
}

func NewAspectAggregator(gen Generator, model string, temperature float64) *AspectAggregator {
	return &AspectAggregator{gen: gen, model: model, temperature: temperature}
}

func (a *AspectAggregator) Mode() Mode { return ModeAspects }

func (a *AspectAggregator) Aggregate(ctx context.Context, conv Conversation, candidates []Candidate) (Aggregation, error) {
	if len(candidates) == 0 {
		return Aggregation{}, ErrNoCandidates
	}

	messages := conv.With(
		System(aspectInstruction),
		User("Responses:\n"+numbered("Response", candidates)),
	).Messages()

	text, err := a.gen.Generate(ctx, messages, ports.Options{
		Model:       a.model,
		Temperature: a.temperature,
		Slot:        "aggregate",
	})
	if err != nil {
		return Aggregation{}, err
	}

	return Aggregation{Mode: ModeAspects, Text: text, Winner: -1}, nil
}

var (
	_ Aggregator = (*AspectAggregator)(nil)
	_ Aggregator = (*NumericVoter)(nil)
)
