package majority

import (
	"context"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// Finalizer polishes the aggregated text into one coherent answer.
type Finalizer struct {
	gen         Generator
	model       string
	temperature float64
}

func NewFinalizer(gen Generator, model string, temperature float64) *Finalizer {
	return &Finalizer{gen: gen, model: model, temperature: temperature}
}

func (f *Finalizer) Finalize(ctx context.Context, conv Conversation, aggregated string) (string, error) {
	messages := conv.With(
		System(finalizerInstruction),
		User("Voted aspects:\n"+aggregated),
	).Messages()

	return f.gen.Generate(ctx, messages, ports.Options{
		Model:       f.model,
		Temperature: f.temperature,
		Slot:        "final",
	})
}
