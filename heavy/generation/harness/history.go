package harness

import (
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// Budget bounds how much chat history is replayed into a run.
type Budget struct {
	MaxContextTokens int // 0 disables the token cap
	MaxTurns         int // 0 disables the turn cap
}

// HistoryWindow trims accumulated chat history to a budget, dropping the
// oldest turns first. The newest turn is always kept.
type HistoryWindow struct {
	budget Budget
	// TokenEstimator should be a fast heuristic; we avoid binding to a specific tokenizer here.
	TokenEstimator func(s string) int
}

func NewHistoryWindow(b Budget, est func(s string) int) *HistoryWindow {
	if est == nil {
		est = EstimateTokens
	}
	return &HistoryWindow{budget: b, TokenEstimator: est}
}

// EstimateTokens is a rough heuristic of ~4 chars per token.
func EstimateTokens(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}

// Fit returns the longest suffix of turns that fits the budget.
func (w *HistoryWindow) Fit(turns []ports.PromptMessage) []ports.PromptMessage {
	if len(turns) == 0 {
		return nil
	}

	remaining := w.budget.MaxContextTokens
	start := len(turns) - 1
	if remaining > 0 {
		remaining -= w.TokenEstimator(turns[start].Content)
	}

	for i := len(turns) - 2; i >= 0; i-- {
		if w.budget.MaxTurns > 0 && len(turns)-i > w.budget.MaxTurns {
			break
		}
		if w.budget.MaxContextTokens > 0 {
			cost := w.TokenEstimator(turns[i].Content)
			if cost > remaining {
				break
			}
			remaining -= cost
		}
		start = i
	}

	out := make([]ports.PromptMessage, len(turns)-start)
	copy(out, turns[start:])
	return out
}
