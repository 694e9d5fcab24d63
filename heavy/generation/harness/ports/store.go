package harnessports

import (
	"context"
	"time"
)

// Turn represents a conversational exchange in a chat session.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore persists chat session history.
type ConversationStore interface {
	SaveTurn(ctx context.Context, conversationID string, turn Turn) error
	LoadContext(ctx context.Context, conversationID string, k int) ([]Turn, error) // last-k turns, oldest first
}

// Run entry kinds, in the order a run produces them.
const (
	EntryCandidate = "candidate"
	EntryVote      = "vote"
	EntryAggregate = "aggregate"
	EntryFinal     = "final"
)

// RunRecord is the header row of one orchestration run.
type RunRecord struct {
	ID         string
	Mode       string
	Model      string
	Prompt     string
	State      string
	Final      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunEntry is one persisted intermediate or final text of a run.
type RunEntry struct {
	Kind      string
	Index     int // agent id for candidates, round for votes, 0 otherwise
	Content   string
	CreatedAt time.Time
}

// RunStore persists run artifacts. Entries are append-only per run.
type RunStore interface {
	BeginRun(ctx context.Context, run RunRecord) error
	AppendEntry(ctx context.Context, runID string, entry RunEntry) error
	FinishRun(ctx context.Context, runID, state, final string, at time.Time) error
	LoadRun(ctx context.Context, runID string) (RunRecord, []RunEntry, error)
}
