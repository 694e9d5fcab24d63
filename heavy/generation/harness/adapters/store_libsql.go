package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
)

// LibSQLStore persists chat sessions and run artifacts in libsql.
// The schema is owned by the db package migrations.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore creates a store over an already migrated database.
func NewLibSQLStore(db *sql.DB) *LibSQLStore {
	return &LibSQLStore{db: db}
}

// SaveTurn appends a chat turn to a session.
func (s *LibSQLStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, turn.Role, turn.Content, turn.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadContext loads the last k turns for a session, oldest first.
func (s *LibSQLStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		k = -1 // sqlite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			turn    ports.Turn
			created string
		)
		if err := rows.Scan(&turn.Role, &turn.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// BeginRun records the run header in the COLLECTING state.
func (s *LibSQLStore) BeginRun(ctx context.Context, run ports.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, model, prompt, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Model, run.Prompt, run.State, run.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to begin run %s: %w", run.ID, err)
	}
	return nil
}

// AppendEntry stores an intermediate text; seq preserves insertion order.
func (s *LibSQLStore) AppendEntry(ctx context.Context, runID string, entry ports.RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_entries (run_id, seq, kind, idx, content, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM run_entries WHERE run_id = ?), ?, ?, ?, ?)
	`, runID, runID, entry.Kind, entry.Index, entry.Content, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append %s entry to run %s: %w", entry.Kind, runID, err)
	}
	return nil
}

// FinishRun stores the terminal state and final text.
func (s *LibSQLStore) FinishRun(ctx context.Context, runID, state, final string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, final = ?, finished_at = ? WHERE id = ?
	`, state, final, at.UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// LoadRun returns the run header and its entries in insertion order.
func (s *LibSQLStore) LoadRun(ctx context.Context, runID string) (ports.RunRecord, []ports.RunEntry, error) {
	var (
		run               ports.RunRecord
		final, finishedAt sql.NullString
		startedAt         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, model, prompt, state, final, started_at, finished_at
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.Mode, &run.Model, &run.Prompt, &run.State, &final, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, nil, fmt.Errorf("run %s not found: %w", runID, err)
		}
		return run, nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run.Final = final.String
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, idx, content, created_at FROM run_entries
		WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return run, nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ports.RunEntry
	for rows.Next() {
		var (
			e       ports.RunEntry
			created string
		)
		if err := rows.Scan(&e.Kind, &e.Index, &e.Content, &created); err != nil {
			return run, nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return run, nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return run, entries, nil
}

var (
	_ ports.ConversationStore = (*LibSQLStore)(nil)
	_ ports.RunStore          = (*LibSQLStore)(nil)
)
