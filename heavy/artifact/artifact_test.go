package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/db"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

var started = time.Date(2025, 7, 14, 9, 30, 5, 0, time.Local)

func testRun(id string) majority.RunInfo {
	return majority.RunInfo{ID: id, Mode: majority.ModeAspects, Model: "grok-4", Prompt: "Summarize X", StartedAt: started}
}

func candidates(texts ...string) []majority.Candidate {
	out := make([]majority.Candidate, len(texts))
	for i, t := range texts {
		out[i] = majority.Candidate{AgentID: i + 1, Seq: i + 1, Text: t}
	}
	return out
}

func TestDebugFile_Blocks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	d := NewDebugFile(dir, "heavy", nil)
	run := testRun("run-1")

	require.NoError(t, d.Begin(ctx, run))
	require.NoError(t, d.Candidates(ctx, run, candidates("A", "B")))
	require.NoError(t, d.Aggregation(ctx, run, majority.Aggregation{Mode: majority.ModeAspects, Text: "M", Winner: -1}))
	require.NoError(t, d.Final(ctx, run, "F"))
	require.NoError(t, d.Finish(ctx, run, majority.StateDone, nil))

	path := d.Path("run-1")
	assert.Equal(t, filepath.Join(dir, "heavy_2025-07-14_09-30-05.debug"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sep := "\n\n" + separator + "\n\n"
	want := "### Agent 1 Response\n\nA" + sep +
		"### Agent 2 Response\n\nB" + sep +
		"### Voted Output\n\nM" + sep +
		"### Final Output\n\nF" + sep
	assert.Equal(t, want, string(data))
}

func TestDebugFile_NumericTallyAndAbort(t *testing.T) {
	ctx := context.Background()
	d := NewDebugFile(t.TempDir(), "heavy", nil)
	run := testRun("run-2")

	require.NoError(t, d.Begin(ctx, run))
	require.NoError(t, d.Aggregation(ctx, run, majority.Aggregation{
		Mode: majority.ModeNumeric, Text: "B", Winner: 1, Tally: majority.Tally{1, 2, 0}, Discarded: 1,
	}))
	require.NoError(t, d.Finish(ctx, run, majority.StateAborted, errors.New("remote down")))

	data, err := os.ReadFile(d.Path("run-2"))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "### Vote Tally\n\nCandidate 1: 1\nCandidate 2: 2\nCandidate 3: 0\nDiscarded: 1\nMargin: 1\n")
	assert.Contains(t, out, "Winner: Candidate 2")
	assert.Contains(t, out, "### Run ABORTED\n\nremote down")
	assert.Less(t, strings.Index(out, "### Vote Tally"), strings.Index(out, "### Voted Output"))

	assert.Error(t, d.Final(ctx, run, "late"), "closed runs reject writes")
}

func TestDebugFile_SameSecondRuns(t *testing.T) {
	ctx := context.Background()
	d := NewDebugFile(t.TempDir(), "heavy", nil)

	require.NoError(t, d.Begin(ctx, testRun("aaaaaaaa-1111")))
	require.NoError(t, d.Begin(ctx, testRun("bbbbbbbb-2222")))
	assert.NotEqual(t, d.Path("aaaaaaaa-1111"), d.Path("bbbbbbbb-2222"))
	assert.True(t, strings.HasSuffix(d.Path("bbbbbbbb-2222"), "_bbbbbbbb.debug"))

	require.NoError(t, d.Finish(ctx, testRun("aaaaaaaa-1111"), majority.StateDone, nil))
	require.NoError(t, d.Finish(ctx, testRun("bbbbbbbb-2222"), majority.StateDone, nil))
}

func TestDebugFile_Redacts(t *testing.T) {
	ctx := context.Background()
	d := NewDebugFile(t.TempDir(), "heavy", harness.NewGuardrails())
	run := testRun("run-3")

	require.NoError(t, d.Begin(ctx, run))
	require.NoError(t, d.Final(ctx, run, "use api_key=abc123 carefully"))
	require.NoError(t, d.Finish(ctx, run, majority.StateDone, nil))

	data, err := os.ReadFile(d.Path("run-3"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc123")
	assert.Contains(t, string(data), "[REDACTED]")
}

type failingBegin struct{ majority.Recorder }

func (failingBegin) Begin(context.Context, majority.RunInfo) error {
	return errors.New("db unavailable")
}

func TestDebugFile_ClosedWhenLaterRecorderFailsBegin(t *testing.T) {
	dir := t.TempDir()
	d := NewDebugFile(dir, "heavy", nil)
	run := testRun("run-1")

	err := majority.Recorders{d, failingBegin{}}.Begin(context.Background(), run)
	require.Error(t, err)

	d.mu.Lock()
	open := len(d.files)
	d.mu.Unlock()
	assert.Zero(t, open)

	data, err := os.ReadFile(d.Path("run-1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "### Run ABORTED\n\ndb unavailable")
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing creates placeholder", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "prompt.txt")
		prompt, err := LoadPrompt(path)
		assert.Empty(t, prompt)

		var cfgErr *heavy.StartupConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "batch.prompt_file", cfgErr.Field)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, PlaceholderPrompt, string(data))
	})

	t.Run("existing is trimmed", func(t *testing.T) {
		path := filepath.Join(dir, "prompt.txt")
		require.NoError(t, os.WriteFile(path, []byte("\n  Summarize X \n"), 0o644))
		prompt, err := LoadPrompt(path)
		require.NoError(t, err)
		assert.Equal(t, "Summarize X", prompt)
	})

	t.Run("empty is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
		_, err := LoadPrompt(path)
		var cfgErr *heavy.StartupConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestWriteOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	path, err := WriteOutput(dir, "heavy", started, "F")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "heavy_2025-07-14_09-30-05.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "F", string(data))
}

func TestStoreRecorder(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "heavy.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	store := adapters.NewLibSQLStore(conn)

	rec := NewStoreRecorder(store, nil)
	run := testRun("run-4")
	run.Mode = majority.ModeNumeric

	require.NoError(t, rec.Begin(ctx, run))
	require.NoError(t, rec.Candidates(ctx, run, candidates("A", "B")))
	require.NoError(t, rec.Aggregation(ctx, run, majority.Aggregation{
		Mode:    majority.ModeNumeric,
		Text:    "B",
		Winner:  1,
		Ballots: []majority.Ballot{{Round: 1, Reply: "2", Index: 1}, {Round: 2, Reply: "x", Index: -1}},
	}))
	require.NoError(t, rec.Final(ctx, run, "F"))
	require.NoError(t, rec.Finish(ctx, run, majority.StateDone, nil))

	record, entries, err := store.LoadRun(ctx, "run-4")
	require.NoError(t, err)
	assert.Equal(t, "numeric", record.Mode)
	assert.Equal(t, "DONE", record.State)
	assert.Equal(t, "F", record.Final)

	kinds := make([]string, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{
		ports.EntryCandidate, ports.EntryCandidate,
		ports.EntryVote, ports.EntryVote,
		ports.EntryAggregate, ports.EntryFinal,
	}, kinds)
	assert.Equal(t, 2, entries[4].Index)
	assert.Equal(t, "x", entries[3].Content)
}
