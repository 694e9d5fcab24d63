// Package artifact persists run artifacts: the per-run debug trace, the batch
// output file, the prompt input file, and run rows in the database.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

// TimestampLayout names artifacts by run start time.
const TimestampLayout = "2006-01-02_15-04-05"

const separator = "-----------------------------------------------"

// DebugFile writes one human-readable trace per run to
// <dir>/<prefix>_<timestamp>.debug. Blocks are appended as each stage ends.
type DebugFile struct {
	dir    string
	prefix string
	guard  *harness.Guardrails // nil disables redaction

	mu    sync.Mutex
	files map[string]*os.File // by run id
	paths map[string]string
}

func NewDebugFile(dir, prefix string, guard *harness.Guardrails) *DebugFile {
	return &DebugFile{
		dir:    dir,
		prefix: prefix,
		guard:  guard,
		files:  make(map[string]*os.File),
		paths:  make(map[string]string),
	}
}

// Path returns the trace path of a run started through this writer.
func (d *DebugFile) Path(runID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paths[runID]
}

func (d *DebugFile) Begin(_ context.Context, run majority.RunInfo) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug dir: %w", err)
	}

	stamp := run.StartedAt.Format(TimestampLayout)
	path := filepath.Join(d.dir, fmt.Sprintf("%s_%s.debug", d.prefix, stamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if errors.Is(err, fs.ErrExist) {
		// Two runs started within the same second.
		path = filepath.Join(d.dir, fmt.Sprintf("%s_%s_%s.debug", d.prefix, stamp, shortID(run.ID)))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to create debug file: %w", err)
	}

	d.mu.Lock()
	d.files[run.ID] = f
	d.paths[run.ID] = path
	d.mu.Unlock()
	return nil
}

func (d *DebugFile) Candidates(_ context.Context, run majority.RunInfo, candidates []majority.Candidate) error {
	var b strings.Builder
	for _, c := range candidates {
		writeBlock(&b, fmt.Sprintf("Agent %d Response", c.AgentID), d.redact(c.Text))
	}
	return d.write(run.ID, b.String())
}

func (d *DebugFile) Aggregation(_ context.Context, run majority.RunInfo, agg majority.Aggregation) error {
	var b strings.Builder
	if agg.Mode == majority.ModeNumeric {
		writeBlock(&b, "Vote Tally", formatTally(agg))
	}
	writeBlock(&b, "Voted Output", d.redact(agg.Text))
	return d.write(run.ID, b.String())
}

func (d *DebugFile) Final(_ context.Context, run majority.RunInfo, text string) error {
	var b strings.Builder
	writeBlock(&b, "Final Output", d.redact(text))
	return d.write(run.ID, b.String())
}

// Finish records an abort reason, if any, and closes the trace.
func (d *DebugFile) Finish(_ context.Context, run majority.RunInfo, state majority.State, runErr error) error {
	var werr error
	if runErr != nil {
		var b strings.Builder
		writeBlock(&b, fmt.Sprintf("Run %s", state), d.redact(runErr.Error()))
		werr = d.write(run.ID, b.String())
	}

	d.mu.Lock()
	f := d.files[run.ID]
	delete(d.files, run.ID)
	d.mu.Unlock()

	if f == nil {
		return werr
	}
	return errors.Join(werr, f.Close())
}

func (d *DebugFile) write(runID, s string) error {
	d.mu.Lock()
	f := d.files[runID]
	d.mu.Unlock()
	if f == nil {
		return fmt.Errorf("debug file for run %s is not open", runID)
	}

	if _, err := f.WriteString(s); err != nil {
		return fmt.Errorf("failed to write debug file: %w", err)
	}
	return nil
}

func (d *DebugFile) redact(s string) string {
	if d.guard == nil {
		return s
	}
	return d.guard.SanitizeOutput(s)
}

func writeBlock(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "### %s\n\n%s\n\n%s\n\n", title, body, separator)
}

func formatTally(agg majority.Aggregation) string {
	var b strings.Builder
	for i, c := range agg.Tally {
		fmt.Fprintf(&b, "Candidate %d: %d\n", i+1, c)
	}
	fmt.Fprintf(&b, "Discarded: %d\n", agg.Discarded)
	fmt.Fprintf(&b, "Margin: %d\n", agg.Tally.Margin())
	fmt.Fprintf(&b, "Entropy: %.3f\n", agg.Tally.Entropy())
	fmt.Fprintf(&b, "Winner: Candidate %d", agg.Winner+1)
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ majority.Recorder = (*DebugFile)(nil)
