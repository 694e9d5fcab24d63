package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
)

// PlaceholderPrompt is written when the prompt file does not exist.
const PlaceholderPrompt = `Explain the trade-offs between optimistic and pessimistic concurrency control,
with one concrete example of when each is the better choice.

(Replace this text with your own prompt and run again.)
`

// LoadPrompt reads the batch prompt file. When it is missing a placeholder is
// created and a *heavy.StartupConfigError is returned so the run stops before
// any remote call.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("failed to create prompt dir: %w", err)
			}
		}
		if err := os.WriteFile(path, []byte(PlaceholderPrompt), 0o644); err != nil {
			return "", fmt.Errorf("failed to write placeholder prompt: %w", err)
		}
		return "", &heavy.StartupConfigError{
			Field:  "batch.prompt_file",
			Reason: fmt.Sprintf("%s did not exist; a placeholder was created, edit it and run again", path),
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", &heavy.StartupConfigError{Field: "batch.prompt_file", Reason: path + " is empty"}
	}
	return prompt, nil
}

// WriteOutput stores the final text at <dir>/<prefix>_<timestamp>.txt and
// returns the path.
func WriteOutput(dir, prefix string, startedAt time.Time, text string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.txt", prefix, startedAt.Format(TimestampLayout)))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	return path, nil
}
