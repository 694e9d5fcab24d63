package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/artifact"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrapped: %w", &heavy.StartupConfigError{Reason: "x"})))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestBatch_MissingPromptAborts(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XAI_API_KEY", "xai-test")
	t.Setenv("HEAVY_PROVIDER_BASE_URL", "http://127.0.0.1:1")

	cfgPath := filepath.Join(dir, "config.yaml")
	prompt := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
batch:
  prompt_file: %q
  debug_dir: %q
  output_dir: %q
harness:
  enable_metrics: false
log:
  level: error
`, prompt, filepath.Join(dir, "debug"), filepath.Join(dir, "output"))), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"batch", "--config", cfgPath, "--mode", "numeric"})

	err := root.ExecuteContext(context.Background())
	var cfgErr *heavy.StartupConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 2, exitCode(err))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(prompt)
	require.NoError(t, err)
	assert.Equal(t, artifact.PlaceholderPrompt, string(data))

	_, err = os.Stat(filepath.Join(dir, "output"))
	assert.True(t, os.IsNotExist(err))
}

func TestBatch_UnknownMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XAI_API_KEY", "xai-test")

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: error\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"batch", "--config", cfgPath, "--mode", "ranked"})

	var cfgErr *heavy.StartupConfigError
	require.ErrorAs(t, root.ExecuteContext(context.Background()), &cfgErr)
	assert.Equal(t, "mode", cfgErr.Field)
}
