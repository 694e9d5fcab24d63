package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))

	// Isolate from the developer's shell.
	for _, key := range []string{
		"XAI_API_KEY", "HEAVY_PROVIDER_API_KEY", "TEST", "HEAVY_PROVIDER_TEST_MODE",
		"HEAVY_MAJORITY_AGENTS", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
	} {
		suite.T().Setenv(key, "")
	}
	suite.T().Setenv("XAI_API_KEY", "xai-test-key")
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "xai-test-key", cfg.Provider.APIKey)
	assert.Equal(suite.T(), internal.DefaultXAIBaseURL, cfg.Provider.BaseURL)
	assert.Equal(suite.T(), internal.DefaultModel, cfg.Provider.ActiveModel())
	assert.InDelta(suite.T(), 0.7, cfg.Provider.Temperature, 1e-9)
	assert.Equal(suite.T(), 5, cfg.Majority.Agents)
	assert.Equal(suite.T(), 5, cfg.Majority.Rounds())
	assert.Equal(suite.T(), 5, cfg.Majority.Workers())
	assert.Equal(suite.T(), "aspects", cfg.Majority.Mode)
	assert.True(suite.T(), cfg.Majority.SortCandidates)
	assert.Equal(suite.T(), internal.DefaultPromptFile, cfg.Batch.PromptFile)
	assert.Equal(suite.T(), internal.DefaultDebugDir, cfg.Batch.DebugDir)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
	assert.Equal(suite.T(), 500*time.Millisecond, cfg.Batch.WatchDebounce)
	assert.Equal(suite.T(), 32000, cfg.Harness.MaxContextTokens)
	assert.Zero(suite.T(), cfg.Harness.MaxHistoryTurns)
}

func (suite *ConfigTestSuite) TestTestModeSelectsTestModel() {
	suite.T().Setenv("TEST", "true")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.True(suite.T(), cfg.Provider.TestMode)
	assert.Equal(suite.T(), internal.DefaultTestModel, cfg.Provider.ActiveModel())
}

func (suite *ConfigTestSuite) TestMissingAPIKeyIsStartupError() {
	suite.T().Setenv("XAI_API_KEY", "")

	cfg, err := LoadConfig("")
	require.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)

	var startupErr *internal.StartupConfigError
	require.True(suite.T(), errors.As(err, &startupErr))
	assert.Equal(suite.T(), "provider.api_key", startupErr.Field)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
provider:
  model: "grok-4-fast"
  temperature: 0.2
majority:
  agents: 4
  voter_rounds: 9
  mode: numeric
  finalize: false
batch:
  prompt_file: "question.txt"
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "grok-4-fast", cfg.Provider.Model)
	assert.InDelta(suite.T(), 0.2, cfg.Provider.Temperature, 1e-9)
	assert.Equal(suite.T(), 4, cfg.Majority.Agents)
	assert.Equal(suite.T(), 9, cfg.Majority.Rounds())
	assert.Equal(suite.T(), "numeric", cfg.Majority.Mode)
	assert.False(suite.T(), cfg.Majority.Finalize)
	assert.Equal(suite.T(), "question.txt", cfg.Batch.PromptFile)
}

func (suite *ConfigTestSuite) TestEnvOverridesFile() {
	suite.T().Setenv("HEAVY_MAJORITY_AGENTS", "3")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3, cfg.Majority.Agents)
}

func (suite *ConfigTestSuite) TestInvalidValueIsStartupError() {
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte("majority:\n  mode: ranked\n"), 0o644))

	_, err := LoadConfig(configFile)
	var startupErr *internal.StartupConfigError
	require.True(suite.T(), errors.As(err, &startupErr))
	assert.Contains(suite.T(), startupErr.Field, "Mode")
}

func (suite *ConfigTestSuite) TestTestModeFromEnv() {
	for value, want := range map[string]bool{"true": true, "TRUE": true, "True": true, "yes": false, "1": false, "false": false} {
		suite.T().Setenv("TEST", value)

		cfg, err := LoadConfig("")
		require.NoError(suite.T(), err, "TEST=%s", value)
		assert.Equal(suite.T(), want, cfg.Provider.TestMode, "TEST=%s", value)
	}
}

func (suite *ConfigTestSuite) TestUndecodableValueIsStartupError() {
	suite.T().Setenv("HEAVY_PROVIDER_TEST_MODE", "maybe")

	_, err := LoadConfig("")
	var startupErr *internal.StartupConfigError
	require.True(suite.T(), errors.As(err, &startupErr))
	assert.Contains(suite.T(), startupErr.Reason, "decode")
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
majority:
  agents: 4
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(malformedContent), 0o644))

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func TestMajorityConfigDerivedValues(t *testing.T) {
	m := MajorityConfig{Agents: 4}
	assert.Equal(t, 4, m.Rounds())
	assert.Equal(t, 4, m.Workers())

	m.VoterRounds = 7
	m.Concurrency = 2
	assert.Equal(t, 7, m.Rounds())
	assert.Equal(t, 2, m.Workers())
}
