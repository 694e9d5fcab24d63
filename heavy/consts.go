package heavy

import (
	"os"
	"path/filepath"
)

var (
	DefaultAppName    = "heavy"
	DefaultConfigPath = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDataDir    = filepath.Join(userConfigDir(), DefaultAppName, "data")

	DefaultDebugDir   = "debug"
	DefaultOutputDir  = "output"
	DefaultPromptFile = "prompt.txt"

	DefaultDatabaseDSN = filepath.Join(DefaultDataDir, "heavy.db")

	DefaultXAIBaseURL        = "https://api.x.ai/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	DefaultModel     = "grok-4"
	DefaultTestModel = "grok-3-mini"
)

const (
	DefaultAgents      = 5
	DefaultTemperature = 0.7
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}
