package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/heavy-vote/heavy"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, a .env file, or environment variables.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Majority MajorityConfig `mapstructure:"majority"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProviderConfig stores remote model endpoint settings.
type ProviderConfig struct {
	APIKey        string  `mapstructure:"api_key"`        // XAI_API_KEY
	BaseURL       string  `mapstructure:"base_url"`       // OpenAI-compatible endpoint
	OpenRouterKey string  `mapstructure:"openrouter_key"` // OPENROUTER_API_KEY, optional
	OpenRouterURL string  `mapstructure:"openrouter_url"` // OpenRouter endpoint
	GeminiAPIKey  string  `mapstructure:"gemini_api_key"` // GEMINI_API_KEY, optional
	Model         string  `mapstructure:"model" validate:"required"`
	TestModel     string  `mapstructure:"test_model" validate:"required"`
	TestMode      bool    `mapstructure:"test_mode"` // TEST=true
	Temperature   float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// Timeout bounds a single remote call; zero leaves calls unbounded.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ActiveModel returns the model identifier selected by the test-mode flag.
func (p ProviderConfig) ActiveModel() string {
	if p.TestMode {
		return p.TestModel
	}
	return p.Model
}

// MajorityConfig controls the agent fan-out and aggregation phases.
type MajorityConfig struct {
	Agents         int    `mapstructure:"agents" validate:"min=1,max=64"`
	VoterRounds    int    `mapstructure:"voter_rounds" validate:"min=0,max=256"` // 0 means one round per agent
	Concurrency    int    `mapstructure:"concurrency" validate:"min=0,max=64"`   // agent pool size, 0 means one per agent
	Mode           string `mapstructure:"mode" validate:"oneof=aspects numeric"`
	Finalize       bool   `mapstructure:"finalize"`
	SortCandidates bool   `mapstructure:"sort_candidates"`
	Placement      string `mapstructure:"placement" validate:"oneof=append prepend"`
	SystemPrompt   string `mapstructure:"system_prompt"` // static role history for batch runs
}

// Rounds returns the effective number of voter rounds.
func (m MajorityConfig) Rounds() int {
	if m.VoterRounds > 0 {
		return m.VoterRounds
	}
	return m.Agents
}

// Workers returns the effective agent pool size for concurrent runs.
func (m MajorityConfig) Workers() int {
	if m.Concurrency > 0 {
		return m.Concurrency
	}
	return m.Agents
}

// HarnessConfig stores model client decoration settings.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool   `mapstructure:"cache_enabled"`                               // Enable response caching
	CacheBackend    string `mapstructure:"cache_backend" validate:"oneof=memory redis"` // "memory" or "redis"
	CacheCapacity   int    `mapstructure:"cache_capacity" validate:"min=1"`             // LRU cache capacity
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" validate:"min=1"`          // Cache entry TTL
	RedisAddr       string `mapstructure:"redis_addr"`                                  // Redis address for the redis backend

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`                   // Enable rate limiting
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity" validate:"min=1"` // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`               // Refill rate

	// History windowing for the chat surface
	MaxContextTokens int `mapstructure:"max_context_tokens" validate:"min=0"`
	MaxHistoryTurns  int `mapstructure:"max_history_turns" validate:"min=0"`

	// Artifacts
	RedactArtifacts bool `mapstructure:"redact_artifacts"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// BatchConfig stores file locations for the batch variants.
type BatchConfig struct {
	PromptFile     string        `mapstructure:"prompt_file" validate:"required"`
	DebugDir       string        `mapstructure:"debug_dir" validate:"required"`
	OutputDir      string        `mapstructure:"output_dir" validate:"required"`
	WatchDebounce  time.Duration `mapstructure:"watch_debounce"`
	ArtifactPrefix string        `mapstructure:"artifact_prefix" validate:"required"`
}

// ServerConfig stores the chat surface listener settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig stores the optional run store location.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// LoadConfig reads configuration from file or environment variables and
// validates it. A missing API key is reported as *heavy.StartupConfigError.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env file is the common case.
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultAppName)
	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. majority.agents becomes HEAVY_MAJORITY_AGENTS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Well-known variable names take part alongside the prefixed ones.
	_ = v.BindEnv("provider.api_key", "HEAVY_PROVIDER_API_KEY", "XAI_API_KEY")
	_ = v.BindEnv("provider.openrouter_key", "HEAVY_PROVIDER_OPENROUTER_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("provider.gemini_api_key", "HEAVY_PROVIDER_GEMINI_API_KEY", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// TEST only switches test mode on for the literal "true"; any other value means off.
	if test := os.Getenv("TEST"); test != "" && os.Getenv("HEAVY_PROVIDER_TEST_MODE") == "" {
		v.Set("provider.test_mode", strings.EqualFold(strings.TrimSpace(test), "true"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &internal.StartupConfigError{Reason: fmt.Sprintf("unable to decode into struct: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", internal.DefaultXAIBaseURL)
	v.SetDefault("provider.openrouter_url", internal.DefaultOpenRouterBaseURL)
	v.SetDefault("provider.model", internal.DefaultModel)
	v.SetDefault("provider.test_model", internal.DefaultTestModel)
	v.SetDefault("provider.test_mode", false)
	v.SetDefault("provider.temperature", internal.DefaultTemperature)
	v.SetDefault("provider.timeout", "0s")

	v.SetDefault("majority.agents", internal.DefaultAgents)
	v.SetDefault("majority.voter_rounds", 0)
	v.SetDefault("majority.concurrency", 0)
	v.SetDefault("majority.mode", "aspects")
	v.SetDefault("majority.finalize", true)
	v.SetDefault("majority.sort_candidates", true)
	v.SetDefault("majority.placement", "append")
	v.SetDefault("majority.system_prompt", "")

	// Identical prompts are expected across agents, so caching is opt-in.
	v.SetDefault("harness.cache_enabled", false)
	v.SetDefault("harness.cache_backend", "memory")
	v.SetDefault("harness.cache_capacity", 1000)
	v.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	v.SetDefault("harness.redis_addr", "localhost:6379")
	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_capacity", 8)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.max_context_tokens", 32000)
	v.SetDefault("harness.max_history_turns", 0)
	v.SetDefault("harness.redact_artifacts", true)
	v.SetDefault("harness.enable_tracing", false)
	v.SetDefault("harness.enable_metrics", true)

	v.SetDefault("batch.prompt_file", internal.DefaultPromptFile)
	v.SetDefault("batch.debug_dir", internal.DefaultDebugDir)
	v.SetDefault("batch.output_dir", internal.DefaultOutputDir)
	v.SetDefault("batch.watch_debounce", "500ms")
	v.SetDefault("batch.artifact_prefix", internal.DefaultAppName)

	v.SetDefault("server.addr", ":7860")
	v.SetDefault("server.read_timeout", "0s")
	v.SetDefault("server.write_timeout", "0s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.path", internal.DefaultDatabaseDSN)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

var validate = validator.New()

// Validate checks struct constraints and the presence of the API key.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &internal.StartupConfigError{
				Field:  fe.Namespace(),
				Reason: fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &internal.StartupConfigError{Reason: err.Error()}
	}

	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return &internal.StartupConfigError{
			Field:  "provider.api_key",
			Reason: "XAI_API_KEY is not set",
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return &internal.StartupConfigError{Field: "database.path", Reason: "required when database.enabled is set"}
	}

	return nil
}
