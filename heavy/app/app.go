// Package app wires configuration into the model client, orchestrators and
// surfaces shared by the CLI commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/heavy-vote/heavy/artifact"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/batch"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/config"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/db"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/providers"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/metrics"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/server"
)

// openRouterPrefixes are vendor-qualified model ids served through OpenRouter.
var openRouterPrefixes = []string{
	"openai/", "anthropic/", "deepseek/", "meta-llama/", "mistralai/", "qwen/", "x-ai/", "google/",
}

// App holds the long-lived components built from one Config.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Factory  *harness.Factory
	Client   *harness.Client

	db    *sql.DB
	store *adapters.LibSQLStore
}

// New builds the application. The provider is passed in so tests can avoid
// the network; use NewRouter for the real backends.
func New(ctx context.Context, cfg *config.Config, provider ports.Provider, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if cfg.Harness.EnableMetrics {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = metrics.New(a.Registry)
	}

	a.Factory = harness.NewFactory(&cfg.Harness, cfg.Provider.Timeout, a.Metrics, logger)
	a.Client = a.Factory.CreateClient(provider)

	if cfg.Database.Enabled {
		conn, err := db.Open(ctx, cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		a.db = conn
		a.store = adapters.NewLibSQLStore(conn)
	}

	logger.Info().
		Str("model", cfg.Provider.ActiveModel()).
		Int("agents", cfg.Majority.Agents).
		Bool("database", cfg.Database.Enabled).
		Bool("cache", cfg.Harness.CacheEnabled).
		Msg("application initialized")

	return a, nil
}

// Close releases the database, if open.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// NewRouter registers every backend with credentials in cfg. xAI is the
// fallback for unmatched model ids.
func NewRouter(ctx context.Context, cfg config.ProviderConfig, logger zerolog.Logger) (*providers.Router, error) {
	xai := providers.NewOpenAIProvider("xai", cfg.APIKey, cfg.BaseURL, nil)
	router := providers.NewRouter(xai)
	router.Register("grok", xai)

	if cfg.OpenRouterKey != "" {
		or := providers.NewOpenAIProvider("openrouter", cfg.OpenRouterKey, cfg.OpenRouterURL, nil)
		for _, prefix := range openRouterPrefixes {
			router.Register(prefix, or)
		}
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := providers.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		router.Register("gemini", gemini)
	}

	logger.Debug().
		Bool("openrouter", cfg.OpenRouterKey != "").
		Bool("gemini", cfg.GeminiAPIKey != "").
		Msg("model router ready")

	return router, nil
}

// Orchestrator builds a run pipeline. workers bounds the agent pool; 1 runs
// agents sequentially.
func (a *App) Orchestrator(mode majority.Mode, workers int, finalize bool) *majority.Orchestrator {
	p := a.Config.Provider
	m := a.Config.Majority
	model := p.ActiveModel()

	var aggregator majority.Aggregator
	switch mode {
	case majority.ModeNumeric:
		aggregator = majority.NewNumericVoter(a.Client, model, p.Temperature, m.Rounds(), m.Workers(), a.Logger, a.Metrics)
	default:
		aggregator = majority.NewAspectAggregator(a.Client, model, p.Temperature)
	}

	var finalizer *majority.Finalizer
	if finalize {
		finalizer = majority.NewFinalizer(a.Client, model, p.Temperature)
	}

	return majority.NewOrchestrator(
		majority.NewAgentRunner(a.Client, model, p.Temperature, majority.ParsePlacement(m.Placement)),
		aggregator,
		finalizer,
		majority.Options{
			Agents:         m.Agents,
			Workers:        workers,
			SortCandidates: m.SortCandidates,
			Model:          model,
			Logger:         a.Logger,
			Metrics:        a.Metrics,
		},
	)
}

// storeRecorders returns the run store recorder when a database is open.
func (a *App) storeRecorders() []majority.Recorder {
	if a.store == nil {
		return nil
	}
	return []majority.Recorder{artifact.NewStoreRecorder(a.store, a.Factory.CreateGuardrails())}
}

// BatchRunner builds the file-based variant. Agents always run sequentially.
func (a *App) BatchRunner(mode majority.Mode, finalize bool) *batch.Runner {
	return batch.NewRunner(
		a.Orchestrator(mode, 1, finalize),
		a.Config.Batch,
		a.Config.Majority.SystemPrompt,
		a.Factory.CreateGuardrails(),
		a.Logger,
		a.storeRecorders()...,
	)
}

// ChatServer builds the chat variant: concurrent agents, aspect merge and a
// final pass. Each run also leaves a debug trace.
func (a *App) ChatServer() (*server.Server, error) {
	recorders := append([]majority.Recorder{
		artifact.NewDebugFile(a.Config.Batch.DebugDir, a.Config.Batch.ArtifactPrefix, a.Factory.CreateGuardrails()),
	}, a.storeRecorders()...)

	deps := server.Deps{
		Orchestrator: a.Orchestrator(majority.ModeAspects, a.Config.Majority.Workers(), true),
		Window:       a.Factory.CreateHistoryWindow(),
		Recorders:    recorders,
		Logger:       a.Logger,
	}
	if a.store != nil {
		deps.Sessions = a.store
	}
	if a.Registry != nil {
		deps.Gatherer = a.Registry
	}

	return server.New(a.Config.Server, deps)
}

// NewLogger builds the process logger: console output unless JSON is set.
func NewLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseMode maps a CLI or config value to a Mode.
func ParseMode(s string) (majority.Mode, error) {
	switch majority.Mode(strings.ToLower(strings.TrimSpace(s))) {
	case majority.ModeAspects:
		return majority.ModeAspects, nil
	case majority.ModeNumeric:
		return majority.ModeNumeric, nil
	}
	return "", fmt.Errorf("unknown mode %q (want aspects or numeric)", s)
}
