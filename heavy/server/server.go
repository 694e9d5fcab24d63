// Package server exposes the chat variant over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/config"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

// Deps are the collaborators of the chat server. Sessions, Gatherer and
// Recorders are optional.
type Deps struct {
	Orchestrator *majority.Orchestrator
	Window       *harness.HistoryWindow
	Recorders    []majority.Recorder
	Sessions     ports.ConversationStore
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
}

// Server is the chat surface.
type Server struct {
	app       *fiber.App
	cfg       config.ServerConfig
	orch      *majority.Orchestrator
	window    *harness.HistoryWindow
	recorder  majority.Recorder
	sessions  ports.ConversationStore
	validator *harness.SchemaValidator
	logger    zerolog.Logger
}

func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	validator, err := harness.NewSchemaValidator([]byte(chatRequestSchema))
	if err != nil {
		return nil, err
	}

	window := deps.Window
	if window == nil {
		window = harness.NewHistoryWindow(harness.Budget{}, nil)
	}

	s := &Server{
		cfg:       cfg,
		orch:      deps.Orchestrator,
		window:    window,
		recorder:  majority.Recorders(deps.Recorders),
		sessions:  deps.Sessions,
		validator: validator,
		logger:    deps.Logger.With().Str("component", "server").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "heavy",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Post("/api/chat", s.handleChat)
	s.app.Get("/ws", upgradeOnly, websocket.New(s.handleWebSocket))
	if deps.Gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return s, nil
}

// App exposes the fiber app for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on the configured address.
func (s *Server) Listen() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("chat server listening")
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// conversation builds the run context for a new message, trimmed to the
// history window.
func (s *Server) conversation(history []ports.PromptMessage, message string) majority.Conversation {
	turns := majority.FromChat(history, message).Messages()
	return majority.NewConversation(s.window.Fit(turns)...)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	var re *heavy.RemoteServiceError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.As(err, &re):
		code = fiber.StatusBadGateway
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")
	return err
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
