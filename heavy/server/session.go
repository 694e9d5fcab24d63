package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

// Websocket event types.
const (
	EventSession = "session"
	EventState   = "state"
	EventReply   = "reply"
	EventError   = "error"
)

// Event is one server-to-client websocket frame.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	State     string `json:"state,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
}

// session holds one websocket client's accumulated history.
type session struct {
	id      string
	history []ports.PromptMessage
	srv     *Server
}

// openSession resumes id from the conversation store when possible, or
// starts a new session.
func (s *Server) openSession(ctx context.Context, id string) *session {
	if id == "" || s.sessions == nil {
		return &session{id: uuid.NewString(), srv: s}
	}

	sess := &session{id: id, srv: s}
	turns, err := s.sessions.LoadContext(ctx, id, 0)
	if err != nil {
		s.logger.Warn().Err(err).Str("session", id).Msg("failed to load session history")
		return sess
	}
	for _, t := range turns {
		sess.history = append(sess.history, ports.PromptMessage{Role: t.Role, Content: t.Content})
	}
	return sess
}

// handle runs one message through the orchestrator, emitting state events
// and then the reply. Failures are reported to the client and the session
// stays usable.
func (sess *session) handle(ctx context.Context, text string, emit func(Event) error) error {
	message := strings.TrimSpace(text)
	if message == "" {
		return emit(Event{Type: EventError, Error: "message is empty"})
	}

	srv := sess.srv
	res, err := srv.orch.Run(ctx, srv.conversation(sess.history, message),
		majority.WithRecorder(srv.recorder),
		majority.WithObserver(func(run majority.RunInfo, st majority.State) {
			if err := emit(Event{Type: EventState, RunID: run.ID, State: string(st)}); err != nil {
				srv.logger.Debug().Err(err).Msg("failed to send state event")
			}
		}),
	)
	if err != nil {
		return emit(Event{Type: EventError, Error: err.Error()})
	}

	sess.remember(ctx, majority.User(message), majority.Assistant(res.Final))
	return emit(Event{Type: EventReply, RunID: res.Run.ID, Reply: res.Final})
}

func (sess *session) remember(ctx context.Context, turns ...ports.PromptMessage) {
	sess.history = append(sess.history, turns...)
	if sess.srv.sessions == nil {
		return
	}
	for _, t := range turns {
		err := sess.srv.sessions.SaveTurn(ctx, sess.id, ports.Turn{Role: t.Role, Content: t.Content, CreatedAt: time.Now()})
		if err != nil {
			sess.srv.logger.Warn().Err(err).Str("session", sess.id).Msg("failed to persist turn")
		}
	}
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
	}()

	ctx := context.Background()
	sess := s.openSession(ctx, c.Query("session"))
	emit := func(e Event) error { return c.WriteJSON(e) }

	if err := emit(Event{Type: EventSession, SessionID: sess.id}); err != nil {
		return
	}

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := sess.handle(ctx, string(data), emit); err != nil {
			s.logger.Debug().Err(err).Str("session", sess.id).Msg("websocket closed")
			return
		}
	}
}
