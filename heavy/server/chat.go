package server

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

const chatRequestSchema = `{
	"type": "object",
	"required": ["message"],
	"additionalProperties": false,
	"properties": {
		"message": {"type": "string", "minLength": 1},
		"history": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"enum": ["user", "assistant"]},
					"content": {"type": "string"}
				}
			}
		}
	}
}`

type chatRequest struct {
	Message string                `json:"message"`
	History []ports.PromptMessage `json:"history"`
}

type chatResponse struct {
	RunID string `json:"run_id"`
	Reply string `json:"reply"`
}

// handleChat runs one orchestration with the client-supplied history.
func (s *Server) handleChat(c *fiber.Ctx) error {
	body := c.Body()
	if err := s.validator.Validate(json.RawMessage(body)); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is empty")
	}

	res, err := s.orch.Run(c.UserContext(), s.conversation(req.History, message), majority.WithRecorder(s.recorder))
	if err != nil {
		return err
	}

	return c.JSON(chatResponse{RunID: res.Run.ID, Reply: res.Final})
}
