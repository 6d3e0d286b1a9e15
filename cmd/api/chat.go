package main

import (
	"github.com/gofiber/fiber/v2"

	"github.com/PaulBabatuyi/copassenger-api/internal/pipeline"
)

type chatRequest struct {
	Message  string `json:"message"`
	VideoURL string `json:"videoUrl"`
}

type chatResponse struct {
	Messages []pipeline.Reply `json:"messages"`
}

// handleChat runs the reply pipeline. Degraded steps still produce a 200
// with fallback replies; only an aborted request surfaces as an error.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	// an empty or missing body is an empty prompt, which gets the intro set
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, msgBadBody)
		}
	}

	replies, err := s.chat.Respond(c.UserContext(), pipeline.Request{
		Message:  req.Message,
		VideoURL: req.VideoURL,
	})
	if err != nil {
		return writeInternal(c, "Failed to process chat request", err)
	}
	return c.JSON(chatResponse{Messages: replies})
}

// handleVoices passes the speech provider's voice catalogue through.
func (s *Server) handleVoices(c *fiber.Ctx) error {
	if s.voices == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Speech synthesis is not configured")
	}

	raw, err := s.voices.Voices(c.UserContext())
	if err != nil {
		s.log.Warnw("voice listing failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorBody{Error: "Failed to fetch voices", Details: err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}
