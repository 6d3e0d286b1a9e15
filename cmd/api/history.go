package main

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/PaulBabatuyi/copassenger-api/internal/data"
)

type saveHistoryRequest struct {
	Messages []data.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	ChatID   *string            `json:"chatId"`
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
	}

	sessions, err := s.chats.ListSessions(c.UserContext(), userID)
	if err != nil {
		return writeInternal(c, "Failed to fetch chat history", err)
	}
	return c.JSON(sessions)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
	}

	chat, err := s.chats.GetSession(c.UserContext(), userID, c.Params("id"))
	switch {
	case errors.Is(err, data.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "Chat not found")
	case err != nil:
		return writeInternal(c, "Failed to fetch chat", err)
	}
	return c.JSON(chat)
}

// handleUpsertSession creates a session when chatId is absent and replaces
// the transcript of an owned session otherwise.
func (s *Server) handleUpsertSession(c *fiber.Ctx) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
	}

	var req saveHistoryRequest
	if err := bind(c, &req); err != nil {
		return writeBindError(c, err, "Messages array is required")
	}

	var sessionID string
	if req.ChatID != nil {
		sessionID = *req.ChatID
	}

	chat, err := s.chats.UpsertSession(c.UserContext(), userID, sessionID, req.Messages)
	switch {
	case errors.Is(err, data.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, data.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "Chat not found or user unauthorized")
	case err != nil:
		return writeInternal(c, "Failed to save chat history", err)
	}
	return c.Status(fiber.StatusCreated).JSON(chat)
}
