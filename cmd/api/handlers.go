package main

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/PaulBabatuyi/copassenger-api/internal/auth"
)

const msgAllFields = "All fields are required."

type signupRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string           `json:"token"`
	User  *auth.PublicUser `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

// handleSignup registers an account. It does not log the user in.
func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return writeBindError(c, err, msgAllFields)
	}

	_, err := s.auth.CreateUser(c.UserContext(), req.FullName, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail):
		return writeError(c, fiber.StatusBadRequest, "Email already exists.")
	case errors.Is(err, auth.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		return writeInternal(c, "Failed to create user", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User created successfully. Please log in."})
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return writeBindError(c, err, msgAllFields)
	}

	token, user, err := s.auth.Authenticate(c.UserContext(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return writeError(c, fiber.StatusBadRequest, "User not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return writeError(c, fiber.StatusBadRequest, "Incorrect email or password")
	case errors.Is(err, auth.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		return writeInternal(c, "Failed to log in", err)
	}

	return c.JSON(loginResponse{Token: token, User: user})
}

// handleMe returns the caller's profile.
func (s *Server) handleMe(c *fiber.Ctx) error {
	claims, ok := claimsFrom(c)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
	}

	user, err := s.auth.Profile(c.UserContext(), claims.UserID)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return writeError(c, fiber.StatusNotFound, "User not found.")
	case err != nil:
		return writeInternal(c, "Failed to load user", err)
	}
	return c.JSON(user)
}

func (s *Server) handleChangePassword(c *fiber.Ctx) error {
	claims, ok := claimsFrom(c)
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
	}

	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return writeBindError(c, err, msgAllFields)
	}

	err := s.auth.ChangePassword(c.UserContext(), claims.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return writeError(c, fiber.StatusNotFound, "User not found.")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return writeError(c, fiber.StatusBadRequest, "Incorrect email or password")
	case errors.Is(err, auth.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		return writeInternal(c, "Failed to change password", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
