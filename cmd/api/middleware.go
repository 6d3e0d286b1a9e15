package main

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/copassenger-api/internal/auth"
)

// claimsKey is the fiber Locals key holding verified token claims.
const claimsKey = "auth.claims"

const (
	msgNoToken      = "No token provided, authorization denied."
	msgInvalidToken = "Token is invalid."
)

// requireAuth verifies the bearer token and stores its claims for handlers.
func (s *Server) requireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token := header
		if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
			token = strings.TrimSpace(header[7:])
		}
		if token == "" {
			return writeError(c, fiber.StatusUnauthorized, msgNoToken)
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			s.log.Debugw("token rejected", "error", err, "path", c.Path())
			return writeError(c, fiber.StatusUnauthorized, msgInvalidToken)
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// claimsFrom returns the claims stored by requireAuth.
func claimsFrom(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// userIDFrom returns the authenticated user's ObjectID.
func userIDFrom(c *fiber.Ctx) (bson.ObjectID, bool) {
	claims, ok := claimsFrom(c)
	if !ok {
		return bson.ObjectID{}, false
	}
	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return bson.ObjectID{}, false
	}
	return id, true
}
