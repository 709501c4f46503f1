package http

import (
	"strings"

	"scoreboard/internal/identity"
	"scoreboard/internal/server/core"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the auth middleware
const (
	localUserID    = "userID"
	localSessionID = "sessionID"
	localIdentity  = "identity"
)

// TokenValidator validates JWT tokens
type TokenValidator func(token string) (userID string, claims map[string]any, err error)

// AuthRequired enforces JWT authentication for protected endpoints
func AuthRequired(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "missing authorization token",
				Code:  core.ErrUnauthorized,
			})
		}

		if !authenticate(c, validateToken, token) {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "invalid or expired token",
				Code:  core.ErrUnauthorized,
			})
		}
		return c.Next()
	}
}

// OptionalAuth validates JWT if present but allows anonymous access
func OptionalAuth(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := extractBearerToken(c.Get("Authorization")); token != "" {
			authenticate(c, validateToken, token)
		}
		return c.Next()
	}
}

// DevAuth behaves like OptionalAuth but runs anonymous requests as fallback
func DevAuth(validateToken TokenValidator, fallback *identity.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" || !authenticate(c, validateToken, token) {
			c.Locals(localUserID, fallback.UID)
			c.Locals(localIdentity, fallback)
		}
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, validateToken TokenValidator, token string) bool {
	userID, claims, err := validateToken(token)
	if err != nil {
		return false
	}
	email, _ := claims["email"].(string)
	sid, _ := claims["sid"].(string)

	c.Locals(localUserID, userID)
	c.Locals(localSessionID, sid)
	c.Locals(localIdentity, &identity.Identity{UID: userID, Email: email})
	return true
}

// extractBearerToken extracts JWT token from Authorization header
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// identityOf returns the operator the auth middleware attached, nil for anonymous requests
func identityOf(c *fiber.Ctx) *identity.Identity {
	who, _ := c.Locals(localIdentity).(*identity.Identity)
	return who
}
