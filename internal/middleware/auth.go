// Package middleware provides HTTP middleware shared by the API routes.
package middleware

import (
	"context"
	"errors"

	"feedline/internal/auth"
	"feedline/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UserLocal is the Fiber locals key holding the authenticated user id.
const UserLocal = "userID"

func attachUser(c *fiber.Ctx, userID uint) {
	c.Locals(UserLocal, userID)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
}

// RequireAuth rejects requests without a valid proof for strategy.
func RequireAuth(strategy auth.Strategy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := auth.ExtractProof(c, strategy)
		if raw == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Not authenticated."))
		}

		userID, err := strategy.Resolve(c.UserContext(), raw)
		switch {
		case errors.Is(err, auth.ErrRevokedProof):
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token has been revoked."))
		case errors.Is(err, auth.ErrInvalidProof):
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Not authenticated."))
		case err != nil:
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}

		attachUser(c, userID)
		return c.Next()
	}
}

// OptionalAuth attaches the user when a valid proof is present and never rejects.
func OptionalAuth(strategy auth.Strategy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := auth.ExtractProof(c, strategy); raw != "" {
			if userID, err := strategy.Resolve(c.UserContext(), raw); err == nil {
				attachUser(c, userID)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or 0 when the request is anonymous.
func UserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals(UserLocal).(uint); ok {
		return id
	}
	return 0
}
