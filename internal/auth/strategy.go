// Package auth issues and resolves the proofs that bind a request to a user.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"feedline/internal/config"
	"feedline/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// SessionCookie is the cookie that carries a session id.
const SessionCookie = "session_id"

var (
	// ErrInvalidProof is returned for missing, malformed or unknown proofs.
	ErrInvalidProof = errors.New("invalid proof")
	// ErrRevokedProof is returned for proofs revoked by logout.
	ErrRevokedProof = errors.New("proof has been revoked")
)

// Proof is the opaque credential handed to a client after login.
type Proof struct {
	Value     string
	ExpiresAt time.Time
}

// Strategy is one way of proving identity on subsequent requests.
type Strategy interface {
	Name() string
	Issue(ctx context.Context, user *models.User) (Proof, error)
	Resolve(ctx context.Context, raw string) (uint, error)
	Revoke(ctx context.Context, raw string) error
}

// NewStrategy builds the strategy selected by AUTH_STRATEGY.
func NewStrategy(cfg *config.Config, rdb *redis.Client) (Strategy, error) {
	switch cfg.AuthStrategy {
	case "", config.AuthStrategyToken:
		return NewTokenStrategy(TokenOptions{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		}, rdb), nil
	case config.AuthStrategySession:
		if rdb == nil {
			return nil, errors.New("session strategy requires redis")
		}
		return NewSessionStrategy(rdb, time.Duration(cfg.SessionTTLMinutes)*time.Minute), nil
	default:
		return nil, errors.New("unsupported auth strategy " + cfg.AuthStrategy)
	}
}

// ExtractProof reads the raw proof for s from the request: a bearer token
// for the token strategy, the session cookie for the session strategy.
func ExtractProof(c *fiber.Ctx, s Strategy) string {
	if s.Name() == config.AuthStrategySession {
		return c.Cookies(SessionCookie)
	}
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
