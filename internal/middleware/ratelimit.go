package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedline/internal/models"
	"feedline/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// ErrLimiterUnavailable is returned when no Redis client is configured.
var ErrLimiterUnavailable = errors.New("rate limiter store unavailable")

// RateLimitOptions configures one Redis-backed limit.
type RateLimitOptions struct {
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
	// Disabled turns the limiter into a pass-through, e.g. in development and test.
	Disabled bool
}

// CheckRateLimit counts one hit for resource/id and reports whether it is within limit.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, ErrLimiterUnavailable
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("rate_limit").Inc()
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// RateLimit returns a Fiber middleware enforcing opts.Limit requests per opts.Window.
// It keys by authenticated user when known, otherwise by remote IP.
func RateLimit(rdb *redis.Client, opts RateLimitOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if opts.Disabled {
			return c.Next()
		}

		id := "ip:" + c.IP()
		if uid := UserID(c); uid != 0 {
			id = fmt.Sprintf("user:%d", uid)
		}

		resource := opts.Name
		if resource == "" {
			resource = c.Path()
		}

		allowed, err := CheckRateLimit(c.UserContext(), rdb, resource, id, opts.Limit, opts.Window)
		if err != nil {
			if opts.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					slog.String("resource", resource), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
					Message: "Rate limit unavailable.",
					Status:  fiber.StatusServiceUnavailable,
				})
			}
			return c.Next()
		}

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Message: "Too many requests, please try again later.",
				Status:  fiber.StatusTooManyRequests,
			})
		}
		return c.Next()
	}
}
