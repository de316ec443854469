package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"feedline/internal/config"
	"feedline/internal/models"
	"feedline/internal/observability"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenOptions configures signed bearer tokens.
type TokenOptions struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenStrategy issues HS256 JWTs. Revocation uses a jti blacklist in Redis when available.
type TokenStrategy struct {
	opts TokenOptions
	rdb  *redis.Client
	now  func() time.Time
}

// NewTokenStrategy returns a TokenStrategy. rdb may be nil, which disables revocation.
func NewTokenStrategy(opts TokenOptions, rdb *redis.Client) *TokenStrategy {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &TokenStrategy{opts: opts, rdb: rdb, now: time.Now}
}

func (s *TokenStrategy) Name() string { return config.AuthStrategyToken }

func blacklistKey(jti string) string { return "blacklist:" + jti }

// Issue signs a token for user.
func (s *TokenStrategy) Issue(_ context.Context, user *models.User) (Proof, error) {
	if s.opts.Secret == "" {
		return Proof{}, errors.New("JWT secret not configured")
	}

	now := s.now()
	expiresAt := now.Add(s.opts.TTL)
	claims := jwt.MapClaims{
		"sub":    strconv.FormatUint(uint64(user.ID), 10),
		"email":  user.Email,
		"userId": strconv.FormatUint(uint64(user.ID), 10),
		"iss":    s.opts.Issuer,
		"aud":    s.opts.Audience,
		"exp":    expiresAt.Unix(),
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"jti":    uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return Proof{}, fmt.Errorf("sign token: %w", err)
	}
	return Proof{Value: signed, ExpiresAt: expiresAt}, nil
}

func (s *TokenStrategy) parse(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.Issuer))
	}
	if s.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.opts.Audience))
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(s.opts.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidProof
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidProof
	}
	return claims, nil
}

// Resolve verifies raw and returns the user id in its subject claim.
func (s *TokenStrategy) Resolve(ctx context.Context, raw string) (uint, error) {
	if raw == "" {
		return 0, ErrInvalidProof
	}
	claims, err := s.parse(raw)
	if err != nil {
		return 0, err
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, ErrInvalidProof
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidProof
	}

	if jti, _ := claims["jti"].(string); jti != "" && s.rdb != nil {
		n, err := s.rdb.Exists(ctx, blacklistKey(jti)).Result()
		if err != nil {
			observability.RedisErrorRate.WithLabelValues("token_blacklist_check").Inc()
		} else if n > 0 {
			return 0, ErrRevokedProof
		}
	}

	return uint(userID), nil
}

// Revoke blacklists the token's jti until the token would have expired anyway.
func (s *TokenStrategy) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	if s.rdb == nil {
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}

	ttl := time.Minute
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if remaining := exp.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}
	if err := s.rdb.Set(ctx, blacklistKey(jti), "1", ttl).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("token_blacklist_set").Inc()
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
