// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"feedline/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// EmailExistsMessage is returned when signup collides with an existing account.
const EmailExistsMessage = "E-Mail address already exists!"

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]models.Post, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	// GetByEmail returns nil, nil when no user has the address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	AddPost(ctx context.Context, userID, postID uint) error
	RemovePost(ctx context.Context, userID, postID uint) error
}

// Repositories bundles the stores a deployment runs against.
type Repositories struct {
	Posts PostRepository
	Users UserRepository
	Close func(ctx context.Context) error
}

// cachedPost keeps the creator projection that Post's JSON form cannot round-trip.
type cachedPost struct {
	Post    models.Post       `json:"post"`
	Creator models.CreatorRef `json:"creator"`
}

func newCachedPost(p *models.Post) cachedPost {
	cp := cachedPost{Post: *p, Creator: models.CreatorRef{ID: p.CreatorID}}
	if p.Creator != nil {
		cp.Creator = p.Creator.Ref()
	}
	return cp
}

func (cp cachedPost) restore() *models.Post {
	post := cp.Post
	post.Creator = &models.User{ID: cp.Creator.ID, Name: cp.Creator.Name}
	return &post
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
