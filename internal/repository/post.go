package repository

import (
	"context"
	"errors"

	"feedline/internal/cache"
	"feedline/internal/models"
	"feedline/internal/observability"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const driverGorm = "gorm"

// postRepository implements PostRepository on GORM.
type postRepository struct {
	db     *gorm.DB
	rdb    *redis.Client
	logger *observability.RepoLogger
}

// NewPostRepository creates a new post repository. rdb may be nil to disable caching.
func NewPostRepository(db *gorm.DB, rdb *redis.Client) PostRepository {
	return &postRepository{db: db, rdb: rdb, logger: observability.NewRepoLogger(driverGorm, "posts")}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery(driverGorm, "create", "posts")()
	if err := r.db.WithContext(ctx).Omit("Creator").Create(post).Error; err != nil {
		r.logger.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]any{"post_id": post.ID, "creator_id": post.CreatorID})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer observability.TrackQuery(driverGorm, "get", "posts")()

	var cp cachedPost
	err := cache.Aside(ctx, r.rdb, cache.PostKey(id), &cp, cache.PostTTL, func() error {
		var post models.Post
		if err := r.db.WithContext(ctx).Preload("Creator").First(&post, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("post")
			}
			return models.NewInternalError(err)
		}
		cp = newCachedPost(&post)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp.restore(), nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]models.Post, error) {
	defer observability.TrackQuery(driverGorm, "list", "posts")()
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	defer observability.TrackQuery(driverGorm, "count", "posts")()
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

// Update saves the mutable fields of post. The creator is never rewritten.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery(driverGorm, "update", "posts")()
	res := r.db.WithContext(ctx).Model(&models.Post{ID: post.ID}).
		Select("Title", "Content", "ImageURL", "UpdatedAt").
		Updates(post)
	if res.Error != nil {
		r.logger.LogError(ctx, res.Error, "update")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("post")
	}
	cache.Invalidate(ctx, r.rdb, cache.PostKey(post.ID))
	r.logger.LogUpdate(ctx, map[string]any{"post_id": post.ID})
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery(driverGorm, "delete", "posts")()
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		r.logger.LogError(ctx, res.Error, "delete")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("post")
	}
	cache.Invalidate(ctx, r.rdb, cache.PostKey(id))
	r.logger.LogDelete(ctx, map[string]any{"post_id": id})
	return nil
}
