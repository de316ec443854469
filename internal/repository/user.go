package repository

import (
	"context"
	"errors"

	"feedline/internal/models"
	"feedline/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const userPostsTable = "user_posts"

type userRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, logger: observability.NewRepoLogger(driverGorm, "users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	defer observability.TrackQuery(driverGorm, "get", "users")()
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("user")
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observability.TrackQuery(driverGorm, "get_by_email", "users")()
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery(driverGorm, "create", "users")()
	user.Email = normalizeEmail(user.Email)
	if user.Status == "" {
		user.Status = models.DefaultUserStatus
	}
	if err := r.db.WithContext(ctx).Omit("Posts").Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError(EmailExistsMessage,
				models.FieldError{Field: "email", Message: EmailExistsMessage})
		}
		r.logger.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]any{"user_id": user.ID})
	return nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	defer observability.TrackQuery(driverGorm, "update_status", "users")()
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("user")
	}
	r.logger.LogUpdate(ctx, map[string]any{"user_id": id, "field": "status"})
	return nil
}

// AddPost appends postID to the user's owned collection. Repeated calls are no-ops.
func (r *userRepository) AddPost(ctx context.Context, userID, postID uint) error {
	defer observability.TrackQuery(driverGorm, "add_post", userPostsTable)()
	err := r.db.WithContext(ctx).Table(userPostsTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]any{"user_id": userID, "post_id": postID}).Error
	if err != nil {
		r.logger.LogError(ctx, err, "add_post")
		return models.NewInternalError(err)
	}
	return nil
}

// RemovePost pulls postID from the user's owned collection.
func (r *userRepository) RemovePost(ctx context.Context, userID, postID uint) error {
	defer observability.TrackQuery(driverGorm, "remove_post", userPostsTable)()
	err := r.db.WithContext(ctx).
		Exec("DELETE FROM user_posts WHERE user_id = ? AND post_id = ?", userID, postID).Error
	if err != nil {
		r.logger.LogError(ctx, err, "remove_post")
		return models.NewInternalError(err)
	}
	return nil
}
