// Package service holds the post lifecycle and identity use cases.
package service

import (
	"context"
	"strings"

	"feedline/internal/models"
	"feedline/internal/observability"
	"feedline/internal/repository"
	"feedline/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPageSize = 2
	MaxPageSize     = 100
)

// Publisher delivers feed events to listeners. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, event models.FeedEvent) error
}

// ArtifactCleaner removes artifacts without ever failing the caller.
type ArtifactCleaner interface {
	Remove(ctx context.Context, operation, url string) bool
}

type PostService struct {
	posts           repository.PostRepository
	users           repository.UserRepository
	cleaner         ArtifactCleaner
	publisher       Publisher
	defaultPageSize int
}

type CreatePostInput struct {
	CallerID uint
	Title    string
	Content  string
	ImageURL string
}

// UpdatePostInput carries the replacement fields. ImageURL is either a newly
// staged artifact or the post's existing URL echoed back by the client.
type UpdatePostInput struct {
	CallerID uint
	PostID   uint
	Title    string
	Content  string
	ImageURL string
}

type DeletePostInput struct {
	CallerID uint
	PostID   uint
}

func NewPostService(
	posts repository.PostRepository,
	users repository.UserRepository,
	cleaner ArtifactCleaner,
	publisher Publisher,
	defaultPageSize int,
) *PostService {
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	return &PostService{
		posts:           posts,
		users:           users,
		cleaner:         cleaner,
		publisher:       publisher,
		defaultPageSize: min(defaultPageSize, MaxPageSize),
	}
}

// NormalizePage applies the 1-indexed page and page size rules.
func (s *PostService) NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	return page, min(pageSize, MaxPageSize)
}

// ListPosts returns one page of the global feed, newest first.
func (s *PostService) ListPosts(ctx context.Context, page, pageSize int) (_ *models.PostPage, err error) {
	page, pageSize = s.NormalizePage(page, pageSize)
	ctx, span := observability.StartSpan(ctx, "post_service", "list",
		attribute.Int("feed.page", page), attribute.Int("feed.page_size", pageSize))
	defer func() { s.finish(span, "list", err) }()

	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return &models.PostPage{Posts: posts, TotalItems: total, Page: page, PageSize: pageSize}, nil
}

func (s *PostService) GetPost(ctx context.Context, postID uint) (_ *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "get", attribute.Int64("post.id", int64(postID)))
	defer func() { s.finish(span, "get", err) }()

	return s.posts.GetByID(ctx, postID)
}

// CreatePost persists a post, records it in the creator's collection and
// announces it with the creator's {id, name} projection. When a step after
// the insert fails, the stored post is returned along with the error.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "create", attribute.Int64("user.id", int64(in.CallerID)))
	defer func() { s.finish(span, "create", err) }()

	title, content, err := validatePostFields(in.Title, in.Content)
	if err != nil {
		return nil, err
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		return nil, models.NewValidationError("No image provided.")
	}

	post := &models.Post{
		Title:     title,
		Content:   content,
		ImageURL:  imageURL,
		CreatorID: in.CallerID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	creator, err := s.users.GetByID(ctx, in.CallerID)
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "post persisted without creator lookup",
			"post_id", post.ID, "user_id", in.CallerID, "error", err)
		return post, err
	}
	if err := s.users.AddPost(ctx, creator.ID, post.ID); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "post persisted but not linked to creator",
			"post_id", post.ID, "user_id", creator.ID, "error", err)
		return post, err
	}
	post.Creator = creator

	s.publish(ctx, "create", models.NewFeedEvent(models.FeedActionCreate, *post))
	return post, nil
}

// UpdatePost replaces a post's fields. Only the creator may update; the old
// artifact is removed when the image changes.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "update", attribute.Int64("post.id", int64(in.PostID)))
	defer func() { s.finish(span, "update", err) }()

	post, err := s.loadOwned(ctx, in.CallerID, in.PostID)
	if err != nil {
		return nil, err
	}

	title, content, err := validatePostFields(in.Title, in.Content)
	if err != nil {
		return nil, err
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		return nil, models.NewValidationError("No file picked.")
	}

	if imageURL != post.ImageURL {
		s.cleaner.Remove(ctx, "update", post.ImageURL)
	}

	post.Title = title
	post.Content = content
	post.ImageURL = imageURL
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}

	s.publish(ctx, "update", models.NewFeedEvent(models.FeedActionUpdate, *post))
	return post, nil
}

// DeletePost removes a post, its artifact and the creator's reference to it.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (err error) {
	ctx, span := observability.StartSpan(ctx, "post_service", "delete", attribute.Int64("post.id", int64(in.PostID)))
	defer func() { s.finish(span, "delete", err) }()

	post, err := s.loadOwned(ctx, in.CallerID, in.PostID)
	if err != nil {
		return err
	}

	s.cleaner.Remove(ctx, "delete", post.ImageURL)

	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return err
	}
	if err := s.users.RemovePost(ctx, post.CreatorID, post.ID); err != nil {
		return err
	}

	s.publish(ctx, "delete", models.NewFeedEvent(models.FeedActionDelete, post.ID))
	return nil
}

// Authorize loads a post and checks that callerID created it. Transport code
// calls it before staging uploads so that a stranger never writes artifacts.
func (s *PostService) Authorize(ctx context.Context, callerID, postID uint) (*models.Post, error) {
	return s.loadOwned(ctx, callerID, postID)
}

func (s *PostService) loadOwned(ctx context.Context, callerID, postID uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != callerID {
		return nil, models.NewForbiddenError("Not authorized!")
	}
	return post, nil
}

func (s *PostService) publish(ctx context.Context, operation string, event models.FeedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		observability.FeedPublishFailures.WithLabelValues(event.Action).Inc()
		observability.LogBestEffortFailure(ctx, operation, "feed_publish", err, nil)
	}
}

func (s *PostService) finish(span trace.Span, operation string, err error) {
	observability.PostOperations.WithLabelValues(operation, observability.Outcome(err)).Inc()
	observability.EndSpan(span, err)
}

func validatePostFields(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	var fields validation.Fields
	fields.Check("title", validation.ValidateTitle(title))
	fields.Check("content", validation.ValidateContent(content))
	return title, content, fields.Err()
}
