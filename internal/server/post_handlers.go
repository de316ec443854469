package server

import (
	"context"
	"strings"

	"feedline/internal/artifact"
	"feedline/internal/middleware"
	"feedline/internal/models"
	"feedline/internal/service"

	"github.com/gofiber/fiber/v2"
)

// postRequest accepts JSON or multipart bodies. Image is the existing URL a
// client echoes back on update; ImageURL references a staged upload.
type postRequest struct {
	Title    string `json:"title" form:"title"`
	Content  string `json:"content" form:"content"`
	Image    string `json:"image" form:"image"`
	ImageURL string `json:"imageUrl" form:"imageUrl"`
}

func (r postRequest) imageRef() string {
	if ref := strings.TrimSpace(r.ImageURL); ref != "" {
		return ref
	}
	return strings.TrimSpace(r.Image)
}

// GetPosts handles GET /api/feed/posts
// @Summary List feed
// @Description Page through all posts, newest first
// @Tags feed
// @Produce json
// @Param page query int false "1-indexed page"
// @Param perPage query int false "Page size (max 100)"
// @Success 200 {object} object{message=string,posts=[]models.Post,totalItems=int}
// @Security BearerAuth
// @Router /feed/posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.postService.ListPosts(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("perPage", 0))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":    "Fetched posts successfully.",
		"posts":      page.Posts,
		"totalItems": page.TotalItems,
	})
}

// GetPost handles GET /api/feed/post/:postId
// @Summary Get post
// @Tags feed
// @Produce json
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /feed/post/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), postID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post fetched.", "post": post})
}

// CreatePost handles POST /api/feed/post
// @Summary Create post
// @Description Multipart with an "image" file, or JSON/form with a staged "imageUrl"
// @Tags feed
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file false "Image"
// @Param imageUrl formData string false "Previously staged image URL"
// @Success 201 {object} object{message=string,post=models.Post,creator=models.CreatorRef}
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /feed/post [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	imageURL, staged, err := s.resolveImage(ctx, c, req.imageRef(), "")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.CreatePost(ctx, service.CreatePostInput{
		CallerID: middleware.UserID(c),
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: imageURL,
	})
	if err != nil {
		// a stored post keeps referencing the staged artifact
		if staged && post == nil {
			s.cleaner.Remove(ctx, "create", imageURL)
		}
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully!",
		"post":    post,
		"creator": post.Creator.Ref(),
	})
}

// UpdatePost handles PUT /api/feed/post/:postId
// @Summary Update post
// @Description Replaces title, content and image. Send a new "image" file or the existing URL in "image".
// @Tags feed
// @Accept multipart/form-data
// @Produce json
// @Param postId path int true "Post ID"
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file false "Replacement image, or the existing image URL"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /feed/post/{postId} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	callerID := middleware.UserID(c)
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	current, err := s.postService.Authorize(ctx, callerID, postID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	imageURL, staged, err := s.resolveImage(ctx, c, req.imageRef(), current.ImageURL)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.UpdatePost(ctx, service.UpdatePostInput{
		CallerID: callerID,
		PostID:   postID,
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: imageURL,
	})
	if err != nil {
		if staged {
			s.cleaner.Remove(ctx, "update", imageURL)
		}
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Post updated!", "post": post})
}

// DeletePost handles DELETE /api/feed/post/:postId
// @Summary Delete post
// @Tags feed
// @Produce json
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /feed/post/{postId} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "postId")
	if err != nil {
		return nil
	}

	err = s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		CallerID: middleware.UserID(c),
		PostID:   postID,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Deleted post."})
}

// resolveImage picks the image for a create or update: a multipart upload is
// staged now, otherwise ref must name a staged artifact or equal current.
// staged reports whether this call wrote the artifact.
func (s *Server) resolveImage(ctx context.Context, c *fiber.Ctx, ref, current string) (url string, staged bool, err error) {
	upload, err := formUpload(c, "image")
	if err != nil {
		return "", false, err
	}
	if upload != nil {
		url, err := s.stager.Stage(ctx, *upload)
		if err != nil {
			return "", false, err
		}
		return url, true, nil
	}

	if ref == "" {
		return "", false, nil
	}
	key, err := artifact.NormalizeKey(ref)
	if err != nil {
		return "", false, imageFieldError("image reference is invalid")
	}
	if key == current {
		return key, false, nil
	}
	exists, err := s.stager.Exists(ctx, key)
	if err != nil {
		return "", false, models.NewInternalError(err)
	}
	if !exists {
		return "", false, imageFieldError("image has not been uploaded")
	}
	return key, false, nil
}
