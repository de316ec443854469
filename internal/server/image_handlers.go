package server

import (
	"errors"
	"io"

	"feedline/internal/artifact"
	"feedline/internal/models"

	"github.com/gofiber/fiber/v2"
)

// StageImage handles POST /api/images
// @Summary Stage an image
// @Description Validate and store an image ahead of creating or updating a post
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image"
// @Success 201 {object} object{message=string,imageUrl=string}
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /images [post]
func (s *Server) StageImage(c *fiber.Ctx) error {
	upload, err := formUpload(c, "image")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if upload == nil {
		return models.RespondWithAppError(c, models.NewValidationError("No image provided."))
	}

	url, err := s.stager.Stage(c.UserContext(), *upload)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Image staged.",
		"imageUrl": url,
	})
}

// ServeImage handles GET /images/*
func (s *Server) ServeImage(c *fiber.Ctx) error {
	key, err := artifact.NormalizeKey(artifact.URLPrefix + c.Params("*"))
	if err != nil {
		return models.RespondWithAppError(c, models.NewNotFoundError("image"))
	}

	rc, contentType, err := s.artifacts.Open(c.UserContext(), key)
	if errors.Is(err, artifact.ErrNotFound) {
		return models.RespondWithAppError(c, models.NewNotFoundError("image"))
	}
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.Send(data)
}
