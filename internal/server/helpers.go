package server

import (
	"errors"
	"io"

	"feedline/internal/artifact"
	"feedline/internal/models"
	"feedline/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten signals that a helper already committed the response.
// Handlers return nil when they see it.
var errResponseWritten = errors.New("response already written")

// parseID reads a positive integer route parameter. On failure it writes a
// 422 response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithAppError(c, models.NewValidationError("Invalid "+param+"."))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// formUpload returns the multipart file in field, or nil when the request has none.
func formUpload(c *fiber.Ctx, field string) (*artifact.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	src, err := fh.Open()
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, models.NewValidationError("Unable to read uploaded file")
	}
	return &artifact.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}

func imageFieldError(message string) error {
	return models.NewValidationError(validation.FailedMessage, models.FieldError{Field: "image", Message: message})
}
