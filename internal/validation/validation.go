// Package validation provides input validation utilities
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"feedline/internal/models"
)

const (
	minPasswordLength = 5
	maxPasswordLength = 128
	maxNameLength     = 100
	maxTitleLength    = 200
	maxContentLength  = 10000
	maxEmailLength    = 254
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > maxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", maxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return errors.New("please enter a valid email")
	}
	return nil
}

// ValidatePassword checks the trimmed password length.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(password))
	if n < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", maxPasswordLength)
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name must not exceed %d characters", maxNameLength)
	}
	return nil
}

// ValidateTitle checks a post title.
func ValidateTitle(title string) error {
	return requiredText("title", title, maxTitleLength)
}

// ValidateContent checks a post body.
func ValidateContent(content string) error {
	return requiredText("content", content, maxContentLength)
}

func requiredText(field, value string, max int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s must not exceed %d characters", field, max)
	}
	return nil
}

// FailedMessage heads every field-level validation failure.
const FailedMessage = "Validation failed, entered data is incorrect."

// Fields accumulates per-field failures.
type Fields []models.FieldError

// Check records err against field when it is non-nil.
func (f *Fields) Check(field string, err error) {
	if err != nil {
		*f = append(*f, models.FieldError{Field: field, Message: err.Error()})
	}
}

// Err returns a validation AppError when any field failed, nil otherwise.
func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return models.NewValidationError(FailedMessage, f...)
}
