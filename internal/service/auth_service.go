package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"feedline/internal/auth"
	"feedline/internal/models"
	"feedline/internal/observability"
	"feedline/internal/repository"
	"feedline/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const maxStatusLength = 255

type AuthService struct {
	users      repository.UserRepository
	strategy   auth.Strategy
	bcryptCost int
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
}

func NewAuthService(users repository.UserRepository, strategy auth.Strategy, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, strategy: strategy, bcryptCost: bcryptCost}
}

// Strategy exposes the proof strategy so transport code can read proofs off requests.
func (s *AuthService) Strategy() auth.Strategy {
	return s.strategy
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)

	var fields validation.Fields
	fields.Check("email", validation.ValidateEmail(email))
	fields.Check("password", validation.ValidatePassword(in.Password))
	fields.Check("name", validation.ValidateName(name))
	if validation.ValidateEmail(email) == nil {
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			fields.Check("email", errors.New(repository.EmailExistsMessage))
		}
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(in.Password)), s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hashed),
		Name:     name,
		Status:   models.DefaultUserStatus,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks an email and password pair.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("A user with this email could not be found.")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(strings.TrimSpace(password))); err != nil {
		return nil, models.NewUnauthorizedError("Wrong password.")
	}
	return user, nil
}

// Login authenticates the caller and issues a proof with the configured strategy.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, auth.Proof, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		outcome := "error"
		if models.IsCode(err, models.CodeUnauthorized) {
			outcome = "rejected"
		}
		observability.AuthAttempts.WithLabelValues(s.strategy.Name(), outcome).Inc()
		return nil, auth.Proof{}, err
	}

	proof, err := s.strategy.Issue(ctx, user)
	if err != nil {
		observability.AuthAttempts.WithLabelValues(s.strategy.Name(), "error").Inc()
		return nil, auth.Proof{}, models.NewInternalError(err)
	}
	observability.AuthAttempts.WithLabelValues(s.strategy.Name(), "ok").Inc()
	return user, proof, nil
}

// Resolve maps a raw proof to a user id.
func (s *AuthService) Resolve(ctx context.Context, raw string) (uint, error) {
	if raw == "" {
		return 0, auth.ErrInvalidProof
	}
	return s.strategy.Resolve(ctx, raw)
}

func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.strategy.Revoke(ctx, raw)
}

// Status returns the caller's status line.
func (s *AuthService) Status(ctx context.Context, userID uint) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

func (s *AuthService) UpdateStatus(ctx context.Context, userID uint, status string) (string, error) {
	status = strings.TrimSpace(status)
	var fields validation.Fields
	switch {
	case status == "":
		fields.Check("status", errors.New("status is required"))
	case utf8.RuneCountInString(status) > maxStatusLength:
		fields.Check("status", fmt.Errorf("status must not exceed %d characters", maxStatusLength))
	}
	if err := fields.Err(); err != nil {
		return "", err
	}
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		return "", err
	}
	return status, nil
}
