package server

import (
	"time"

	"feedline/internal/auth"
	"feedline/internal/middleware"
	"feedline/internal/models"
	"feedline/internal/service"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Name     string `json:"name" form:"name"`
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Signup handles PUT|POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string,name=string} true "Signup request"
// @Success 201 {object} object{message=string,userId=int}
// @Failure 422 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Signup(c.UserContext(), service.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created!",
		"userId":  user.ID,
	})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate and receive a bearer token or a session cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,userId=int}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	user, proof, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	if s.sessionMode() {
		c.Cookie(&fiber.Cookie{
			Name:     auth.SessionCookie,
			Value:    proof.Value,
			Path:     "/",
			Expires:  proof.ExpiresAt,
			HTTPOnly: true,
			Secure:   s.config.IsProduction(),
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.JSON(fiber.Map{"userId": user.ID})
	}

	return c.JSON(fiber.Map{
		"token":  proof.Value,
		"userId": user.ID,
	})
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the caller's token or session
// @Tags auth
// @Produce json
// @Success 200 {object} object{message=string}
// @Security BearerAuth
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	raw := auth.ExtractProof(c, s.authService.Strategy())
	if err := s.authService.Logout(c.UserContext(), raw); err != nil {
		return models.RespondWithAppError(c, models.NewInternalError(err))
	}

	if s.sessionMode() {
		c.Cookie(&fiber.Cookie{
			Name:     auth.SessionCookie,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	return c.JSON(fiber.Map{"message": "Logged out."})
}

// GetStatus handles GET /api/auth/status
// @Summary Read status
// @Tags auth
// @Produce json
// @Success 200 {object} object{status=string}
// @Security BearerAuth
// @Router /auth/status [get]
func (s *Server) GetStatus(c *fiber.Ctx) error {
	status, err := s.authService.Status(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// UpdateStatus handles PATCH /api/auth/status
// @Summary Update status
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{status=string} true "New status"
// @Success 200 {object} object{message=string,status=string}
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/status [patch]
func (s *Server) UpdateStatus(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status" form:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithAppError(c, models.NewValidationError("Invalid request body"))
	}

	status, err := s.authService.UpdateStatus(c.UserContext(), middleware.UserID(c), req.Status)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"message": "User updated.", "status": status})
}

// CSRFToken handles GET /api/auth/csrf in session deployments. The csrf
// middleware has already set the cookie; the token is echoed for the header.
func (s *Server) CSRFToken(c *fiber.Ctx) error {
	token, _ := c.Locals(csrfLocalsKey).(string)
	return c.JSON(fiber.Map{"csrfToken": token})
}
