// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "feedline/docs" // swagger docs
	"feedline/internal/artifact"
	"feedline/internal/auth"
	"feedline/internal/config"
	"feedline/internal/featureflags"
	"feedline/internal/middleware"
	"feedline/internal/models"
	"feedline/internal/notifications"
	"feedline/internal/repository"
	"feedline/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

const (
	// CSRFHeader carries the double-submit token in session deployments.
	CSRFHeader    = "X-CSRF-Token"
	csrfCookie    = "csrf_"
	csrfLocalsKey = "csrf"
)

// HealthCheck probes one dependency for /health/ready.
type HealthCheck func(ctx context.Context) error

// Deps are the already-initialized backends a Server runs against.
type Deps struct {
	Repos     repository.Repositories
	Redis     *redis.Client
	Artifacts artifact.Store
	// Strategy defaults to the one selected by AUTH_STRATEGY.
	Strategy auth.Strategy
	Checks   map[string]HealthCheck
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	repos          repository.Repositories
	artifacts      artifact.Store
	stager         *artifact.Stager
	cleaner        *artifact.Cleaner
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	checks         map[string]HealthCheck
	authService    *service.AuthService
	postService    *service.PostService
}

// NewServer wires services, the feed hub and the notification bus over deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Repos.Posts == nil || deps.Repos.Users == nil {
		return nil, errors.New("post and user repositories are required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}

	strategy := deps.Strategy
	if strategy == nil {
		var err error
		strategy, err = auth.NewStrategy(cfg, deps.Redis)
		if err != nil {
			return nil, fmt.Errorf("auth strategy: %w", err)
		}
	}

	s := &Server{
		config:         cfg,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("feedline-api"),
		repos:          deps.Repos,
		artifacts:      deps.Artifacts,
		stager:         artifact.NewStager(deps.Artifacts, cfg.ImageMaxUploadSizeMB),
		cleaner:        artifact.NewCleaner(deps.Artifacts),
		hub:            notifications.NewHub(),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		checks:         deps.Checks,
	}
	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
	}

	s.authService = service.NewAuthService(deps.Repos.Users, strategy, cfg.BcryptCost)
	s.postService = service.NewPostService(
		deps.Repos.Posts,
		deps.Repos.Users,
		s.cleaner,
		notifications.NewFeedPublisher(s.hub, s.notifier),
		cfg.FeedPageSize,
	)
	return s, nil
}

func (s *Server) sessionMode() bool {
	return s.authService.Strategy().Name() == config.AuthStrategySession
}

// App builds the Fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "Feedline API",
		BodyLimit:    (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
		ReadTimeout:  time.Duration(s.config.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeoutSeconds) * time.Second,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Message: fe.Message, Status: fe.Code})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
	return models.RespondWithAppError(c, err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep their headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + CSRFHeader,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: s.config.AllowedOrigins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || s.config.Env == "test"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Message: "Too many requests, please try again later.",
				Status:  fiber.StatusTooManyRequests,
			})
		},
	}))

	if s.sessionMode() {
		app.Use(encryptcookie.New(encryptcookie.Config{Key: s.config.SessionCookieKey}))
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "header:" + CSRFHeader,
			CookieName:     csrfCookie,
			CookieSameSite: "Lax",
			CookieSecure:   s.config.IsProduction(),
			Expiration:     time.Hour,
			ContextKey:     csrfLocalsKey,
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Get("/images/*", s.ServeImage)

	api := app.Group("/api")
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/feature-flags", middleware.OptionalAuth(s.authService.Strategy()), s.GetFeatureFlags)

	requireAuth := middleware.RequireAuth(s.authService.Strategy())
	limitsOff := s.config.Env == "test"

	authGroup := api.Group("/auth")
	signupLimit := middleware.RateLimit(s.redis, middleware.RateLimitOptions{
		Name: "signup", Limit: 5, Window: 10 * time.Minute, Disabled: limitsOff,
	})
	authGroup.Put("/signup", signupLimit, s.Signup)
	authGroup.Post("/signup", signupLimit, s.Signup)
	authGroup.Post("/login", middleware.RateLimit(s.redis, middleware.RateLimitOptions{
		Name: "login", Limit: 10, Window: 5 * time.Minute, Disabled: limitsOff,
	}), s.Login)
	authGroup.Post("/logout", requireAuth, s.Logout)
	authGroup.Get("/status", requireAuth, s.GetStatus)
	authGroup.Patch("/status", requireAuth, s.UpdateStatus)
	if s.sessionMode() {
		authGroup.Get("/csrf", s.CSRFToken)
	}

	feed := api.Group("/feed", requireAuth)
	feed.Get("/posts", s.GetPosts)
	feed.Post("/post", middleware.RateLimit(s.redis, middleware.RateLimitOptions{
		Name: "create_post", Limit: 10, Window: time.Minute, Disabled: limitsOff,
	}), s.CreatePost)
	feed.Get("/post/:postId", s.GetPost)
	feed.Put("/post/:postId", s.UpdatePost)
	feed.Delete("/post/:postId", s.DeletePost)

	api.Post("/images", requireAuth, s.requireFlag(featureflags.ImageStaging), s.StageImage)

	api.Get("/ws",
		s.wsTokenFromQuery(),
		middleware.OptionalAuth(s.authService.Strategy()),
		s.requireFlag(featureflags.LiveFeed),
		s.requireUpgrade,
		s.FeedSocket(),
	)
}

// Start wires the hub to the notification bus and serves until the listener stops.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier.Enabled() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start feed wiring", "hub", s.hub.Name(), "error", err)
		}
	}

	middleware.Logger.Info("Server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops the listener, closes feed connections and releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", "hub", s.hub.Name(), "error", err)
	}

	var errs []error
	if s.repos.Close != nil {
		if err := s.repos.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck probes every registered dependency and Redis when configured.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true
	for name, check := range s.checks {
		status := "healthy"
		if err := check(ctx); err != nil {
			status = "unhealthy"
			healthy = false
		}
		checks[name] = status
	}
	if s.redis != nil {
		status := "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			status = "unhealthy"
			healthy = false
		}
		checks["redis"] = status
	}

	status, overall := fiber.StatusOK, "healthy"
	if !healthy {
		status, overall = fiber.StatusServiceUnavailable, "unhealthy"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": checks,
		"time":   time.Now(),
	})
}

func (s *Server) requireFlag(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.featureFlags.Enabled(name, middleware.UserID(c)) {
			return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("resource"))
		}
		return c.Next()
	}
}
