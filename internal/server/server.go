// Package server contains the HTTP handlers for the crabber API.
package server

import (
	"context"
	"time"

	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/middleware"
	"crabber/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	limits         config.Limits
	svc            *service.Services
	limiter        *middleware.RateLimiter
	promMiddleware *fiberprometheus.FiberPrometheus
}

// NewServer creates a Server using already-initialized dependencies. A nil
// Redis client disables caching and limits requests in-process.
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	limits := cfg.Limits()
	rules := config.DefaultAwardRules()
	return &Server{
		config: cfg,
		db:     db,
		redis:  redisClient,
		limits: limits,
		svc: service.New(db, service.Options{
			Cache:  cache.New(redisClient),
			Limits: &limits,
			Rules:  &rules,
		}),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.RateLimitEnabled),
		promMiddleware: middleware.InitMetrics("crabber-api"),
	}
}

// Services exposes the wired service layer.
func (s *Server) Services() *service.Services {
	return s.svc
}

// App builds the Fiber app with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "crabber",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: ErrorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))
}

func (s *Server) window() time.Duration {
	return time.Duration(s.config.RateLimitWindowS) * time.Second
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api/v1", s.limiter.Handler(s.config.RateLimitRequests, s.window(), middleware.FailOpen, "api"))

	auth := middleware.AuthRequired(s.svc.Tokens.ResolveAccessToken)
	optional := middleware.AuthOptional(s.svc.Tokens.ResolveAccessToken)

	// Account routes
	api.Post("/signup", s.limiter.Handler(3, 10*time.Minute, middleware.FailClosed, "signup"), s.Signup)
	api.Post("/login", s.limiter.Handler(10, 5*time.Minute, middleware.FailClosed, "login"), s.Login)

	me := api.Group("/me", auth)
	me.Get("/", s.GetMe)
	me.Patch("/bio", s.UpdateBio)
	me.Put("/password", s.ChangePassword)
	me.Put("/timezone", s.SetTimezone)
	me.Get("/muted-words", s.GetMutedWords)
	me.Put("/muted-words", s.SetMutedWords)
	me.Get("/preferences/:key", s.GetPreference)
	me.Put("/preferences/:key", s.SetPreference)
	me.Put("/pinned", s.PinMolt)
	me.Delete("/pinned", s.UnpinMolt)
	me.Get("/timeline", s.Timeline)
	me.Get("/bookmarks", s.Bookmarks)
	me.Get("/recommended", s.Recommended)
	me.Get("/blocked", s.Blocked)
	me.Post("/tokens", s.IssueAccessToken)
	me.Delete("/tokens/:key", s.RevokeAccessToken)
	me.Post("/developer-keys", s.IssueDeveloperKey)
	me.Delete("/developer-keys/:key", s.RevokeDeveloperKey)

	notifications := me.Group("/notifications")
	notifications.Get("/", s.GetNotifications)
	notifications.Get("/unread", s.UnreadCount)
	notifications.Post("/read", s.MarkAllRead)
	notifications.Put("/:id/read", s.MarkRead)

	// Crab routes; /:username/... before the generic /:username. Listings
	// identify the caller so blocked crabs drop out.
	crabs := api.Group("/crabs")
	crabs.Get("/search", optional, s.SearchCrabs)
	crabs.Get("/popular", optional, s.PopularCrabs)
	crabs.Get("/:username/molts", optional, s.CrabMolts)
	crabs.Get("/:username/replies", optional, s.CrabReplies)
	crabs.Get("/:username/mentions", optional, s.CrabMentions)
	crabs.Get("/:username/replied-to", optional, s.CrabRepliedTo)
	crabs.Get("/:username/following", optional, s.Following)
	crabs.Get("/:username/followers", optional, s.Followers)
	crabs.Get("/:username/mutual", auth, s.MutualFollows)
	crabs.Get("/:username/trophies", s.Trophies)
	crabs.Get("/:username/pinned", s.PinnedMolt)
	crabs.Post("/:username/follow", auth, s.Follow)
	crabs.Delete("/:username/follow", auth, s.Unfollow)
	crabs.Post("/:username/block", auth, s.Block)
	crabs.Delete("/:username/block", auth, s.Unblock)
	crabs.Get("/:username", optional, s.GetCrab)

	// Molt routes; /:id/... before the generic /:id
	molts := api.Group("/molts")
	molts.Post("/", auth, s.limiter.Handler(30, time.Minute, middleware.FailOpen, "create_molt"), s.CreateMolt)
	molts.Get("/search", optional, s.SearchMolts)
	molts.Get("/most-liked", optional, s.MostLiked)
	molts.Get("/most-replied", optional, s.MostReplied)
	molts.Get("/:id/replies", optional, s.Replies)
	molts.Get("/:id/remolts", optional, s.Remolts)
	molts.Get("/:id/quotes", optional, s.Quotes)
	molts.Post("/:id/replies", auth, s.limiter.Handler(30, time.Minute, middleware.FailOpen, "create_molt"), s.Reply)
	molts.Post("/:id/quotes", auth, s.limiter.Handler(30, time.Minute, middleware.FailOpen, "create_molt"), s.Quote)
	molts.Post("/:id/remolt", auth, s.Remolt)
	molts.Post("/:id/like", auth, s.Like)
	molts.Delete("/:id/like", auth, s.Unlike)
	molts.Post("/:id/bookmark", auth, s.Bookmark)
	molts.Delete("/:id/bookmark", auth, s.Unbookmark)
	molts.Post("/:id/report", auth, s.limiter.Handler(10, time.Hour, middleware.FailOpen, "report"), s.Report)
	molts.Post("/:id/restore", auth, s.RestoreMolt)
	molts.Patch("/:id", auth, s.EditMolt)
	molts.Delete("/:id", auth, s.DeleteMolt)
	molts.Get("/:id", optional, s.GetMolt)

	// Crabtags
	api.Get("/crabtags/trending", s.TrendingTags)
	api.Get("/crabtags/:name", optional, s.TagMolts)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so its
// absence does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Shutdown releases the server's connections.
func (s *Server) Shutdown(_ context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return err
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
