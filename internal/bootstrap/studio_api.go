package bootstrap

import (
	"context"
	"os"
	"strings"
	"time"

	"studio_server/adapter/in/http"
	"studio_server/config"
	"studio_server/infra/middleware"
	"studio_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
)

// NewLogger builds the zerolog logger handed to long-lived components.
func NewLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", "studio-api").Logger()
}

// NewAPI wires the dependencies and the fiber app. The returned cleanup stops background
// loops and closes connections.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	zlog := NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	deps, cleanupDeps, err := NewDependencies(ctx, cfg, zlog)
	if err != nil {
		cancel()
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}
	cleanup := func() {
		cancel()
		cleanupDeps()
	}

	app := NewApp(cfg, zlog)
	RegisterRoutes(ctx, app, cfg, deps, zlog)
	return app, cleanup, nil
}

// NewApp creates the fiber app with the global middleware stack.
func NewApp(cfg *config.Config, zlog zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// values read from ctx are retained by background runs
		Immutable: true,

		// go-json: faster than encoding/json for the state snapshots
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		// logo upload plus multipart overhead
		BodyLimit: cfg.MaxUploadBytes + 1024*1024,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		ServerHeader:    "",
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(zlog))

	// compression buffers the body, which would hold back SSE frames
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))

	// AllowCredentials:true requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-User-ID,X-User-Name",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Content-Disposition",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	return app
}

// RegisterRoutes mounts health probes, public routes and the authenticated API.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, deps *Dependencies, zlog zerolog.Logger) {
	http.NewHealthHandler(deps.HealthChecks()).Register(app)

	studioHandler := http.NewStudioHandler(deps.StudioService, deps.SSEHub, cfg.AITimeout+30*time.Second, zlog)
	projectHandler := http.NewProjectHandler(deps.ProjectService)

	// per-route so the cache headers never leak onto authenticated routes
	public := app.Group("/api/v1")
	public.Get("/studio/categories", middleware.PublicCache(time.Hour))
	public.Get("/stats", middleware.PublicCache(time.Minute))
	studioHandler.RegisterPublic(public)
	projectHandler.RegisterPublic(public)

	api := app.Group("/api/v1", authMiddleware(cfg, deps))
	api.Use(middleware.NoCache())

	submitLimiter := middleware.NewRateLimiter(ctx, cfg.SubmitRateLimit, time.Minute)
	api.Post("/studio/submit", submitLimiter.Handler())

	studioHandler.Register(api)
	projectHandler.Register(api)
}

func authMiddleware(cfg *config.Config, deps *Dependencies) fiber.Handler {
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		logger.Warn("JWT_SECRET not set, trusting X-User-ID (default %s)", cfg.DevUserID)
		return middleware.DevAuth(cfg.DevUserID)
	}
	return middleware.JWTAuth(cfg.JWTSecret, deps.Blacklist)
}
