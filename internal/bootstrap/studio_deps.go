package bootstrap

import (
	"context"
	"fmt"
	"time"

	"studio_server/adapter/in/http"
	"studio_server/adapter/out/mongodb"
	"studio_server/adapter/out/provider"
	"studio_server/adapter/out/realtime"
	"studio_server/adapter/out/storage"
	"studio_server/config"
	"studio_server/core/domain"
	"studio_server/core/port/out"
	"studio_server/core/service/project"
	"studio_server/core/service/studio"
	"studio_server/infra/database"
	"studio_server/infra/middleware"
	"studio_server/pkg/cache"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/logger"
	"studio_server/pkg/resilience"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	memoryCacheItems = 1024
	janitorInterval  = 10 * time.Minute
	sseHeartbeat     = 30 * time.Second
)

type Dependencies struct {
	Config *config.Config
	Redis  *redis.Client
	Mongo  *mongo.Client

	// Adapters
	Cache           out.Cache
	Projects        *mongodb.ProjectAdapter
	Storage         *storage.GCSAdapter
	Providers       *provider.Providers
	RealtimeAdapter *realtime.SSEAdapter
	SSEHub          *realtime.SSEHub
	Blacklist       *middleware.TokenBlacklist

	Catalog *domain.AssetCatalog

	// Services
	StudioService  *studio.Service
	ProjectService *project.Service
}

// NewDependencies connects every backing service. ctx bounds background loops
// (session janitor); cleanup releases connections in reverse order.
func NewDependencies(ctx context.Context, cfg *config.Config, zlog zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Asset catalog
	catalog, err := config.LoadAssetCatalog(cfg.AssetCatalogPath)
	if err != nil {
		return fail(fmt.Errorf("asset catalog: %w", err))
	}
	deps.Catalog = catalog
	logger.Info("Asset catalog loaded: %d assets", catalog.Len())

	// MongoDB
	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
	if err != nil {
		return fail(err)
	}
	deps.Mongo = mongoClient
	cleanups = append(cleanups, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.WithError(err).Warn("MongoDB disconnect failed")
		}
	})
	deps.Projects = mongodb.NewProjectAdapter(mongoClient.Database(cfg.MongoDBName))
	if err := deps.Projects.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to ensure project indexes")
	}
	logger.Info("MongoDB connected: %s", cfg.MongoDBName)

	// Cache: Redis when configured, in-process otherwise
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, using in-memory cache: %v", err)
		} else {
			deps.Redis = redisClient
			deps.Cache = cache.NewRedisCache(redisClient, "studio:")
			cleanups = append(cleanups, func() { redisClient.Close() })
			logger.Info("Redis cache initialized")
		}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache(memoryCacheItems)
	}
	deps.Blacklist = middleware.NewTokenBlacklist(deps.Cache)

	// Object storage
	store, err := storage.NewGCSAdapter(ctx, storage.Config{
		Bucket:          cfg.GCSBucket,
		CredentialsFile: cfg.GCSCredentialsFile,
		PublicBaseURL:   cfg.GCSPublicBaseURL,
		Endpoint:        cfg.GCSEndpoint,
	}, zlog)
	if err != nil {
		return fail(fmt.Errorf("object storage: %w", err))
	}
	deps.Storage = store
	cleanups = append(cleanups, func() { store.Close() })

	// AI providers
	providers, err := provider.NewProviders(ctx, &provider.FactoryConfig{
		Provider: cfg.AIProvider,
		Gemini: &provider.GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			AnalysisModel: cfg.GeminiAnalysisModel,
			ImageModel:    cfg.GeminiImageModel,
		},
		OpenAI: &provider.OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			AnalysisModel: cfg.OpenAIAnalysisModel,
			ImageModel:    cfg.OpenAIImageModel,
		},
	}, catalog, zlog)
	if err != nil {
		return fail(fmt.Errorf("ai provider: %w", err))
	}
	deps.Providers = providers
	logger.Info("AI provider initialized: %s", providers.Name)

	// Realtime
	deps.RealtimeAdapter = realtime.NewSSEAdapter(zlog)
	deps.SSEHub = realtime.NewSSEHub(deps.RealtimeAdapter, sseHeartbeat, zlog)

	// Services
	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialInterval = cfg.RetryInitialInterval

	deps.StudioService, err = studio.NewService(
		providers.Analyzer,
		providers.Generator,
		store,
		deps.Projects,
		deps.RealtimeAdapter,
		catalog,
		studio.Config{
			QuotaCeiling: cfg.QuotaCeiling,
			Concurrency:  cfg.GenerationConcurrency,
			Retry:        retry,
			Image: imageutil.Options{
				MaxBytes:     cfg.MaxUploadBytes,
				MaxDimension: cfg.MaxImageDimension,
				MaxPixels:    imageutil.DefaultMaxPixels,
				JPEGQuality:  cfg.JPEGQuality,
			},
			CallTimeout: cfg.AITimeout,
		},
	)
	if err != nil {
		return fail(err)
	}
	deps.StudioService.StartJanitor(ctx, janitorInterval, cfg.SessionIdleTTL)

	deps.ProjectService = project.NewService(deps.Projects, deps.Cache, cfg.ProjectListLimit, cfg.StatsCacheTTL)

	return deps, cleanup, nil
}

// HealthChecks returns the readiness probes of the backing services.
func (d *Dependencies) HealthChecks() map[string]http.HealthCheck {
	checks := map[string]http.HealthCheck{
		"mongodb": func(ctx context.Context) error { return d.Mongo.Ping(ctx, nil) },
		"redis":   nil,
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return checks
}
