// Package bootstrap turns configuration into connected dependencies.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedline/internal/artifact"
	"feedline/internal/cache"
	"feedline/internal/config"
	"feedline/internal/database"
	"feedline/internal/middleware"
	"feedline/internal/observability"
	"feedline/internal/repository"
	"feedline/internal/server"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs the schema policy on relational stores.
	ApplySchema bool
	// Tracing installs the OpenTelemetry provider described by the config.
	Tracing bool
}

// Runtime holds the connected dependencies of one process.
type Runtime struct {
	Config *config.Config
	Deps   server.Deps

	shutdownTracing func(context.Context) error
}

// InitRuntime connects the store, Redis and the artifact store selected by cfg.
// Redis is optional: an unreachable server leaves Deps.Redis nil.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, shutdownTracing: func(context.Context) error { return nil }}

	if opts.Tracing {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:  "feedline-api",
			Environment:  cfg.Env,
			Enabled:      cfg.TracingEnabled,
			Exporter:     cfg.TracingExporter,
			OTLPEndpoint: cfg.TracingOTLPEndpoint,
			SamplerRatio: cfg.TracingSampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		rt.shutdownTracing = shutdown
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = cache.InitRedis(cfg.RedisURL)
	}

	repos, checks, err := openStore(ctx, cfg, rdb, opts)
	if err != nil {
		_ = rt.shutdownTracing(ctx)
		return nil, err
	}

	artifacts, err := openArtifacts(ctx, cfg)
	if err != nil {
		_ = repos.Close(ctx)
		_ = rt.shutdownTracing(ctx)
		return nil, err
	}
	middleware.Logger.Info("runtime ready",
		slog.String("store", storeName(cfg)),
		slog.String("artifacts", artifacts.Name()),
		slog.Bool("redis", rdb != nil),
	)

	rt.Deps = server.Deps{
		Repos:     repos,
		Redis:     rdb,
		Artifacts: artifacts,
		Checks:    checks,
	}
	return rt, nil
}

// ShutdownTracing flushes pending spans. Servers call it after server.Shutdown,
// which already releases the store and Redis.
func (r *Runtime) ShutdownTracing(ctx context.Context) error {
	return r.shutdownTracing(ctx)
}

// Close releases every dependency, for processes that never start a server.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Deps.Repos.Close != nil {
		errs = append(errs, r.Deps.Repos.Close(ctx))
	}
	if r.Deps.Redis != nil {
		errs = append(errs, r.Deps.Redis.Close())
	}
	errs = append(errs, r.shutdownTracing(ctx))
	return errors.Join(errs...)
}

func storeName(cfg *config.Config) string {
	if cfg.StoreDriver == "" {
		return config.StoreDriverPostgres
	}
	return cfg.StoreDriver
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, opts Options) (repository.Repositories, map[string]server.HealthCheck, error) {
	if cfg.StoreDriver == config.StoreDriverMongo {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return repository.Repositories{}, nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return repository.Repositories{}, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		repos := repository.Repositories{
			Posts: repository.NewMongoPostRepository(db),
			Users: repository.NewMongoUserRepository(db),
			Close: client.Disconnect,
		}
		checks := map[string]server.HealthCheck{
			"mongo": func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
		}
		return repos, checks, nil
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.ApplySchema})
	if err != nil {
		return repository.Repositories{}, nil, fmt.Errorf("database connection failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return repository.Repositories{}, nil, err
	}
	repos := repository.Repositories{
		Posts: repository.NewPostRepository(db, rdb),
		Users: repository.NewUserRepository(db),
		Close: func(context.Context) error { return sqlDB.Close() },
	}
	checks := map[string]server.HealthCheck{"database": sqlDB.PingContext}
	return repos, checks, nil
}

func openArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.ArtifactDriver {
	case config.ArtifactDriverMinio:
		store, err := artifact.NewMinioStore(ctx, artifact.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		return store, nil
	case "", config.ArtifactDriverLocal:
		store, err := artifact.NewLocalStore(cfg.ArtifactDir)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported artifact driver %q", cfg.ArtifactDriver)
	}
}
