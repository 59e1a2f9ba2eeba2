package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"endurely/internal/auth"
	"endurely/internal/config"
	"endurely/internal/exporter"
	transporthttp "endurely/internal/http"
	"endurely/internal/importer"
	"endurely/internal/metrics"
	"endurely/internal/platform/database"
	"endurely/internal/platform/logging"
	"endurely/internal/platform/migrate"
	"endurely/internal/programs"
	"endurely/internal/session"
)

const sweepInterval = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	store, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if store.cleanup != nil {
		defer store.cleanup()
	}

	redisClient, err := buildRedis(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	svc := programs.NewService(store.programs)

	deps := transporthttp.Deps{
		Logger:   logger,
		Metrics:  collector,
		Gatherer: registry,
		Programs: svc,
		Exporter: exporter.NewCSVExporter(),
		Importer: importer.NewCSVImporter(svc),
	}
	if store.db != nil {
		deps.DB = store.db
	}

	if cfg.EnableAuth {
		var (
			states      auth.StateStore
			revocations session.RevocationStore
		)
		if redisClient != nil {
			states = auth.NewRedisStateStore(redisClient)
			revocations = session.NewRedisRevocationStore(redisClient)
			logger.Info("using redis for login state and session revocations")
		} else {
			memStates := auth.NewMemoryStateStore()
			memRevocations := session.NewMemoryRevocationStore()
			states = memStates
			revocations = memRevocations
			go runSweeper(ctx, logger, memStates, memRevocations)
		}

		// Discovery and the first signing-key fetch happen here; a broken
		// tenant configuration stops the process before it listens.
		provider, err := auth.NewEntraProvider(
			ctx,
			cfg.Issuer(),
			cfg.EntraClientID,
			cfg.EntraClientSecret,
			cfg.RedirectURI,
			logger,
			auth.WithKeyCacheMetrics(collector),
		)
		if err != nil {
			logger.Error("failed to initialize identity provider", "error", err)
			os.Exit(1)
		}
		go provider.Keys().Run(ctx)

		deps.Auth = auth.NewService(store.users, provider, states, 0)
		deps.Sessions = session.NewManager([]byte(cfg.SessionSecret), cfg.SessionTTL, revocations)
	} else {
		user, err := store.users.UpsertUser(ctx, auth.DefaultUserSubject, auth.DefaultUserEmail, auth.DefaultUserName)
		if err != nil {
			logger.Error("failed to provision development user", "error", err)
			os.Exit(1)
		}
		deps.DefaultUser = &user

		if cfg.UseInMemoryStore() && strings.EqualFold(cfg.Environment, "development") {
			seedDemoData(ctx, svc, user.ID, logger)
		}
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("Endurely API listening", "addr", srv.Addr, "store", cfg.DataStore, "auth_enabled", cfg.EnableAuth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

type storage struct {
	programs programs.Repository
	users    auth.Repository
	db       *sqlx.DB
	cleanup  func()
}

func buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory repositories")
		return storage{
			programs: programs.NewInMemoryRepository(),
			users:    auth.NewMemoryRepository(),
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return storage{}, err
	}

	cleanup := func() {
		_ = db.Close()
	}

	if err := migrate.Apply(ctx, db, logger); err != nil {
		cleanup()
		return storage{}, err
	}

	logger.Info("connected to postgres")
	return storage{
		programs: programs.NewPostgresRepository(db),
		users:    auth.NewPostgresRepository(db),
		db:       db,
		cleanup:  cleanup,
	}, nil
}

func buildRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// runSweeper drops expired entries from the in-memory auth stores on a fixed
// interval. The Redis-backed stores expire their keys on their own.
func runSweeper(ctx context.Context, logger *slog.Logger, states *auth.MemoryStateStore, revocations *session.MemoryRevocationStore) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := states.SweepExpired(); n > 0 {
				logger.Debug("swept expired login states", "count", n)
			}
			if n := revocations.SweepExpired(); n > 0 {
				logger.Debug("swept expired session revocations", "count", n)
			}
		}
	}
}
