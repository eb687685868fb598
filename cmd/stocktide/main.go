package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stocktide/stocktide/internal/app"
	"github.com/stocktide/stocktide/internal/fieldcrypt"
	"github.com/stocktide/stocktide/internal/items"
	"github.com/stocktide/stocktide/internal/observability"
	"github.com/stocktide/stocktide/internal/platform/cache"
	"github.com/stocktide/stocktide/internal/platform/db"
	"github.com/stocktide/stocktide/internal/respcache"
	"github.com/stocktide/stocktide/internal/tenancy"
	"github.com/stocktide/stocktide/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	group, groupCtx := errgroup.WithContext(ctx)

	var store respcache.Store
	switch cfg.CacheBackend {
	case "redis":
		redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		store = respcache.NewRedisStore(redisClient, cfg.CacheTTL, logger)
	default:
		memStore := respcache.NewMemoryStore(cfg.CacheTTL)
		memStore.Start(ctx)
		store = memStore
	}

	cipher, err := fieldcrypt.New(cfg.FieldSecret, logger)
	if err != nil {
		logger.Error("init field cipher", slog.Any("error", err))
		os.Exit(1)
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	sink := jobs.NewQueueSink(queueClient, logger)

	boundary := tenancy.NewBoundary(tenancy.NewOwnerLookup(pool), sink, logger)
	tenancyMW := tenancy.Middleware{Boundary: boundary, Logger: logger}

	metrics := observability.NewMetrics()
	metrics.RegisterCacheStats(func() (uint64, uint64, uint64, uint64) {
		s := store.Stats()
		return s.Hits, s.Misses, s.Sets, s.Deletes
	})

	cacheMW := respcache.Middleware{
		Store:  store,
		TTL:    cfg.CacheTTL,
		Logger: logger,
	}.Handler

	itemsRepo := items.NewRepository(pool)
	itemsService := items.NewService(itemsRepo, boundary, cipher, sink, respcache.NewInvalidator(store), logger)
	itemsHandler := items.NewHandler(logger, itemsService, tenancyMW, cacheMW)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Tenancy:      tenancyMW,
		ItemsHandler: itemsHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}
