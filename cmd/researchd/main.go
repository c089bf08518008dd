package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"research-task-scheduler/internal/api"
	"research-task-scheduler/internal/archive"
	"research-task-scheduler/internal/cache"
	"research-task-scheduler/internal/config"
	"research-task-scheduler/internal/logging"
	"research-task-scheduler/internal/pipeline"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/queue"
	"research-task-scheduler/internal/ratelimit"
	"research-task-scheduler/internal/service"
	"research-task-scheduler/internal/store"
	"research-task-scheduler/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("researchd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dsn := cfg.PostgresDSN
	if cfg.StoreDriver == store.DriverSQLite {
		dsn = cfg.SQLitePath
	}
	st, err := store.Open(ctx, cfg.StoreDriver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	providers := []provider.Entry{
		{Name: provider.WikipediaName, Provider: provider.NewWikipedia(httpClient, cfg.WikipediaURL, cfg.WikipediaLimit)},
	}
	if cfg.NewsAPIKey != "" {
		providers = append(providers, provider.Entry{
			Name:     provider.NewsName,
			Provider: provider.NewNews(httpClient, cfg.NewsAPIURL, cfg.NewsAPIKey, cfg.NewsPageSize),
		})
	} else {
		logger.Info("news provider disabled: NEWS_API_KEY is not set")
	}

	var limiter *ratelimit.TokenBucket
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if cfg.SearchCacheTTL > 0 {
			providers = cache.Wrap(providers, rdb, cfg.SearchCacheTTL, logger)
		}
		if cfg.RateLimitCapacity > 0 {
			limiter = ratelimit.NewTokenBucket(rdb, "ratelimit:submit:", cfg.RateLimitCapacity, cfg.RateLimitRefill, 0)
		}
	} else {
		logger.Info("redis disabled: search cache and rate limiting are off")
	}

	q := queue.NewMemoryQueue(queue.Options{Capacity: cfg.MaxQueueDepth, MaxTopicLength: cfg.MaxTopicLength})

	opts := []pipeline.Option{pipeline.WithProgressHook(q.SetProgress)}
	switch {
	case cfg.ArchiveS3Bucket != "":
		up, err := archive.NewS3(ctx, archive.S3Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
		if err != nil {
			return fmt.Errorf("init s3 archive: %w", err)
		}
		opts = append(opts, pipeline.WithArchive(archive.New(up)))
	case cfg.ArchiveDir != "":
		opts = append(opts, pipeline.WithArchive(archive.New(&archive.LocalUploader{BaseDir: cfg.ArchiveDir})))
	}

	pl := pipeline.New(providers, st, logger, pipeline.Config{
		ProviderTimeout:      cfg.ProviderTimeout,
		ProgressWriteTimeout: cfg.ProgressWriteTimeout,
		PersistTimeout:       cfg.PersistTimeout,
		MaxArticles:          cfg.MaxArticles,
		KeywordLimit:         cfg.KeywordLimit,
	}, opts...)

	processor := worker.NewProcessor(q, pl, st, logger, worker.Options{
		Concurrency:   cfg.WorkerConcurrency,
		GracePeriod:   cfg.TerminalGracePeriod,
		PurgeInterval: cfg.PurgeInterval,
		WriteTimeout:  cfg.ProgressWriteTimeout,
	})

	svc := service.New(q, st, providers, logger, cfg.ProgressWriteTimeout)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.New(svc, limiter, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := processor.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", httpServer.Addr), zap.String("store", cfg.StoreDriver),
			zap.Int("workers", cfg.WorkerConcurrency), zap.Int("providers", len(providers)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
