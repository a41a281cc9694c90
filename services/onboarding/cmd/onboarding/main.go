package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"talentcore/internal/ratelimit"
	"talentcore/internal/util"
	"talentcore/pkg/docs"
	"talentcore/pkg/idem"
	"talentcore/pkg/notify"
	"talentcore/pkg/queue"
	"talentcore/pkg/storage"
	"talentcore/pkg/store"
	"talentcore/services/onboarding/internal/app"
	"talentcore/services/onboarding/internal/config"
	"talentcore/services/onboarding/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	} else {
		objects, err = storage.NewFileStore(cfg.StorageDir)
	}
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	guardTTL := time.Duration(cfg.GuardTTLSeconds) * time.Second
	if guardTTL <= 0 {
		guardTTL = idem.DefaultTTL
	}
	guard := idem.NewGuard(cfg.RedisAddr, cfg.RedisPassword, "onboarding", guardTTL)

	var orphans app.OrphanQueue
	var cleanup *queue.RedisCleanupQueue
	if cfg.RedisAddr != "" {
		cleanup, err = queue.NewRedisCleanupQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("failed to init cleanup queue: %v", err)
		}
		orphans = cleanup
	}

	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			log.Fatalf("failed to init notifier: %v", err)
		}
		notifier = amqpNotifier
	}

	var renderer docs.Renderer
	if cfg.RendererURL != "" {
		timeout := time.Duration(cfg.RendererTimeoutSeconds) * time.Second
		renderer = docs.NewHTTPRenderer(cfg.RendererURL, timeout)
	}

	appCore, err := app.New(app.Config{
		Store:                  st,
		Objects:                objects,
		Notifier:               notifier,
		Renderer:               renderer,
		Guard:                  guard,
		Orphans:                orphans,
		EmployeeRole:           cfg.EmployeeRole,
		OperationalDepartments: cfg.OperationalDepartments,
		SafetyRecipients:       cfg.SafetyRecipients,
		PositiveFeedbackTerms:  cfg.PositiveFeedbackTerms,
		OpTimeout:              time.Duration(cfg.OpTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		InternalJWTKeyID:         cfg.InternalJWTKeyID,
		InternalJWTPublicKeyPath: cfg.InternalJWTPublicKeyPath,
		Limiter:                  limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cleanup != nil {
		concurrency := cfg.CleanupConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		cleanup.Start(ctx, concurrency, func(ctx context.Context, job queue.JobStatus) error {
			return objects.Delete(ctx, job.BlobPath)
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("onboarding server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
