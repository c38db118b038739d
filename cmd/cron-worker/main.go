package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/greenline-backend/internal/app"
	"github.com/angelmondragon/greenline-backend/internal/cron"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/metrics"
)

func main() {
	cfg, logg, err := app.Boot("cron-worker")
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var closers app.Closers
	defer closers.Close(ctx, logg)

	dbClient, err := app.OpenDB(ctx, cfg, logg, &closers)
	if err != nil {
		return err
	}
	redisClient, err := app.OpenRedis(ctx, cfg, logg, &closers)
	if err != nil {
		return err
	}
	domain, err := app.NewDomain(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	followup, err := cron.NewConciergeFollowupJob(cron.ConciergeFollowupJobParams{
		Logger:      logg,
		Orders:      domain.Orders,
		NudgeAfter:  cfg.Cron.ContactNudgeAfter,
		ExpireAfter: cfg.Cron.TextOrderExpireAfter,
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: domain.OutboxRepo,
		Retention:  cfg.Outbox.Retention,
		BatchSize:  cfg.Outbox.RetentionBatchSize,
	})
	if err != nil {
		return err
	}
	registry, err := cron.NewRegistry(followup, retention)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 2*cfg.Cron.Interval)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// lockName scopes the leader lease per environment so staging and prod
// workers sharing a redis never block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
