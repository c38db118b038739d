package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/greenline-backend/api/routes"
	"github.com/angelmondragon/greenline-backend/internal/app"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/metrics"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 20 * time.Second
)

func main() {
	cfg, logg, err := app.Boot("api")
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(sigCtx, cfg, logg); err != nil {
		logg.Error(sigCtx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
}

// listenAddr honours a platform-assigned PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}

func serve(sigCtx context.Context, cfg *config.Config, logg *logger.Logger) error {
	var closers app.Closers
	defer closers.Close(sigCtx, logg)

	dbClient, err := app.OpenDB(sigCtx, cfg, logg, &closers)
	if err != nil {
		return err
	}
	redisClient, err := app.OpenRedis(sigCtx, cfg, logg, &closers)
	if err != nil {
		return err
	}
	domain, err := app.NewDomain(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	addr := listenAddr(cfg)
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Idempotency:     redisClient,
			RateLimiter:     redisClient,
			Carts:           domain.Carts,
			Orders:          domain.Orders,
			CheckoutMetrics: domain.OrderMetrics,
			HTTPMetrics:     metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logg.Info(ctx, "api server stopped")
	return nil
}
