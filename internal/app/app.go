// Package app holds the process bootstrap shared by the api, cron-worker and
// outbox-publisher binaries.
package app

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/internal/totals"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/metrics"
	"github.com/angelmondragon/greenline-backend/pkg/migrate"
	"github.com/angelmondragon/greenline-backend/pkg/outbox"
	"github.com/angelmondragon/greenline-backend/pkg/redis"
)

// Boot reads .env when present, loads config and returns a logger at the
// configured level. The returned logger is usable even when err is non-nil.
func Boot(serviceKind string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	return cfg, logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	}), nil
}

// Closers runs registered close funcs in reverse order.
type Closers struct {
	names []string
	fns   []func() error
}

func (c *Closers) Add(name string, fn func() error) {
	c.names = append(c.names, name)
	c.fns = append(c.fns, fn)
}

func (c *Closers) Close(ctx context.Context, logg *logger.Logger) {
	ctx = context.WithoutCancel(ctx)
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			logg.Error(ctx, "error closing "+c.names[i], err)
		}
	}
	c.names, c.fns = nil, nil
}

// OpenDB connects and, in dev with auto-migrate on, applies pending
// migrations.
func OpenDB(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *Closers) (*db.Client, error) {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	closers.Add("database", client.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func OpenRedis(ctx context.Context, cfg *config.Config, logg *logger.Logger, closers *Closers) (*redis.Client, error) {
	client, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	closers.Add("redis", client.Close)
	return client, nil
}

// Domain is the cart and order services over one database.
type Domain struct {
	Policy       totals.Policy
	CartRepo     *cart.Repository
	Carts        cart.Service
	Orders       orders.Service
	OrderMetrics *metrics.OrderMetrics
	OutboxRepo   *outbox.Repository
}

func NewDomain(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Domain, error) {
	policy, err := totals.PolicyFromConfig(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricing policy: %w", err)
	}

	d := &Domain{
		Policy:       policy,
		CartRepo:     cart.NewRepository(dbClient.DB()),
		OrderMetrics: metrics.NewOrderMetrics(reg),
		OutboxRepo:   outbox.NewRepository(dbClient.DB()),
	}
	if d.Carts, err = cart.NewService(d.CartRepo, dbClient, policy); err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}
	d.Orders, err = orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(dbClient.DB()),
		Carts:   d.CartRepo,
		Tx:      dbClient,
		Outbox:  outbox.NewService(d.OutboxRepo, logg),
		Policy:  policy,
		Config:  cfg.Orders,
		Metrics: d.OrderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	return d, nil
}
