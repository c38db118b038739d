package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date on boot when
// GREENLINE_AUTO_MIGRATE is set. SQLite gets the hand-kept schema instead of
// the postgres migrations. Outside dev it does nothing.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"driver": cfg.DB.Driver, "event": "migrate.dev_autorun"})

	if cfg.FeatureFlags.UseSQLite {
		if err := client.DB().WithContext(ctx).Exec(db.SQLiteSchema).Error; err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
		logg.Info(ctx, "sqlite schema applied")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "postgres migrations applied")
	return nil
}
