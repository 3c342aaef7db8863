package migration

import (
	"github.com/smallbiznis/mediavault/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")
		if !cfg.DBRunMigrations {
			log.Info("schema migrations disabled")
			return nil
		}
		if cfg.DBType != "postgres" {
			log.Warn("schema migrations only ship for postgres, skipping", zap.String("type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
