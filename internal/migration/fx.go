package migration

import (
	"github.com/smallbiznis/catering/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration").With(zap.String("driver", cfg.DBType))
		if !cfg.MigrateOnStart {
			log.Info("migration.skipped", zap.String("reason", "disabled"))
			return nil
		}

		result, err := Apply(conn, cfg.DBType)
		if err != nil {
			log.Error("migration.failed", zap.Error(err))
			return err
		}
		if result.Dirty {
			log.Warn("migration.dirty", zap.Uint("version", result.Version))
		}
		log.Info("migration.applied",
			zap.String("mode", result.Mode),
			zap.Uint("version", result.Version),
			zap.Bool("changed", result.Changed),
			zap.Strings("tables", result.Tables),
		)
		return nil
	}),
)
