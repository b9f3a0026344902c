package migration

import (
	"github.com/smallbiznis/backoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrationsAuto {
			return nil
		}

		switch cfg.DBType {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		case "sqlite":
			if err := ApplySQLite(conn); err != nil {
				return err
			}
		default:
			log.Warn("automatic migrations are not available for this database, apply the schema manually",
				zap.String("db_type", cfg.DBType))
			return nil
		}

		log.Info("migrations applied", zap.String("db_type", cfg.DBType))
		return nil
	}),
)
