package migration

import (
	"strings"

	"github.com/smallbiznis/futorumeshi/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			log.Info("applying schema with gorm auto migrate", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
