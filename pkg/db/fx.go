package db

import (
	"context"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/config"
	obslogger "github.com/smallbiznis/futorumeshi/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

// New opens the configured database and ties the pool to the fx lifecycle.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialect, &gorm.Config{
		Logger:  obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName), otelgorm.WithoutQueryVariables())); err != nil {
		return nil, err
	}
	// pool stats land on the default registry served at /metrics
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          dbLabel(cfg),
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	}
	if cfg.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	}
	if cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	}
	if cfg.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pool", zap.String("type", cfg.DBType))
			return sqlDB.Close()
		},
	})

	return conn, nil
}

func dbLabel(cfg config.Config) string {
	if cfg.DBName != "" {
		return cfg.DBName
	}
	return "futorumeshi"
}
