package db

import (
	"context"
	"time"

	"github.com/smallbiznis/loadpass/internal/config"
	"github.com/smallbiznis/loadpass/internal/observability"
	obslogger "github.com/smallbiznis/loadpass/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	ObsCfg    observability.Config
	Log       *zap.Logger
}

// New opens the configured database, applies pool limits and installs the
// logging, tracing and prometheus plugins.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Cfg)
	if err != nil {
		return nil, err
	}

	loggerCfg := obslogger.DefaultGormLoggerConfig()
	loggerCfg.LogParams = p.ObsCfg.LogSQLParams

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(loggerCfg),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Cfg.DBName))); err != nil {
		return nil, err
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Cfg.DBName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Cfg.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Cfg.DBMaxIdleConn)
	}
	if p.Cfg.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Cfg.DBMaxOpenConn)
	}
	if p.Cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(p.Cfg.DBConnMaxLifetime) * time.Second)
	}
	if p.Cfg.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(p.Cfg.DBConnMaxIdleTime) * time.Second)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			p.Log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	p.Log.Info("database opened",
		zap.String("type", p.Cfg.DBType),
		zap.String("host", p.Cfg.DBHost),
		zap.String("name", p.Cfg.DBName),
	)

	return conn, nil
}
