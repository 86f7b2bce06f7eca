package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ProvideRedisClient(lc fx.Lifecycle, cfg *Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// ProvideDatabase returns nil when no DSN is configured; transcript history
// is then disabled.
func ProvideDatabase(lc fx.Lifecycle, cfg *Config, log *slog.Logger) (*gorm.DB, error) {
	if cfg.DatabaseDSN == "" {
		log.Info("DATABASE_DSN not set, transcript history disabled")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideRedisClient,
		ProvideDatabase,
	),
)
