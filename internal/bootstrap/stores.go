package bootstrap

import (
	"log/slog"

	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideSessionStore(redisClient *redis.Client) *session.Store {
	return session.NewStore(redisClient)
}

func ProvideHistoryStore(db *gorm.DB) *history.Store {
	if db == nil {
		return nil
	}
	return history.NewStore(db)
}

func RunMigrations(historyStore *history.Store) error {
	if historyStore == nil {
		return nil
	}
	return historyStore.Migrate()
}

func ProvideSessionHandler(store *session.Store, logger *slog.Logger) *session.Handler {
	return session.NewHandler(store, logger.With("handler", "session"))
}

func ProvideHistoryHandler(store *history.Store, logger *slog.Logger) *history.Handler {
	return history.NewHandler(store, logger.With("handler", "history"))
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvideSessionStore,
		ProvideHistoryStore,
		ProvideSessionHandler,
		ProvideHistoryHandler,
	),
	fx.Invoke(RunMigrations),
)
