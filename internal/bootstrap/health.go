package bootstrap

import (
	"github.com/eleven-am/voice-stt/internal/health"
	"github.com/eleven-am/voice-stt/internal/streaming"
	"github.com/eleven-am/voice-stt/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

type HealthParams struct {
	fx.In

	Config  *Config
	DB      *gorm.DB
	Redis   *redis.Client
	Pinger  health.EnginePinger
	Manager *streaming.Manager
	Worker  *transcription.Worker
}

func ProvideHealthHandler(p HealthParams) *health.Handler {
	return health.NewHandler(health.Config{
		DB:               p.DB,
		Redis:            p.Redis,
		Engine:           p.Pinger,
		EngineHealthAddr: p.Config.EngineHealthAddr,
		Sessions:         p.Manager,
		Worker:           p.Worker,
		Version:          version,
	})
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
