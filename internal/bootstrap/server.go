package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
	},
	MaxAge: 86400,
}

func NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("listening", "addr", cfg.ServerAddr)
				if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					e.Logger.Fatal(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

var ServerModule = fx.Options(
	fx.Provide(NewEchoServer),
	fx.Invoke(StartServer),
)

// Modules lists every component; the server module comes last so its stop
// hook runs first.
func Modules() fx.Option {
	return fx.Options(
		fx.Provide(LoadConfig),
		InfrastructureModule,
		StoresModule,
		TranscriptionModule,
		StreamingModule,
		HealthModule,
		HandlersModule,
		ServerModule,
	)
}

func Run() {
	fx.New(Modules()).Run()
}
