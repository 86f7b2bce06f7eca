package bootstrap

import (
	"net/http"

	"github.com/eleven-am/voice-stt/docs"
	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/metrics"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	SessionHandler *session.Handler
	HistoryHandler *history.Handler
	Metrics        *metrics.Metrics
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "voice-stt",
			"version": version,
			"stream":  "/ws/stt",
		})
	})
	e.GET("/metrics", echo.WrapHandler(params.Metrics.Handler()))
	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
	e.GET("/asyncapi.yaml", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", docs.AsyncAPISpec)
	})

	api := e.Group("/v1")
	params.SessionHandler.RegisterRoutes(api)
	params.HistoryHandler.RegisterRoutes(api)
}

var HandlersModule = fx.Options(
	fx.Invoke(RegisterRoutes),
)
