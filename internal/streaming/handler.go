package streaming

import (
	"log/slog"
	"strconv"

	"github.com/eleven-am/voice-stt/internal/audio"
	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/labstack/echo/v4"
)

const (
	minSampleRate = 8000
	maxSampleRate = 48000
)

type Handler struct {
	manager    *Manager
	sampleRate int
	logger     *slog.Logger
}

// NewHandler serves sessions at sampleRate unless the client asks for
// another rate with the sample_rate query parameter.
func NewHandler(manager *Manager, sampleRate int, logger *slog.Logger) *Handler {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &Handler{
		manager:    manager,
		sampleRate: sampleRate,
		logger:     logger.With("component", "stream_handler"),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/stt", h.HandleStream)
}

func (h *Handler) HandleStream(c echo.Context) error {
	rate := h.sampleRate
	if raw := c.QueryParam("sample_rate"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < minSampleRate || v > maxSampleRate {
			return shared.BadRequest("invalid_sample_rate", "sample_rate must be between 8000 and 48000")
		}
		rate = v
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	conn := newWSConn(ws, h.logger)
	if err := h.manager.Serve(conn, rate); err != nil {
		h.logger.Warn("session ended with error", "remote_addr", conn.RemoteAddr(), "error", err)
	}
	return nil
}
