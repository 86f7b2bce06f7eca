package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/metrics"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/eleven-am/voice-stt/internal/streaming"
	"github.com/eleven-am/voice-stt/internal/transcription"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func ProvideStreamingConfig(cfg *Config) streaming.Config {
	return streaming.Config{
		BufferSeconds:     cfg.BufferSeconds,
		WindowSeconds:     cfg.WindowSeconds,
		MaxContextLength:  cfg.MaxContextLength,
		Debounce:          cfg.Debounce,
		KeepaliveInterval: cfg.KeepaliveInterval,
		ReceiveTimeout:    cfg.ReceiveTimeout,
		FinalTimeout:      cfg.FinalTimeout,
		SupersedeInterim:  cfg.SupersedeInterim,
	}
}

type ManagerParams struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Config       *Config
	Streaming    streaming.Config
	Queue        *transcription.Queue
	Results      chan transcription.Result
	Metrics      *metrics.Metrics
	// Worker is required so its stop hook runs after the manager's.
	Worker       *transcription.Worker
	SessionStore *session.Store
	HistoryStore *history.Store
	Logger       *slog.Logger
}

func ProvideSessionManager(p ManagerParams) *streaming.Manager {
	var transcripts streaming.TranscriptStore
	if p.HistoryStore != nil {
		transcripts = p.HistoryStore
	}

	m := streaming.NewManager(streaming.ManagerConfig{
		Config:      p.Streaming,
		Jobs:        p.Queue,
		Results:     p.Results,
		Recorder:    p.Metrics,
		Sessions:    p.SessionStore,
		Transcripts: transcripts,
		Log:         p.Logger,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			m.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			m.Stop(p.Config.FinalTimeout)
			return nil
		},
	})
	return m
}

func ProvideStreamHandler(m *streaming.Manager, cfg *Config, logger *slog.Logger) *streaming.Handler {
	return streaming.NewHandler(m, cfg.SampleRate, logger)
}

func RegisterStreamRoutes(e *echo.Echo, h *streaming.Handler) {
	h.RegisterRoutes(e)
}

var StreamingModule = fx.Options(
	fx.Provide(
		ProvideStreamingConfig,
		ProvideSessionManager,
		ProvideStreamHandler,
	),
	fx.Invoke(RegisterStreamRoutes),
)
