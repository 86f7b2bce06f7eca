package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-stt/internal/health"
	"github.com/eleven-am/voice-stt/internal/metrics"
	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/eleven-am/voice-stt/internal/transcription"
	"go.uber.org/fx"
)

type EngineResult struct {
	fx.Out

	Engine transcription.Engine
	// Pinger is nil for the stub engine.
	Pinger health.EnginePinger
}

func ProvideEngine(cfg *Config, logger *slog.Logger) (EngineResult, error) {
	if cfg.EngineStub {
		logger.Warn("using stub transcription engine")
		return EngineResult{Engine: transcription.NewStubEngine(logger)}, nil
	}

	engine, err := transcription.NewHTTPEngine(transcription.HTTPConfig{
		BaseURL: cfg.EngineURL,
		Model:   cfg.EngineModel,
		APIKey:  cfg.EngineAPIKey,
		Timeout: cfg.EngineTimeout,
		Backoff: shared.BackoffConfig{MaxAttempts: cfg.EngineMaxAttempts},
	}, logger)
	if err != nil {
		return EngineResult{}, err
	}
	return EngineResult{Engine: engine, Pinger: engine}, nil
}

func ProvideQueue() *transcription.Queue {
	return transcription.NewQueue()
}

func ProvideResults() chan transcription.Result {
	return make(chan transcription.Result, 64)
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

func ProvideWorker(
	lc fx.Lifecycle,
	cfg *Config,
	engine transcription.Engine,
	queue *transcription.Queue,
	results chan transcription.Result,
	m *metrics.Metrics,
	logger *slog.Logger,
) *transcription.Worker {
	worker := transcription.NewWorker(transcription.WorkerConfig{
		Engine:           engine,
		Jobs:             queue,
		Results:          results,
		SupersedeInterim: cfg.SupersedeInterim,
		Observer:         m,
		Log:              logger,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			queue.Close()
			return worker.Stop(cfg.WorkerStopTimeout)
		},
	})
	return worker
}

var TranscriptionModule = fx.Options(
	fx.Provide(
		ProvideEngine,
		ProvideQueue,
		ProvideResults,
		ProvideMetrics,
		ProvideWorker,
	),
)
