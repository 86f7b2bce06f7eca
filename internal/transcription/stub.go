package transcription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eleven-am/voice-stt/internal/audio"
	"github.com/eleven-am/voice-stt/internal/transcript"
)

// StubEngine produces deterministic transcripts without a model. It is used
// for local development and in tests.
type StubEngine struct {
	log *slog.Logger
}

func NewStubEngine(log *slog.Logger) *StubEngine {
	if log == nil {
		log = slog.Default()
	}
	return &StubEngine{log: log.With("component", "engine.stub")}
}

func (e *StubEngine) Transcribe(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seconds := float64(len(req.Audio)) / audio.BytesPerSecond
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	prob := 0.5
	if req.Options.Profile == ProfileFinal {
		prob = 0.9
	}

	e.log.Debug("stub transcript", "seconds", seconds, "profile", req.Options.Profile)
	return &Response{
		Segments: []transcript.Segment{{
			Text: fmt.Sprintf("received %.1f seconds of audio", seconds),
			End:  seconds,
		}},
		Language:            lang,
		LanguageProbability: prob,
	}, nil
}

func (e *StubEngine) Close() error {
	return nil
}
