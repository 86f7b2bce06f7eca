package transcription

import (
	"context"

	"github.com/eleven-am/voice-stt/internal/transcript"
)

// Engine is a blocking speech recognizer. Implementations must tolerate
// repeated calls over growing or overlapping windows of the same utterance.
type Engine interface {
	// Transcribe recognizes canonical PCM (16 kHz, mono, 16-bit LE).
	Transcribe(ctx context.Context, req Request) (*Response, error)
	// Close releases underlying resources.
	Close() error
}

type Request struct {
	Audio    []byte
	Language string
	Prompt   string
	Options  DecodeOptions
}

type Response struct {
	Segments            []transcript.Segment
	Language            string
	LanguageProbability float64
}

// DecodeOptions are the engine knobs derived from a Profile.
type DecodeOptions struct {
	Profile             Profile
	BeamSize            int
	Temperature         float32
	VADFilter           bool
	MinSilenceMs        int
	ConditionOnPrevious bool
}

// OptionsFor returns the decoding profile for a pass. Final passes search
// wider and keep silence; interim passes decode greedily and skip silence.
func OptionsFor(p Profile) DecodeOptions {
	if p == ProfileFinal {
		return DecodeOptions{
			Profile:             ProfileFinal,
			BeamSize:            5,
			ConditionOnPrevious: true,
		}
	}
	return DecodeOptions{
		Profile:             ProfileInterim,
		BeamSize:            2,
		Temperature:         0,
		VADFilter:           true,
		MinSilenceMs:        300,
		ConditionOnPrevious: true,
	}
}
