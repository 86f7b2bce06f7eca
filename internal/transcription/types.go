package transcription

import (
	"time"

	"github.com/eleven-am/voice-stt/internal/transcript"
)

// Profile selects the accuracy/latency trade-off of an engine call.
type Profile string

const (
	ProfileInterim Profile = "interim"
	ProfileFinal   Profile = "final"
)

func (p Profile) String() string {
	return string(p)
}

// Job is a request for one engine pass. Audio is a private snapshot and must
// not be mutated after submission.
type Job struct {
	ID        string
	SessionID string
	// Epoch is the owning session's processing cycle at submission time.
	Epoch uint64
	// Seq orders jobs within a session.
	Seq         uint64
	Audio       []byte
	Language    string
	Prompt      string
	Final       bool
	SubmittedAt time.Time
}

func (j Job) Profile() Profile {
	if j.Final {
		return ProfileFinal
	}
	return ProfileInterim
}

// Result is the engine's answer to a Job.
type Result struct {
	JobID               string
	SessionID           string
	Epoch               uint64
	Seq                 uint64
	Segments            []transcript.Segment
	Language            string
	LanguageProbability float64
	Final               bool
	AudioSeconds        float64
	Elapsed             time.Duration
}
