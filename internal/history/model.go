package history

import (
	"time"

	"github.com/eleven-am/voice-stt/internal/transcript"
)

// Transcript is one finalized utterance.
type Transcript struct {
	ID                  string    `gorm:"primaryKey" json:"id"`
	SessionID           string    `gorm:"not null;index" json:"session_id"`
	Text                string    `gorm:"type:text;not null" json:"text"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	AudioSeconds        float64   `json:"audio_seconds"`
	TimedOut            bool      `gorm:"not null;default:false" json:"timed_out"`
	// Segments is empty when the final pass timed out.
	Segments  []transcript.Segment `gorm:"serializer:json" json:"segments,omitempty"`
	CreatedAt time.Time            `gorm:"index" json:"created_at"`
}
