package shared

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// BackoffConfig bounds retries against an external dependency.
type BackoffConfig struct {
	Initial     time.Duration
	MaxAttempts int
	MaxDelay    time.Duration
}

func (b BackoffConfig) Normalize() BackoffConfig {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 5
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 2 * time.Second
	}
	return b
}

// Delay returns the wait before the given retry attempt (1-based).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
