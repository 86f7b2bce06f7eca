package shared

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	tests := []struct {
		prefix string
	}{
		{prefix: "sess_"},
		{prefix: "tr_"},
		{prefix: ""},
	}

	for _, tt := range tests {
		t.Run("prefix_"+tt.prefix, func(t *testing.T) {
			id := NewID(tt.prefix)
			if !strings.HasPrefix(id, tt.prefix) {
				t.Errorf("expected ID to start with '%s', got '%s'", tt.prefix, id)
			}
			expectedLen := len(tt.prefix) + 32
			if len(id) != expectedLen {
				t.Errorf("expected length %d, got %d", expectedLen, len(id))
			}
		})
	}

	if NewID("x_") == NewID("x_") {
		t.Error("expected unique IDs, got duplicates")
	}
}

func TestBackoffConfig_Normalize(t *testing.T) {
	tests := []struct {
		name  string
		input BackoffConfig
		want  BackoffConfig
	}{
		{
			name:  "empty config gets defaults",
			input: BackoffConfig{},
			want:  BackoffConfig{Initial: 100 * time.Millisecond, MaxAttempts: 5, MaxDelay: 2 * time.Second},
		},
		{
			name:  "preserves non-zero values",
			input: BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
			want:  BackoffConfig{Initial: 200 * time.Millisecond, MaxAttempts: 10, MaxDelay: 5 * time.Second},
		},
		{
			name:  "negative values treated as zero",
			input: BackoffConfig{Initial: -time.Millisecond, MaxAttempts: -5, MaxDelay: -time.Second},
			want:  BackoffConfig{Initial: 100 * time.Millisecond, MaxAttempts: 5, MaxDelay: 2 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.input.Normalize()
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBackoffConfig_Delay(t *testing.T) {
	b := BackoffConfig{Initial: 100 * time.Millisecond, MaxAttempts: 5, MaxDelay: 350 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 350 * time.Millisecond},
		{6, 350 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
