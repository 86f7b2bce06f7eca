package streaming

import "testing"

func TestSoftBoundary(t *testing.T) {
	tests := []struct {
		name string
		prev string
		text string
		want bool
	}{
		{"new sentence end", "hello there", "hello there. how", true},
		{"comma", "well", "well, maybe", true},
		{"cjk full stop", "你好", "你好。", true},
		{"no punctuation", "hello", "hello there friend", false},
		{"not grown", "hello there.", "hello there.", false},
		{"shorter", "hello there, friend", "hello", false},
		{"punctuation outside window", "a. b", "a. bcdefghijklmnopqrstuvwxyz", false},
		{"unchanged tail", "", "", false},
		{"comma already present", "Hello, world", "Hello, world again", false},
		{"full stop already present", "we went home.", "we went home. and", false},
		{"second clause closes", "we went home. and", "we went home. and then ate.", true},
		{"rewritten ending", "hello wrld", "hello world.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := softBoundary(tt.prev, tt.text); got != tt.want {
				t.Errorf("softBoundary(%q, %q) = %v, want %v", tt.prev, tt.text, got, tt.want)
			}
		})
	}
}
