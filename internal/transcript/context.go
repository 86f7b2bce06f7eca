// Package transcript merges successive engine passes over overlapping audio
// windows into one stable running text.
package transcript

import (
	"strings"
	"sync"
)

const (
	DefaultMaxContextLength = 150

	promptLength = 50

	// A candidate this much longer than the held context replaces it outright.
	growthRatio = 1.3

	maxOverlap = 50
	minOverlap = 6
	// Slack allowed before an overlapping suffix must appear in a candidate.
	overlapSlack = 10

	// Candidates at or below this length are never appended blindly.
	minAppendLength = 10

	minRepeat = 10
	maxRepeat = 50
)

// Segment is one timed span of recognized text.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Join concatenates segment texts with single spaces.
func Join(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// ContextManager holds the running transcript and best-known language for a
// single session.
type ContextManager struct {
	mu sync.Mutex

	maxLength    int
	text         []rune
	language     string
	confidence   float64
	lastSegments []Segment
}

func NewContextManager(maxLength int) *ContextManager {
	if maxLength <= 0 {
		maxLength = DefaultMaxContextLength
	}
	return &ContextManager{maxLength: maxLength}
}

// Update folds a new engine pass into the context and returns the text to
// render. Final passes replace the context with the pass verbatim; the full
// final text is returned even when the retained context is truncated.
func (c *ContextManager) Update(segments []Segment, final bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSegments = append([]Segment(nil), segments...)
	candidate := []rune(Join(segments))

	if final {
		c.text = truncate(candidate, c.maxLength)
		return string(candidate)
	}

	c.text = truncate([]rune(Clean(string(c.merge(candidate)))), c.maxLength)
	return string(c.text)
}

func (c *ContextManager) merge(candidate []rune) []rune {
	switch {
	case len(c.text) == 0:
		return candidate
	case float64(len(candidate)) > growthRatio*float64(len(c.text)):
		return candidate
	}

	if merged, ok := spliceOverlap(c.text, candidate); ok {
		return merged
	}
	if len(candidate) > minAppendLength {
		out := make([]rune, 0, len(c.text)+1+len(candidate))
		out = append(out, c.text...)
		out = append(out, ' ')
		return append(out, candidate...)
	}
	return c.text
}

// spliceOverlap finds the longest suffix of held (50 down to 6 runes) that
// occurs near the start of candidate and joins the two across it.
func spliceOverlap(held, candidate []rune) ([]rune, bool) {
	longest := min(len(held), maxOverlap)
	for n := longest; n >= minOverlap; n-- {
		suffix := held[len(held)-n:]
		head := candidate[:min(len(candidate), n+overlapSlack)]
		idx := indexRunes(head, suffix)
		if idx < 0 {
			continue
		}
		out := make([]rune, 0, len(held)-n+len(candidate)-idx)
		out = append(out, held[:len(held)-n]...)
		return append(out, candidate[idx:]...), true
	}
	return nil, false
}

// UpdateLanguage records lang when nothing is known yet or when confidence
// is strictly higher than the stored confidence.
func (c *ContextManager) UpdateLanguage(lang string, confidence float64) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.language == "" || confidence > c.confidence {
		c.language = lang
		c.confidence = confidence
	}
}

// Prompt returns the trailing context used to condition the next pass.
func (c *ContextManager) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.text) > promptLength {
		return string(c.text[len(c.text)-promptLength:])
	}
	return string(c.text)
}

func (c *ContextManager) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.text)
}

// Language returns the best-known language and its confidence. The language
// is empty until the engine has reported one.
func (c *ContextManager) Language() (string, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language, c.confidence
}

// LastSegments returns the segments of the most recent engine pass.
func (c *ContextManager) LastSegments() []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Segment(nil), c.lastSegments...)
}

// Clean collapses immediately repeated phrases of 10 to 50 characters and
// normalizes whitespace.
func Clean(text string) string {
	runes := []rune(text)
	if len(runes) > 2*minRepeat {
		runes = collapseRepeats(runes)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}

func collapseRepeats(r []rune) []rune {
	for n := min(maxRepeat, len(r)/2); n >= minRepeat; n-- {
		for i := 0; i+2*n <= len(r); {
			if equalRunes(r[i:i+n], r[i+n:i+2*n]) {
				r = append(r[:i+n], r[i+2*n:]...)
				continue
			}
			i++
		}
	}
	return r
}

func truncate(r []rune, limit int) []rune {
	if len(r) > limit {
		return append([]rune(nil), r[len(r)-limit:]...)
	}
	return r
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if equalRunes(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
