package streaming

const unknownLanguage = "unknown"

type inboundMessage struct {
	Audio             string `json:"audio"`
	End               bool   `json:"end"`
	KeepaliveResponse bool   `json:"keepalive_response"`
}

type KeepaliveMessage struct {
	Keepalive bool `json:"keepalive"`
}

type TranscriptMessage struct {
	Transcript          string  `json:"transcript"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	IsFinal             bool    `json:"is_final"`
	IsSubtle            bool    `json:"is_subtle"`
}

const boundaryWindow = 20

var boundaryMarks = map[rune]struct{}{
	'.': {}, '!': {}, '?': {}, ',': {}, ';': {}, ':': {},
	'。': {}, '！': {}, '？': {}, '，': {}, '；': {}, '：': {},
}

// softBoundary reports whether text grew past prev and the part of its
// trailing window that differs from prev carries clause punctuation.
func softBoundary(prev, text string) bool {
	old, cur := []rune(prev), []rune(text)
	if len(cur) <= len(old) {
		return false
	}

	start := commonPrefix(old, cur)
	if tail := len(cur) - boundaryWindow; tail > start {
		start = tail
	}
	for _, c := range cur[start:] {
		if _, ok := boundaryMarks[c]; ok {
			return true
		}
	}
	return false
}

func commonPrefix(a, b []rune) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
