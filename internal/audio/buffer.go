package audio

import "sync"

const (
	// SampleRate is the canonical engine sample rate.
	SampleRate = 16000
	// BytesPerSample is the width of one mono PCM-16 sample.
	BytesPerSample = 2
	// BytesPerSecond is the byte rate of canonical audio.
	BytesPerSecond = SampleRate * BytesPerSample
)

// Buffer is a rolling PCM byte buffer owned by a single session. Appends
// saturate at the configured capacity by dropping the oldest bytes. Every
// read returns a copy so a snapshot handed to a transcription job is never
// affected by later mutation.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	rate     int
}

// NewBuffer returns a buffer holding at most maxSeconds of canonical audio.
func NewBuffer(maxSeconds int) *Buffer {
	return NewBufferWithCapacity(maxSeconds*BytesPerSecond, BytesPerSecond)
}

// NewBufferWithCapacity returns a buffer bounded at capacity bytes where one
// second of audio occupies bytesPerSecond bytes.
func NewBufferWithCapacity(capacity, bytesPerSecond int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	if bytesPerSecond <= 0 {
		bytesPerSecond = BytesPerSecond
	}
	initial := capacity
	if initial > bytesPerSecond*2 {
		initial = bytesPerSecond * 2
	}
	return &Buffer{
		data:     make([]byte, 0, initial),
		capacity: capacity,
		rate:     bytesPerSecond,
	}
}

// Append adds pcm to the end of the buffer, keeping only the most recent
// capacity bytes.
func (b *Buffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(pcm) >= b.capacity {
		b.data = append(b.data[:0], pcm[len(pcm)-b.capacity:]...)
		return
	}

	if overflow := len(b.data) + len(pcm) - b.capacity; overflow > 0 {
		n := copy(b.data, b.data[overflow:])
		b.data = b.data[:n]
	}
	b.data = append(b.data, pcm...)
}

// Window returns a copy of the most recent seconds of audio, or everything
// when less than that is buffered.
func (b *Buffer) Window(seconds float64) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := int(seconds * float64(b.rate))
	if size < 0 {
		size = 0
	}
	if size > len(b.data) {
		size = len(b.data)
	}
	return clone(b.data[len(b.data)-size:])
}

// Full returns a copy of everything buffered.
func (b *Buffer) Full() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.data)
}

// Clear drops all buffered audio.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Capacity returns the maximum number of bytes retained.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Duration returns the buffered audio length in seconds.
func (b *Buffer) Duration() float64 {
	return float64(b.Len()) / float64(b.rate)
}

func clone(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
