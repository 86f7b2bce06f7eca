package audio

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
)

func seq(n int, start byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = start + byte(i)
	}
	return out
}

func TestNewBuffer(t *testing.T) {
	b := NewBuffer(60)
	if b.Capacity() != 60*BytesPerSecond {
		t.Errorf("expected capacity %d, got %d", 60*BytesPerSecond, b.Capacity())
	}
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", b.Len())
	}
}

func TestBuffer_AppendWithinCapacity(t *testing.T) {
	b := NewBufferWithCapacity(10, 2)
	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5})

	if got := b.Full(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("unexpected contents %v", got)
	}
}

func TestBuffer_AppendDropsOldest(t *testing.T) {
	b := NewBufferWithCapacity(4, 2)
	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5, 6})

	if got := b.Full(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("expected most recent 4 bytes, got %v", got)
	}
}

func TestBuffer_AppendLargerThanCapacity(t *testing.T) {
	b := NewBufferWithCapacity(3, 1)
	b.Append([]byte{9})
	b.Append([]byte{1, 2, 3, 4, 5})

	if got := b.Full(); !bytes.Equal(got, []byte{3, 4, 5}) {
		t.Errorf("expected tail of oversized append, got %v", got)
	}
}

func TestBuffer_LengthNeverExceedsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, capacity := range []int{0, 1, 7, 64, 1000} {
		b := NewBufferWithCapacity(capacity, 10)
		var all []byte
		for i := 0; i < 200; i++ {
			chunk := seq(rng.Intn(150), byte(i))
			b.Append(chunk)
			all = append(all, chunk...)

			if b.Len() > capacity {
				t.Fatalf("capacity %d: length %d exceeds capacity", capacity, b.Len())
			}
			want := all
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			if !bytes.Equal(b.Full(), want) {
				t.Fatalf("capacity %d: contents diverge after %d appends", capacity, i+1)
			}
		}
	}
}

func TestBuffer_Window(t *testing.T) {
	b := NewBufferWithCapacity(100, 10)
	b.Append(seq(35, 0))

	tests := []struct {
		seconds float64
		want    []byte
	}{
		{0, []byte{}},
		{1, seq(10, 25)},
		{2.5, seq(25, 10)},
		{10, seq(35, 0)},
	}

	for _, tt := range tests {
		got := b.Window(tt.seconds)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Window(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestBuffer_WindowIsSnapshot(t *testing.T) {
	b := NewBufferWithCapacity(8, 4)
	b.Append([]byte{1, 2, 3, 4})

	snap := b.Window(1)
	b.Append([]byte{5, 6, 7, 8, 9, 10})
	snap[0] = 99

	if !bytes.Equal(b.Full(), []byte{3, 4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("buffer changed through snapshot: %v", b.Full())
	}
	if snap[1] != 2 {
		t.Errorf("snapshot changed by append: %v", snap)
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(1)
	b.Append(seq(100, 0))
	b.Clear()

	if b.Len() != 0 {
		t.Errorf("expected empty buffer after Clear, got %d", b.Len())
	}
	if len(b.Full()) != 0 {
		t.Error("expected Full to be empty after Clear")
	}
	if b.Duration() != 0 {
		t.Errorf("expected zero duration, got %v", b.Duration())
	}
}

func TestBuffer_Duration(t *testing.T) {
	b := NewBuffer(10)
	b.Append(make([]byte, BytesPerSecond*3/2))
	if b.Duration() != 1.5 {
		t.Errorf("expected 1.5s, got %v", b.Duration())
	}
}

func TestBuffer_ConcurrentAccess(t *testing.T) {
	b := NewBufferWithCapacity(512, 64)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Append(seq(33, byte(j)))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if len(b.Window(2)) > 128 {
					t.Error("window larger than requested")
				}
				_ = b.Full()
			}
		}()
	}
	wg.Wait()

	if b.Len() > b.Capacity() {
		t.Errorf("length %d exceeds capacity %d", b.Len(), b.Capacity())
	}
}
