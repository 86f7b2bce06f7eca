package transcription

import (
	"context"
	"sync"

	"github.com/eleven-am/voice-stt/internal/shared"
)

// Queue is an unbounded FIFO of jobs shared by every session and the worker.
// Push never blocks.
type Queue struct {
	mu     sync.Mutex
	items  []Job
	notify chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return shared.ErrClosed
	}
	q.items = append(q.items, job)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return nil
}

// Pop blocks until a job is available, the queue is closed, or ctx ends.
func (q *Queue) Pop(ctx context.Context) (Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = Job{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Job{}, shared.ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// HasNewerInterim reports whether an interim job from the same session and
// epoch with a higher sequence number is still waiting.
func (q *Queue) HasNewerInterim(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queued := range q.items {
		if !queued.Final && queued.SessionID == job.SessionID &&
			queued.Epoch == job.Epoch && queued.Seq > job.Seq {
			return true
		}
	}
	return false
}

// RemoveSession drops every queued job of a session and returns how many
// were removed.
func (q *Queue) RemoveSession(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, job := range q.items {
		if job.SessionID != sessionID {
			kept = append(kept, job)
		}
	}
	removed := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Job{}
	}
	q.items = kept
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close wakes blocked consumers. Jobs still queued are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	close(q.notify)
	q.mu.Unlock()
}
