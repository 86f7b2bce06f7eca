package streaming

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/eleven-am/voice-stt/internal/transcript"
	"github.com/eleven-am/voice-stt/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	sent []any
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Messages() <-chan []byte { return c.in }
func (c *fakeConn) Done() <-chan struct{}   { return c.done }
func (c *fakeConn) RemoteAddr() string      { return "127.0.0.1:9999" }

func (c *fakeConn) Send(msg any) error {
	select {
	case <-c.done:
		return shared.ErrClosed
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.in <- data
}

func (c *fakeConn) pushAudio(t *testing.T, pcm []byte) {
	c.push(t, map[string]any{"audio": base64.StdEncoding.EncodeToString(pcm)})
}

func (c *fakeConn) pushEnd(t *testing.T) {
	c.push(t, map[string]any{"audio": "", "end": true})
}

func (c *fakeConn) transcripts() []TranscriptMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []TranscriptMessage
	for _, m := range c.sent {
		if tm, ok := m.(TranscriptMessage); ok {
			out = append(out, tm)
		}
	}
	return out
}

func (c *fakeConn) finals() []TranscriptMessage {
	var out []TranscriptMessage
	for _, m := range c.transcripts() {
		if m.IsFinal {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) keepalives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if _, ok := m.(KeepaliveMessage); ok {
			n++
		}
	}
	return n
}

type funcEngine struct {
	fn    func(ctx context.Context, req transcription.Request) (*transcription.Response, error)
	calls atomic.Int32
}

func (e *funcEngine) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	e.calls.Add(1)
	return e.fn(ctx, req)
}

func (e *funcEngine) Close() error { return nil }

func textEngine(interim, final string) *funcEngine {
	return &funcEngine{fn: func(_ context.Context, req transcription.Request) (*transcription.Response, error) {
		text := interim
		if req.Options.Profile == transcription.ProfileFinal {
			text = final
		}
		return &transcription.Response{
			Segments:            []transcript.Segment{{Text: text, End: 1}},
			Language:            "en",
			LanguageProbability: 0.9,
		}, nil
	}}
}

type fakeRecorder struct {
	opened, closed, submitted, interim, final atomic.Int32
	sent, keepalives, timeouts, dropped       atomic.Int32
}

func (r *fakeRecorder) SessionOpened()              { r.opened.Add(1) }
func (r *fakeRecorder) SessionClosed(time.Duration) { r.closed.Add(1) }
func (r *fakeRecorder) QueueDrained(int)            {}
func (r *fakeRecorder) TranscriptSent(bool)         { r.sent.Add(1) }
func (r *fakeRecorder) KeepaliveSent()              { r.keepalives.Add(1) }
func (r *fakeRecorder) FinalTimedOut()              { r.timeouts.Add(1) }
func (r *fakeRecorder) ResultDropped()              { r.dropped.Add(1) }

func (r *fakeRecorder) JobSubmitted(p transcription.Profile, _ int) {
	r.submitted.Add(1)
	if p == transcription.ProfileFinal {
		r.final.Add(1)
	} else {
		r.interim.Add(1)
	}
}

type fakeSessionStore struct {
	mu         sync.Mutex
	created    []string
	ended      []string
	utterances int
	metrics    map[string]int64
}

func (s *fakeSessionStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, sess.ID)
	return nil
}

func (s *fakeSessionStore) EndSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, id)
	return nil
}

func (s *fakeSessionStore) RecordUtterance(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances++
	return nil
}

func (s *fakeSessionStore) IncrementMetric(_ context.Context, field string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = map[string]int64{}
	}
	s.metrics[field] += value
	return nil
}

func (s *fakeSessionStore) metric(field string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics[field]
}

type fakeTranscriptStore struct {
	mu    sync.Mutex
	saved []*history.Transcript
}

func (s *fakeTranscriptStore) Create(_ context.Context, t *history.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, t)
	return nil
}

func (s *fakeTranscriptStore) all() []*history.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*history.Transcript, len(s.saved))
	copy(out, s.saved)
	return out
}

func testConfig() Config {
	return Config{
		BufferSeconds:     60,
		WindowSeconds:     10,
		MaxContextLength:  150,
		Debounce:          0,
		KeepaliveInterval: time.Hour,
		ReceiveTimeout:    5 * time.Millisecond,
		FinalTimeout:      2 * time.Second,
		SupersedeInterim:  false,
	}
}

type harness struct {
	manager  *Manager
	queue    *transcription.Queue
	recorder *fakeRecorder
}

type harnessOption func(*ManagerConfig)

func withSessions(s SessionStore) harnessOption {
	return func(c *ManagerConfig) { c.Sessions = s }
}

func withTranscripts(s TranscriptStore) harnessOption {
	return func(c *ManagerConfig) { c.Transcripts = s }
}

// newHarness wires a manager to a real worker driving engine.
func newHarness(t *testing.T, cfg Config, engine transcription.Engine, opts ...harnessOption) *harness {
	t.Helper()
	queue := transcription.NewQueue()
	results := make(chan transcription.Result, 16)
	recorder := &fakeRecorder{}

	worker := transcription.NewWorker(transcription.WorkerConfig{
		Engine:           engine,
		Jobs:             queue,
		Results:          results,
		SupersedeInterim: cfg.SupersedeInterim,
		Log:              testLogger(),
	})

	mc := ManagerConfig{
		Config:   cfg,
		Jobs:     queue,
		Results:  results,
		Recorder: recorder,
		Log:      testLogger(),
	}
	for _, opt := range opts {
		opt(&mc)
	}
	m := NewManager(mc)

	worker.Start()
	m.Start()
	t.Cleanup(func() {
		m.Stop(time.Second)
		_ = worker.Stop(time.Second)
		queue.Close()
	})

	return &harness{manager: m, queue: queue, recorder: recorder}
}

func (h *harness) serve(conn Conn) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- h.manager.Serve(conn, 16000) }()
	return errc
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

func silence(seconds float64) []byte {
	return make([]byte, int(seconds*32000))
}
