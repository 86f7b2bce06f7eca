package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/voice-stt/internal/transcript"
)

type fakeEngine struct {
	mu       sync.Mutex
	requests []Request
	fail     func(req Request) error
	panicOn  func(req Request) bool
	block    chan struct{}
	closed   atomic.Bool
}

func (f *fakeEngine) Transcribe(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panicOn != nil && f.panicOn(req) {
		panic("decoder exploded")
	}
	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return nil, err
		}
	}
	return &Response{
		Segments:            []transcript.Segment{{Text: req.Prompt + " ok", End: 1}},
		Language:            "en",
		LanguageProbability: 0.8,
	}, nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeEngine) calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

type countingObserver struct {
	completed  atomic.Int64
	failed     atomic.Int64
	superseded atomic.Int64
}

func (o *countingObserver) JobCompleted(Profile, time.Duration) { o.completed.Add(1) }
func (o *countingObserver) JobFailed(Profile)                   { o.failed.Add(1) }
func (o *countingObserver) JobSuperseded()                      { o.superseded.Add(1) }

func newTestWorker(engine Engine, supersede bool) (*Worker, *Queue, chan Result, *countingObserver) {
	q := NewQueue()
	results := make(chan Result, 16)
	obs := &countingObserver{}
	w := NewWorker(WorkerConfig{
		Engine:           engine,
		Jobs:             q,
		Results:          results,
		SupersedeInterim: supersede,
		Observer:         obs,
		Log:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return w, q, results, obs
}

func pcm(seconds float64) []byte {
	return make([]byte, int(seconds*32000))
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result{}
}

func TestWorker_ProcessesJob(t *testing.T) {
	engine := &fakeEngine{}
	w, q, results, obs := newTestWorker(engine, false)
	w.Start()
	defer w.Stop(time.Second)

	_ = q.Push(Job{ID: "final_1", SessionID: "s1", Epoch: 3, Seq: 1, Audio: pcm(1), Prompt: "hello", Final: true})

	r := waitResult(t, results)
	if r.JobID != "final_1" || r.SessionID != "s1" || r.Epoch != 3 || !r.Final {
		t.Errorf("result lost job identity: %+v", r)
	}
	if transcript.Join(r.Segments) != "hello ok" {
		t.Errorf("unexpected text %q", transcript.Join(r.Segments))
	}
	if r.AudioSeconds != 1 {
		t.Errorf("expected 1s of audio, got %v", r.AudioSeconds)
	}

	calls := engine.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(calls))
	}
	if calls[0].Options.BeamSize != 5 || calls[0].Options.VADFilter {
		t.Errorf("final job used wrong options: %+v", calls[0].Options)
	}
	if obs.completed.Load() != 1 {
		t.Errorf("expected 1 completion, got %d", obs.completed.Load())
	}
}

func TestWorker_InterimOptions(t *testing.T) {
	engine := &fakeEngine{}
	w, q, results, _ := newTestWorker(engine, false)
	w.Start()
	defer w.Stop(time.Second)

	_ = q.Push(Job{ID: "interim_1", SessionID: "s1", Audio: pcm(0.5)})
	waitResult(t, results)

	opts := engine.calls()[0].Options
	if opts.BeamSize != 2 || !opts.VADFilter || opts.MinSilenceMs != 300 || opts.Temperature != 0 {
		t.Errorf("interim job used wrong options: %+v", opts)
	}
}

func TestWorker_EmptyAudioSkipsEngine(t *testing.T) {
	engine := &fakeEngine{}
	w, q, results, _ := newTestWorker(engine, false)
	w.Start()
	defer w.Stop(time.Second)

	_ = q.Push(Job{ID: "final_1", SessionID: "s1", Audio: []byte{0x01}, Final: true})

	r := waitResult(t, results)
	if len(r.Segments) != 0 {
		t.Errorf("expected no segments, got %+v", r.Segments)
	}
	if len(engine.calls()) != 0 {
		t.Error("engine should not be called for empty audio")
	}
}

func TestWorker_FailureDoesNotStopLoop(t *testing.T) {
	engine := &fakeEngine{
		fail: func(req Request) error {
			if req.Prompt == "bad" {
				return errors.New("decode failed")
			}
			return nil
		},
		panicOn: func(req Request) bool { return req.Prompt == "boom" },
	}
	w, q, results, obs := newTestWorker(engine, false)
	w.Start()
	defer w.Stop(time.Second)

	_ = q.Push(Job{ID: "interim_1", SessionID: "s1", Seq: 1, Audio: pcm(0.2), Prompt: "bad"})
	_ = q.Push(Job{ID: "interim_2", SessionID: "s1", Seq: 2, Audio: pcm(0.2), Prompt: "boom"})
	_ = q.Push(Job{ID: "interim_3", SessionID: "s1", Seq: 3, Audio: pcm(0.2), Prompt: "good"})

	r := waitResult(t, results)
	if r.JobID != "interim_3" {
		t.Errorf("expected interim_3 to survive, got %s", r.JobID)
	}
	if obs.failed.Load() != 2 {
		t.Errorf("expected 2 failures, got %d", obs.failed.Load())
	}
	if !w.Running() {
		t.Error("worker should keep running after failures")
	}
}

func TestWorker_SupersedesStaleInterim(t *testing.T) {
	engine := &fakeEngine{}
	w, q, results, obs := newTestWorker(engine, true)

	_ = q.Push(Job{ID: "interim_1", SessionID: "s1", Epoch: 1, Seq: 1, Audio: pcm(0.2)})
	_ = q.Push(Job{ID: "interim_2", SessionID: "s1", Epoch: 1, Seq: 2, Audio: pcm(0.2)})
	_ = q.Push(Job{ID: "final_3", SessionID: "s1", Epoch: 1, Seq: 3, Audio: pcm(0.2), Final: true})

	w.Start()
	defer w.Stop(time.Second)

	first := waitResult(t, results)
	second := waitResult(t, results)
	if first.JobID != "interim_2" || second.JobID != "final_3" {
		t.Errorf("unexpected order %s, %s", first.JobID, second.JobID)
	}
	if obs.superseded.Load() != 1 {
		t.Errorf("expected 1 superseded job, got %d", obs.superseded.Load())
	}
}

func TestWorker_StopClosesEngine(t *testing.T) {
	engine := &fakeEngine{}
	w, _, _, _ := newTestWorker(engine, false)
	w.Start()
	w.Start()

	if err := w.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if w.Running() {
		t.Error("worker should not be running")
	}
	if !engine.closed.Load() {
		t.Error("engine should be closed")
	}
	if err := w.Stop(time.Second); err != nil {
		t.Errorf("second stop should be a no-op, got %v", err)
	}
}

func TestWorker_StopIsBounded(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	w, q, _, _ := newTestWorker(&ignoringCtxEngine{inner: engine}, false)
	w.Start()
	defer close(engine.block)

	_ = q.Push(Job{ID: "final_1", SessionID: "s1", Audio: pcm(0.2), Final: true})
	for len(engine.calls()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	err := w.Stop(50 * time.Millisecond)
	if err == nil {
		t.Error("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("stop waited too long")
	}
}

// ignoringCtxEngine simulates an engine call that cannot be interrupted.
type ignoringCtxEngine struct {
	inner *fakeEngine
}

func (e *ignoringCtxEngine) Transcribe(_ context.Context, req Request) (*Response, error) {
	return e.inner.Transcribe(context.Background(), req)
}

func (e *ignoringCtxEngine) Close() error { return e.inner.Close() }
