package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-stt/internal/audio"
)

const defaultStopTimeout = 2 * time.Second

// Observer receives worker outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	JobCompleted(profile Profile, elapsed time.Duration)
	JobFailed(profile Profile)
	JobSuperseded()
}

type noopObserver struct{}

func (noopObserver) JobCompleted(Profile, time.Duration) {}
func (noopObserver) JobFailed(Profile)                   {}
func (noopObserver) JobSuperseded()                      {}

type WorkerConfig struct {
	Engine  Engine
	Jobs    *Queue
	Results chan<- Result
	// SupersedeInterim skips an interim job when a newer one from the same
	// session is already queued.
	SupersedeInterim bool
	Observer         Observer
	Log              *slog.Logger
}

// Worker runs every engine call on one dedicated goroutine so that blocking
// inference never shares a scheduler slot with session I/O.
type Worker struct {
	engine    Engine
	jobs      *Queue
	results   chan<- Result
	supersede bool
	observer  Observer
	log       *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	return &Worker{
		engine:    cfg.Engine,
		jobs:      cfg.Jobs,
		results:   cfg.Results,
		supersede: cfg.SupersedeInterim,
		observer:  cfg.Observer,
		log:       cfg.Log.With("component", "transcription_worker"),
	}
}

func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx, w.done)
	w.log.Info("transcription worker started", "supersede_interim", w.supersede)
}

func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop asks the loop to exit, waits up to timeout for the in-flight job to
// return and releases engine resources.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	cancel()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("transcription worker did not stop within %s", timeout)
		w.log.Warn("transcription worker stop timed out", "timeout", timeout)
	}

	if closeErr := w.engine.Close(); closeErr != nil {
		w.log.Warn("engine close failed", "error", closeErr)
	}
	return err
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		job, err := w.jobs.Pop(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.log.Info("transcription worker exiting", "reason", err)
			}
			return
		}

		if w.supersede && !job.Final && w.jobs.HasNewerInterim(job) {
			w.observer.JobSuperseded()
			w.log.Debug("interim job superseded", "job_id", job.ID, "session_id", job.SessionID)
			continue
		}

		result, err := w.process(ctx, job)
		if err != nil {
			w.observer.JobFailed(job.Profile())
			w.log.Error("transcription job failed",
				"job_id", job.ID,
				"session_id", job.SessionID,
				"final", job.Final,
				"error", err)
			continue
		}
		w.observer.JobCompleted(job.Profile(), result.Elapsed)

		select {
		case w.results <- result:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	start := time.Now()
	pcm := audio.Canonicalize(job.Audio, audio.SampleRate)

	result = Result{
		JobID:        job.ID,
		SessionID:    job.SessionID,
		Epoch:        job.Epoch,
		Seq:          job.Seq,
		Final:        job.Final,
		AudioSeconds: float64(len(pcm)) / audio.BytesPerSecond,
	}

	if len(pcm) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	resp, err := w.engine.Transcribe(ctx, Request{
		Audio:    pcm,
		Language: job.Language,
		Prompt:   job.Prompt,
		Options:  OptionsFor(job.Profile()),
	})
	if err != nil {
		return Result{}, err
	}

	result.Segments = resp.Segments
	result.Language = resp.Language
	result.LanguageProbability = resp.LanguageProbability
	result.Elapsed = time.Since(start)
	return result, nil
}
