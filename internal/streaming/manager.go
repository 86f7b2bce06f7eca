package streaming

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/voice-stt/internal/audio"
	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/eleven-am/voice-stt/internal/transcription"
	"github.com/google/uuid"
)

const (
	defaultInboxSize   = 64
	bookkeepingBuffer  = 512
	bookkeepingTimeout = 2 * time.Second
)

type Config struct {
	BufferSeconds     int
	WindowSeconds     float64
	MaxContextLength  int
	Debounce          time.Duration
	KeepaliveInterval time.Duration
	ReceiveTimeout    time.Duration
	FinalTimeout      time.Duration
	SupersedeInterim  bool
	InboxSize         int
}

func DefaultConfig() Config {
	return Config{
		BufferSeconds:     60,
		WindowSeconds:     10,
		MaxContextLength:  150,
		Debounce:          500 * time.Millisecond,
		KeepaliveInterval: 30 * time.Second,
		ReceiveTimeout:    100 * time.Millisecond,
		FinalTimeout:      10 * time.Second,
		SupersedeInterim:  true,
		InboxSize:         defaultInboxSize,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.BufferSeconds <= 0 {
		c.BufferSeconds = d.BufferSeconds
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = d.WindowSeconds
	}
	if c.MaxContextLength <= 0 {
		c.MaxContextLength = d.MaxContextLength
	}
	if c.Debounce < 0 {
		c.Debounce = 0
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = d.ReceiveTimeout
	}
	if c.FinalTimeout <= 0 {
		c.FinalTimeout = d.FinalTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	return c
}

// Recorder receives session level events for metrics.
type Recorder interface {
	SessionOpened()
	SessionClosed(duration time.Duration)
	JobSubmitted(profile transcription.Profile, queueDepth int)
	QueueDrained(queueDepth int)
	TranscriptSent(final bool)
	KeepaliveSent()
	FinalTimedOut()
	ResultDropped()
}

// SessionStore persists session records and hourly counters.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *session.Session) error
	EndSession(ctx context.Context, id string) error
	RecordUtterance(ctx context.Context, id string) error
	IncrementMetric(ctx context.Context, field string, value int64) error
}

// TranscriptStore keeps finalized transcripts.
type TranscriptStore interface {
	Create(ctx context.Context, t *history.Transcript) error
}

type noopRecorder struct{}

func (noopRecorder) SessionOpened()                          {}
func (noopRecorder) SessionClosed(time.Duration)             {}
func (noopRecorder) JobSubmitted(transcription.Profile, int) {}
func (noopRecorder) QueueDrained(int)                        {}
func (noopRecorder) TranscriptSent(bool)                     {}
func (noopRecorder) KeepaliveSent()                          {}
func (noopRecorder) FinalTimedOut()                          {}
func (noopRecorder) ResultDropped()                          {}

type ManagerConfig struct {
	Config   Config
	Jobs     *transcription.Queue
	Results  <-chan transcription.Result
	Recorder Recorder
	// Sessions and Transcripts are optional.
	Sessions    SessionStore
	Transcripts TranscriptStore
	Log         *slog.Logger
}

type SessionInfo struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	RemoteAddr    string    `json:"remote_addr"`
	SampleRate    int       `json:"sample_rate"`
	StartedAt     time.Time `json:"started_at"`
	PendingJobs   int       `json:"pending_jobs"`
	BufferSeconds float64   `json:"buffer_seconds"`
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager owns the session registry and routes worker results to the
// session that submitted the job.
type Manager struct {
	cfg         Config
	jobs        *transcription.Queue
	results     <-chan transcription.Result
	recorder    Recorder
	store       SessionStore
	transcripts TranscriptStore
	log         *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	tasks   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  sync.WaitGroup
	started bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:         cfg.Config.normalize(),
		jobs:        cfg.Jobs,
		results:     cfg.Results,
		recorder:    cfg.Recorder,
		store:       cfg.Sessions,
		transcripts: cfg.Transcripts,
		log:         cfg.Log.With("component", "session_manager"),
		sessions:    make(map[string]*Session),
		tasks:       make(chan task, bookkeepingBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the result router and the bookkeeping loop.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.wg.Add(2)
	go m.route()
	go m.runTasks()
}

// Stop closes every session, waits up to timeout for them to deregister and
// then stops the background loops.
func (m *Manager) Stop(timeout time.Duration) {
	m.mu.RLock()
	for _, s := range m.sessions {
		_ = s.conn.Close()
	}
	m.mu.RUnlock()

	drained := make(chan struct{})
	go func() {
		m.active.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(timeout):
		m.log.Warn("sessions still open at shutdown", "count", m.SessionCount())
	}

	m.cancel()
	m.wg.Wait()
}

// Serve runs one client connection until it closes.
func (m *Manager) Serve(conn Conn, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}

	m.active.Add(1)
	defer m.active.Done()

	s := newSession(uuid.NewString(), conn, sampleRate, m)
	m.register(s)
	defer m.deregister(s)

	return s.run(m.ctx)
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.recorder.SessionOpened()
	m.log.Info("session opened", "session_id", s.id, "remote_addr", s.remoteAddr, "sample_rate", s.sampleRate)

	if m.store != nil {
		rec := &session.Session{ID: s.id, RemoteAddr: s.remoteAddr, SampleRate: s.sampleRate}
		m.enqueue("create_session", func(ctx context.Context) error {
			return m.store.CreateSession(ctx, rec)
		})
	}
	m.count(session.MetricSessions)
}

func (m *Manager) deregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	dropped := m.jobs.RemoveSession(s.id)
	m.recorder.QueueDrained(m.jobs.Len())
	_ = s.conn.Close()

	duration := time.Since(s.startedAt)
	m.recorder.SessionClosed(duration)
	m.log.Info("session closed", "session_id", s.id, "duration", duration, "dropped_jobs", dropped)

	if m.store != nil {
		m.enqueue("end_session", func(ctx context.Context) error {
			return m.store.EndSession(ctx, s.id)
		})
	}
}

func (m *Manager) submit(job transcription.Job) error {
	if err := m.jobs.Push(job); err != nil {
		return err
	}
	m.recorder.JobSubmitted(job.Profile(), m.jobs.Len())
	if job.Final {
		m.count(session.MetricFinalJobs)
	} else {
		m.count(session.MetricInterimJobs)
	}
	return nil
}

func (m *Manager) route() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case r, ok := <-m.results:
			if !ok {
				return
			}
			m.recorder.QueueDrained(m.jobs.Len())
			m.deliver(r)
		}
	}
}

func (m *Manager) deliver(r transcription.Result) bool {
	m.mu.RLock()
	s, ok := m.sessions[r.SessionID]
	m.mu.RUnlock()

	if !ok {
		m.recorder.ResultDropped()
		m.log.Debug("result for unknown session dropped", "session_id", r.SessionID, "job_id", r.JobID)
		return false
	}

	select {
	case s.inbox <- r:
		return true
	default:
		m.recorder.ResultDropped()
		m.log.Warn("session inbox full, dropping result", "session_id", r.SessionID, "job_id", r.JobID)
		return false
	}
}

// enqueue hands slow bookkeeping I/O to a background loop so session loops
// never wait on it.
func (m *Manager) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case m.tasks <- task{name: name, fn: fn}:
	default:
		m.log.Warn("bookkeeping queue full, dropping task", "task", name)
	}
}

func (m *Manager) count(metric string) {
	if m.store == nil {
		return
	}
	m.enqueue("increment_"+metric, func(ctx context.Context) error {
		return m.store.IncrementMetric(ctx, metric, 1)
	})
}

func (m *Manager) runTasks() {
	defer m.wg.Done()
	for {
		select {
		case t := <-m.tasks:
			m.exec(t)
		case <-m.ctx.Done():
			for {
				select {
				case t := <-m.tasks:
					m.exec(t)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) exec(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := t.fn(ctx); err != nil {
		m.log.Warn("bookkeeping task failed", "task", t.name, "error", err)
	}
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

func (m *Manager) QueueDepth() int {
	return m.jobs.Len()
}
