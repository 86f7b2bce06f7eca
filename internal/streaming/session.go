package streaming

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-stt/internal/audio"
	"github.com/eleven-am/voice-stt/internal/history"
	"github.com/eleven-am/voice-stt/internal/session"
	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/eleven-am/voice-stt/internal/transcript"
	"github.com/eleven-am/voice-stt/internal/transcription"
)

type State int

const (
	StateConnected State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type pendingJob struct {
	seq         uint64
	final       bool
	submittedAt time.Time
}

// Session is the per-connection loop. Everything except the fields guarded
// by mu is touched only by the goroutine running run.
type Session struct {
	id         string
	conn       Conn
	remoteAddr string
	sampleRate int
	startedAt  time.Time
	cfg        Config
	manager    *Manager
	log        *slog.Logger

	buffer         *audio.Buffer
	contextManager *transcript.ContextManager
	inbox          chan transcription.Result

	mu      sync.Mutex
	state   State
	pending map[string]pendingJob

	epoch        uint64
	seq          uint64
	lastSent     string
	lastActivity time.Time
	lastDispatch time.Time
	finalDone    bool
}

func newSession(id string, conn Conn, sampleRate int, m *Manager) *Session {
	now := time.Now()
	return &Session{
		id:             id,
		conn:           conn,
		remoteAddr:     conn.RemoteAddr(),
		sampleRate:     sampleRate,
		startedAt:      now,
		cfg:            m.cfg,
		manager:        m,
		log:            m.log.With("session_id", id),
		buffer:         audio.NewBuffer(m.cfg.BufferSeconds),
		contextManager: transcript.NewContextManager(m.cfg.MaxContextLength),
		inbox:          make(chan transcription.Result, m.cfg.InboxSize),
		state:          StateConnected,
		pending:        make(map[string]pendingJob),
		lastActivity:   now,
		lastDispatch:   now,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	state, pending := s.state, len(s.pending)
	s.mu.Unlock()

	return SessionInfo{
		ID:            s.id,
		State:         state.String(),
		RemoteAddr:    s.remoteAddr,
		SampleRate:    s.sampleRate,
		StartedAt:     s.startedAt,
		PendingJobs:   pending,
		BufferSeconds: s.buffer.Duration(),
	}
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateStreaming)
	defer s.setState(StateClosed)

	messages := s.conn.Messages()
	timer := time.NewTimer(s.cfg.ReceiveTimeout)
	defer timer.Stop()

	for {
		if err := s.keepalive(); err != nil {
			return err
		}
		if err := s.drainResults(); err != nil {
			return err
		}

		timer.Reset(s.cfg.ReceiveTimeout)
		select {
		case <-ctx.Done():
			return nil
		case <-s.conn.Done():
			return nil
		case <-timer.C:
			continue
		case data, ok := <-messages:
			if !ok {
				return nil
			}
			s.lastActivity = time.Now()
			if err := s.handleMessage(ctx, data); err != nil {
				return err
			}
		}
	}
}

func (s *Session) keepalive() error {
	if time.Since(s.lastActivity) < s.cfg.KeepaliveInterval {
		return nil
	}
	if err := s.send(KeepaliveMessage{Keepalive: true}); err != nil {
		return err
	}
	s.lastActivity = time.Now()
	s.manager.recorder.KeepaliveSent()
	s.manager.count(session.MetricKeepalives)
	return nil
}

func (s *Session) drainResults() error {
	for {
		select {
		case r := <-s.inbox:
			if err := s.handleResult(r); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, data []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("dropping malformed message", "error", err)
		return nil
	}

	if msg.KeepaliveResponse {
		return nil
	}
	if msg.End {
		return s.finalize(ctx)
	}
	if msg.Audio == "" {
		return nil
	}

	pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		s.log.Debug("dropping undecodable audio", "error", err)
		return nil
	}
	// Canonicalize also drops a stray odd byte so later samples stay aligned.
	pcm = audio.Canonicalize(pcm, s.sampleRate)
	if len(pcm) == 0 {
		return nil
	}
	s.buffer.Append(pcm)

	if s.State() != StateStreaming {
		return nil
	}
	now := time.Now()
	if now.Sub(s.lastDispatch) < s.cfg.Debounce {
		return nil
	}

	lang, _ := s.contextManager.Language()
	s.dispatch(s.buffer.Window(s.cfg.WindowSeconds), lang, s.contextManager.Prompt(), false)
	s.lastDispatch = now
	return nil
}

func (s *Session) dispatch(pcm []byte, lang, prompt string, final bool) (string, bool) {
	s.seq++
	kind := transcription.ProfileInterim
	if final {
		kind = transcription.ProfileFinal
	}
	job := transcription.Job{
		ID:          fmt.Sprintf("%s_%d", kind, s.seq),
		SessionID:   s.id,
		Epoch:       s.epoch,
		Seq:         s.seq,
		Audio:       pcm,
		Language:    lang,
		Prompt:      prompt,
		Final:       final,
		SubmittedAt: time.Now(),
	}

	if err := s.manager.submit(job); err != nil {
		s.log.Warn("job submission failed", "job_id", job.ID, "error", err)
		return job.ID, false
	}

	s.mu.Lock()
	s.pending[job.ID] = pendingJob{seq: job.Seq, final: final, submittedAt: job.SubmittedAt}
	s.mu.Unlock()
	return job.ID, true
}

// finalize runs the end-of-utterance handshake. Exactly one final message is
// sent whether or not the engine answers in time.
func (s *Session) finalize(ctx context.Context) error {
	s.setState(StateFinalizing)
	s.finalDone = false

	lang, _ := s.contextManager.Language()
	jobID, ok := s.dispatch(s.buffer.Full(), lang, "", true)
	s.log.Debug("finalizing utterance", "job_id", jobID, "buffered_seconds", s.buffer.Duration())

	deadline := time.NewTimer(s.cfg.FinalTimeout)
	defer deadline.Stop()

	for ok && !s.finalDone {
		select {
		case r := <-s.inbox:
			if err := s.handleResult(r); err != nil {
				return err
			}
		case <-deadline.C:
			ok = false
		case <-s.conn.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	if !s.finalDone {
		s.manager.recorder.FinalTimedOut()
		s.manager.count(session.MetricFinalTimeouts)
		s.log.Warn("final transcription timed out", "job_id", jobID, "timeout", s.cfg.FinalTimeout)
		if err := s.emitFinal(s.contextManager.Text(), s.buffer.Duration(), true); err != nil {
			return err
		}
	}

	s.resetUtterance()
	return nil
}

// resetUtterance starts a new epoch so late results from the finished
// utterance are ignored.
func (s *Session) resetUtterance() {
	s.buffer.Clear()
	s.lastSent = ""
	s.lastDispatch = time.Now()
	s.epoch++

	s.mu.Lock()
	clear(s.pending)
	s.state = StateStreaming
	s.mu.Unlock()
}

func (s *Session) handleResult(r transcription.Result) error {
	if r.Epoch != s.epoch {
		s.manager.recorder.ResultDropped()
		s.log.Debug("dropping stale result", "job_id", r.JobID, "epoch", r.Epoch, "current_epoch", s.epoch)
		return nil
	}

	s.mu.Lock()
	_, ok := s.pending[r.JobID]
	if ok {
		delete(s.pending, r.JobID)
		if s.cfg.SupersedeInterim && !r.Final {
			for id, p := range s.pending {
				if !p.final && p.seq < r.Seq {
					delete(s.pending, id)
				}
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		s.manager.recorder.ResultDropped()
		s.log.Debug("dropping unexpected result", "job_id", r.JobID)
		return nil
	}

	if r.Language != "" {
		s.contextManager.UpdateLanguage(r.Language, r.LanguageProbability)
	}
	text := s.contextManager.Update(r.Segments, r.Final)

	if r.Final {
		s.finalDone = true
		return s.emitFinal(text, r.AudioSeconds, false)
	}
	if text == s.lastSent {
		return nil
	}
	return s.emit(text, false)
}

func (s *Session) emit(text string, final bool) error {
	lang, prob := s.contextManager.Language()
	if lang == "" {
		lang = unknownLanguage
	}

	msg := TranscriptMessage{
		Transcript:          text,
		Language:            lang,
		LanguageProbability: prob,
		IsFinal:             final,
		IsSubtle:            softBoundary(s.lastSent, text),
	}
	if err := s.send(msg); err != nil {
		return err
	}

	s.lastSent = text
	s.manager.recorder.TranscriptSent(final)
	s.manager.count(session.MetricTranscripts)
	return nil
}

func (s *Session) emitFinal(text string, audioSeconds float64, timedOut bool) error {
	if err := s.emit(text, true); err != nil {
		return err
	}
	s.manager.count(session.MetricFinals)

	m := s.manager
	if m.store != nil {
		m.enqueue("record_utterance", func(ctx context.Context) error {
			return m.store.RecordUtterance(ctx, s.id)
		})
	}
	if m.transcripts != nil && text != "" {
		lang, prob := s.contextManager.Language()
		record := &history.Transcript{
			ID:                  shared.NewID("tr_"),
			SessionID:           s.id,
			Text:                text,
			Language:            lang,
			LanguageProbability: prob,
			AudioSeconds:        audioSeconds,
			TimedOut:            timedOut,
			CreatedAt:           time.Now().UTC(),
		}
		if !timedOut {
			record.Segments = s.contextManager.LastSegments()
		}
		m.enqueue("save_transcript", func(ctx context.Context) error {
			return m.transcripts.Create(ctx, record)
		})
	}
	return nil
}

func (s *Session) send(msg any) error {
	if err := s.conn.Send(msg); err != nil {
		return fmt.Errorf("send to client: %w", err)
	}
	return nil
}
