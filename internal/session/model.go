package session

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Counter names recorded per hour.
const (
	MetricSessions      = "sessions"
	MetricInterimJobs   = "interim_jobs"
	MetricFinalJobs     = "final_jobs"
	MetricTranscripts   = "transcripts"
	MetricFinals        = "finals"
	MetricKeepalives    = "keepalives"
	MetricFinalTimeouts = "final_timeouts"
)

type Session struct {
	ID           string     `json:"id"`
	RemoteAddr   string     `json:"remote_addr"`
	SampleRate   int        `json:"sample_rate"`
	Status       Status     `json:"status"`
	Utterances   int64      `json:"utterances"`
	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) RedisKey() string {
	return sessionKey(s.ID)
}

func sessionKey(id string) string {
	return "session:" + id
}

type Metrics struct {
	Date          string `json:"date"`
	Hour          int    `json:"hour"`
	Sessions      int64  `json:"sessions"`
	InterimJobs   int64  `json:"interim_jobs"`
	FinalJobs     int64  `json:"final_jobs"`
	Transcripts   int64  `json:"transcripts"`
	Finals        int64  `json:"finals"`
	Keepalives    int64  `json:"keepalives"`
	FinalTimeouts int64  `json:"final_timeouts"`
}

func MetricsRedisKey(date string, hour int) string {
	return "stt:metrics:" + date + ":" + strconv.Itoa(hour)
}
