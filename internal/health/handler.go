package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-stt/internal/streaming"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type StreamStats struct {
	ActiveSessions int  `json:"active_sessions"`
	QueueDepth     int  `json:"queue_depth"`
	WorkerRunning  bool `json:"worker_running"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Streams  StreamStats  `json:"streams"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionsResponse struct {
	Total    int                     `json:"total"`
	Sessions []streaming.SessionInfo `json:"sessions"`
}

type SessionSource interface {
	SessionCount() int
	ListSessions() []streaming.SessionInfo
	QueueDepth() int
}

type EnginePinger interface {
	Ping(ctx context.Context) error
}

type WorkerStatus interface {
	Running() bool
}

type Config struct {
	DB    *gorm.DB
	Redis *redis.Client
	// Engine is nil when the stub engine is in use.
	Engine           EnginePinger
	EngineHealthAddr string
	Sessions         SessionSource
	Worker           WorkerStatus
	Version          string
}

type Handler struct {
	db               *gorm.DB
	redis            *redis.Client
	engine           EnginePinger
	engineHealthAddr string
	sessions         SessionSource
	worker           WorkerStatus
	version          string
	startTime        time.Time

	totalRequests     uint64
	activeConnections int64
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		db:               cfg.DB,
		redis:            cfg.Redis,
		engine:           cfg.Engine,
		engineHealthAddr: cfg.EngineHealthAddr,
		sessions:         cfg.Sessions,
		worker:           cfg.Worker,
		version:          cfg.Version,
		startTime:        time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/sessions", h.Sessions)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// @Summary      Readiness probe
// @Description  Checks redis, the engine, the worker and, when configured, the database and the engine gRPC health endpoint
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	type check struct {
		name  string
		check func(context.Context) ComponentStatus
	}
	checks := []check{
		{"redis", h.checkRedis},
		{"engine", h.checkEngine},
		{"worker", h.checkWorker},
	}
	if h.db != nil {
		checks = append(checks, check{"database", h.checkDatabase})
	}
	if h.engineHealthAddr != "" {
		checks = append(checks, check{"engine_grpc", h.checkEngineGRPC})
	}

	wg.Add(len(checks))
	for _, c := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(c.name, c.check)
	}
	wg.Wait()

	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	streams := StreamStats{}
	if h.sessions != nil {
		streams.ActiveSessions = h.sessions.SessionCount()
		streams.QueueDepth = h.sessions.QueueDepth()
	}
	if h.worker != nil {
		streams.WorkerRunning = h.worker.Running()
	}

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Streams: streams,
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

// @Summary      Live sessions
// @Description  Lists the sessions connected to this instance
// @Tags         health
// @Produce      json
// @Success      200  {object}  SessionsResponse
// @Router       /health/sessions [get]
func (h *Handler) Sessions(c echo.Context) error {
	sessions := []streaming.SessionInfo{}
	if h.sessions != nil {
		sessions = h.sessions.ListSessions()
	}
	return c.JSON(http.StatusOK, SessionsResponse{
		Total:    len(sessions),
		Sessions: sessions,
	})
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		return unhealthy(start, "failed to get underlying db")
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy(start, "ping failed")
	}

	return ComponentStatus{
		Status:    h.evaluateDBStats(sqlDB.Stats()),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) evaluateDBStats(stats sql.DBStats) Status {
	if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.redis == nil {
		return unhealthy(start, "redis not configured")
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		return unhealthy(start, "ping failed")
	}
	return healthy(start)
}

func (h *Handler) checkEngine(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.engine == nil {
		return healthy(start)
	}
	if err := h.engine.Ping(ctx); err != nil {
		return unhealthy(start, "engine ping failed")
	}
	return healthy(start)
}

func (h *Handler) checkEngineGRPC(ctx context.Context) ComponentStatus {
	start := time.Now()
	conn, err := grpc.NewClient(h.engineHealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return unhealthy(start, "dial failed")
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return unhealthy(start, "health check failed")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     resp.GetStatus().String(),
		}
	}
	return healthy(start)
}

func (h *Handler) checkWorker(context.Context) ComponentStatus {
	start := time.Now()
	if h.worker == nil || !h.worker.Running() {
		return unhealthy(start, "transcription worker not running")
	}
	return healthy(start)
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	criticalComponents := []string{"redis", "engine", "worker"}

	for _, name := range criticalComponents {
		if status, ok := components[name]; ok && status.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, status := range components {
		if status.Status == StatusUnhealthy {
			hasUnhealthy = true
		}
		if status.Status == StatusDegraded {
			hasDegraded = true
		}
	}

	if hasUnhealthy || hasDegraded {
		return StatusDegraded
	}

	return StatusHealthy
}

func healthy(start time.Time) ComponentStatus {
	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func unhealthy(start time.Time, msg string) ComponentStatus {
	return ComponentStatus{
		Status:    StatusUnhealthy,
		LatencyMs: time.Since(start).Milliseconds(),
		Error:     msg,
	}
}
