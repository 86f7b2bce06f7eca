package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/labstack/echo/v4"
)

const maxMetricsHours = 7 * 24

type ListResponse struct {
	Sessions []*Session `json:"sessions"`
	Count    int        `json:"count"`
}

type StatsResponse struct {
	Hours   int        `json:"hours"`
	Metrics []*Metrics `json:"metrics"`
}

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions", h.ListActive)
	g.GET("/sessions/:id", h.GetSession)
	g.GET("/stats", h.GetMetrics)
}

// @Summary      List active sessions
// @Description  Returns the session records currently marked active
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  ListResponse
// @Failure      500  {object}  shared.APIError
// @Router       /v1/sessions [get]
func (h *Handler) ListActive(c echo.Context) error {
	sessions, err := h.store.GetActiveSessions(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		return shared.InternalError("list_failed", "failed to list sessions")
	}
	if sessions == nil {
		sessions = []*Session{}
	}
	return c.JSON(http.StatusOK, ListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// @Summary      Get session
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  Session
// @Failure      404  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /v1/sessions/{id} [get]
func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.store.GetSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("session_not_found", "session not found")
	}
	if err != nil {
		h.logger.Error("failed to get session", "error", err)
		return shared.InternalError("get_failed", "failed to get session")
	}
	return c.JSON(http.StatusOK, sess)
}

// @Summary      Hourly counters
// @Description  Returns per-hour session, job and transcript counters for the last N hours
// @Tags         sessions
// @Produce      json
// @Param        hours  query     int  false  "Hours to include (1-168)"  default(24)
// @Success      200    {object}  StatsResponse
// @Failure      400    {object}  shared.APIError
// @Failure      500    {object}  shared.APIError
// @Router       /v1/stats [get]
func (h *Handler) GetMetrics(c echo.Context) error {
	hours := 24
	if raw := c.QueryParam("hours"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxMetricsHours {
			return shared.BadRequest("invalid_hours", "hours must be between 1 and 168")
		}
		hours = v
	}

	metrics, err := h.store.GetMetrics(c.Request().Context(), hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err)
		return shared.InternalError("metrics_failed", "failed to get metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Hours:   hours,
		Metrics: metrics,
	})
}
