package history

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/labstack/echo/v4"
)

type ListResponse struct {
	SessionID   string        `json:"session_id"`
	Transcripts []*Transcript `json:"transcripts"`
}

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions/:id/transcripts", h.List)
}

// @Summary      List session transcripts
// @Description  Returns the finalized transcripts of a session, oldest first
// @Tags         transcripts
// @Produce      json
// @Param        id     path      string  true   "Session ID"
// @Param        limit  query     int     false  "Maximum number of transcripts (max 100)"
// @Success      200    {object}  ListResponse
// @Failure      400    {object}  shared.APIError
// @Failure      500    {object}  shared.APIError
// @Failure      503    {object}  shared.APIError
// @Router       /v1/sessions/{id}/transcripts [get]
func (h *Handler) List(c echo.Context) error {
	if h.store == nil {
		return shared.ServiceUnavailable("history_disabled", "transcript history is not configured")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return shared.BadRequest("invalid_limit", "limit must be a positive integer")
		}
		limit = v
	}

	sessionID := c.Param("id")
	transcripts, err := h.store.ListBySession(c.Request().Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to list transcripts", "session_id", sessionID, "error", err)
		return shared.InternalError("list_failed", "failed to list transcripts")
	}
	if transcripts == nil {
		transcripts = []*Transcript{}
	}

	return c.JSON(http.StatusOK, ListResponse{
		SessionID:   sessionID,
		Transcripts: transcripts,
	})
}
