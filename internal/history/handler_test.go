package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestEcho(store *Store) *echo.Echo {
	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := echo.New()
	h.RegisterRoutes(e.Group("/v1"))
	return e
}

func TestHandler_List(t *testing.T) {
	store := setupTestStore(t)
	_ = store.Create(context.Background(), &Transcript{SessionID: "s1", Text: "hello"})
	e := newTestEcho(store)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/transcripts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		SessionID   string        `json:"session_id"`
		Transcripts []*Transcript `json:"transcripts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "s1" || len(body.Transcripts) != 1 || body.Transcripts[0].Text != "hello" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_ListErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  bool
		query  string
		status int
	}{
		{"disabled", false, "", http.StatusServiceUnavailable},
		{"bad limit", true, "?limit=-1", http.StatusBadRequest},
		{"empty session", true, "?limit=5", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store *Store
			if tt.store {
				store = setupTestStore(t)
			}
			e := newTestEcho(store)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/none/transcripts"+tt.query, nil))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
