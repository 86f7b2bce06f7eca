package streaming

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func newTestServer(t *testing.T, h *harness) *httptest.Server {
	t.Helper()
	e := echo.New()
	NewHandler(h.manager, 16000, testLogger()).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_RejectsBadSampleRate(t *testing.T) {
	h := newHarness(t, testConfig(), textEngine("x", "y"))
	srv := newTestServer(t, h)

	for _, q := range []string{"abc", "100", "96000"} {
		resp, err := http.Get(srv.URL + "/ws/stt?sample_rate=" + q)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("sample_rate=%s: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestHandler_StreamRoundTrip(t *testing.T) {
	h := newHarness(t, testConfig(), textEngine("streaming works", "streaming works."))
	srv := newTestServer(t, h)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stt?sample_rate=8000"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	audio := base64.StdEncoding.EncodeToString(make([]byte, 8000))
	if err := ws.WriteJSON(map[string]any{"audio": audio}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	var interim TranscriptMessage
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := ws.ReadJSON(&interim); err != nil {
		t.Fatalf("read interim: %v", err)
	}
	if interim.Transcript != "streaming works" || interim.IsFinal {
		t.Errorf("unexpected interim %+v", interim)
	}

	if err := ws.WriteJSON(map[string]any{"audio": "", "end": true}); err != nil {
		t.Fatalf("write end: %v", err)
	}

	var final TranscriptMessage
	if err := ws.ReadJSON(&final); err != nil {
		t.Fatalf("read final: %v", err)
	}
	if !final.IsFinal || final.Transcript != "streaming works." {
		t.Errorf("unexpected final %+v", final)
	}

	infos := h.manager.ListSessions()
	if len(infos) != 1 || infos[0].SampleRate != 8000 {
		t.Errorf("unexpected sessions %+v", infos)
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	eventually(t, 2*time.Second, func() bool { return h.manager.SessionCount() == 0 }, "session closed after client close")
}
