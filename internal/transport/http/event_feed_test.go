package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type feedMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func TestEventFeedStreamsLifecycleEvents(t *testing.T) {
	feed := NewEventFeed(nil)
	ts := newTestServer(t, RouterOptions{Feed: feed})
	server := httptest.NewServer(ts.router)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect subscribed event first.
	readFeed(t, conn, "subscribed")
	if feed.ClientCount() != 1 {
		t.Fatalf("expected one feed client, got %d", feed.ClientCount())
	}

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"mode": "elimination"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d", rec.Code)
	}

	msg := readFeed(t, conn, "session_started")
	payload, _ := msg.Payload["payload"].(map[string]any)
	if payload["mode"] != "elimination" {
		t.Fatalf("unexpected event payload: %+v", msg.Payload)
	}
}

func TestEventFeedFiltersKinds(t *testing.T) {
	feed := NewEventFeed(nil)
	ts := newTestServer(t, RouterOptions{Feed: feed})
	server := httptest.NewServer(ts.router)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events?kinds=quiz_completed"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	subscribed := readFeed(t, conn, "subscribed")
	kinds, _ := subscribed.Payload["kinds"].([]any)
	if len(kinds) != 1 || kinds[0] != "quiz_completed" {
		t.Fatalf("expected subscribed kinds [quiz_completed], got %+v", subscribed.Payload)
	}

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]any{"mode": "elimination"})
	view := decode[struct {
		ID string `json:"id"`
	}](t, rec)
	rec = ts.do(t, http.MethodPost, "/api/sessions/"+view.ID+"/submit", map[string]any{"answers": map[string]any{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", rec.Code)
	}

	// session_started is filtered out, so the next frame is the completion.
	readFeed(t, conn, "quiz_completed")
}

func TestEventFeedRejectsUnknownKind(t *testing.T) {
	feed := NewEventFeed(nil)
	rec := httptest.NewRecorder()
	feed.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws/events?kinds=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func readFeed(t *testing.T, conn *websocket.Conn, expect string) feedMessage {
	t.Helper()
	var msg feedMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg
}
