package http

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizbee-service/internal/domain"
	"quizbee-service/internal/events"
)

const feedBuffer = 32

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventFeed streams lifecycle events to websocket clients. It is a bus
// observer: slow clients drop events instead of blocking Publish.
type EventFeed struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	send  chan outboundMessage
	kinds map[domain.EventKind]bool
}

func (c *feedClient) wants(kind domain.EventKind) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

func NewEventFeed(log *zap.Logger) *EventFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventFeed{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Register subscribes the feed to all kinds.
func (f *EventFeed) Register(bus *events.Bus) {
	for _, kind := range events.AllKinds {
		bus.Subscribe(kind, "ws-feed", f.Handle)
	}
}

func (f *EventFeed) Handle(_ context.Context, event domain.Event) error {
	msg := outboundMessage{Type: string(event.Kind), Payload: event}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		if !c.wants(event.Kind) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			f.log.Warn("event feed client lagging, event dropped", zap.String("kind", string(event.Kind)))
		}
	}
	return nil
}

// ClientCount returns the number of connected feed clients.
func (f *EventFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeWS upgrades the request and streams events until the client goes away.
// ?kinds=quiz_completed,high_score_achieved narrows the stream.
func (f *EventFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	kinds, ok := parseKinds(r.URL.Query().Get("kinds"))
	if !ok {
		http.Error(w, "unknown event kind", http.StatusBadRequest)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &feedClient{send: make(chan outboundMessage, feedBuffer), kinds: kinds}
	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range client.send {
			if err := conn.WriteJSON(msg); err != nil {
				f.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	client.send <- outboundMessage{Type: "subscribed", Payload: map[string]any{"kinds": kindList(kinds)}}

	// The feed is one-way; reading only detects the client closing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	delete(f.clients, client)
	close(client.send)
	f.mu.Unlock()
	<-writerDone
}

func parseKinds(raw string) (map[domain.EventKind]bool, bool) {
	if raw == "" {
		return nil, true
	}
	known := make(map[domain.EventKind]bool, len(events.AllKinds))
	for _, k := range events.AllKinds {
		known[k] = true
	}
	out := make(map[domain.EventKind]bool)
	for _, part := range strings.Split(raw, ",") {
		kind := domain.EventKind(strings.TrimSpace(part))
		if !known[kind] {
			return nil, false
		}
		out[kind] = true
	}
	return out, true
}

func kindList(kinds map[domain.EventKind]bool) []domain.EventKind {
	if len(kinds) == 0 {
		return events.AllKinds
	}
	out := make([]domain.EventKind, 0, len(kinds))
	for _, k := range events.AllKinds {
		if kinds[k] {
			out = append(out, k)
		}
	}
	return out
}
