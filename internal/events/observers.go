package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quizbee-service/internal/domain"
)

// AllKinds lists the event kinds emitted by the quiz service.
var AllKinds = []domain.EventKind{
	domain.EventSessionStarted,
	domain.EventQuizCompleted,
	domain.EventHighScoreAchieved,
}

// LoggingObserver writes every lifecycle event to the structured log.
type LoggingObserver struct {
	log *zap.Logger
}

func NewLoggingObserver(log *zap.Logger) *LoggingObserver {
	return &LoggingObserver{log: log.Named("events")}
}

// Register subscribes the observer to all kinds.
func (o *LoggingObserver) Register(bus *Bus) {
	for _, kind := range AllKinds {
		bus.Subscribe(kind, "logging", o.Handle)
	}
}

func (o *LoggingObserver) Handle(_ context.Context, event domain.Event) error {
	fields := make([]zap.Field, 0, len(event.Payload)+1)
	fields = append(fields, zap.Time("at", event.Timestamp))
	for k, v := range event.Payload {
		fields = append(fields, zap.Any(k, v))
	}
	switch event.Kind {
	case domain.EventHighScoreAchieved:
		o.log.Info("high score achieved", fields...)
	case domain.EventQuizCompleted:
		o.log.Info("quiz completed", fields...)
	default:
		o.log.Info(string(event.Kind), fields...)
	}
	return nil
}

// Counters keeps in-process tallies of lifecycle events.
type Counters struct {
	mu         sync.Mutex
	started    map[domain.Mode]int
	completed  map[domain.Mode]int
	highScores int
}

// CounterSnapshot is a copy of the current tallies.
type CounterSnapshot struct {
	Started    map[domain.Mode]int `json:"started"`
	Completed  map[domain.Mode]int `json:"completed"`
	HighScores int                 `json:"highScores"`
}

func NewCounters() *Counters {
	return &Counters{
		started:   make(map[domain.Mode]int),
		completed: make(map[domain.Mode]int),
	}
}

func (c *Counters) Register(bus *Bus) {
	for _, kind := range AllKinds {
		bus.Subscribe(kind, "counters", c.Handle)
	}
}

func (c *Counters) Handle(_ context.Context, event domain.Event) error {
	mode := payloadMode(event)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch event.Kind {
	case domain.EventSessionStarted:
		c.started[mode]++
	case domain.EventQuizCompleted:
		c.completed[mode]++
	case domain.EventHighScoreAchieved:
		c.highScores++
	}
	return nil
}

func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := CounterSnapshot{
		Started:    make(map[domain.Mode]int, len(c.started)),
		Completed:  make(map[domain.Mode]int, len(c.completed)),
		HighScores: c.highScores,
	}
	for k, v := range c.started {
		out.Started[k] = v
	}
	for k, v := range c.completed {
		out.Completed[k] = v
	}
	return out
}

func payloadMode(event domain.Event) domain.Mode {
	switch v := event.Payload["mode"].(type) {
	case domain.Mode:
		return v
	case string:
		return domain.Mode(v)
	}
	return ""
}
