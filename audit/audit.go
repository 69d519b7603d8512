// Package audit defines the audit sink contract shared by the directory
// client and the table-sync engine, plus the stock implementations.
package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one structured audit record. Mutating operations emit exactly one
// event through the configured Sink.
type Event struct {
	ID     uuid.UUID
	Time   time.Time
	Actor  string
	Op     string
	Target string
	Fields map[string]string
}

// Sink receives audit events. Implementations must not block on slow
// transports; Record is called synchronously on the operation's call stack.
type Sink interface {
	Record(Event)
}

// NewEvent stamps a fresh event with an id and the current time.
func NewEvent(actor, op, target string) Event {
	return Event{
		ID:     uuid.New(),
		Time:   time.Now().UTC(),
		Actor:  actor,
		Op:     op,
		Target: target,
		Fields: make(map[string]string),
	}
}

// ZapSink writes each event as a single structured log line.
type ZapSink struct {
	log *zap.SugaredLogger
}

func NewZapSink(log *zap.SugaredLogger) *ZapSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ZapSink{log: log}
}

func (s *ZapSink) Record(e Event) {
	kv := []interface{}{
		"id", e.ID.String(),
		"time", e.Time.Format(time.RFC3339),
		"actor", e.Actor,
		"op", e.Op,
		"target", e.Target,
	}
	for k, v := range e.Fields {
		kv = append(kv, k, v)
	}
	s.log.Infow("audit", kv...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}
