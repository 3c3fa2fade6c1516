package service

import (
	"context"
	"log/slog"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: run notifications for whoever hosts the service
// ─────────────────────────────────────────────────────────────

// Event names.
const (
	EventRunStarted   = "etl:run-started"
	EventRunCompleted = "etl:run-completed"
	EventRunSkipped   = "etl:run-skipped"
)

// EventEmitter receives service notifications. The CLI logs them; the MCP
// server forwards completions to the client as log messages.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to slog at info level.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, event string, data any) {
	slog.InfoContext(ctx, "service: event", "event", event, "data", data)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Triggers emit from their own goroutines, so access is locked.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{Event: event, Data: data})
}

// Events returns a snapshot of the recorded events.
func (m *MockEmitter) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}

// Named returns the recorded events with the given name.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	var out []EmittedEvent
	for _, e := range m.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
