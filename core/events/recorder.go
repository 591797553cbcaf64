package events

import (
	"sync"

	"ddbox/core/types"
)

// Event is anything emitted by a contract engine during an invocation.
type Event interface {
	EventType() string
}

// Emitter receives engine events.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines default to it.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Payload is implemented by events that can expose their generic
// representation.
type Payload interface {
	Event() *types.Event
}

// Recorder buffers emitted events so that a host can publish them only once
// the surrounding invocation commits.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns the generic payloads of all buffered events in emission order.
// Events without a generic payload are reported by type only.
func (r *Recorder) Events() []types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, 0, len(r.events))
	for _, evt := range r.events {
		if p, ok := evt.(Payload); ok && p.Event() != nil {
			out = append(out, *p.Event())
			continue
		}
		out = append(out, types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
	}
	return out
}

// Reset drops every buffered event.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
