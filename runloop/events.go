package runloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventLoopStart      EventKind = "loop_start"
	EventLoopEnd        EventKind = "loop_end"
	EventIterationStart EventKind = "iteration_start"
	EventIterationEnd   EventKind = "iteration_end"
	EventDecision       EventKind = "decision"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventForcedFinal    EventKind = "forced_final"
	EventRollback       EventKind = "rollback"
	EventWarning        EventKind = "warning"
	EventError          EventKind = "error"
)

// LoopEvent is a typed lifecycle notification. Events are advisory; the
// loop's correctness never depends on delivery.
type LoopEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	LoopKey   string                 `json:"loop_key"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Emitter delivers loop events to the host application via a buffered
// channel. Sends never block: when the buffer is full the event is
// dropped.
type Emitter struct {
	ch     chan LoopEvent
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{ch: make(chan LoopEvent, bufferSize)}
}

// Emit sends an event. If the emitter is closed or the buffer is full,
// the event is silently dropped.
func (e *Emitter) Emit(loopKey string, kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := LoopEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		LoopKey:   loopKey,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Buffer full; drop rather than block the loop.
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan LoopEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
