package runloop

import "testing"

func TestEmitterDeliversEvents(t *testing.T) {
	e := NewEmitter(4)
	e.Emit("k", EventIterationStart, map[string]interface{}{"iteration": 1})
	e.Close()

	var got []LoopEvent
	for ev := range e.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Kind != EventIterationStart || got[0].LoopKey != "k" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEmitter(2)
	for i := 0; i < 10; i++ {
		e.Emit("k", EventWarning, nil) // must never block
	}
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 2 {
		t.Errorf("expected buffer-sized delivery, got %d", count)
	}
}

func TestEmitterEmitAfterClose(t *testing.T) {
	e := NewEmitter(2)
	e.Close()
	e.Emit("k", EventWarning, nil) // must not panic
	e.Close()                      // idempotent
}
