package provider

import (
	"testing"
)

func TestEmitterSubscribe(t *testing.T) {
	e := NewEmitter()

	var got []Event
	e.Subscribe(EventSandboxCreated, func(ev Event) {
		got = append(got, ev)
	})

	e.Emit(Event{Type: EventSandboxCreated, SandboxID: "sb-1", Provider: "local"})
	e.Emit(Event{Type: EventSandboxDeleted, SandboxID: "sb-1", Provider: "local"})

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].SandboxID != "sb-1" {
		t.Errorf("expected sandbox sb-1, got %s", got[0].SandboxID)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter()

	count := 0
	sub := e.Subscribe(EventFileChanged, func(Event) { count++ })

	e.Emit(Event{Type: EventFileChanged, Path: "a.txt"})
	e.Unsubscribe(sub)
	e.Emit(Event{Type: EventFileChanged, Path: "b.txt"})

	if count != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestEmitterSubscribeAll(t *testing.T) {
	e := NewEmitter()

	var seen []EventType
	e.SubscribeAll(func(ev Event) { seen = append(seen, ev.Type) })

	e.Emit(Event{Type: EventSandboxStarted})
	e.Emit(Event{Type: EventSandboxMetrics})
	e.Emit(Event{Type: EventTerminalConnected})

	if len(seen) != 3 {
		t.Fatalf("expected 3 events, got %d", len(seen))
	}
}

func TestEmitterPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	e := NewEmitter()

	e.Subscribe(EventSandboxError, func(Event) { panic("bad listener") })
	delivered := false
	e.Subscribe(EventSandboxError, func(Event) { delivered = true })

	e.Emit(Event{Type: EventSandboxError, SandboxID: "sb-1"})

	if !delivered {
		t.Error("expected second handler to run despite panic in first")
	}
}

func TestEmitterMultipleListeners(t *testing.T) {
	e := NewEmitter()

	count := 0
	for i := 0; i < 3; i++ {
		e.Subscribe(EventSandboxStopped, func(Event) { count++ })
	}

	e.Emit(Event{Type: EventSandboxStopped})

	if count != 3 {
		t.Errorf("expected 3 deliveries, got %d", count)
	}
}
