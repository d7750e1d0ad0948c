package provider

import (
	"log"
	"sync"
	"time"

	"github.com/nimbuside/nimbus/pkg/types"
)

// EventType identifies a lifecycle, file, terminal, or metrics event.
type EventType string

const (
	EventSandboxCreated    EventType = "sandbox:created"
	EventSandboxStarted    EventType = "sandbox:started"
	EventSandboxStopped    EventType = "sandbox:stopped"
	EventSandboxDeleted    EventType = "sandbox:deleted"
	EventSandboxError      EventType = "sandbox:error"
	EventSandboxMetrics    EventType = "sandbox:metrics"
	EventFileChanged       EventType = "file:changed"
	EventTerminalConnected EventType = "terminal:connected"
	EventTerminalClosed    EventType = "terminal:disconnected"
)

// Event is the tagged payload delivered to subscribers.
type Event struct {
	Type      EventType             `json:"type"`
	SandboxID string                `json:"sandboxID"`
	Provider  string                `json:"provider"`
	Timestamp time.Time             `json:"timestamp"`
	Path      string                `json:"path,omitempty"`    // file events
	Error     string                `json:"error,omitempty"`   // sandbox:error
	Metrics   *types.SandboxMetrics `json:"metrics,omitempty"` // sandbox:metrics
}

// Handler receives events. Delivery is best-effort: a panicking handler is
// recovered and logged, and does not block the remaining handlers.
type Handler func(Event)

// Subscription is the token returned by Subscribe, used to unsubscribe.
type Subscription uint64

const allEvents EventType = "*"

// Emitter is a multi-listener event channel keyed by event type.
// Providers are sources; the manager is a sink-and-relay.
type Emitter struct {
	mu       sync.RWMutex
	nextID   Subscription
	handlers map[EventType]map[Subscription]Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType]map[Subscription]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (e *Emitter) Subscribe(t EventType, h Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.handlers[t] == nil {
		e.handlers[t] = make(map[Subscription]Handler)
	}
	e.handlers[t][id] = h
	return id
}

// SubscribeAll registers a handler for every event type.
func (e *Emitter) SubscribeAll(h Handler) Subscription {
	return e.Subscribe(allEvents, h)
}

// Unsubscribe removes a previously registered handler.
func (e *Emitter) Unsubscribe(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.handlers {
		delete(m, sub)
	}
}

// Emit delivers an event to all handlers registered for its type and to
// wildcard handlers. A zero timestamp is filled in.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	var hs []Handler
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	for _, h := range e.handlers[allEvents] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	for _, h := range hs {
		deliver(h, ev)
	}
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler panic for %s: %v", ev.Type, r)
		}
	}()
	h(ev)
}
