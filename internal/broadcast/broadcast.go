// Package broadcast delivers file-change notifications to UI clients.
// The orchestration core only emits into it; delivery is fire-and-forget.
package broadcast

import "time"

// ChangeType distinguishes creations/updates from deletions. Consumers
// upsert on "created", so updates reuse it.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeDeleted ChangeType = "deleted"
)

// Event is one file-change notification.
type Event struct {
	Type      ChangeType        `json:"type"`
	Path      string            `json:"path"`
	Content   string            `json:"content,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	SandboxID string            `json:"sandboxID"`
	ProjectID string            `json:"projectID,omitempty"`
	UserID    string            `json:"userID,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Broadcaster is the sink the manager notifies after successful writes
// and deletes. Implementations must not block request handling and must
// swallow their own failures.
type Broadcaster interface {
	Broadcast(ev Event)
}

// Nop discards all events. Used when no channel is configured.
type Nop struct{}

func (Nop) Broadcast(Event) {}
