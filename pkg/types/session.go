package types

import "time"

// Session is the manager's bookkeeping record linking a sandbox to its
// owning provider. One session exists per live sandbox created through
// the manager.
type Session struct {
	ID           string            `json:"sessionID"`
	SandboxID    string            `json:"sandboxID"`
	Provider     string            `json:"provider"`
	UserID       string            `json:"userID,omitempty"`
	ProjectID    string            `json:"projectID,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SessionFilter narrows session listings. Zero value matches everything.
type SessionFilter struct {
	Provider  string `json:"provider,omitempty"`
	UserID    string `json:"userID,omitempty"`
	ProjectID string `json:"projectID,omitempty"`
}
