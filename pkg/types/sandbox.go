package types

import "time"

// SandboxStatus represents the current state of a sandbox.
type SandboxStatus string

const (
	SandboxStatusCreating SandboxStatus = "creating"
	SandboxStatusRunning  SandboxStatus = "running"
	SandboxStatusStopped  SandboxStatus = "stopped"
	SandboxStatusDeleted  SandboxStatus = "deleted"
	SandboxStatusError    SandboxStatus = "error"
)

// Resources describes the compute resources allocated to a sandbox.
type Resources struct {
	CPU       int `json:"cpu"`       // vCPUs
	MemoryMB  int `json:"memoryMB"`
	StorageMB int `json:"storageMB"`
}

// NetworkInfo describes a sandbox's network configuration.
type NetworkInfo struct {
	Ports     []int  `json:"ports,omitempty"`
	PublicURL string `json:"publicUrl,omitempty"`
}

// Sandbox represents a sandbox environment owned by a provider.
// IDs are unique within a provider, not globally.
type Sandbox struct {
	ID           string            `json:"sandboxID"`
	Name         string            `json:"name"`
	Provider     string            `json:"provider"`
	Status       SandboxStatus     `json:"status"`
	Template     string            `json:"template,omitempty"`
	Runtime      string            `json:"runtime,omitempty"`
	Resources    Resources         `json:"resources"`
	Network      NetworkInfo       `json:"network"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
	ExpiresAt    *time.Time        `json:"expiresAt,omitempty"`
}

// CreateOptions is the request for creating a sandbox.
type CreateOptions struct {
	Name      string            `json:"name,omitempty"`
	Template  string            `json:"template,omitempty"`
	Runtime   string            `json:"runtime,omitempty"`
	Resources Resources         `json:"resources,omitempty"`
	Ports     []int             `json:"ports,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	UserID    string            `json:"userID,omitempty"`
	ProjectID string            `json:"projectID,omitempty"`
}

// UpdateOptions carries the mutable fields of a sandbox.
type UpdateOptions struct {
	Name      string            `json:"name,omitempty"`
	Resources *Resources        `json:"resources,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ListFilter narrows ListSandboxes results. Zero value matches everything.
type ListFilter struct {
	Status    SandboxStatus `json:"status,omitempty"`
	Template  string        `json:"template,omitempty"`
	UserID    string        `json:"userID,omitempty"`
	ProjectID string        `json:"projectID,omitempty"`
}

// Snapshot identifies a stored point-in-time copy of a sandbox filesystem.
type Snapshot struct {
	SnapshotID string    `json:"snapshotID"`
	SandboxID  string    `json:"sandboxID"`
	Name       string    `json:"name,omitempty"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RestoreOptions controls snapshot restoration.
type RestoreOptions struct {
	// PreserveFiles are sandbox-relative paths captured before the wipe
	// and re-applied after the snapshot contents are copied back.
	PreserveFiles []string `json:"preserveFiles,omitempty"`
	RestartAfter  bool     `json:"restartAfter,omitempty"`
}

// ProviderInfo describes a provider backend.
type ProviderInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Region  string `json:"region,omitempty"`
}
