package types

import "time"

// SandboxMetrics holds point-in-time resource usage for a sandbox.
type SandboxMetrics struct {
	SandboxID     string    `json:"sandboxID"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryMB      float64   `json:"memoryMB"`
	StorageMB     float64   `json:"storageMB"`
	NetworkRxKB   float64   `json:"networkRxKB"`
	NetworkTxKB   float64   `json:"networkTxKB"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	Timestamp     time.Time `json:"timestamp"`
}
