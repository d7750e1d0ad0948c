package types

// Capabilities are the static, provider-declared feature flags.
// The manager checks these before dispatching an optional operation;
// a provider never sees a call it did not advertise.
type Capabilities struct {
	SupportsFileSystem      bool     `json:"supportsFileSystem"`
	SupportsTerminal        bool     `json:"supportsTerminal"`
	SupportsPortForwarding  bool     `json:"supportsPortForwarding"`
	SupportsSnapshots       bool     `json:"supportsSnapshots"`
	SupportsResourceScaling bool     `json:"supportsResourceScaling"`
	MaxConcurrentSessions   int      `json:"maxConcurrentSessions"`
	SupportedRuntimes       []string `json:"supportedRuntimes"`
}

// PortForward describes an established port forward.
type PortForward struct {
	SandboxID string `json:"sandboxID"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
}

// TerminalOptions configures an interactive terminal session.
type TerminalOptions struct {
	Cols  int    `json:"cols,omitempty"`  // default 80
	Rows  int    `json:"rows,omitempty"`  // default 24
	Shell string `json:"shell,omitempty"` // default /bin/bash
}
