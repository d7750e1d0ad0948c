package types

import "time"

// ExecOptions is the request body for running a command.
type ExecOptions struct {
	WorkingDir string            `json:"cwd,omitempty"`
	Timeout    int               `json:"timeout,omitempty"` // seconds, default 60
	Env        map[string]string `json:"envs,omitempty"`
}

// ExecutionResult is the outcome of a completed command invocation.
// A non-zero exit code (or a timeout, reported as exit code 124) is a
// successful invocation with Success=false, never an error.
type ExecutionResult struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Error     string        `json:"error,omitempty"`
	ExitCode  int           `json:"exitCode"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// LogEntry is one line of a sandbox's command history.
type LogEntry struct {
	Command   string    `json:"command"`
	ExitCode  int       `json:"exitCode"`
	Duration  int       `json:"durationMs"`
	Timestamp time.Time `json:"timestamp"`
}

// LogOptions narrows GetLogs results.
type LogOptions struct {
	Limit int `json:"limit,omitempty"` // default 100
}
