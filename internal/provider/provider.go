package provider

import (
	"context"
	"io"

	"github.com/nimbuside/nimbus/pkg/types"
)

// TerminalSession is an interactive terminal attached to a sandbox.
// The WebSocket (or other) bridge that carries it to a UI lives outside
// this layer.
type TerminalSession interface {
	io.ReadWriteCloser
	Resize(cols, rows int) error
}

// Provider is the contract every sandbox backend implements. The manager
// is the only caller; it checks Capabilities before dispatching optional
// operations, so implementations of unsupported operations simply return
// an UnsupportedError.
//
// Lookup semantics: GetSandbox returns (nil, nil) for an unknown ID —
// errors are reserved for infrastructure failure. DeleteSandbox returns
// ErrSandboxNotFound for an unknown ID. ExecuteCommand returns an error
// only when the sandbox is unreachable; an ordinary non-zero exit or
// timeout is a successful ExecutionResult with Success=false.
type Provider interface {
	Name() string
	Capabilities() types.Capabilities
	Info(ctx context.Context) (*types.ProviderInfo, error)
	HealthCheck(ctx context.Context) error

	// Initialize prepares the backend (e.g. rehydrates persisted state).
	// Close releases background resources. Both are called once by the
	// process that owns the registry.
	Initialize(ctx context.Context) error
	Close() error

	// Lifecycle
	CreateSandbox(ctx context.Context, opts types.CreateOptions) (*types.Sandbox, error)
	GetSandbox(ctx context.Context, id string) (*types.Sandbox, error)
	ListSandboxes(ctx context.Context, filter types.ListFilter) ([]types.Sandbox, error)
	UpdateSandbox(ctx context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error)
	StartSandbox(ctx context.Context, id string) (*types.Sandbox, error)
	StopSandbox(ctx context.Context, id string) (*types.Sandbox, error)
	RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error)
	DeleteSandbox(ctx context.Context, id string) error

	// Execution
	ExecuteCommand(ctx context.Context, id, command string, opts types.ExecOptions) (*types.ExecutionResult, error)

	// Filesystem. Paths are sandbox-relative, never host paths.
	ListFiles(ctx context.Context, id, path string) ([]types.FileEntry, error)
	ReadFile(ctx context.Context, id, path string) (string, error)
	WriteFile(ctx context.Context, id, path, content string) error
	DeleteFile(ctx context.Context, id, path string) error
	CreateDirectory(ctx context.Context, id, path string) error
	UploadFiles(ctx context.Context, id string, files []types.FileUpload) error
	DownloadFiles(ctx context.Context, id string, paths []string) (map[string]string, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, id, name string) (*types.Snapshot, error)
	RestoreSnapshot(ctx context.Context, id, snapshotID string, opts types.RestoreOptions) error

	// Monitoring. GetMetrics returns (nil, nil) when usage is unmeasurable.
	GetMetrics(ctx context.Context, id string) (*types.SandboxMetrics, error)
	GetLogs(ctx context.Context, id string, opts types.LogOptions) ([]types.LogEntry, error)

	// Capability-gated extras
	ConnectTerminal(ctx context.Context, id string, opts types.TerminalOptions) (TerminalSession, error)
	ForwardPort(ctx context.Context, id string, port int) (*types.PortForward, error)

	// Events exposes the provider's event emitter. The manager subscribes
	// once at startup and relays onto its own surface.
	Events() *Emitter
}
