// Package runner adapts a fleet of remote runner daemons to the Provider
// contract over NATS request-reply. Each operation is one request on a
// runner.sandbox.<op> subject; the daemon that owns the sandbox answers.
// Runners also publish lifecycle events on runner.events.>, which this
// adapter re-emits locally.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

const subjectPrefix = "runner.sandbox."

// Options configures the runner adapter.
type Options struct {
	NATSURL string
	Timeout time.Duration // per-request, default 30s
}

// Runner is a Provider backed by remote runner daemons over NATS.
type Runner struct {
	nc      *nats.Conn
	timeout time.Duration
	emitter *provider.Emitter
	evSub   *nats.Subscription
}

// request is the envelope for every runner call.
type request struct {
	SandboxID string          `json:"sandboxID,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// response is the envelope for every runner reply. Found=false on lookup
// subjects means the sandbox is unknown fleet-wide.
type response struct {
	OK     bool            `json:"ok"`
	Found  bool            `json:"found"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// New connects to NATS. The connection retries forever in the background,
// so a runner fleet coming up late is tolerated.
func New(opts Options) (*Runner, error) {
	if opts.NATSURL == "" {
		return nil, fmt.Errorf("runner: NATS URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	nc, err := nats.Connect(opts.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("runner: connect to NATS: %w", err)
	}
	return &Runner{
		nc:      nc,
		timeout: opts.Timeout,
		emitter: provider.NewEmitter(),
	}, nil
}

func (r *Runner) Name() string { return "runner" }

func (r *Runner) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsFileSystem:      true,
		SupportsTerminal:        false,
		SupportsPortForwarding:  false,
		SupportsSnapshots:       true,
		SupportsResourceScaling: false,
		MaxConcurrentSessions:   200,
		SupportedRuntimes:       []string{"node", "python"},
	}
}

func (r *Runner) Events() *provider.Emitter { return r.emitter }

func (r *Runner) Info(ctx context.Context) (*types.ProviderInfo, error) {
	var info types.ProviderInfo
	if err := r.call(ctx, "info", request{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *Runner) HealthCheck(ctx context.Context) error {
	return r.call(ctx, "health", request{}, nil)
}

// Initialize subscribes to the fleet's event subjects and re-emits them
// through the adapter's emitter so the manager relay sees them.
func (r *Runner) Initialize(_ context.Context) error {
	sub, err := r.nc.Subscribe("runner.events.>", func(msg *nats.Msg) {
		var ev provider.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ev.Provider = r.Name()
		r.emitter.Emit(ev)
	})
	if err != nil {
		return fmt.Errorf("runner: subscribe to events: %w", err)
	}
	r.evSub = sub
	return nil
}

func (r *Runner) Close() error {
	if r.evSub != nil {
		r.evSub.Unsubscribe()
	}
	r.nc.Close()
	return nil
}

func (r *Runner) CreateSandbox(ctx context.Context, opts types.CreateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := r.callWith(ctx, "create", "", opts, &sb); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrCreationFailed, err)
	}
	return &sb, nil
}

// GetSandbox returns (nil, nil) when no runner owns the ID.
func (r *Runner) GetSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	found, err := r.lookup(ctx, "get", id, &sb)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &sb, nil
}

func (r *Runner) ListSandboxes(ctx context.Context, filter types.ListFilter) ([]types.Sandbox, error) {
	var out []types.Sandbox
	if err := r.callWith(ctx, "list", "", filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) UpdateSandbox(ctx context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := r.callWith(ctx, "update", id, opts, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (r *Runner) StartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := r.callWith(ctx, "start", id, nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (r *Runner) StopSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := r.callWith(ctx, "stop", id, nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (r *Runner) RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := r.callWith(ctx, "restart", id, nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (r *Runner) DeleteSandbox(ctx context.Context, id string) error {
	found, err := r.lookup(ctx, "delete", id, nil)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	return nil
}

func (r *Runner) ExecuteCommand(ctx context.Context, id, command string, opts types.ExecOptions) (*types.ExecutionResult, error) {
	payload := struct {
		Command string            `json:"command"`
		Options types.ExecOptions `json:"options"`
	}{command, opts}
	var res types.ExecutionResult
	if err := r.callWith(ctx, "exec", id, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Runner) ListFiles(ctx context.Context, id, path string) ([]types.FileEntry, error) {
	var out []types.FileEntry
	if err := r.callWith(ctx, "fs.list", id, pathPayload{path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) ReadFile(ctx context.Context, id, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := r.callWith(ctx, "fs.read", id, pathPayload{path}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (r *Runner) WriteFile(ctx context.Context, id, path, content string) error {
	payload := struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}{path, content}
	return r.callWith(ctx, "fs.write", id, payload, nil)
}

func (r *Runner) DeleteFile(ctx context.Context, id, path string) error {
	return r.callWith(ctx, "fs.delete", id, pathPayload{path}, nil)
}

func (r *Runner) CreateDirectory(ctx context.Context, id, path string) error {
	return r.callWith(ctx, "fs.mkdir", id, pathPayload{path}, nil)
}

func (r *Runner) UploadFiles(ctx context.Context, id string, files []types.FileUpload) error {
	payload := struct {
		Files []types.FileUpload `json:"files"`
	}{files}
	return r.callWith(ctx, "fs.upload", id, payload, nil)
}

func (r *Runner) DownloadFiles(ctx context.Context, id string, paths []string) (map[string]string, error) {
	payload := struct {
		Paths []string `json:"paths"`
	}{paths}
	var out map[string]string
	if err := r.callWith(ctx, "fs.download", id, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) CreateSnapshot(ctx context.Context, id, name string) (*types.Snapshot, error) {
	payload := struct {
		Name string `json:"name"`
	}{name}
	var snap types.Snapshot
	if err := r.callWith(ctx, "snapshot.create", id, payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *Runner) RestoreSnapshot(ctx context.Context, id, snapshotID string, opts types.RestoreOptions) error {
	payload := struct {
		SnapshotID string               `json:"snapshotID"`
		Options    types.RestoreOptions `json:"options"`
	}{snapshotID, opts}
	return r.callWith(ctx, "snapshot.restore", id, payload, nil)
}

// GetMetrics returns (nil, nil) when the owning runner has no sample.
func (r *Runner) GetMetrics(ctx context.Context, id string) (*types.SandboxMetrics, error) {
	var m types.SandboxMetrics
	found, err := r.lookup(ctx, "metrics", id, &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

func (r *Runner) GetLogs(ctx context.Context, id string, opts types.LogOptions) ([]types.LogEntry, error) {
	var out []types.LogEntry
	if err := r.callWith(ctx, "logs", id, opts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Runner) ConnectTerminal(_ context.Context, _ string, _ types.TerminalOptions) (provider.TerminalSession, error) {
	return nil, provider.Unsupported(r.Name(), "connectTerminal")
}

func (r *Runner) ForwardPort(_ context.Context, _ string, _ int) (*types.PortForward, error) {
	return nil, provider.Unsupported(r.Name(), "forwardPort")
}

type pathPayload struct {
	Path string `json:"path"`
}

func (r *Runner) callWith(ctx context.Context, op, sandboxID string, payload, out interface{}) error {
	req := request{SandboxID: sandboxID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("runner: encode %s payload: %w", op, err)
		}
		req.Payload = data
	}
	return r.call(ctx, op, req, out)
}

// lookup is call for subjects where the fleet may simply not know the
// sandbox; it reports found instead of failing.
func (r *Runner) lookup(ctx context.Context, op, sandboxID string, out interface{}) (bool, error) {
	resp, err := r.roundTrip(ctx, op, request{SandboxID: sandboxID})
	if err != nil {
		return false, err
	}
	if !resp.OK {
		return false, fmt.Errorf("runner %s: %s", op, resp.Error)
	}
	if !resp.Found {
		return false, nil
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return false, fmt.Errorf("runner: decode %s result: %w", op, err)
		}
	}
	return true, nil
}

func (r *Runner) call(ctx context.Context, op string, req request, out interface{}) error {
	resp, err := r.roundTrip(ctx, op, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("runner %s: %s", op, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("runner: decode %s result: %w", op, err)
		}
	}
	return nil
}

func (r *Runner) roundTrip(ctx context.Context, op string, req request) (*response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.nc.RequestWithContext(ctx, subjectPrefix+op, data)
	if err != nil {
		return nil, fmt.Errorf("%w: runner %s: %w", provider.ErrProviderUnavailable, op, err)
	}
	var resp response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("runner: decode %s reply: %w", op, err)
	}
	return &resp, nil
}
