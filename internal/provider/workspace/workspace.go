// Package workspace adapts a remote workspace service's HTTP API to the
// Provider contract. The service owns the actual machines; this adapter
// only translates calls and errors. Snapshots and terminals are not part
// of the remote API and are reported as unsupported.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// Options configures the remote workspace adapter.
type Options struct {
	APIURL string
	Token  string
}

// Workspace is a Provider backed by a remote workspace service.
type Workspace struct {
	baseURL string
	token   string
	client  *http.Client
	emitter *provider.Emitter
}

// New creates a workspace provider. The service URL is required.
func New(opts Options) (*Workspace, error) {
	if opts.APIURL == "" {
		return nil, fmt.Errorf("workspace: API URL is required")
	}
	return &Workspace{
		baseURL: strings.TrimRight(opts.APIURL, "/"),
		token:   opts.Token,
		client:  &http.Client{Timeout: 60 * time.Second},
		emitter: provider.NewEmitter(),
	}, nil
}

func (w *Workspace) Name() string { return "workspace" }

func (w *Workspace) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsFileSystem:      true,
		SupportsTerminal:        false,
		SupportsPortForwarding:  true,
		SupportsSnapshots:       false,
		SupportsResourceScaling: true,
		MaxConcurrentSessions:   500,
		SupportedRuntimes:       []string{"node", "python", "go", "static"},
	}
}

func (w *Workspace) Events() *provider.Emitter { return w.emitter }

func (w *Workspace) Info(ctx context.Context) (*types.ProviderInfo, error) {
	var out types.ProviderInfo
	if err := w.doJSON(ctx, "GET", "/v1/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (w *Workspace) HealthCheck(ctx context.Context) error {
	return w.doJSON(ctx, "GET", "/v1/health", nil, nil)
}

func (w *Workspace) Initialize(_ context.Context) error { return nil }
func (w *Workspace) Close() error                       { return nil }

func (w *Workspace) CreateSandbox(ctx context.Context, opts types.CreateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := w.doJSON(ctx, "POST", "/v1/sandboxes", opts, &sb); err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrCreationFailed, err)
	}
	w.emitter.Emit(provider.Event{Type: provider.EventSandboxCreated, SandboxID: sb.ID, Provider: w.Name()})
	return &sb, nil
}

// GetSandbox returns (nil, nil) when the service reports 404; only
// transport and server failures surface as errors.
func (w *Workspace) GetSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	err := w.doJSON(ctx, "GET", "/v1/sandboxes/"+url.PathEscape(id), nil, &sb)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sb, nil
}

func (w *Workspace) ListSandboxes(ctx context.Context, filter types.ListFilter) ([]types.Sandbox, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Template != "" {
		q.Set("template", filter.Template)
	}
	if filter.UserID != "" {
		q.Set("userID", filter.UserID)
	}
	if filter.ProjectID != "" {
		q.Set("projectID", filter.ProjectID)
	}
	path := "/v1/sandboxes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Sandboxes []types.Sandbox `json:"sandboxes"`
	}
	if err := w.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Sandboxes, nil
}

func (w *Workspace) UpdateSandbox(ctx context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := w.sandboxJSON(ctx, "PATCH", id, "", opts, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

func (w *Workspace) StartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return w.lifecycle(ctx, id, "/start", provider.EventSandboxStarted)
}

func (w *Workspace) StopSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return w.lifecycle(ctx, id, "/stop", provider.EventSandboxStopped)
}

func (w *Workspace) RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return w.lifecycle(ctx, id, "/restart", provider.EventSandboxStarted)
}

func (w *Workspace) lifecycle(ctx context.Context, id, action string, ev provider.EventType) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := w.sandboxJSON(ctx, "POST", id, action, nil, &sb); err != nil {
		return nil, err
	}
	w.emitter.Emit(provider.Event{Type: ev, SandboxID: id, Provider: w.Name()})
	return &sb, nil
}

func (w *Workspace) DeleteSandbox(ctx context.Context, id string) error {
	err := w.sandboxJSON(ctx, "DELETE", id, "", nil, nil)
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	if err != nil {
		return err
	}
	w.emitter.Emit(provider.Event{Type: provider.EventSandboxDeleted, SandboxID: id, Provider: w.Name()})
	return nil
}

func (w *Workspace) ExecuteCommand(ctx context.Context, id, command string, opts types.ExecOptions) (*types.ExecutionResult, error) {
	req := struct {
		Command string           `json:"command"`
		Options types.ExecOptions `json:"options"`
	}{command, opts}
	var res types.ExecutionResult
	if err := w.sandboxJSON(ctx, "POST", id, "/exec", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (w *Workspace) ListFiles(ctx context.Context, id, path string) ([]types.FileEntry, error) {
	var out struct {
		Entries []types.FileEntry `json:"entries"`
	}
	if err := w.sandboxJSON(ctx, "GET", id, "/files?path="+url.QueryEscape(path), nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (w *Workspace) ReadFile(ctx context.Context, id, path string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := w.sandboxJSON(ctx, "GET", id, "/files/content?path="+url.QueryEscape(path), nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (w *Workspace) WriteFile(ctx context.Context, id, path, content string) error {
	req := struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}{path, content}
	if err := w.sandboxJSON(ctx, "PUT", id, "/files/content", req, nil); err != nil {
		return err
	}
	w.emitter.Emit(provider.Event{Type: provider.EventFileChanged, SandboxID: id, Provider: w.Name(), Path: path})
	return nil
}

func (w *Workspace) DeleteFile(ctx context.Context, id, path string) error {
	if err := w.sandboxJSON(ctx, "DELETE", id, "/files?path="+url.QueryEscape(path), nil, nil); err != nil {
		return err
	}
	w.emitter.Emit(provider.Event{Type: provider.EventFileChanged, SandboxID: id, Provider: w.Name(), Path: path})
	return nil
}

func (w *Workspace) CreateDirectory(ctx context.Context, id, path string) error {
	req := struct {
		Path string `json:"path"`
	}{path}
	return w.sandboxJSON(ctx, "POST", id, "/directories", req, nil)
}

func (w *Workspace) UploadFiles(ctx context.Context, id string, files []types.FileUpload) error {
	req := struct {
		Files []types.FileUpload `json:"files"`
	}{files}
	return w.sandboxJSON(ctx, "POST", id, "/files/batch", req, nil)
}

func (w *Workspace) DownloadFiles(ctx context.Context, id string, paths []string) (map[string]string, error) {
	req := struct {
		Paths []string `json:"paths"`
	}{paths}
	var out struct {
		Files map[string]string `json:"files"`
	}
	if err := w.sandboxJSON(ctx, "POST", id, "/files/download", req, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (w *Workspace) CreateSnapshot(_ context.Context, _, _ string) (*types.Snapshot, error) {
	return nil, provider.Unsupported(w.Name(), "createSnapshot")
}

func (w *Workspace) RestoreSnapshot(_ context.Context, _, _ string, _ types.RestoreOptions) error {
	return provider.Unsupported(w.Name(), "restoreSnapshot")
}

// GetMetrics returns (nil, nil) when the service has no sample yet.
func (w *Workspace) GetMetrics(ctx context.Context, id string) (*types.SandboxMetrics, error) {
	var m types.SandboxMetrics
	err := w.sandboxJSON(ctx, "GET", id, "/metrics", nil, &m)
	if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (w *Workspace) GetLogs(ctx context.Context, id string, opts types.LogOptions) ([]types.LogEntry, error) {
	path := "/logs"
	if opts.Limit > 0 {
		path += fmt.Sprintf("?limit=%d", opts.Limit)
	}
	var out struct {
		Logs []types.LogEntry `json:"logs"`
	}
	if err := w.sandboxJSON(ctx, "GET", id, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

func (w *Workspace) ConnectTerminal(_ context.Context, _ string, _ types.TerminalOptions) (provider.TerminalSession, error) {
	return nil, provider.Unsupported(w.Name(), "connectTerminal")
}

func (w *Workspace) ForwardPort(ctx context.Context, id string, port int) (*types.PortForward, error) {
	req := struct {
		Port int `json:"port"`
	}{port}
	var fwd types.PortForward
	if err := w.sandboxJSON(ctx, "POST", id, "/ports", req, &fwd); err != nil {
		return nil, err
	}
	return &fwd, nil
}

func (w *Workspace) sandboxJSON(ctx context.Context, method, id, suffix string, in, out interface{}) error {
	return w.doJSON(ctx, method, "/v1/sandboxes/"+url.PathEscape(id)+suffix, in, out)
}

// doJSON performs one JSON round trip against the service. Non-2xx
// responses become statusErrors carrying the code and body.
func (w *Workspace) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("workspace: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, body)
	if err != nil {
		return err
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: workspace: %w", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("workspace: decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("workspace service returned %d: %s", e.code, e.body)
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}
