// Package providertest provides an in-memory Provider used by manager and
// registry tests.
package providertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// Fake is an in-memory Provider with injectable failures and call counters.
type Fake struct {
	name    string
	caps    types.Capabilities
	emitter *provider.Emitter

	mu        sync.Mutex
	seq       int
	sandboxes map[string]*types.Sandbox
	files     map[string]map[string]string // sandbox -> path -> content
	snapshots map[string]map[string]string // snapshot -> path -> content

	// Injectable failures.
	CreateErr  error
	HealthErr  error
	MetricsErr error

	// Call counters.
	CreateCalls  int
	DeleteCalls  int
	MetricsCalls int
}

// New creates a fake provider with full capabilities.
func New(name string) *Fake {
	return &Fake{
		name: name,
		caps: types.Capabilities{
			SupportsFileSystem:    true,
			SupportsTerminal:      false,
			SupportsSnapshots:     true,
			MaxConcurrentSessions: 100,
			SupportedRuntimes:     []string{"node", "python"},
		},
		emitter:   provider.NewEmitter(),
		sandboxes: make(map[string]*types.Sandbox),
		files:     make(map[string]map[string]string),
		snapshots: make(map[string]map[string]string),
	}
}

// SetCapabilities overrides the advertised capabilities.
func (f *Fake) SetCapabilities(caps types.Capabilities) { f.caps = caps }

func (f *Fake) Name() string                   { return f.name }
func (f *Fake) Capabilities() types.Capabilities { return f.caps }
func (f *Fake) Events() *provider.Emitter      { return f.emitter }

func (f *Fake) Info(_ context.Context) (*types.ProviderInfo, error) {
	return &types.ProviderInfo{Name: f.name, Version: "test"}, nil
}

func (f *Fake) HealthCheck(_ context.Context) error { return f.HealthErr }

func (f *Fake) Initialize(_ context.Context) error { return nil }
func (f *Fake) Close() error                       { return nil }

func (f *Fake) CreateSandbox(_ context.Context, opts types.CreateOptions) (*types.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	now := time.Now()
	sb := &types.Sandbox{
		ID:           fmt.Sprintf("%s-sb-%d", f.name, f.seq),
		Name:         opts.Name,
		Provider:     f.name,
		Status:       types.SandboxStatusRunning,
		Template:     opts.Template,
		Metadata:     opts.Metadata,
		CreatedAt:    now,
		LastActivity: now,
	}
	f.sandboxes[sb.ID] = sb
	f.files[sb.ID] = make(map[string]string)
	f.emitter.Emit(provider.Event{Type: provider.EventSandboxCreated, SandboxID: sb.ID, Provider: f.name})
	return copySandbox(sb), nil
}

func (f *Fake) GetSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, ok := f.sandboxes[id]
	if !ok {
		return nil, nil
	}
	return copySandbox(sb), nil
}

func (f *Fake) ListSandboxes(_ context.Context, filter types.ListFilter) ([]types.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Sandbox
	for _, sb := range f.sandboxes {
		if filter.Status != "" && sb.Status != filter.Status {
			continue
		}
		out = append(out, *copySandbox(sb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) UpdateSandbox(_ context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sb, ok := f.sandboxes[id]
	if !ok {
		return nil, provider.ErrSandboxNotFound
	}
	if opts.Name != "" {
		sb.Name = opts.Name
	}
	if opts.Resources != nil {
		sb.Resources = *opts.Resources
	}
	for k, v := range opts.Metadata {
		if sb.Metadata == nil {
			sb.Metadata = make(map[string]string)
		}
		sb.Metadata[k] = v
	}
	return copySandbox(sb), nil
}

func (f *Fake) StartSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	return f.setStatus(id, types.SandboxStatusRunning, provider.EventSandboxStarted)
}

func (f *Fake) StopSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	return f.setStatus(id, types.SandboxStatusStopped, provider.EventSandboxStopped)
}

func (f *Fake) RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	if _, err := f.StopSandbox(ctx, id); err != nil {
		return nil, err
	}
	return f.StartSandbox(ctx, id)
}

func (f *Fake) setStatus(id string, st types.SandboxStatus, ev provider.EventType) (*types.Sandbox, error) {
	f.mu.Lock()
	sb, ok := f.sandboxes[id]
	if !ok {
		f.mu.Unlock()
		return nil, provider.ErrSandboxNotFound
	}
	sb.Status = st
	out := copySandbox(sb)
	f.mu.Unlock()
	f.emitter.Emit(provider.Event{Type: ev, SandboxID: id, Provider: f.name})
	return out, nil
}

func (f *Fake) DeleteSandbox(_ context.Context, id string) error {
	f.mu.Lock()
	f.DeleteCalls++
	_, ok := f.sandboxes[id]
	if ok {
		delete(f.sandboxes, id)
		delete(f.files, id)
	}
	f.mu.Unlock()
	if !ok {
		return provider.ErrSandboxNotFound
	}
	f.emitter.Emit(provider.Event{Type: provider.EventSandboxDeleted, SandboxID: id, Provider: f.name})
	return nil
}

func (f *Fake) ExecuteCommand(_ context.Context, id, command string, _ types.ExecOptions) (*types.ExecutionResult, error) {
	f.mu.Lock()
	_, ok := f.sandboxes[id]
	f.mu.Unlock()
	if !ok {
		return nil, provider.ErrSandboxNotFound
	}
	// "exit N" fails with that code, anything else echoes back.
	if rest, found := strings.CutPrefix(command, "exit "); found {
		code := 0
		fmt.Sscanf(rest, "%d", &code)
		return &types.ExecutionResult{Success: code == 0, ExitCode: code, Timestamp: time.Now()}, nil
	}
	return &types.ExecutionResult{Success: true, Output: command, Timestamp: time.Now()}, nil
}

func (f *Fake) ListFiles(_ context.Context, id, path string) ([]types.FileEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return nil, provider.ErrSandboxNotFound
	}
	var out []types.FileEntry
	for p := range fs {
		if path == "" || path == "." || strings.HasPrefix(p, path+"/") {
			out = append(out, types.FileEntry{Path: p, Type: types.EntryTypeFile, Size: int64(len(fs[p]))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *Fake) ReadFile(_ context.Context, id, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return "", provider.ErrSandboxNotFound
	}
	content, ok := fs[path]
	if !ok {
		return "", fmt.Errorf("file %s not found", path)
	}
	return content, nil
}

func (f *Fake) WriteFile(_ context.Context, id, path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return provider.ErrSandboxNotFound
	}
	fs[path] = content
	return nil
}

func (f *Fake) DeleteFile(_ context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return provider.ErrSandboxNotFound
	}
	delete(fs, path)
	return nil
}

func (f *Fake) CreateDirectory(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return provider.ErrSandboxNotFound
	}
	return nil
}

func (f *Fake) UploadFiles(ctx context.Context, id string, files []types.FileUpload) error {
	for _, fu := range files {
		if err := f.WriteFile(ctx, id, fu.Path, fu.Content); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) DownloadFiles(ctx context.Context, id string, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, err := f.ReadFile(ctx, id, p)
		if err != nil {
			return nil, err
		}
		out[p] = content
	}
	return out, nil
}

func (f *Fake) CreateSnapshot(_ context.Context, id, name string) (*types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return nil, provider.ErrSandboxNotFound
	}
	f.seq++
	snapID := fmt.Sprintf("snap-%d", f.seq)
	snap := make(map[string]string, len(fs))
	var size int64
	for p, c := range fs {
		snap[p] = c
		size += int64(len(c))
	}
	f.snapshots[snapID] = snap
	return &types.Snapshot{SnapshotID: snapID, SandboxID: id, Name: name, SizeBytes: size, CreatedAt: time.Now()}, nil
}

func (f *Fake) RestoreSnapshot(_ context.Context, id, snapshotID string, opts types.RestoreOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fs, ok := f.files[id]
	if !ok {
		return provider.ErrSandboxNotFound
	}
	snap, ok := f.snapshots[snapshotID]
	if !ok {
		return fmt.Errorf("snapshot %s not found", snapshotID)
	}
	preserved := make(map[string]string)
	for _, p := range opts.PreserveFiles {
		if c, ok := fs[p]; ok {
			preserved[p] = c
		}
	}
	restored := make(map[string]string, len(snap))
	for p, c := range snap {
		restored[p] = c
	}
	for p, c := range preserved {
		restored[p] = c
	}
	f.files[id] = restored
	return nil
}

func (f *Fake) GetMetrics(_ context.Context, id string) (*types.SandboxMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MetricsCalls++
	if f.MetricsErr != nil {
		return nil, f.MetricsErr
	}
	if _, ok := f.sandboxes[id]; !ok {
		return nil, nil
	}
	return &types.SandboxMetrics{SandboxID: id, CPUPercent: 1.0, Timestamp: time.Now()}, nil
}

func (f *Fake) GetLogs(_ context.Context, id string, _ types.LogOptions) ([]types.LogEntry, error) {
	return nil, nil
}

func (f *Fake) ConnectTerminal(_ context.Context, _ string, _ types.TerminalOptions) (provider.TerminalSession, error) {
	return nil, provider.Unsupported(f.name, "connectTerminal")
}

func (f *Fake) ForwardPort(_ context.Context, _ string, _ int) (*types.PortForward, error) {
	return nil, provider.Unsupported(f.name, "forwardPort")
}

func copySandbox(sb *types.Sandbox) *types.Sandbox {
	out := *sb
	return &out
}
