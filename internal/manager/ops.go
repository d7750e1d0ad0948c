package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbuside/nimbus/internal/broadcast"
	"github.com/nimbuside/nimbus/internal/metrics"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// GetSandbox fetches a sandbox through its resolved provider. A session
// whose sandbox has vanished from the backend (e.g. swept by a provider
// janitor) is dropped here.
func (m *Manager) GetSandbox(ctx context.Context, id, providerName string) (*types.Sandbox, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	sb, err := p.GetSandbox(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb == nil {
		m.dropSession(id)
		return nil, fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	m.touchSession(id)
	return sb, nil
}

// ListSandboxes lists sandboxes from one provider, or from all of them
// when providerName is empty. A failing provider is skipped so one dead
// backend cannot blank the whole listing.
func (m *Manager) ListSandboxes(ctx context.Context, filter types.ListFilter, providerName string) ([]types.Sandbox, error) {
	if providerName != "" {
		p, err := m.registry.Get(providerName)
		if err != nil {
			return nil, err
		}
		return p.ListSandboxes(ctx, filter)
	}

	var out []types.Sandbox
	var lastErr error
	for _, p := range m.registry.All() {
		sbs, err := p.ListSandboxes(ctx, filter)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, sbs...)
	}
	if out == nil && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// UpdateSandbox applies mutable fields. Resource changes are rejected up
// front for providers that cannot scale.
func (m *Manager) UpdateSandbox(ctx context.Context, id string, opts types.UpdateOptions, providerName string) (*types.Sandbox, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	if opts.Resources != nil {
		if err := requireCapability(p, p.Capabilities().SupportsResourceScaling, "resource scaling"); err != nil {
			return nil, err
		}
	}
	sb, err := p.UpdateSandbox(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return sb, nil
}

func (m *Manager) StartSandbox(ctx context.Context, id, providerName string) (*types.Sandbox, error) {
	return m.lifecycle(ctx, id, providerName, provider.Provider.StartSandbox)
}

func (m *Manager) StopSandbox(ctx context.Context, id, providerName string) (*types.Sandbox, error) {
	return m.lifecycle(ctx, id, providerName, provider.Provider.StopSandbox)
}

func (m *Manager) RestartSandbox(ctx context.Context, id, providerName string) (*types.Sandbox, error) {
	return m.lifecycle(ctx, id, providerName, provider.Provider.RestartSandbox)
}

func (m *Manager) lifecycle(ctx context.Context, id, providerName string, op func(provider.Provider, context.Context, string) (*types.Sandbox, error)) (*types.Sandbox, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	sb, err := op(p, ctx, id)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return sb, nil
}

// DeleteSandbox removes a sandbox and its session. ErrSandboxNotFound
// from the provider still clears the session: the sandbox is gone either
// way, only the bookkeeping was stale.
func (m *Manager) DeleteSandbox(ctx context.Context, id, providerName string) error {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	err = p.DeleteSandbox(ctx, id)
	if err == nil || errors.Is(err, provider.ErrSandboxNotFound) {
		m.dropSession(id)
	}
	return err
}

// ExecuteCommand runs a command in the sandbox. Non-zero exit and
// timeout surface in the result, not as errors.
func (m *Manager) ExecuteCommand(ctx context.Context, id, command string, opts types.ExecOptions, providerName string) (*types.ExecutionResult, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := p.ExecuteCommand(ctx, id, command, opts)
	metrics.ExecDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return res, nil
}

func (m *Manager) fsProvider(ctx context.Context, id, providerName string) (provider.Provider, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(p, p.Capabilities().SupportsFileSystem, "filesystem"); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Manager) ListFiles(ctx context.Context, id, path, providerName string) ([]types.FileEntry, error) {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	entries, err := p.ListFiles(ctx, id, path)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return entries, nil
}

func (m *Manager) ReadFile(ctx context.Context, id, path, providerName string) (string, error) {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return "", err
	}
	content, err := p.ReadFile(ctx, id, path)
	if err != nil {
		return "", err
	}
	m.touchSession(id)
	return content, nil
}

// WriteFile writes a file and broadcasts the change so UIs tracking the
// workspace see it without polling.
func (m *Manager) WriteFile(ctx context.Context, id, path, content, providerName string) error {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	if err := p.WriteFile(ctx, id, path, content); err != nil {
		return err
	}
	m.touchSession(id)
	m.broadcastChange(broadcast.ChangeCreated, id, path, content)
	return nil
}

func (m *Manager) DeleteFile(ctx context.Context, id, path, providerName string) error {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	if err := p.DeleteFile(ctx, id, path); err != nil {
		return err
	}
	m.touchSession(id)
	m.broadcastChange(broadcast.ChangeDeleted, id, path, "")
	return nil
}

func (m *Manager) CreateDirectory(ctx context.Context, id, path, providerName string) error {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	if err := p.CreateDirectory(ctx, id, path); err != nil {
		return err
	}
	m.touchSession(id)
	return nil
}

func (m *Manager) UploadFiles(ctx context.Context, id string, files []types.FileUpload, providerName string) error {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	if err := p.UploadFiles(ctx, id, files); err != nil {
		return err
	}
	m.touchSession(id)
	for _, f := range files {
		m.broadcastChange(broadcast.ChangeCreated, id, f.Path, f.Content)
	}
	return nil
}

func (m *Manager) DownloadFiles(ctx context.Context, id string, paths []string, providerName string) (map[string]string, error) {
	p, err := m.fsProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	out, err := p.DownloadFiles(ctx, id, paths)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return out, nil
}

func (m *Manager) CreateSnapshot(ctx context.Context, id, name, providerName string) (*types.Snapshot, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(p, p.Capabilities().SupportsSnapshots, "snapshots"); err != nil {
		return nil, err
	}
	snap, err := p.CreateSnapshot(ctx, id, name)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return snap, nil
}

func (m *Manager) RestoreSnapshot(ctx context.Context, id, snapshotID string, opts types.RestoreOptions, providerName string) error {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return err
	}
	if err := requireCapability(p, p.Capabilities().SupportsSnapshots, "snapshots"); err != nil {
		return err
	}
	if err := p.RestoreSnapshot(ctx, id, snapshotID, opts); err != nil {
		return err
	}
	m.touchSession(id)
	return nil
}

// GetMetrics returns current usage, or (nil, nil) when the provider
// cannot measure it.
func (m *Manager) GetMetrics(ctx context.Context, id, providerName string) (*types.SandboxMetrics, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	return p.GetMetrics(ctx, id)
}

func (m *Manager) GetLogs(ctx context.Context, id string, opts types.LogOptions, providerName string) ([]types.LogEntry, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	return p.GetLogs(ctx, id, opts)
}

func (m *Manager) ConnectTerminal(ctx context.Context, id string, opts types.TerminalOptions, providerName string) (provider.TerminalSession, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(p, p.Capabilities().SupportsTerminal, "terminal"); err != nil {
		return nil, err
	}
	ts, err := p.ConnectTerminal(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return ts, nil
}

func (m *Manager) ForwardPort(ctx context.Context, id string, port int, providerName string) (*types.PortForward, error) {
	p, err := m.resolveProvider(ctx, id, providerName)
	if err != nil {
		return nil, err
	}
	if err := requireCapability(p, p.Capabilities().SupportsPortForwarding, "port forwarding"); err != nil {
		return nil, err
	}
	fwd, err := p.ForwardPort(ctx, id, port)
	if err != nil {
		return nil, err
	}
	m.touchSession(id)
	return fwd, nil
}

func (m *Manager) broadcastChange(t broadcast.ChangeType, sandboxID, path, content string) {
	s, _ := m.sessionFor(sandboxID)
	m.broadcaster.Broadcast(broadcast.Event{
		Type:      t,
		Path:      path,
		Content:   content,
		Timestamp: time.Now(),
		SandboxID: sandboxID,
		ProjectID: s.ProjectID,
		UserID:    s.UserID,
	})
}
