// Package local implements the sandbox provider contract on top of the
// local filesystem. Each sandbox is a directory under a configured base
// path with a JSON sidecar persisting its record, so sandboxes survive
// process restarts. It is the development backend and the reference for
// the behavior a real provider must satisfy.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

const (
	metadataFile = ".sandbox-metadata.json"
	workspaceDir = "workspace"
	snapshotsDir = "snapshots"

	defaultMemoryMB  = 512
	defaultCPU       = 1
	defaultStorageMB = 1024

	// Delay between stop and start on restart. Deliberate serialization
	// point, not a race.
	restartSettleDelay = 500 * time.Millisecond
)

// Options configures the local provider.
type Options struct {
	BaseDir         string
	MaxIdle         time.Duration // janitor threshold, 0 disables
	CleanupInterval time.Duration // janitor cadence, default 10m
	WriteBackups    bool          // keep a .backup copy before overwriting files
}

// record is the persisted shape of a local sandbox (the sidecar contents).
type record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	Status       types.SandboxStatus `json:"status"`
	Template     string            `json:"template,omitempty"`
	Runtime      string            `json:"runtime,omitempty"`
	Resources    types.Resources   `json:"resources"`
	Ports        []int             `json:"ports,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
}

// Local is the filesystem-backed reference provider.
type Local struct {
	opts    Options
	emitter *provider.Emitter

	mu        sync.RWMutex
	sandboxes map[string]*record
	logs      *logStore

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a local provider rooted at opts.BaseDir.
func New(opts Options) *Local {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 10 * time.Minute
	}
	return &Local{
		opts:      opts,
		emitter:   provider.NewEmitter(),
		sandboxes: make(map[string]*record),
		logs:      newLogStore(opts.BaseDir),
		stop:      make(chan struct{}),
	}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Capabilities() types.Capabilities {
	return types.Capabilities{
		SupportsFileSystem:      true,
		SupportsTerminal:        true,
		SupportsPortForwarding:  false,
		SupportsSnapshots:       true,
		SupportsResourceScaling: false,
		MaxConcurrentSessions:   50,
		SupportedRuntimes:       []string{"node", "python", "static"},
	}
}

func (l *Local) Info(_ context.Context) (*types.ProviderInfo, error) {
	return &types.ProviderInfo{Name: "local", Version: "1", Region: "local"}, nil
}

// HealthCheck verifies the base directory is writable.
func (l *Local) HealthCheck(_ context.Context) error {
	probe := filepath.Join(l.opts.BaseDir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("base dir not writable: %w", err)
	}
	return os.Remove(probe)
}

func (l *Local) Events() *provider.Emitter { return l.emitter }

// Initialize creates the base directory, rehydrates every sidecar found
// under it, and starts the idle janitor. Corrupt or missing sidecars are
// skipped, not fatal.
func (l *Local) Initialize(_ context.Context) error {
	if err := os.MkdirAll(l.opts.BaseDir, 0755); err != nil {
		return fmt.Errorf("create base dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(l.opts.BaseDir, snapshotsDir), 0755); err != nil {
		return fmt.Errorf("create snapshots dir: %w", err)
	}

	entries, err := os.ReadDir(l.opts.BaseDir)
	if err != nil {
		return fmt.Errorf("scan base dir: %w", err)
	}

	restored := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == snapshotsDir {
			continue
		}
		rec, err := readSidecar(filepath.Join(l.opts.BaseDir, e.Name(), metadataFile))
		if err != nil {
			log.Printf("local: skipping %s: %v", e.Name(), err)
			continue
		}
		l.sandboxes[rec.ID] = rec
		restored++
	}
	if restored > 0 {
		log.Printf("local: rehydrated %d sandboxes from %s", restored, l.opts.BaseDir)
	}

	if l.opts.MaxIdle > 0 {
		l.wg.Add(1)
		go l.janitor()
	}
	return nil
}

// Close stops the janitor and releases per-sandbox log handles.
func (l *Local) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
	return l.logs.Close()
}

// CreateSandbox makes the sandbox directory, materializes the starter
// template, and persists the sidecar. On any failure after directory
// creation the partial directory is removed before the error propagates.
func (l *Local) CreateSandbox(_ context.Context, opts types.CreateOptions) (*types.Sandbox, error) {
	id := "sbx-" + uuid.New().String()[:8]
	dir := l.sandboxDir(id)

	if err := os.MkdirAll(filepath.Join(dir, workspaceDir), 0755); err != nil {
		return nil, fmt.Errorf("%w: create sandbox dir: %v", provider.ErrCreationFailed, err)
	}

	rec, err := l.populate(id, dir, opts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %v", provider.ErrCreationFailed, err)
	}

	l.mu.Lock()
	l.sandboxes[id] = rec
	l.mu.Unlock()

	l.emitter.Emit(provider.Event{Type: provider.EventSandboxCreated, SandboxID: id, Provider: "local"})
	log.Printf("local: created sandbox %s (template=%s)", id, opts.Template)
	return rec.toSandbox(), nil
}

func (l *Local) populate(id, dir string, opts types.CreateOptions) (*record, error) {
	if opts.Template != "" {
		if err := materializeTemplate(filepath.Join(dir, workspaceDir), opts.Template); err != nil {
			return nil, err
		}
	}

	res := opts.Resources
	if res.CPU <= 0 {
		res.CPU = defaultCPU
	}
	if res.MemoryMB <= 0 {
		res.MemoryMB = defaultMemoryMB
	}
	if res.StorageMB <= 0 {
		res.StorageMB = defaultStorageMB
	}

	name := opts.Name
	if name == "" {
		name = id
	}

	now := time.Now()
	rec := &record{
		ID:           id,
		Name:         name,
		Path:         dir,
		Status:       types.SandboxStatusRunning,
		Template:     opts.Template,
		Runtime:      opts.Runtime,
		Resources:    res,
		Ports:        opts.Ports,
		Metadata:     opts.Metadata,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := writeSidecar(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetSandbox returns (nil, nil) for unknown IDs.
func (l *Local) GetSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.sandboxes[id]
	if !ok {
		return nil, nil
	}
	return rec.toSandbox(), nil
}

func (l *Local) ListSandboxes(_ context.Context, filter types.ListFilter) ([]types.Sandbox, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Sandbox, 0, len(l.sandboxes))
	for _, rec := range l.sandboxes {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Template != "" && rec.Template != filter.Template {
			continue
		}
		out = append(out, *rec.toSandbox())
	}
	return out, nil
}

func (l *Local) UpdateSandbox(_ context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	if opts.Name != "" {
		rec.Name = opts.Name
	}
	if opts.Resources != nil {
		rec.Resources = *opts.Resources
	}
	for k, v := range opts.Metadata {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]string)
		}
		rec.Metadata[k] = v
	}
	rec.LastActivity = time.Now()
	if err := writeSidecar(rec); err != nil {
		return nil, err
	}
	return rec.toSandbox(), nil
}

func (l *Local) StartSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	return l.transition(id, types.SandboxStatusRunning, provider.EventSandboxStarted)
}

func (l *Local) StopSandbox(_ context.Context, id string) (*types.Sandbox, error) {
	return l.transition(id, types.SandboxStatusStopped, provider.EventSandboxStopped)
}

// RestartSandbox stops, waits a settle delay, then starts.
func (l *Local) RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	if _, err := l.StopSandbox(ctx, id); err != nil {
		return nil, err
	}
	select {
	case <-time.After(restartSettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.StartSandbox(ctx, id)
}

func (l *Local) transition(id string, st types.SandboxStatus, ev provider.EventType) (*types.Sandbox, error) {
	l.mu.Lock()
	rec, ok := l.sandboxes[id]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	rec.Status = st
	rec.LastActivity = time.Now()
	err := writeSidecar(rec)
	out := rec.toSandbox()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	l.emitter.Emit(provider.Event{Type: ev, SandboxID: id, Provider: "local"})
	return out, nil
}

// DeleteSandbox removes the sandbox directory and its snapshots.
func (l *Local) DeleteSandbox(_ context.Context, id string) error {
	l.mu.Lock()
	rec, ok := l.sandboxes[id]
	if ok {
		delete(l.sandboxes, id)
	}
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}

	l.logs.Drop(id)
	if err := os.RemoveAll(rec.Path); err != nil {
		return fmt.Errorf("remove sandbox %s: %w", id, err)
	}
	_ = os.RemoveAll(filepath.Join(l.opts.BaseDir, snapshotsDir, id))

	l.emitter.Emit(provider.Event{Type: provider.EventSandboxDeleted, SandboxID: id, Provider: "local"})
	log.Printf("local: deleted sandbox %s", id)
	return nil
}

// GetMetrics reports storage usage and uptime. CPU and memory are not
// attributable to a directory tree, so they read zero rather than nil.
func (l *Local) GetMetrics(_ context.Context, id string) (*types.SandboxMetrics, error) {
	l.mu.RLock()
	rec, ok := l.sandboxes[id]
	l.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var bytes int64
	_ = filepath.WalkDir(rec.Path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			bytes += info.Size()
		}
		return nil
	})

	return &types.SandboxMetrics{
		SandboxID:     id,
		StorageMB:     float64(bytes) / (1024 * 1024),
		UptimeSeconds: time.Since(rec.CreatedAt).Seconds(),
		Timestamp:     time.Now(),
	}, nil
}

// ForwardPort is capability-advertised as unsupported.
func (l *Local) ForwardPort(_ context.Context, _ string, _ int) (*types.PortForward, error) {
	return nil, provider.Unsupported("local", "forwardPort")
}

// touch bumps LastActivity and persists the sidecar, best effort.
func (l *Local) touch(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.sandboxes[id]
	if !ok {
		return
	}
	rec.LastActivity = time.Now()
	if err := writeSidecar(rec); err != nil {
		log.Printf("local: persist sidecar for %s: %v", id, err)
	}
}

// workspace resolves the files root for a sandbox.
func (l *Local) workspace(id string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.sandboxes[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}
	return filepath.Join(rec.Path, workspaceDir), nil
}

func (l *Local) sandboxDir(id string) string {
	return filepath.Join(l.opts.BaseDir, id)
}

// janitor removes sandboxes idle past MaxIdle. The manager's session
// reaper may race it; whichever runs second gets a not-found no-op.
func (l *Local) janitor() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweepIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Local) sweepIdle() {
	cutoff := time.Now().Add(-l.opts.MaxIdle)

	l.mu.RLock()
	var stale []string
	for id, rec := range l.sandboxes {
		if rec.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	l.mu.RUnlock()

	for _, id := range stale {
		if err := l.DeleteSandbox(context.Background(), id); err != nil {
			log.Printf("local: janitor delete %s: %v", id, err)
			continue
		}
		log.Printf("local: janitor removed idle sandbox %s", id)
	}
}

func (r *record) toSandbox() *types.Sandbox {
	return &types.Sandbox{
		ID:           r.ID,
		Name:         r.Name,
		Provider:     "local",
		Status:       r.Status,
		Template:     r.Template,
		Runtime:      r.Runtime,
		Resources:    r.Resources,
		Network:      types.NetworkInfo{Ports: r.Ports},
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
}

func writeSidecar(rec *record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	path := filepath.Join(rec.Path, metadataFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func readSidecar(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("sidecar missing id")
	}
	return &rec, nil
}
