package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

func newTestProvider(t *testing.T) *Local {
	t.Helper()
	l := New(Options{BaseDir: t.TempDir()})
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func mustCreate(t *testing.T, l *Local, opts types.CreateOptions) *types.Sandbox {
	t.Helper()
	sb, err := l.CreateSandbox(context.Background(), opts)
	if err != nil {
		t.Fatalf("CreateSandbox() error: %v", err)
	}
	return sb
}

func TestCreateSandbox(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{Name: "dev", Template: "node"})

	if sb.Status != types.SandboxStatusRunning {
		t.Errorf("expected running, got %s", sb.Status)
	}
	if sb.Provider != "local" {
		t.Errorf("expected provider local, got %s", sb.Provider)
	}
	if sb.Resources.CPU != 1 || sb.Resources.MemoryMB != 512 {
		t.Errorf("expected default resources, got %+v", sb.Resources)
	}

	// Template starter files materialized
	content, err := l.ReadFile(context.Background(), sb.ID, "package.json")
	if err != nil {
		t.Fatalf("ReadFile(package.json) error: %v", err)
	}
	if content == "" {
		t.Error("expected non-empty package.json from node template")
	}

	// Sidecar persisted
	if _, err := os.Stat(filepath.Join(l.sandboxDir(sb.ID), metadataFile)); err != nil {
		t.Errorf("expected sidecar file: %v", err)
	}
}

func TestGetSandboxUnknownReturnsNil(t *testing.T) {
	l := newTestProvider(t)
	sb, err := l.GetSandbox(context.Background(), "sbx-nope")
	if err != nil {
		t.Fatalf("GetSandbox() error: %v", err)
	}
	if sb != nil {
		t.Errorf("expected nil for unknown sandbox, got %+v", sb)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	if err := l.WriteFile(ctx, sb.ID, "a/b.txt", "hello"); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	content, err := l.ReadFile(ctx, sb.ID, "a/b.txt")
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if content != "hello" {
		t.Errorf("expected hello, got %q", content)
	}
}

func TestDeleteSandbox(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	if err := l.DeleteSandbox(ctx, sb.ID); err != nil {
		t.Fatalf("DeleteSandbox() error: %v", err)
	}

	got, err := l.GetSandbox(ctx, sb.ID)
	if err != nil {
		t.Fatalf("GetSandbox() error: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
	if _, err := os.Stat(l.sandboxDir(sb.ID)); !os.IsNotExist(err) {
		t.Error("expected sandbox directory removed")
	}

	// Second delete is a not-found error
	if err := l.DeleteSandbox(ctx, sb.ID); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestStopAndStart(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	stopped, err := l.StopSandbox(ctx, sb.ID)
	if err != nil {
		t.Fatalf("StopSandbox() error: %v", err)
	}
	if stopped.Status != types.SandboxStatusStopped {
		t.Errorf("expected stopped, got %s", stopped.Status)
	}

	started, err := l.StartSandbox(ctx, sb.ID)
	if err != nil {
		t.Fatalf("StartSandbox() error: %v", err)
	}
	if started.Status != types.SandboxStatusRunning {
		t.Errorf("expected running, got %s", started.Status)
	}
}

func TestRestartSandbox(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	restarted, err := l.RestartSandbox(context.Background(), sb.ID)
	if err != nil {
		t.Fatalf("RestartSandbox() error: %v", err)
	}
	if restarted.Status != types.SandboxStatusRunning {
		t.Errorf("expected running after restart, got %s", restarted.Status)
	}
}

func TestUpdateSandbox(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{Metadata: map[string]string{"a": "1"}})

	updated, err := l.UpdateSandbox(context.Background(), sb.ID, types.UpdateOptions{
		Name:     "renamed",
		Metadata: map[string]string{"b": "2"},
	})
	if err != nil {
		t.Fatalf("UpdateSandbox() error: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("expected renamed, got %s", updated.Name)
	}
	if updated.Metadata["a"] != "1" || updated.Metadata["b"] != "2" {
		t.Errorf("expected merged metadata, got %v", updated.Metadata)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	escape := filepath.Join("..", "..", "etc", "passwd")
	if _, err := l.ReadFile(context.Background(), sb.ID, escape); err == nil {
		// Clean("/../..") collapses to the root, so a read of the
		// (nonexistent) root passwd must still fail.
		t.Error("expected error reading outside sandbox root")
	}

	resolved, err := l.resolve(sb.ID, "../../other")
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	root, _ := l.workspace(sb.ID)
	if resolved != filepath.Join(root, "other") {
		t.Errorf("expected traversal collapsed under root, got %s", resolved)
	}
}

func TestWriteBackup(t *testing.T) {
	l := New(Options{BaseDir: t.TempDir(), WriteBackups: true})
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer l.Close()

	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	if err := l.WriteFile(ctx, sb.ID, "f.txt", "v1"); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if err := l.WriteFile(ctx, sb.ID, "f.txt", "v2"); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	backup, err := l.ReadFile(ctx, sb.ID, "f.txt.backup")
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if backup != "v1" {
		t.Errorf("expected backup content v1, got %q", backup)
	}
}

func TestListFiles(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	_ = l.WriteFile(ctx, sb.ID, "a.txt", "1")
	_ = l.CreateDirectory(ctx, sb.ID, "sub")
	_ = l.WriteFile(ctx, sb.ID, "sub/b.txt", "2")

	entries, err := l.ListFiles(ctx, sb.ID, "")
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "a.txt" || entries[0].Type != types.EntryTypeFile {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Path != "sub" || entries[1].Type != types.EntryTypeDirectory {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestUploadDownloadFiles(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	err := l.UploadFiles(ctx, sb.ID, []types.FileUpload{
		{Path: "one.txt", Content: "1"},
		{Path: "dir/two.txt", Content: "2"},
	})
	if err != nil {
		t.Fatalf("UploadFiles() error: %v", err)
	}

	got, err := l.DownloadFiles(ctx, sb.ID, []string{"one.txt", "dir/two.txt"})
	if err != nil {
		t.Fatalf("DownloadFiles() error: %v", err)
	}
	if got["one.txt"] != "1" || got["dir/two.txt"] != "2" {
		t.Errorf("unexpected download contents: %v", got)
	}
}

func TestRehydrateFromSidecar(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	first := New(Options{BaseDir: base})
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	sb, err := first.CreateSandbox(ctx, types.CreateOptions{Name: "persisted"})
	if err != nil {
		t.Fatalf("CreateSandbox() error: %v", err)
	}
	_ = first.Close()

	second := New(Options{BaseDir: base})
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer second.Close()

	got, err := second.GetSandbox(ctx, sb.ID)
	if err != nil {
		t.Fatalf("GetSandbox() error: %v", err)
	}
	if got == nil {
		t.Fatal("expected sandbox rehydrated from sidecar")
	}
	if got.Name != "persisted" {
		t.Errorf("expected name persisted, got %s", got.Name)
	}
}

func TestRehydrateSkipsCorruptSidecar(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	bad := filepath.Join(base, "sbx-corrupt")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, metadataFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(Options{BaseDir: base})
	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() should skip corrupt sidecars, got: %v", err)
	}
	defer l.Close()

	sandboxes, err := l.ListSandboxes(ctx, types.ListFilter{})
	if err != nil {
		t.Fatalf("ListSandboxes() error: %v", err)
	}
	if len(sandboxes) != 0 {
		t.Errorf("expected 0 sandboxes, got %d", len(sandboxes))
	}
}

func TestJanitorSweepsIdleSandboxes(t *testing.T) {
	l := New(Options{BaseDir: t.TempDir(), MaxIdle: time.Hour})
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer l.Close()

	stale := mustCreate(t, l, types.CreateOptions{})
	fresh := mustCreate(t, l, types.CreateOptions{})

	l.mu.Lock()
	l.sandboxes[stale.ID].LastActivity = time.Now().Add(-2 * time.Hour)
	l.mu.Unlock()

	l.sweepIdle()

	ctx := context.Background()
	if sb, _ := l.GetSandbox(ctx, stale.ID); sb != nil {
		t.Error("expected stale sandbox swept")
	}
	if sb, _ := l.GetSandbox(ctx, fresh.ID); sb == nil {
		t.Error("expected fresh sandbox kept")
	}
}

func TestMetrics(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	_ = l.WriteFile(ctx, sb.ID, "data.bin", "0123456789")

	m, err := l.GetMetrics(ctx, sb.ID)
	if err != nil {
		t.Fatalf("GetMetrics() error: %v", err)
	}
	if m == nil {
		t.Fatal("expected metrics for live sandbox")
	}
	if m.StorageMB <= 0 {
		t.Error("expected non-zero storage usage")
	}

	// Unknown sandbox: nil, not an error
	m, err = l.GetMetrics(ctx, "sbx-nope")
	if err != nil {
		t.Fatalf("GetMetrics() error: %v", err)
	}
	if m != nil {
		t.Error("expected nil metrics for unknown sandbox")
	}
}

func TestForwardPortUnsupported(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	_, err := l.ForwardPort(context.Background(), sb.ID, 8080)
	if !provider.IsUnsupported(err) {
		t.Fatalf("expected typed unsupported error, got %v", err)
	}
}
