package local

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuside/nimbus/pkg/types"
)

// Directory copies are bounded so a wedged disk cannot pin a request
// forever. Expiry is a normal failure; a crash mid-copy leaves the target
// as-is (no atomicity is promised).
const snapshotCopyTimeout = 5 * time.Minute

// CreateSnapshot recursively copies the workspace into the snapshots area.
func (l *Local) CreateSnapshot(ctx context.Context, id, name string) (*types.Snapshot, error) {
	root, err := l.workspace(id)
	if err != nil {
		return nil, err
	}

	snapID := "snap-" + uuid.New().String()[:8]
	dest := filepath.Join(l.opts.BaseDir, snapshotsDir, id, snapID)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	copyCtx, cancel := context.WithTimeout(ctx, snapshotCopyTimeout)
	defer cancel()

	size, err := copyDir(copyCtx, root, dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("snapshot sandbox %s: %w", id, err)
	}

	l.touch(id)
	log.Printf("local: snapshot %s of sandbox %s (%d bytes)", snapID, id, size)
	return &types.Snapshot{
		SnapshotID: snapID,
		SandboxID:  id,
		Name:       name,
		SizeBytes:  size,
		CreatedAt:  time.Now(),
	}, nil
}

// RestoreSnapshot wipes the workspace and copies the snapshot back.
// Files named in opts.PreserveFiles are read before the wipe and
// re-written afterwards, so in-flight work survives the rollback.
func (l *Local) RestoreSnapshot(ctx context.Context, id, snapshotID string, opts types.RestoreOptions) error {
	root, err := l.workspace(id)
	if err != nil {
		return err
	}

	src := filepath.Join(l.opts.BaseDir, snapshotsDir, id, snapshotID)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("snapshot %s not found for sandbox %s: %w", snapshotID, id, err)
	}

	preserved := make(map[string]string)
	for _, p := range opts.PreserveFiles {
		content, err := l.ReadFile(ctx, id, p)
		if err != nil {
			continue // absent files are simply not preserved
		}
		preserved[p] = content
	}

	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("wipe workspace for %s: %w", id, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("recreate workspace for %s: %w", id, err)
	}

	copyCtx, cancel := context.WithTimeout(ctx, snapshotCopyTimeout)
	defer cancel()

	if _, err := copyDir(copyCtx, src, root); err != nil {
		return fmt.Errorf("restore sandbox %s from %s: %w", id, snapshotID, err)
	}

	for p, content := range preserved {
		if err := l.WriteFile(ctx, id, p, content); err != nil {
			return fmt.Errorf("re-apply preserved file %s: %w", p, err)
		}
	}

	if opts.RestartAfter {
		if _, err := l.RestartSandbox(ctx, id); err != nil {
			return err
		}
	}

	l.touch(id)
	log.Printf("local: restored sandbox %s from snapshot %s (%d files preserved)", id, snapshotID, len(preserved))
	return nil
}

// copyDir recursively copies src into dest, returning total bytes copied.
// It checks the context between files.
func copyDir(ctx context.Context, src, dest string) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		n, err := copyFile(path, target)
		total += n
		return err
	})
	return total, err
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, in)
}
