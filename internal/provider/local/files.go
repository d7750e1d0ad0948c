package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// resolve maps a sandbox-relative path into the workspace, rejecting
// anything that would escape it.
func (l *Local) resolve(id, path string) (string, error) {
	root, err := l.workspace(id)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.Clean("/"+path))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes sandbox root", path)
	}
	return full, nil
}

// ListFiles lists one directory level, sorted by name.
func (l *Local) ListFiles(_ context.Context, id, path string) ([]types.FileEntry, error) {
	dir, err := l.resolve(id, path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s in sandbox %s: %w", path, id, err)
	}

	out := make([]types.FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		entryType := types.EntryTypeFile
		if e.IsDir() {
			entryType = types.EntryTypeDirectory
		}
		out = append(out, types.FileEntry{
			Path:        filepath.Join(path, e.Name()),
			Type:        entryType,
			Size:        info.Size(),
			Modified:    info.ModTime(),
			Permissions: info.Mode().Perm().String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	l.touch(id)
	return out, nil
}

// ReadFile returns a file's content.
func (l *Local) ReadFile(_ context.Context, id, path string) (string, error) {
	full, err := l.resolve(id, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s in sandbox %s: %w", path, id, err)
	}
	l.touch(id)
	return string(data), nil
}

// WriteFile writes content, creating parent directories as needed. When
// backups are enabled a prior version is copied to <path>.backup first.
func (l *Local) WriteFile(_ context.Context, id, path, content string) error {
	full, err := l.resolve(id, path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", path, err)
	}

	if l.opts.WriteBackups {
		if prev, err := os.ReadFile(full); err == nil {
			_ = os.WriteFile(full+".backup", prev, 0644)
		}
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s in sandbox %s: %w", path, id, err)
	}

	l.touch(id)
	l.emitter.Emit(provider.Event{Type: provider.EventFileChanged, SandboxID: id, Provider: "local", Path: path})
	return nil
}

// DeleteFile removes a file or directory tree.
func (l *Local) DeleteFile(_ context.Context, id, path string) error {
	full, err := l.resolve(id, path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("delete %s in sandbox %s: %w", path, id, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("delete %s in sandbox %s: %w", path, id, err)
	}

	l.touch(id)
	l.emitter.Emit(provider.Event{Type: provider.EventFileChanged, SandboxID: id, Provider: "local", Path: path})
	return nil
}

// CreateDirectory makes a directory (and parents).
func (l *Local) CreateDirectory(_ context.Context, id, path string) error {
	full, err := l.resolve(id, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("mkdir %s in sandbox %s: %w", path, id, err)
	}
	l.touch(id)
	return nil
}

// UploadFiles writes a batch of files.
func (l *Local) UploadFiles(ctx context.Context, id string, files []types.FileUpload) error {
	for _, f := range files {
		if err := l.WriteFile(ctx, id, f.Path, f.Content); err != nil {
			return err
		}
	}
	return nil
}

// DownloadFiles reads a batch of files into a path->content map.
func (l *Local) DownloadFiles(ctx context.Context, id string, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, err := l.ReadFile(ctx, id, p)
		if err != nil {
			return nil, err
		}
		out[p] = content
	}
	return out, nil
}
