package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

const (
	defaultExecTimeout = 60 // seconds
	maxOutputBytes     = 1 << 20
)

// ExecuteCommand shells out with the working directory resolved under the
// sandbox workspace. Ordinary command failure — non-zero exit, timeout —
// is a successful ExecutionResult with Success=false; an error return is
// reserved for the sandbox being unreachable.
func (l *Local) ExecuteCommand(ctx context.Context, id, command string, opts types.ExecOptions) (*types.ExecutionResult, error) {
	root, err := l.workspace(id)
	if err != nil {
		return nil, err
	}

	cwd := root
	if opts.WorkingDir != "" {
		cwd, err = l.resolve(id, opts.WorkingDir)
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(cwd); err != nil {
		return nil, fmt.Errorf("working dir for sandbox %s: %w", id, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// stdout and stderr share one output budget so a chatty command
	// cannot exceed maxOutputBytes combined.
	var stdout, stderr bytes.Buffer
	budget := &outputBudget{remaining: maxOutputBytes}
	cmd.Stdout = &capWriter{buf: &stdout, budget: budget}
	cmd.Stderr = &capWriter{buf: &stderr, budget: budget}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &types.ExecutionResult{
		Success:   runErr == nil,
		Output:    stdout.String(),
		Error:     stderr.String(),
		Duration:  duration,
		Timestamp: start,
	}

	switch {
	case runErr == nil:
	case execCtx.Err() == context.DeadlineExceeded:
		result.ExitCode = 124
		result.Error = fmt.Sprintf("command timed out after %ds", timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Could not start at all (shell missing, permissions).
			return nil, fmt.Errorf("exec in sandbox %s failed: %w", id, runErr)
		}
	}

	l.touch(id)
	l.logs.LogCommand(l.sandboxDir(id), id, command, result.ExitCode, int(duration.Milliseconds()))
	return result, nil
}

// GetLogs returns recent command history from the per-sandbox state db.
func (l *Local) GetLogs(_ context.Context, id string, opts types.LogOptions) ([]types.LogEntry, error) {
	l.mu.RLock()
	_, ok := l.sandboxes[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrSandboxNotFound, id)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	return l.logs.Recent(l.sandboxDir(id), id, limit)
}

// outputBudget is the byte allowance shared by a command's stdout and
// stderr. The mutex matters: os/exec writes the two streams from
// separate goroutines.
type outputBudget struct {
	mu        sync.Mutex
	remaining int
}

// capWriter truncates output once the shared budget is spent instead of
// failing the command.
type capWriter struct {
	buf    *bytes.Buffer
	budget *outputBudget
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.budget.mu.Lock()
	defer w.budget.mu.Unlock()
	n := len(p)
	if n > w.budget.remaining {
		n = w.budget.remaining
	}
	if n > 0 {
		w.buf.Write(p[:n])
		w.budget.remaining -= n
	}
	return len(p), nil
}
