package local

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

func TestExecuteCommandSuccess(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	result, err := l.ExecuteCommand(context.Background(), sb.ID, "echo hello", types.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("expected hello, got %q", result.Output)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitCode)
	}
}

func TestExecuteCommandNonZeroExitIsNotAnError(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	result, err := l.ExecuteCommand(context.Background(), sb.ID, "exit 7", types.ExecOptions{})
	if err != nil {
		t.Fatalf("non-zero exit must not be an error, got: %v", err)
	}
	if result.Success {
		t.Error("expected Success=false")
	}
	if result.ExitCode != 7 {
		t.Errorf("expected exit 7, got %d", result.ExitCode)
	}
}

func TestExecuteCommandTimeout(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	result, err := l.ExecuteCommand(context.Background(), sb.ID, "sleep 5", types.ExecOptions{Timeout: 1})
	if err != nil {
		t.Fatalf("timeout must not be an error, got: %v", err)
	}
	if result.Success {
		t.Error("expected Success=false on timeout")
	}
	if result.ExitCode != 124 {
		t.Errorf("expected exit 124, got %d", result.ExitCode)
	}
}

func TestExecuteCommandEnvOverlay(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	result, err := l.ExecuteCommand(context.Background(), sb.ID, "echo $SANDBOX_VAR", types.ExecOptions{
		Env: map[string]string{"SANDBOX_VAR": "injected"},
	})
	if err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if strings.TrimSpace(result.Output) != "injected" {
		t.Errorf("expected injected, got %q", result.Output)
	}
}

func TestExecuteCommandWorkingDir(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	if err := l.CreateDirectory(ctx, sb.ID, "sub"); err != nil {
		t.Fatalf("CreateDirectory() error: %v", err)
	}
	if err := l.WriteFile(ctx, sb.ID, "sub/marker.txt", "x"); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	result, err := l.ExecuteCommand(ctx, sb.ID, "ls", types.ExecOptions{WorkingDir: "sub"})
	if err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if !strings.Contains(result.Output, "marker.txt") {
		t.Errorf("expected marker.txt in output, got %q", result.Output)
	}
}

func TestExecuteCommandUnknownSandbox(t *testing.T) {
	l := newTestProvider(t)

	_, err := l.ExecuteCommand(context.Background(), "sbx-nope", "echo hi", types.ExecOptions{})
	if err == nil {
		t.Fatal("expected infrastructure error for unknown sandbox")
	}
}

func TestGetLogsRecordsCommands(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})
	ctx := context.Background()

	if _, err := l.ExecuteCommand(ctx, sb.ID, "echo one", types.ExecOptions{}); err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if _, err := l.ExecuteCommand(ctx, sb.ID, "exit 3", types.ExecOptions{}); err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}

	entries, err := l.GetLogs(ctx, sb.ID, types.LogOptions{})
	if err != nil {
		t.Fatalf("GetLogs() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	// Most recent first
	if entries[0].Command != "exit 3" || entries[0].ExitCode != 3 {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
}

func TestOutputCap(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	// Emit ~2MB; output must be capped at 1MB.
	result, err := l.ExecuteCommand(context.Background(), sb.ID,
		"head -c 2097152 /dev/zero | tr '\\0' 'a'", types.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if len(result.Output) > maxOutputBytes {
		t.Errorf("output exceeds cap: %d bytes", len(result.Output))
	}
}

func TestOutputCapIsSharedAcrossStreams(t *testing.T) {
	l := newTestProvider(t)
	sb := mustCreate(t, l, types.CreateOptions{})

	// ~800KB to stdout and ~800KB to stderr; each stream is under the cap
	// but together they must not exceed it.
	cmd := "head -c 819200 /dev/zero | tr '\\0' 'a'; head -c 819200 /dev/zero | tr '\\0' 'b' >&2"
	result, err := l.ExecuteCommand(context.Background(), sb.ID, cmd, types.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteCommand() error: %v", err)
	}
	if combined := len(result.Output) + len(result.Error); combined > maxOutputBytes {
		t.Errorf("combined output exceeds cap: %d bytes", combined)
	}
	if len(result.Output) == 0 {
		t.Error("stdout should retain output written before the budget ran out")
	}
}

func TestGetLogsUnknownSandbox(t *testing.T) {
	l := newTestProvider(t)

	_, err := l.GetLogs(context.Background(), "sbx-nope", types.LogOptions{})
	if !errors.Is(err, provider.ErrSandboxNotFound) {
		t.Errorf("expected ErrSandboxNotFound, got %v", err)
	}
}
