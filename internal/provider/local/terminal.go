package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	ptylib "github.com/creack/pty"

	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/pkg/types"
)

// terminalSession is an interactive shell attached to a sandbox workspace
// through a pseudo-terminal.
type terminalSession struct {
	sandboxID string
	cmd       *exec.Cmd
	ptmx      *os.File // master side, read + write
	onClose   func()
	closeOnce sync.Once
}

func (t *terminalSession) Read(p []byte) (int, error)  { return t.ptmx.Read(p) }
func (t *terminalSession) Write(p []byte) (int, error) { return t.ptmx.Write(p) }

func (t *terminalSession) Resize(cols, rows int) error {
	return ptylib.Setsize(t.ptmx, &ptylib.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (t *terminalSession) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		err = t.ptmx.Close()
		_ = t.cmd.Wait()
		if t.onClose != nil {
			t.onClose()
		}
	})
	return err
}

// ConnectTerminal starts an interactive shell in the sandbox workspace.
func (l *Local) ConnectTerminal(_ context.Context, id string, opts types.TerminalOptions) (provider.TerminalSession, error) {
	root, err := l.workspace(id)
	if err != nil {
		return nil, err
	}

	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	cols := opts.Cols
	if cols <= 0 {
		cols = 80
	}
	rows := opts.Rows
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := ptylib.StartWithSize(cmd, &ptylib.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("start terminal for sandbox %s: %w", id, err)
	}

	session := &terminalSession{
		sandboxID: id,
		cmd:       cmd,
		ptmx:      ptmx,
		onClose: func() {
			l.emitter.Emit(provider.Event{Type: provider.EventTerminalClosed, SandboxID: id, Provider: "local"})
		},
	}

	l.touch(id)
	l.emitter.Emit(provider.Event{Type: provider.EventTerminalConnected, SandboxID: id, Provider: "local"})
	return session, nil
}
