// Package pty spawns subprocesses under a pseudo-terminal.
package pty

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// StartOptions configures a PTY-backed subprocess.
type StartOptions struct {
	Command string
	Args    []string
	// Env is the full environment; nil inherits the current process env.
	Env []string
	Dir string
	// Initial terminal size; zero values default to 80x24.
	Cols uint16
	Rows uint16
}

// Process is a running subprocess attached to a PTY master.
type Process struct {
	// Master is the PTY master: reads yield subprocess output, writes feed
	// its input.
	Master *os.File
	Cmd    *exec.Cmd
}

// Start launches the command with a controlling PTY of the requested size.
func Start(opts StartOptions) (*Process, error) {
	if opts.Cols == 0 {
		opts.Cols = 80
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, "TERM=xterm-256color")
	cmd.Dir = opts.Dir

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: opts.Rows,
		Cols: opts.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	return &Process{Master: master, Cmd: cmd}, nil
}

// Resize changes the PTY window size.
func (p *Process) Resize(cols, rows uint16) error {
	return pty.Setsize(p.Master, &pty.Winsize{Rows: rows, Cols: cols})
}

// PID returns the subprocess id.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Wait blocks until the subprocess exits and returns its exit code.
// A signal-terminated process reports -1.
func (p *Process) Wait() (int, error) {
	err := p.Cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill terminates the subprocess.
func (p *Process) Kill() error {
	if p.Cmd.Process != nil {
		return p.Cmd.Process.Kill()
	}
	return nil
}

// Close releases the PTY master.
func (p *Process) Close() error {
	return p.Master.Close()
}
