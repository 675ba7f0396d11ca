package session

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/andyk/termmux/internal/model"
)

const readBufferSize = 4096

// Proc is the uniform handle over a session's subprocess, regardless of
// whether it is the shell itself (direct mode) or the rendering helper
// (rendered mode). Implementations own their read loops and invoke the
// callbacks handed to them at spawn time.
type Proc interface {
	// Write sends input bytes to the subprocess.
	Write(data []byte) error
	// Resize forwards new terminal dimensions. Direct mode has no terminal
	// to resize and treats this as a no-op.
	Resize(cols, rows uint16) error
	// PID returns the subprocess id.
	PID() int
	// Kill terminates the subprocess. The exit callback still fires via the
	// normal wait path.
	Kill() error
}

// procCallbacks are wired by the Session before the proc starts its loops.
type procCallbacks struct {
	// onOutput receives subprocess output fragments in arrival order. Only
	// direct procs produce unsolicited output; the rendered helper buffers
	// internally and never calls it.
	onOutput func(data []byte)
	// onExit fires once when the subprocess terminates.
	onExit func(exitCode int, signal string)
}

// directProc runs the shell itself; its pipes are the session's streams.
type directProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex
	closed bool
}

// startDirect spawns the binary with plain pipes and starts the read and
// wait loops. A spawn failure returns before any loop starts.
func startDirect(binary string, args []string, cb procCallbacks) (*directProc, error) {
	cmd := exec.Command(binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	p := &directProc{cmd: cmd, stdin: stdin}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.readLoop(stdout, cb.onOutput, &readers)
	go p.readLoop(stderr, cb.onOutput, &readers)
	go p.waitLoop(cb.onExit, &readers)

	return p, nil
}

// readLoop pumps one output pipe into the session's buffer. An I/O error on
// the pipe ends the loop; the wait loop then reports the exit.
func (p *directProc) readLoop(r io.Reader, onOutput func([]byte), readers *sync.WaitGroup) {
	defer readers.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			return
		}
	}
}

// waitLoop drains the readers, reaps the subprocess, and reports the exit.
func (p *directProc) waitLoop(onExit func(int, string), readers *sync.WaitGroup) {
	readers.Wait()

	exitCode := 0
	if err := p.cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	onExit(exitCode, exitSignal(p.cmd))
}

func (p *directProc) Write(data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return model.ErrProcClosed
	}

	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// Resize is a no-op: direct-mode subprocesses have no terminal.
func (p *directProc) Resize(cols, rows uint16) error {
	return nil
}

func (p *directProc) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *directProc) Kill() error {
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// lineScanner builds the scanner used for the helper's reply stream.
func lineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return sc
}
