package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/andyk/termmux/internal/model"
	"github.com/andyk/termmux/internal/protocol"
)

// renderedProc runs the view helper, which drives a nested shell under a PTY
// and speaks the request/response micro-protocol over its stdin/stdout. Every
// line the helper writes is the reply to a request the daemon issued; the
// helper pushes nothing unprompted.
type renderedProc struct {
	cmd   *exec.Cmd // nil when constructed over raw pipes in tests
	stdin io.Writer
	enc   *json.Encoder

	// reqMu serializes request/response pairs on the helper pipe. nextID is
	// assigned under it.
	reqMu   sync.Mutex
	nextID  uint64
	timeout time.Duration

	// pendingMu guards the reply slot for the one in-flight request. A reply
	// is delivered only when its id matches the in-flight request; replies
	// with no slot set, or with a stale id, are late and are dropped.
	pendingMu    sync.Mutex
	pendingID    uint64
	pendingReply chan protocol.HelperResponse

	mu     sync.Mutex
	closed bool
}

// startRendered spawns the helper binary, handing it the shell command to run
// inside its PTY, and starts the reply-read and wait loops.
func startRendered(helperPath, binary string, args []string, timeout time.Duration, cb procCallbacks) (*renderedProc, error) {
	cmd := exec.Command(helperPath, append([]string{binary}, args...)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open helper stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start helper %s: %w", helperPath, err)
	}

	p := newRenderedOver(stdin, stdout, timeout)
	p.cmd = cmd

	go p.waitLoop(cb.onExit)

	return p, nil
}

// newRenderedOver builds a rendered proc over explicit pipes and starts the
// reply-read loop. Tests use it to fake the helper.
func newRenderedOver(stdin io.Writer, stdout io.Reader, timeout time.Duration) *renderedProc {
	p := &renderedProc{
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		timeout: timeout,
	}
	go p.readLoop(stdout)
	return p
}

// readLoop delivers each helper reply line to the in-flight request, if any.
func (p *renderedProc) readLoop(r io.Reader) {
	sc := lineScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp protocol.HelperResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}

		p.pendingMu.Lock()
		slot := p.pendingReply
		if slot != nil && resp.ID == p.pendingID {
			p.pendingReply = nil
		} else {
			slot = nil
		}
		p.pendingMu.Unlock()

		if slot != nil {
			slot <- resp
		}
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *renderedProc) waitLoop(onExit func(int, string)) {
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

// request writes one request line and waits for its single reply.
func (p *renderedProc) request(req protocol.HelperRequest) (protocol.HelperResponse, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return protocol.HelperResponse{}, model.ErrProcClosed
	}

	p.reqMu.Lock()
	defer p.reqMu.Unlock()

	p.nextID++
	req.ID = p.nextID

	slot := make(chan protocol.HelperResponse, 1)
	p.pendingMu.Lock()
	p.pendingID = req.ID
	p.pendingReply = slot
	p.pendingMu.Unlock()

	if err := p.enc.Encode(req); err != nil {
		p.clearPending()
		return protocol.HelperResponse{}, fmt.Errorf("failed to write helper request: %w", err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case resp := <-slot:
		if !resp.OK {
			return resp, fmt.Errorf("helper rejected %s: %s", req.Type, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		p.clearPending()
		return protocol.HelperResponse{}, model.ErrViewTimeout
	}
}

func (p *renderedProc) clearPending() {
	p.pendingMu.Lock()
	p.pendingReply = nil
	p.pendingMu.Unlock()
}

func (p *renderedProc) Write(data []byte) error {
	_, err := p.request(protocol.HelperRequest{
		Type: protocol.HelperInput,
		Data: string(data),
	})
	return err
}

func (p *renderedProc) Resize(cols, rows uint16) error {
	_, err := p.request(protocol.HelperRequest{
		Type: protocol.HelperResize,
		Cols: cols,
		Rows: rows,
	})
	return err
}

// View requests a snapshot of the helper's virtual screen.
func (p *renderedProc) View() (string, error) {
	resp, err := p.request(protocol.HelperRequest{Type: protocol.HelperGetView})
	if err != nil {
		return "", err
	}
	return resp.Data, nil
}

func (p *renderedProc) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *renderedProc) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
