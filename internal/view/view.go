// Package view implements the rendered-mode helper loop: it drives a shell
// under a PTY, buffers its output, and answers input/resize/getView requests
// read from stdin with single-line JSON replies on stdout.
package view

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/andyk/termmux/internal/buffer"
	"github.com/andyk/termmux/internal/protocol"
)

// DefaultBacklogSize is the screen backlog capacity (64KB).
const DefaultBacklogSize = 64 * 1024

// Terminal is the PTY surface the renderer drives.
type Terminal interface {
	io.ReadWriter
	Resize(cols, rows uint16) error
}

// Renderer buffers terminal output and serves snapshot requests. It never
// writes to its output stream unprompted: every line it emits is the reply
// to exactly one request.
type Renderer struct {
	term    Terminal
	backlog *buffer.RingBuffer

	// writeMu keeps each reply line contiguous on the output stream.
	writeMu sync.Mutex
}

// NewRenderer creates a renderer and starts buffering terminal output.
func NewRenderer(term Terminal, backlogSize int) *Renderer {
	if backlogSize <= 0 {
		backlogSize = DefaultBacklogSize
	}
	r := &Renderer{
		term:    term,
		backlog: buffer.NewRingBuffer(backlogSize),
	}
	go r.readLoop()
	return r
}

// readLoop pumps terminal output into the backlog until the PTY closes.
func (r *Renderer) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := r.term.Read(buf)
		if n > 0 {
			r.backlog.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Run serves requests from in until EOF, writing one reply line per request
// to out.
func (r *Renderer) Run(in io.Reader, out io.Writer) error {
	dec := json.NewDecoder(in)
	for {
		var req protocol.HelperRequest
		if err := dec.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode request: %w", err)
		}
		if err := r.reply(out, r.handle(req)); err != nil {
			return err
		}
	}
}

// handle executes one request and builds its reply.
func (r *Renderer) handle(req protocol.HelperRequest) protocol.HelperResponse {
	resp := protocol.HelperResponse{ID: req.ID, Type: req.Type}

	switch req.Type {
	case protocol.HelperInput:
		if _, err := r.term.Write([]byte(req.Data)); err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = true

	case protocol.HelperResize:
		if req.Cols == 0 || req.Rows == 0 {
			resp.Error = "cols and rows must be positive"
			return resp
		}
		if err := r.term.Resize(req.Cols, req.Rows); err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = true

	case protocol.HelperGetView:
		resp.OK = true
		resp.Data = string(r.backlog.Snapshot())

	default:
		resp.Error = fmt.Sprintf("unknown request type %q", req.Type)
	}

	return resp
}

func (r *Renderer) reply(out io.Writer, resp protocol.HelperResponse) error {
	line, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}
	return nil
}
