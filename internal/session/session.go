// Package session owns the daemon's subprocess sessions and their registry.
package session

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/model"
	"github.com/andyk/termmux/internal/recorder"
)

// Session wraps one subprocess together with its buffered output. Output
// fragments accumulate in pending between relay flushes; flushed fragments
// move to history, which is retained for the life of the session so a client
// can replay it at any time.
type Session struct {
	id        string
	mode      model.ProcMode
	command   string
	args      []string
	createdAt time.Time

	proc Proc
	rec  *recorder.Recorder

	// mu serializes the two mutators of the output buffers: the proc read
	// loop appending to pending, and the relay draining it into history.
	mu      sync.Mutex
	pending []string
	history []string
	state   model.SessionState

	exitOnce sync.Once
	logger   *zap.Logger
}

// onOutput appends one subprocess output fragment to the pending buffer.
// Called only from the proc's read loop.
func (s *Session) onOutput(data []byte) {
	if s.rec != nil {
		s.rec.Output(data)
	}

	s.mu.Lock()
	s.pending = append(s.pending, string(data))
	s.mu.Unlock()
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string {
	return s.id
}

// Mode returns the session's process mode.
func (s *Session) Mode() model.ProcMode {
	return s.mode
}

// State returns the session's lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	return model.SessionInfo{
		ID:        s.id,
		Command:   s.command,
		Args:      s.args,
		Mode:      s.mode,
		State:     state,
		PID:       s.proc.PID(),
		CreatedAt: s.createdAt,
	}
}

// Write sends text to the subprocess input, unmodified. Writing to an exited
// session is not an error worth surfacing to clients; the caller may log the
// returned error and move on.
func (s *Session) Write(text string) error {
	if s.rec != nil {
		s.rec.Input([]byte(text))
	}
	return s.proc.Write([]byte(text))
}

// Resize forwards new terminal dimensions to the subprocess.
func (s *Session) Resize(cols, rows uint16) error {
	return s.proc.Resize(cols, rows)
}

// TakePending atomically drains the pending fragments into history and
// returns them in arrival order. Returns nil when nothing is pending.
func (s *Session) TakePending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	taken := s.pending
	s.pending = nil
	s.history = append(s.history, taken...)
	return taken
}

// HasPending reports whether unflushed output is buffered.
func (s *Session) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// View returns the session's terminal content. Direct mode joins the full
// accumulated history including not-yet-flushed fragments; rendered mode asks
// the helper for a screen snapshot, bounded by the configured view timeout.
func (s *Session) View() (string, error) {
	if rp, ok := s.proc.(*renderedProc); ok {
		return rp.View()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, f := range s.history {
		b.WriteString(f)
	}
	for _, f := range s.pending {
		b.WriteString(f)
	}
	return b.String(), nil
}

// Close kills the subprocess. Removal from the registry and the exit
// observation follow asynchronously through the normal exit path.
func (s *Session) Close() error {
	return s.proc.Kill()
}

// markExited transitions the session to its terminal state and runs fn
// exactly once, no matter how many exit paths race.
func (s *Session) markExited(fn func()) {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		s.state = model.SessionStateExited
		s.mu.Unlock()

		if s.rec != nil {
			s.rec.Close()
		}
		fn()
	})
}
