package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/model"
	"github.com/andyk/termmux/internal/protocol"
	"github.com/andyk/termmux/internal/recorder"
)

// Broadcaster delivers an outbound message to every connected client.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Options configures how the registry spawns sessions.
type Options struct {
	// Mode selects direct or rendered subprocesses.
	Mode model.ProcMode
	// Shell is spawned when a create request omits the binary path.
	Shell string
	// HelperPath is the rendered-mode helper binary.
	HelperPath string
	// ViewTimeout bounds helper request/response waits.
	ViewTimeout time.Duration
	// RecordDir enables transcript recording when non-empty.
	RecordDir string
}

// Registry maps session ids to live sessions and tracks the single active
// session that unqualified commands target. All registry-wide mutation is
// serialized under one mutex.
type Registry struct {
	opts        Options
	broadcaster Broadcaster
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	activeID string
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options, broadcaster Broadcaster, logger *zap.Logger) *Registry {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.ViewTimeout <= 0 {
		opts.ViewTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		opts:        opts,
		broadcaster: broadcaster,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Create spawns a subprocess and registers it. An empty id is replaced with a
// generated one; a supplied id that already exists fails without spawning.
// The new session always becomes the active one.
func (r *Registry) Create(id, binaryPath string, args []string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	} else if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateID, id)
	}

	if binaryPath == "" {
		binaryPath = r.opts.Shell
	}

	s := &Session{
		id:        id,
		mode:      r.opts.Mode,
		command:   binaryPath,
		args:      args,
		createdAt: time.Now(),
		state:     model.SessionStateStarting,
		logger:    r.logger.With(zap.String("session", id)),
	}

	if r.opts.RecordDir != "" {
		rec, err := recorder.New(filepath.Join(r.opts.RecordDir, id+".cast"), 80, 24)
		if err != nil {
			r.logger.Warn("transcript recording disabled for session",
				zap.String("session", id), zap.Error(err))
		} else {
			s.rec = rec
		}
	}

	cb := procCallbacks{
		onOutput: s.onOutput,
		onExit: func(exitCode int, signal string) {
			r.handleExit(s, exitCode, signal)
		},
	}

	var (
		proc Proc
		err  error
	)
	switch r.opts.Mode {
	case model.ProcModeRendered:
		proc, err = startRendered(r.opts.HelperPath, binaryPath, args, r.opts.ViewTimeout, cb)
	default:
		proc, err = startDirect(binaryPath, args, cb)
	}
	if err != nil {
		if s.rec != nil {
			s.rec.Close()
		}
		return nil, err
	}

	s.proc = proc
	s.state = model.SessionStateRunning

	r.sessions[id] = s
	r.order = append(r.order, id)
	r.activeID = id

	r.logger.Info("session created",
		zap.String("session", id),
		zap.String("command", binaryPath),
		zap.Int("pid", proc.PID()))

	return s, nil
}

// SwitchTo makes the named session the active one.
func (r *Registry) SwitchTo(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	r.activeID = id
	return nil
}

// ActiveID returns the active session id, if one is set.
func (r *Registry) ActiveID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeID != ""
}

// Active returns the active session, if one is set.
func (r *Registry) Active() (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID == "" {
		return nil, false
	}
	s, ok := r.sessions[r.activeID]
	return s, ok
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns session ids in insertion order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Sessions returns all live sessions in insertion order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Infos returns metadata snapshots in insertion order.
func (r *Registry) Infos() []model.SessionInfo {
	sessions := r.Sessions()
	infos := make([]model.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Close kills the named session. Registry removal and the exit observation
// follow through the normal exit path once the process is reaped.
func (r *Registry) Close(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
	}
	return s.Close()
}

// CloseAll kills every session. Used at daemon shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.Sessions() {
		if err := s.Close(); err != nil {
			r.logger.Warn("failed to kill session", zap.String("session", s.ID()), zap.Error(err))
		}
	}
}

// handleExit tears the session down exactly once: removes it from the
// registry, drains output the relay has not flushed yet, and broadcasts the
// exit observation. The proc's read loops finish before onExit fires, so the
// drain here sees every fragment; without it a session exiting between relay
// ticks would lose its final interval of output.
func (r *Registry) handleExit(s *Session, exitCode int, signal string) {
	s.markExited(func() {
		r.remove(s.id)

		r.logger.Info("session exited",
			zap.String("session", s.id),
			zap.Int("exitCode", exitCode),
			zap.String("signal", signal))

		if fragments := s.TakePending(); len(fragments) > 0 && r.broadcaster != nil {
			r.broadcaster.Broadcast(protocol.OutputObservation(s.id, strings.Join(fragments, "")))
		}

		text := fmt.Sprintf("session %s exited (code %d)", s.id, exitCode)
		if signal != "" {
			text = fmt.Sprintf("session %s exited (signal %s)", s.id, signal)
		}
		if r.broadcaster != nil {
			r.broadcaster.Broadcast(protocol.Observation(text))
		}
	})
}

// remove deletes the session. If it was active, the active pointer is
// cleared rather than reassigned: operators switch explicitly.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.activeID == id {
		r.activeID = ""
	}
}
