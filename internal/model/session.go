package model

import "time"

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	SessionStateStarting SessionState = "starting"
	SessionStateRunning  SessionState = "running"
	SessionStateExited   SessionState = "exited"
)

// ProcMode selects how a session's subprocess is run.
type ProcMode string

const (
	// ProcModeDirect runs the shell itself; its stdin/stdout/stderr are the
	// session's streams verbatim.
	ProcModeDirect ProcMode = "direct"

	// ProcModeRendered runs a helper that drives a nested shell under a PTY
	// and answers view-snapshot requests over its own stdin/stdout.
	ProcModeRendered ProcMode = "rendered"
)

// SessionInfo is a point-in-time snapshot of a session, safe to hand to
// HTTP handlers and observations without exposing the live session.
type SessionInfo struct {
	ID        string       `json:"id"`
	Command   string       `json:"command"`
	Args      []string     `json:"args,omitempty"`
	Mode      ProcMode     `json:"mode"`
	State     SessionState `json:"state"`
	PID       int          `json:"pid,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}
