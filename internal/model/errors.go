package model

import "errors"

var (
	// ErrDuplicateID is returned when a caller-supplied session id already exists.
	ErrDuplicateID = errors.New("session id already in use")

	// ErrSessionNotFound is returned when a session id is not in the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveSession is returned when a command targets the active session
	// and none is set.
	ErrNoActiveSession = errors.New("no active session")

	// ErrViewTimeout is returned when a rendered-mode view request receives no
	// reply from the helper within the configured timeout.
	ErrViewTimeout = errors.New("view request timed out")

	// ErrProcClosed is returned when writing to a subprocess that has exited.
	ErrProcClosed = errors.New("process is closed")
)
