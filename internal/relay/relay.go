// Package relay coalesces buffered session output into broadcast messages.
package relay

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/protocol"
	"github.com/andyk/termmux/internal/session"
)

// Relay decouples "a fragment arrived" from "a fragment was sent": sessions
// accumulate output between ticks, and each tick flushes every session with
// pending output as one coalesced observation. A quiet session produces
// nothing; a chatty one produces at most one message per interval.
type Relay struct {
	registry    *session.Registry
	broadcaster session.Broadcaster
	interval    time.Duration
	logger      *zap.Logger
}

// New creates a relay flushing on the given interval.
func New(registry *session.Registry, broadcaster session.Broadcaster, interval time.Duration, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry:    registry,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logger,
	}
}

// Run ticks until ctx is cancelled, then performs one final flush so
// buffered output is not lost at shutdown.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-ctx.Done():
			r.Flush()
			return
		}
	}
}

// Flush drains every session's pending output and broadcasts one observation
// per session that had any. Fragments stay in arrival order; sessions flush
// in registry insertion order. Returns the number of messages broadcast.
func (r *Relay) Flush() int {
	flushed := 0
	for _, s := range r.registry.Sessions() {
		fragments := s.TakePending()
		if len(fragments) == 0 {
			continue
		}

		r.broadcaster.Broadcast(protocol.OutputObservation(s.ID(), strings.Join(fragments, "")))
		flushed++

		r.logger.Debug("flushed session output",
			zap.String("session", s.ID()),
			zap.Int("fragments", len(fragments)))
	}
	return flushed
}
