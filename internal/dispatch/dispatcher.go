// Package dispatch routes inbound protocol messages to registry and session
// operations.
package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/andyk/termmux/internal/protocol"
	"github.com/andyk/termmux/internal/session"
)

// Replier receives observations addressed only to the triggering client.
// Command failures go here; successful results broadcast to everyone.
type Replier interface {
	Send(data []byte)
}

// Dispatcher parses inbound messages and invokes registry and session
// operations. It holds no state of its own beyond its collaborators, and a
// malformed message never crashes it or closes the connection.
type Dispatcher struct {
	registry    *session.Registry
	broadcaster session.Broadcaster
	logger      *zap.Logger
}

// New creates a dispatcher.
func New(registry *session.Registry, broadcaster session.Broadcaster, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// HandleMessage processes one raw inbound message from a client.
func (d *Dispatcher) HandleMessage(client Replier, raw []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.logger.Warn("malformed message", zap.ByteString("raw", raw), zap.Error(err))
		return
	}

	switch cmd.Type {
	case protocol.CmdNewSession:
		d.handleNewSession(client, cmd.Payload)
	case protocol.CmdRunCommand:
		d.handleInput(cmd.Payload, true)
	case protocol.CmdInput:
		d.handleInput(cmd.Payload, false)
	case protocol.CmdSwitchToSession:
		d.handleSwitch(client, cmd.Payload)
	case protocol.CmdWhichSessionActive:
		d.handleWhichActive()
	case protocol.CmdListSessions:
		d.handleList()
	case protocol.CmdLookAtSession:
		d.handleLookAt(client, cmd.Payload)
	case protocol.CmdLookAtActive:
		d.handleLookAt(client, nil)
	case protocol.CmdResize:
		d.handleResize(cmd.Payload)
	case protocol.CmdCloseSession:
		d.handleClose(client, cmd.Payload)
	default:
		d.logger.Warn("unknown command type", zap.String("type", string(cmd.Type)))
	}
}

func (d *Dispatcher) handleNewSession(client Replier, payload json.RawMessage) {
	var p protocol.NewSessionPayload
	if !d.parsePayload(payload, &p) {
		return
	}

	s, err := d.registry.Create(p.ID, p.BinaryPath, p.BinaryArgs)
	if err != nil {
		client.Send(protocol.Observation(fmt.Sprintf("failed to create session: %v", err)))
		return
	}
	d.broadcaster.Broadcast(protocol.Observation(
		fmt.Sprintf("created session %s and made it active", s.ID())))
}

// handleInput writes text to the active session. runCommand appends a
// trailing newline; raw input is sent verbatim. A write to an already-exited
// session is logged, not surfaced.
func (d *Dispatcher) handleInput(payload json.RawMessage, appendNewline bool) {
	var p protocol.TextPayload
	if !d.parsePayload(payload, &p) {
		return
	}

	s, ok := d.registry.Active()
	if !ok {
		d.broadcaster.Broadcast(protocol.Observation("no sessions open"))
		return
	}

	text := p.Text
	if appendNewline {
		text += "\n"
	}
	if err := s.Write(text); err != nil {
		d.logger.Warn("write to session failed",
			zap.String("session", s.ID()), zap.Error(err))
	}
}

func (d *Dispatcher) handleSwitch(client Replier, payload json.RawMessage) {
	var p protocol.SessionPayload
	if !d.parsePayload(payload, &p) {
		return
	}

	if err := d.registry.SwitchTo(p.ID); err != nil {
		client.Send(protocol.Observation(fmt.Sprintf("failed to switch session: %v", err)))
		return
	}
	d.broadcaster.Broadcast(protocol.Observation(
		fmt.Sprintf("switched to session %s", p.ID)))
}

func (d *Dispatcher) handleWhichActive() {
	if id, ok := d.registry.ActiveID(); ok {
		d.broadcaster.Broadcast(protocol.Observation(
			fmt.Sprintf("active session is %s", id)))
		return
	}
	d.broadcaster.Broadcast(protocol.Observation("no active session"))
}

func (d *Dispatcher) handleList() {
	ids := d.registry.List()
	if len(ids) == 0 {
		d.broadcaster.Broadcast(protocol.Observation("no sessions open"))
		return
	}
	d.broadcaster.Broadcast(protocol.Observation(
		fmt.Sprintf("sessions: %s", strings.Join(ids, ", "))))
}

// handleLookAt broadcasts the full view of the targeted session: the joined
// history in direct mode, the helper's screen snapshot in rendered mode.
func (d *Dispatcher) handleLookAt(client Replier, payload json.RawMessage) {
	var p protocol.SessionPayload
	if payload != nil && !d.parsePayload(payload, &p) {
		return
	}

	var (
		s  *session.Session
		ok bool
	)
	if p.ID != "" {
		s, ok = d.registry.Get(p.ID)
		if !ok {
			client.Send(protocol.Observation(fmt.Sprintf("session not found: %s", p.ID)))
			return
		}
	} else {
		s, ok = d.registry.Active()
		if !ok {
			client.Send(protocol.Observation("no active session"))
			return
		}
	}

	view, err := s.View()
	if err != nil {
		client.Send(protocol.Observation(
			fmt.Sprintf("failed to get view of session %s: %v", s.ID(), err)))
		return
	}
	d.broadcaster.Broadcast(protocol.Observation(
		fmt.Sprintf("view of session %s:\n%s", s.ID(), view)))
}

func (d *Dispatcher) handleResize(payload json.RawMessage) {
	var p protocol.ResizePayload
	if !d.parsePayload(payload, &p) {
		return
	}
	if p.Cols == 0 || p.Rows == 0 {
		return
	}

	s, ok := d.registry.Active()
	if !ok {
		d.broadcaster.Broadcast(protocol.Observation("no sessions open"))
		return
	}
	if err := s.Resize(p.Cols, p.Rows); err != nil {
		d.logger.Warn("resize failed", zap.String("session", s.ID()), zap.Error(err))
	}
}

func (d *Dispatcher) handleClose(client Replier, payload json.RawMessage) {
	var p protocol.SessionPayload
	if payload != nil && !d.parsePayload(payload, &p) {
		return
	}

	id := p.ID
	if id == "" {
		var ok bool
		id, ok = d.registry.ActiveID()
		if !ok {
			client.Send(protocol.Observation("no active session"))
			return
		}
	}

	if err := d.registry.Close(id); err != nil {
		client.Send(protocol.Observation(fmt.Sprintf("failed to close session: %v", err)))
	}
	// The exit observation broadcasts once the process is reaped.
}

// parsePayload unmarshals a payload, treating an absent payload as empty.
// Malformed payloads are logged and the command is ignored.
func (d *Dispatcher) parsePayload(payload json.RawMessage, into any) bool {
	if len(payload) == 0 {
		return true
	}
	if err := json.Unmarshal(payload, into); err != nil {
		d.logger.Warn("malformed payload", zap.ByteString("payload", payload), zap.Error(err))
		return false
	}
	return true
}
