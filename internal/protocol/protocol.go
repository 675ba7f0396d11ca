// Package protocol defines the wire messages exchanged with socket clients
// and the stdin/stdout micro-protocol spoken by the rendered-mode helper.
package protocol

import (
	"encoding/json"
	"fmt"
)

// CommandType identifies an inbound client command.
type CommandType string

const (
	CmdNewSession         CommandType = "newSession"
	CmdRunCommand         CommandType = "runCommand"
	CmdInput              CommandType = "input"
	CmdSwitchToSession    CommandType = "switchToSession"
	CmdWhichSessionActive CommandType = "whichSessionActive"
	CmdListSessions       CommandType = "listSessions"
	CmdLookAtSession      CommandType = "lookAtSession"
	CmdLookAtActive       CommandType = "lookAtActiveSession"
	CmdResize             CommandType = "resize"
	CmdCloseSession       CommandType = "closeSession"
)

// Command is one inbound message: a type and a type-specific payload.
// One command per line on the TCP transport, one per text frame on WebSocket.
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewSessionPayload creates a session. All fields are optional: a missing id
// is generated, a missing binary path falls back to the configured shell.
type NewSessionPayload struct {
	ID         string   `json:"id,omitempty"`
	BinaryPath string   `json:"binaryPath,omitempty"`
	BinaryArgs []string `json:"binaryArgs,omitempty"`
}

// TextPayload carries input text for runCommand and input.
type TextPayload struct {
	Text string `json:"text"`
}

// SessionPayload names a session by id.
type SessionPayload struct {
	ID string `json:"id"`
}

// ResizePayload carries new terminal dimensions.
type ResizePayload struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ObservationPrefix starts every outbound broadcast line.
const ObservationPrefix = "observation: "

// Observation formats an outbound broadcast message. Outbound messages are
// plain human-readable text, not structured JSON.
func Observation(text string) []byte {
	return []byte(ObservationPrefix + text)
}

// OutputObservation formats the coalesced session-output broadcast. The relay
// and the registry's exit path emit the same shape.
func OutputObservation(sessionID, output string) []byte {
	return Observation(fmt.Sprintf("new output from session %s:\n%s", sessionID, output))
}
