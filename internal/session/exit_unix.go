//go:build !windows

package session

import (
	"os/exec"
	"syscall"
)

// exitSignal reports the terminating signal name, or "" for a clean exit.
func exitSignal(cmd *exec.Cmd) string {
	ps := cmd.ProcessState
	if ps == nil {
		return ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ws.Signal().String()
	}
	return ""
}
