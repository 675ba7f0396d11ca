//go:build windows

package session

import "os/exec"

// exitSignal reports the terminating signal name. Windows has no POSIX
// signals, so this is always empty.
func exitSignal(cmd *exec.Cmd) string {
	return ""
}
