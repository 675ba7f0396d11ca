// termview is the rendered-mode helper: it runs a shell under a PTY, buffers
// the shell's output as a screen backlog, and answers input/resize/getView
// requests read from stdin with single-line JSON replies on stdout. It exits
// when the shell exits or stdin closes.
package main

import (
	"fmt"
	"os"

	"github.com/andyk/termmux/internal/pty"
	"github.com/andyk/termmux/internal/view"
)

func main() {
	command := os.Getenv("SHELL")
	var args []string
	if len(os.Args) > 1 {
		command = os.Args[1]
		args = os.Args[2:]
	}
	if command == "" {
		command = "/bin/sh"
	}

	proc, err := pty.Start(pty.StartOptions{
		Command: command,
		Args:    args,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "termview: %v\n", err)
		os.Exit(1)
	}

	renderer := view.NewRenderer(&terminal{proc: proc}, view.DefaultBacklogSize)

	// Serve requests until the daemon closes our stdin.
	go func() {
		if err := renderer.Run(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "termview: %v\n", err)
		}
		proc.Kill()
	}()

	exitCode, err := proc.Wait()
	proc.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termview: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// terminal adapts the PTY process to the renderer's terminal surface.
type terminal struct {
	proc *pty.Process
}

func (t *terminal) Read(p []byte) (int, error)  { return t.proc.Master.Read(p) }
func (t *terminal) Write(p []byte) (int, error) { return t.proc.Master.Write(p) }
func (t *terminal) Resize(cols, rows uint16) error {
	return t.proc.Resize(cols, rows)
}
