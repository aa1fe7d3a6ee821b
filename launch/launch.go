// Package launch builds the commands for configured tools.
// Commands are always executed directly with an argument vector, never through a shell.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/guseggert/osinthub/tool"
)

// unbufferedEnv stops Python-based tools from holding their output until exit.
var unbufferedEnv = []string{"PYTHONUNBUFFERED=1"}

// SpawnError is returned when the OS refuses to create a tool's process.
type SpawnError struct {
	ToolID string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s: %s", e.ToolID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

type Launcher struct {
	Tools *tool.Table
}

// CLI returns an unstarted command for a one-shot CLI scan of target.
// The command runs in its own process group so the whole tree can be signaled.
func (l *Launcher) CLI(id, target string) (*exec.Cmd, error) {
	desc, err := l.Tools.CLI(id)
	if err != nil {
		return nil, err
	}
	args, err := tool.BuildArgs(id, target)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(desc.Command, args...)
	cmd.Dir = desc.Dir
	cmd.Env = append(os.Environ(), unbufferedEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// Service returns an unstarted command for a service with its output discarded.
func (l *Launcher) Service(id string) (*exec.Cmd, error) {
	desc, err := l.Tools.Service(id)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Dir = desc.Dir
	return cmd, nil
}

// Start starts cmd, wrapping any failure in a SpawnError.
func Start(id string, cmd *exec.Cmd) error {
	err := cmd.Start()
	if err != nil {
		return &SpawnError{ToolID: id, Err: err}
	}
	return nil
}
