//go:build linux

package ipc

import (
	"fmt"
	"os"
	"syscall"
)

// ChildSpec describes one MET controller child process: its executable,
// argv, environment, and the already-open descriptors it inherits (stdio,
// then the request pipe write end, the broadcast pipe read end, and any
// shared-memory slot descriptors) in fd-table order (§6).
type ChildSpec struct {
	Path  string
	Argv  []string
	Env   []string
	Files []uintptr
	Dir   string

	// Pgid is the target process group. Zero means "found a new group
	// rooted at this child"; nonzero joins an existing group (§6's "one
	// foreground process group shared by the server and every child").
	Pgid int
}

// ForkExec starts one controller child via the raw fork/exec syscall pair
// (as opposed to os/exec, which does not expose process-group placement at
// fork time), returning its pid. Placing the child in its process group
// before exec eliminates the race window in which a stray signal could
// reach it under the wrong group.
func ForkExec(spec ChildSpec) (pid int, err error) {
	attr := &syscall.ProcAttr{
		Dir:   spec.Dir,
		Env:   spec.Env,
		Files: spec.Files,
		Sys: &syscall.SysProcAttr{
			Setpgid: true,
			Pgid:    spec.Pgid,
		},
	}

	pid, err = syscall.ForkExec(spec.Path, spec.Argv, attr)
	if err != nil {
		return 0, fmt.Errorf("ipc: fork/exec %s: %w", spec.Path, err)
	}
	return pid, nil
}

// StdFiles returns the stdio descriptor triple for a ChildSpec.Files slice
// that inherits the server's own stdin/stdout/stderr.
func StdFiles() []uintptr {
	return []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd()}
}
