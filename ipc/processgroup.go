//go:build linux

package ipc

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcessGroup manages the single foreground process group shared by the
// server and every controller it spawns (§6). Keeping the group in one
// place lets the shutdown sequence deliver one signal to every surviving
// child regardless of how many have already exited.
type ProcessGroup struct {
	pgid int
}

// NewProcessGroup creates a group rooted at the calling process (the
// server) and, if the controlling terminal is available, makes it the
// foreground group so ^C and ^\ reach the whole tree.
func NewProcessGroup() (*ProcessGroup, error) {
	pid := unix.Getpid()
	if err := unix.Setpgid(pid, pid); err != nil {
		return nil, err
	}
	pg := &ProcessGroup{pgid: pid}
	_ = pg.Foreground() // best effort; no controlling tty when detached
	return pg, nil
}

// Pgid returns the process group id new children should join.
func (p *ProcessGroup) Pgid() int {
	return p.pgid
}

// Foreground makes the group the terminal's foreground process group.
// Errors are swallowed by callers that run without a controlling terminal.
func (p *ProcessGroup) Foreground() error {
	return unix.IoctlSetPointerInt(unix.Stdin, unix.TIOCSPGRP, p.pgid)
}

// Signal delivers sig to every process in the group (kill(-pgid, sig), §6's
// shutdown sequence: mquit broadcast, grace period, then killpg).
func (p *ProcessGroup) Signal(sig syscall.Signal) error {
	return unix.Kill(-p.pgid, sig)
}
