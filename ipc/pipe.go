//go:build linux

// Package ipc provides the POSIX primitives the MET protocol is built on:
// non-blocking pipe pairs, kernel event counters, POSIX shared memory, and
// the fork-exec/process-group plumbing that hands descriptors to children.
// It generalizes the teacher's hand-rolled epoll wrapper to the wider
// golang.org/x/sys/unix surface the rest of this stack's IPC rides on.
package ipc

import (
	"os"

	"golang.org/x/sys/unix"
)

// Pipe is one half-duplex, non-blocking, close-on-exec unidirectional byte
// pipe.
type Pipe struct {
	Read, Write int
}

// NewPipe creates a non-blocking, close-on-exec pipe pair (one request or
// broadcast pipe, per §3).
func NewPipe() (Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return Pipe{}, err
	}
	return Pipe{Read: fds[0], Write: fds[1]}, nil
}

// Close closes both ends of the pipe.
func (p Pipe) Close() error {
	err1 := unix.Close(p.Read)
	err2 := unix.Close(p.Write)
	if err1 != nil {
		return err1
	}
	return err2
}

// SetBlocking toggles O_NONBLOCK on fd, returning the previous flag value so
// the caller can restore it (§4.4's "preserving the original status flag on
// return").
func SetBlocking(fd int, blocking bool) (previous bool, err error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, err
	}
	previous = flags&unix.O_NONBLOCK == 0

	want := flags
	if blocking {
		want &^= unix.O_NONBLOCK
	} else {
		want |= unix.O_NONBLOCK
	}
	if want != flags {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, want); err != nil {
			return previous, err
		}
	}
	return previous, nil
}

// linuxPipeBuf is PIPE_BUF as defined by linux/limits.h: the guaranteed
// atomic write size for a pipe, independent of its configured capacity.
const linuxPipeBuf = 4096

// AtomicUnit computes AWMSIG: the pipe's guaranteed atomic write size, in
// signal units, derived from min(PIPE_BUF, page_size) / unitSize (§3, §6).
func AtomicUnit(unitSize int) int {
	awm := os.Getpagesize()
	if linuxPipeBuf < awm {
		awm = linuxPipeBuf
	}
	return awm / unitSize
}
