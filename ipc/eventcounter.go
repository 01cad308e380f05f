//go:build linux

package ipc

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// EventCounter wraps a Linux eventfd(2) object: a kernel-maintained 64-bit
// counter used as the handshake signal between a shared-memory writer and
// its readers (§4.5's "notify waiters that the slot has been updated").
type EventCounter struct {
	fd int
}

// NewEventCounter creates an eventfd with the given initial value.
// Semaphore selects EFD_SEMAPHORE mode: each Read consumes exactly one unit
// of the counter rather than draining it to zero, which is how a reader's
// per-reader writer counter yields one posted write per Read (§4.5).
func NewEventCounter(initval uint, semaphore bool) (*EventCounter, error) {
	flags := unix.EFD_NONBLOCK | unix.EFD_CLOEXEC
	if semaphore {
		flags |= unix.EFD_SEMAPHORE
	}
	fd, err := unix.Eventfd(initval, flags)
	if err != nil {
		return nil, err
	}
	return &EventCounter{fd: fd}, nil
}

// OpenEventCounterFd wraps an already-open eventfd descriptor inherited
// across fork/exec (§3), rather than creating a new one.
func OpenEventCounterFd(fd int) *EventCounter {
	return &EventCounter{fd: fd}
}

// Fd returns the underlying file descriptor, for registration with an Epoll.
func (e *EventCounter) Fd() int {
	return e.fd
}

// Close closes the eventfd.
func (e *EventCounter) Close() error {
	return unix.Close(e.fd)
}

// Signal adds n to the counter, waking any blocked or polling reader.
func (e *EventCounter) Signal(n uint64) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], n)
	_, err := unix.Write(e.fd, buf[:])
	return err
}

// Read returns the current counter value (or, in semaphore mode, consumes
// one unit and returns 1), resetting the non-semaphore counter to zero.
// unix.EAGAIN is returned unwrapped when the counter is currently zero so
// callers can select on it the same way they would a would-block read.
func (e *EventCounter) Read() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(e.fd, buf[:])
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}
