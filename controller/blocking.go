package controller

import "github.com/jsdpag/metcore/ipc"

// setBlocking toggles fd's O_NONBLOCK flag, returning the flag's prior
// blocking state so the caller can restore it (§4.4, §4.5's "preserving
// the original status flag on return").
func setBlocking(fd int, blocking bool) (wasBlocking bool, err error) {
	return ipc.SetBlocking(fd, blocking)
}

// restoreBlocking best-effort restores fd's blocking mode captured by a
// prior setBlocking call.
func restoreBlocking(fd int, wasBlocking bool) {
	_, _ = ipc.SetBlocking(fd, wasBlocking)
}
