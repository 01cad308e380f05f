package router

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// broadcast writes batch atomically to every controller's broadcast pipe
// (§4.1 step 5). It attempts every pipe even after one fails (§4.1 step 6)
// and returns the first error observed, attributed to its owning
// controller, once the full set has been attempted.
func (r *Router) broadcast(batch []signal.Signal) error {
	if len(batch) == 0 {
		return nil
	}
	if len(batch) > r.awmsig {
		batch = batch[:r.awmsig]
	}
	payload := signal.EncodeBatch(batch)

	var first error
	for _, c := range r.controllers {
		if err := writeAtomic(c.BroadcastFd, payload); err != nil {
			wrapped := r.wrapBroadcastErr(c.ID, err)
			r.log.Errorw("broadcast failed", "controller", c.ID, "error", wrapped)
			if first == nil {
				first = wrapped
			}
			continue
		}
	}
	return first
}

// writeAtomic writes the whole payload in one call, relying on the
// AWMSIG/PIPE_BUF guarantee (§4.1 step 5) that it cannot tear. Unlike
// Endpoint.Send (§4.4), the router never retries a would-block broadcast —
// a reader that has not drained is a protocol-level condition (CLGBP), not
// a transient one to wait out.
func writeAtomic(fd int, payload []byte) error {
	_, err := unix.Write(fd, payload)
	return err
}

func (r *Router) wrapBroadcastErr(id uint8, err error) error {
	op := fmt.Sprintf("router.broadcast(controller=%d)", id)
	switch err {
	case unix.EAGAIN:
		return &pkg.Error{Kind: pkg.CLGBP, Op: op, Err: err}
	case unix.EPIPE, unix.EBADF, unix.ECONNRESET:
		return &pkg.Error{Kind: pkg.BRKBP, Op: op, Err: err}
	default:
		return &pkg.Error{Kind: pkg.SYSER, Op: op, Err: err}
	}
}
