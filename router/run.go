package router

import (
	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// Run drives the signal-routing loop (§4.1) until an accepted mquit or a
// protocol/IPC breach terminates it. The returned error's Kind (via
// pkg.KindOf) is the accumulated error cargo the caller broadcasts in the
// final mquit and reports as the process exit code (§7).
func (r *Router) Run() error {
	for {
		if r.flags.TakeChild() {
			return &pkg.Error{Kind: pkg.CHLD, Op: "router.Run", Err: errUnexpectedChild}
		}
		if r.flags.TakeShutdown() {
			return &pkg.Error{Kind: pkg.INTR, Op: "router.Run", Err: errInterrupted}
		}

		r.ready = r.ready[:0]
		if _, err := r.poll.Wait(pollInterval); err != nil {
			return &pkg.Error{Kind: pkg.SYSER, Op: "router.Run", Err: err}
		}
		if len(r.ready) == 0 {
			continue
		}

		batch, quit, err := r.cycle()
		if err != nil {
			r.log.Errorw("protocol breach, aborting router", "error", err)
			final := signal.Signal{Source: 0, ID: signal.Quit, Cargo: uint16(pkg.KindOf(err)), Time: r.wallClock()}
			r.broadcast([]signal.Signal{final})
			return err
		}

		if berr := r.broadcast(batch); berr != nil {
			return berr
		}

		if quit != nil {
			return quit.asError()
		}
	}
}

// quitResult carries the cargo of an accepted mquit out of a cycle once it
// has been successfully broadcast.
type quitResult struct {
	cargo uint16
}

func (q *quitResult) asError() error {
	if q.cargo == 0 {
		return nil
	}
	return &pkg.Error{Kind: pkg.Kind(q.cargo), Op: "router.Run", Err: errAcceptedQuit}
}

// cycle processes every request pipe that became ready in one epoll
// iteration: it reads, validates, and transitions state for each signal in
// pipe-read order (§4.1 steps 2-4), synthesizing mstart if the readiness
// barrier closes during this cycle.
func (r *Router) cycle() (batch []signal.Signal, quit *quitResult, err error) {
	barrierClosed := false

	for _, fd := range r.ready {
		owner, ok := r.controllerFor(fd)
		if !ok {
			continue
		}

		signals, rerr := r.readPipe(fd)
		if rerr != nil {
			return nil, nil, rerr
		}

		for _, s := range signals {
			if verr := r.validate(owner, s); verr != nil {
				return nil, nil, verr
			}

			done, terr := r.applyTransition(owner, s)
			if terr != nil {
				return nil, nil, terr
			}
			if done {
				barrierClosed = true
			}

			batch = append(batch, s)
			if s.ID == signal.Quit {
				quit = &quitResult{cargo: s.Cargo}
			}
		}
	}

	if barrierClosed {
		idx, ierr := r.trialIndex()
		if ierr != nil {
			return nil, nil, &pkg.Error{Kind: pkg.SYSER, Op: "router.cycle", Err: ierr}
		}
		mstart := signal.Signal{Source: 0, ID: signal.Start, Cargo: idx, Time: r.wallClock()}
		batch = append(batch, mstart)
		r.machine.Mstart()
	}

	return batch, quit, nil
}

// readPipe reads as many whole signals as fit in an AWMSIG-1 buffer
// (§4.1 step 2, one slot reserved for a possible synthesized mstart).
func (r *Router) readPipe(fd int) ([]signal.Signal, error) {
	owner, _ := r.controllerFor(fd)

	buf := make([]byte, (r.awmsig-1)*signal.Size)
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err == unix.EPIPE || err == unix.EBADF {
			return nil, &pkg.Error{Kind: pkg.BRKRP, Op: "router.readPipe", Err: err}
		}
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "router.readPipe", Err: err}
	}
	if n == 0 {
		return nil, &pkg.Error{Kind: pkg.BRKRP, Op: "router.readPipe", Err: errUnexpectedEOF}
	}

	signals, residue := signal.DecodeBatch(buf[:n])
	if residue != 0 {
		r.log.Warnw("fractional signal residue", "controller", owner, "bytes", residue)
		return nil, &pkg.Error{Kind: pkg.PBSIG, Op: "router.readPipe", Err: errFractionalRead}
	}
	return signals, nil
}
