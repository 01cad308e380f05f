package router

import (
	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// validate checks one decoded signal against the protocol state machine
// (§4.2), its cargo range (§3), and its time bounds (§3), in that order —
// matching the precedence implied by the error kind list in §7
// (source/signal/cargo/time).
func (r *Router) validate(owner uint8, s signal.Signal) error {
	if s.Source != owner {
		return &pkg.Error{Kind: pkg.PBSRC, Op: "router.validate", Err: errUnexpectedSource}
	}
	if !signal.Legal(r.machine.State(), s.ID) {
		return &pkg.Error{Kind: pkg.PBSIG, Op: "router.validate", Err: errIllegalSignal}
	}
	if !signal.CargoValid(s.ID, s.Cargo) {
		return &pkg.Error{Kind: pkg.PBCRG, Op: "router.validate", Err: errBadCargo}
	}
	if !signal.TimeValid(s.Time) {
		return &pkg.Error{Kind: pkg.PBTIM, Op: "router.validate", Err: errBadTime}
	}
	return nil
}

// applyTransition updates protocol state for an already-validated signal,
// per §4.2's transition table. It reports whether this signal closed the
// readiness barrier (all N controllers replied), which the caller must
// follow with a synthesized mstart in the same broadcast cycle.
func (r *Router) applyTransition(owner uint8, s signal.Signal) (barrierClosed bool, err error) {
	switch s.ID {
	case signal.Ready:
		result, done := r.machine.Ready(owner, s.Cargo)
		switch result {
		case signal.ReadyBadCargo:
			return false, &pkg.Error{Kind: pkg.PBCRG, Op: "router.applyTransition", Err: errBadReadyCargo}
		case signal.ReadyDuplicate:
			return false, &pkg.Error{Kind: pkg.PBSIG, Op: "router.applyTransition", Err: errDuplicateReply}
		}
		return done, nil

	case signal.Stop:
		r.machine.StopOrAbort()

	case signal.Wait:
		switch r.machine.State() {
		case signal.TrialInit, signal.WaitMstart:
			r.machine.StopOrAbort()
		case signal.Run:
			if s.Cargo == signal.WaitAbort {
				r.machine.StopOrAbort()
			}
		}
	}
	return false, nil
}
