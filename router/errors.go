package router

import "errors"

var (
	errBadControllerCount = errors.New("router: controller count must be 1..=15")
	errFractionalRead      = errors.New("router: fractional signal residue on request pipe")
	errDuplicateReply      = errors.New("router: duplicate mready(reply) from controller")
	errBadReadyCargo       = errors.New("router: mready cargo illegal for current protocol state")
	errUnexpectedSource    = errors.New("router: signal source does not match owning controller")
	errIllegalSignal       = errors.New("router: signal illegal in current protocol state")
	errBadCargo            = errors.New("router: cargo out of range for signal id")
	errBadTime             = errors.New("router: time field out of range")
	errUnexpectedChild     = errors.New("router: unexpected child termination")
	errInterrupted         = errors.New("router: external interrupt")
	errAcceptedQuit        = errors.New("router: terminated on accepted mquit")
	errUnexpectedEOF       = errors.New("router: request pipe closed unexpectedly")
)
