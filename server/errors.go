package server

import "errors"

var (
	errBarrierTimeout    = errors.New("server: initial-ready barrier timed out")
	errBarrierClosed     = errors.New("server: request pipe closed during initial-ready barrier")
	errBarrierFractional = errors.New("server: fractional signal on request pipe during initial-ready barrier")
	errBarrierSource     = errors.New("server: signal source mismatch during initial-ready barrier")
	errBarrierUnexpected = errors.New("server: expected mready(reply) during initial-ready barrier")
	errBarrierDuplicate  = errors.New("server: duplicate mready(reply) during initial-ready barrier")
)
