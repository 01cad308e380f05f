package controller

import "errors"

var (
	errBroadcastClosed   = errors.New("controller: broadcast pipe closed unexpectedly")
	errFractionalSignal  = errors.New("controller: fractional signal residue on broadcast pipe")
	errReaderIsWriter     = errors.New("controller: blocking use of a slot this controller both reads and writes")
	errWriteRoleMissing   = errors.New("controller: slot has no writer role")
	errReadRoleMissing    = errors.New("controller: slot has no reader role")
	errBlockingNeedsOneRole = errors.New("controller: blocking slot access requires a single role, not both")
	errBadCounterValue    = errors.New("controller: writer event counter carried a value other than 0 or 1")
)
