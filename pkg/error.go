package pkg

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a MET protocol or lifecycle error. The 15
// values and their ordering match met.h exactly; the zero value is the
// no-error case so a zeroed Error never needs special-casing.
type Kind int

// MET error kinds (met.h).
const (
	NONE  Kind = iota // no error
	PBSRC             // source field protocol breach
	PBSIG             // signal id protocol breach
	PBCRG             // cargo protocol breach
	PBTIM             // time field protocol breach
	SYSER             // unexpected OS error
	BRKBP             // broken broadcast pipe
	BRKRP             // broken request pipe
	CLGBP             // clogged (would-block) broadcast pipe
	CLGRP             // clogged (would-block) request pipe
	CHLD              // unexpected child termination
	INTR              // external interrupt
	INTRN             // internal invariant violation
	TMOUT             // timeout on a bounded wait
	MATLB             // embedding-runtime error reported by a child
)

// String returns the met.h mnemonic for the kind.
func (k Kind) String() string {
	switch k {
	case NONE:
		return "NONE"
	case PBSRC:
		return "PBSRC"
	case PBSIG:
		return "PBSIG"
	case PBCRG:
		return "PBCRG"
	case PBTIM:
		return "PBTIM"
	case SYSER:
		return "SYSER"
	case BRKBP:
		return "BRKBP"
	case BRKRP:
		return "BRKRP"
	case CLGBP:
		return "CLGBP"
	case CLGRP:
		return "CLGRP"
	case CHLD:
		return "CHLD"
	case INTR:
		return "INTR"
	case INTRN:
		return "INTRN"
	case TMOUT:
		return "TMOUT"
	case MATLB:
		return "MATLB"
	default:
		return "unknown"
	}
}

// Protocol reports whether k is one of the four protocol-breach kinds
// (PBSRC/PBSIG/PBCRG/PBTIM), the class the router treats as immediately
// fatal rather than retryable.
func (k Kind) Protocol() bool {
	switch k {
	case PBSRC, PBSIG, PBCRG, PBTIM:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with the MET kind and the operation that
// produced it, mirroring the met.h convention of attributing every non-NONE
// error to exactly one kind before it becomes mquit cargo.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err if err is (or wraps) an *Error,
// and NONE otherwise.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return NONE
}

// Sentinel conditions that never carry a kind-specific cargo value of their
// own; callers attach a Kind via Error when one is needed.
var (
	// ErrShutdown indicates the lifecycle manager is already tearing down
	// and rejects a new operation.
	ErrShutdown = errors.New("metcore: shutdown in progress")

	// ErrClosed indicates an operation on an already-closed resource.
	ErrClosed = errors.New("metcore: resource closed")

	// ErrNotReady indicates an operation attempted before the barrier that
	// makes it legal.
	ErrNotReady = errors.New("metcore: not ready")
)
