// Package controller implements the child-side IPC primitives each MET
// controller uses to cooperate with the server and its siblings (§4.3,
// §4.4, §4.5): the signal endpoint, the readiness multiplexer, and the
// shared-memory slot read/write handshake.
package controller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// Endpoint is one controller's signal send/receive primitive (§4.4): a
// non-blocking/blocking send to the request pipe and a non-blocking/
// blocking receive from the broadcast pipe, both bounded by AWMSIG.
type Endpoint struct {
	id       uint8
	reqFd    int // child→server, write end
	bcastFd  int // server→child, read end
	awmsig   int
	now      func() time.Time
}

// NewEndpoint builds the signal endpoint for controller id, given the write
// end of its request pipe and the read end of its broadcast pipe (the
// halves the lifecycle manager hands to this child at fork).
func NewEndpoint(id uint8, requestWriteFd, broadcastReadFd, awmsig int) *Endpoint {
	return &Endpoint{id: id, reqFd: requestWriteFd, bcastFd: broadcastReadFd, awmsig: awmsig, now: time.Now}
}

// Request is one signal to send, before the source and (possibly) the time
// fields are stamped by Send.
type Request struct {
	ID    signal.ID
	Cargo uint16
	// Time is the signal's wall-clock stamp. Leave it nil to let Send take a
	// single reading and apply it to every Request in the same call (§4.4).
	Time *float64
}

// Send stamps each Request with this controller's id, clamps the batch to
// AWMSIG, and writes it to the request pipe in one call, retrying a
// partial write until the whole batch lands (§4.4). blocking selects
// whether the pipe is switched to blocking mode for the duration of this
// call; its prior mode is restored before returning. It reports the number
// of signals accepted — always len(batch) after clamping, since a
// successful call always writes the whole (possibly clamped) batch.
func (e *Endpoint) Send(reqs []Request, blocking bool) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	if len(reqs) > e.awmsig {
		reqs = reqs[:e.awmsig]
	}

	var wallClock float64
	needClock := false
	for _, r := range reqs {
		if r.Time == nil {
			needClock = true
			break
		}
	}
	if needClock {
		wallClock = e.wallClock()
	}

	sigs := make([]signal.Signal, len(reqs))
	for i, r := range reqs {
		t := wallClock
		if r.Time != nil {
			t = *r.Time
		}
		sigs[i] = signal.Signal{Source: e.id, ID: r.ID, Cargo: r.Cargo, Time: t}
	}

	wasBlocking, serr := setBlocking(e.reqFd, blocking)
	if serr != nil {
		return 0, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Send", Err: serr}
	}
	defer restoreBlocking(e.reqFd, wasBlocking)

	payload := signal.EncodeBatch(sigs)
	if werr := writeFull(e.reqFd, payload); werr != nil {
		return 0, werr
	}
	return len(sigs), nil
}

// Receive reads up to AWMSIG signals from the broadcast pipe in a single
// call (§4.4). blocking selects whether the pipe is switched to blocking
// mode for the duration of this call. A fractional final signal is a
// protocol breach (PBSIG). Receive returns (nil, nil) when the pipe is
// non-blocking and currently has no data.
func (e *Endpoint) Receive(blocking bool) ([]signal.Signal, error) {
	wasBlocking, err := setBlocking(e.bcastFd, blocking)
	if err != nil {
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Receive", Err: err}
	}
	defer restoreBlocking(e.bcastFd, wasBlocking)

	buf := make([]byte, e.awmsig*signal.Size)
	n, rerr := readRetry(e.bcastFd, buf)
	if rerr != nil {
		if rerr == unix.EAGAIN {
			return nil, nil
		}
		if rerr == unix.EPIPE || rerr == unix.EBADF {
			return nil, &pkg.Error{Kind: pkg.BRKBP, Op: "controller.Receive", Err: rerr}
		}
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Receive", Err: rerr}
	}
	if n == 0 {
		return nil, &pkg.Error{Kind: pkg.BRKBP, Op: "controller.Receive", Err: errBroadcastClosed}
	}

	sigs, residue := signal.DecodeBatch(buf[:n])
	if residue != 0 {
		return nil, &pkg.Error{Kind: pkg.PBSIG, Op: "controller.Receive", Err: errFractionalSignal}
	}
	return sigs, nil
}

func (e *Endpoint) wallClock() float64 {
	t := e.now()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// writeFull writes the whole payload, retrying a partial write and EINTR,
// and classifying EAGAIN/EPIPE into the clogged/broken request-pipe kinds
// (§4.4, §7).
func writeFull(fd int, payload []byte) error {
	written := 0
	for written < len(payload) {
		n, err := unix.Write(fd, payload[written:])
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return &pkg.Error{Kind: pkg.CLGRP, Op: "controller.Send", Err: err}
			case unix.EPIPE, unix.EBADF:
				return &pkg.Error{Kind: pkg.BRKRP, Op: "controller.Send", Err: err}
			default:
				return &pkg.Error{Kind: pkg.SYSER, Op: "controller.Send", Err: err}
			}
		}
		written += n
	}
	return nil
}

// readRetry reads once into buf, retrying only on EINTR; all other errors
// (including EAGAIN) are returned to the caller for classification.
func readRetry(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
