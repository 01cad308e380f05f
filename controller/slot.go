package controller

import (
	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/codec"
	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
)

// Role is a controller's access mode to one shared-memory slot (§3's
// per-controller, per-slot access mode), fixed at launch.
type Role uint8

const (
	RoleClosed Role = iota
	RoleRead
	RoleWrite
	RoleReadWrite
)

// CanRead reports whether r includes the reader role.
func (r Role) CanRead() bool { return r == RoleRead || r == RoleReadWrite }

// CanWrite reports whether r includes the writer role.
func (r Role) CanWrite() bool { return r == RoleWrite || r == RoleReadWrite }

// Slot is this controller's view of one shared-memory region (§4.5): the
// mapped buffer plus whichever event counters its role requires. A slot
// opened RoleReadWrite holds both sides, but §4.5 step 1/step 1 of the
// write/read paths require blocking access to use exactly one role — the
// deadlock-prevention invariant of §3.
type Slot struct {
	name string
	role Role
	region *ipc.SharedRegion

	// readersCounter is the slot's single readers'-acknowledgement counter
	// (non-semaphore): the writer reads it to accumulate acks; every reader
	// posts 1 to it once it has consumed a write.
	readersCounter *ipc.EventCounter

	// writerCounters holds, for a writer, one semaphore-mode counter per
	// reader to post to (§4.5 write step 6).
	writerCounters []*ipc.EventCounter

	// myWriterCounter is, for a reader, this reader's own semaphore-mode
	// counter to drain (§4.5 read step 3).
	myWriterCounter *ipc.EventCounter

	numReaders   int
	readersReady int // accumulator toward numReaders (§4.5 write step 3)
}

// NewWriterSlot builds the writer's view of a slot: the mapped region, the
// shared readers' counter, and one writer-event-counter per reader, in
// reader order.
func NewWriterSlot(name string, region *ipc.SharedRegion, readersCounter *ipc.EventCounter, writerCounters []*ipc.EventCounter) *Slot {
	return &Slot{
		name:           name,
		role:           RoleWrite,
		region:         region,
		readersCounter: readersCounter,
		writerCounters: writerCounters,
		numReaders:     len(writerCounters),
		readersReady:   len(writerCounters), // a fresh slot has no unacknowledged write
	}
}

// NewReaderSlot builds one reader's view of a slot: the mapped region, the
// shared readers' counter to post acks to, and this reader's own
// writer-event-counter to drain.
func NewReaderSlot(name string, region *ipc.SharedRegion, readersCounter *ipc.EventCounter, myWriterCounter *ipc.EventCounter) *Slot {
	return &Slot{
		name:            name,
		role:            RoleRead,
		region:          region,
		readersCounter:  readersCounter,
		myWriterCounter: myWriterCounter,
	}
}

// NewReadWriteSlot combines a writer and reader view of the same slot for a
// controller configured with both roles on it. Blocking Read/Write calls on
// such a slot are rejected (§4.3, §8): a child must never block on a slot it
// both reads and writes.
func NewReadWriteSlot(name string, region *ipc.SharedRegion, readersCounter *ipc.EventCounter, writerCounters []*ipc.EventCounter, myWriterCounter *ipc.EventCounter) *Slot {
	s := NewWriterSlot(name, region, readersCounter, writerCounters)
	s.role = RoleReadWrite
	s.myWriterCounter = myWriterCounter
	return s
}

// Name returns the slot's configured name ("stim", "eye", or "nsp").
func (s *Slot) Name() string { return s.name }

// Role returns this controller's access mode to the slot.
func (s *Slot) Role() Role { return s.role }

// Write publishes arrays to the slot (§4.5 write path). blocking requires
// role == RoleWrite exactly; a RoleReadWrite slot always rejects blocking
// (deadlock prevention, §3). wrote is false only in the non-blocking,
// not-yet-all-readers-drained case (§4.5 step 3's "return not written").
func (s *Slot) Write(arrays []codec.Array, blocking bool) (wrote bool, err error) {
	if !s.role.CanWrite() {
		return false, &pkg.Error{Kind: pkg.INTRN, Op: "controller.Slot.Write", Err: errWriteRoleMissing}
	}
	if blocking && s.role != RoleWrite {
		return false, &pkg.Error{Kind: pkg.INTRN, Op: "controller.Slot.Write", Err: errReaderIsWriter}
	}

	wasBlocking, serr := setBlocking(s.readersCounter.Fd(), blocking)
	if serr != nil {
		return false, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Write", Err: serr}
	}
	defer restoreBlocking(s.readersCounter.Fd(), wasBlocking)

	for s.readersReady < s.numReaders {
		v, rerr := s.readersCounter.Read()
		if rerr != nil {
			if rerr == unix.EAGAIN {
				if !blocking {
					return false, nil
				}
				continue
			}
			return false, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Write", Err: rerr}
		}
		s.readersReady += int(v)
	}

	n, eerr := codec.EncodeSlot(s.region.Bytes(), arrays)
	if eerr != nil {
		return false, eerr
	}
	_ = n

	for _, wc := range s.writerCounters {
		if perr := wc.Signal(1); perr != nil {
			return false, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Write", Err: perr}
		}
	}
	s.readersReady = 0
	return true, nil
}

// Read consumes the slot's current publication (§4.5 read path). blocking
// requires role == RoleRead exactly. It returns (nil, nil) when no new
// write has been posted since the last Read (non-blocking only).
func (s *Slot) Read(blocking bool) ([]codec.Array, error) {
	if !s.role.CanRead() {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "controller.Slot.Read", Err: errReadRoleMissing}
	}
	if blocking && s.role != RoleRead {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "controller.Slot.Read", Err: errReaderIsWriter}
	}

	wasBlocking, serr := setBlocking(s.myWriterCounter.Fd(), blocking)
	if serr != nil {
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Read", Err: serr}
	}
	defer restoreBlocking(s.myWriterCounter.Fd(), wasBlocking)

	v, rerr := s.myWriterCounter.Read()
	if rerr != nil {
		if rerr == unix.EAGAIN {
			return nil, nil
		}
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Read", Err: rerr}
	}
	if v == 0 {
		return nil, nil
	}
	if v != 1 {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "controller.Slot.Read", Err: errBadCounterValue}
	}

	arrays, derr := codec.DecodeSlot(s.region.Bytes())
	if derr != nil {
		return nil, derr
	}

	if perr := s.readersCounter.Signal(1); perr != nil {
		return nil, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Slot.Read", Err: perr}
	}
	return arrays, nil
}

// readinessReaderFd returns the descriptor the Waiter should monitor for
// this slot's read-role actionability (§4.3): the per-reader writer event
// counter becomes readable the moment the writer posts.
func (s *Slot) readinessReaderFd() int {
	return s.myWriterCounter.Fd()
}

// readinessWriterFd returns the descriptor the Waiter should monitor for
// this slot's write-role actionability (§4.3): the shared readers' counter
// becomes readable as acks accumulate toward numReaders.
func (s *Slot) readinessWriterFd() int {
	return s.readersCounter.Fd()
}
