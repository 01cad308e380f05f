package controller

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
)

// Waiter is the controller-side readiness multiplexer (§4.3): a single
// kernel wait over the broadcast pipe and every monitored shared-memory
// slot, reporting a time stamp taken immediately before it returns.
type Waiter struct {
	poll      *ipc.Epoll
	bcastFd   int
	readSlots map[int]*Slot // fd -> slot, for role-read actionability
	writeSlots map[int]*Slot // fd -> slot, for role-write actionability
	now       func() time.Time

	broadcastReady bool
	actionableRead  []string
	actionableWrite []string
}

// NewWaiter builds a Waiter over the given controller's broadcast pipe read
// end and its configured slots. A slot with RoleReadWrite is monitored on
// both descriptors; only its blocking use is restricted (§4.3).
func NewWaiter(broadcastReadFd int, slots []*Slot) (*Waiter, error) {
	poll, err := ipc.NewEpoll()
	if err != nil {
		return nil, err
	}

	w := &Waiter{
		poll:       poll,
		bcastFd:    broadcastReadFd,
		readSlots:  make(map[int]*Slot),
		writeSlots: make(map[int]*Slot),
		now:        time.Now,
	}

	if err := poll.Add(broadcastReadFd, unix.EPOLLIN, func(uint32) { w.broadcastReady = true }); err != nil {
		poll.Close()
		return nil, err
	}

	for _, s := range slots {
		if s.role.CanRead() {
			fd := s.readinessReaderFd()
			w.readSlots[fd] = s
			name := s.name
			if err := poll.Add(fd, unix.EPOLLIN, func(uint32) { w.actionableRead = append(w.actionableRead, name) }); err != nil {
				poll.Close()
				return nil, err
			}
		}
		if s.role.CanWrite() {
			fd := s.readinessWriterFd()
			name := s.name
			if err := poll.Add(fd, unix.EPOLLIN, func(uint32) { w.actionableWrite = append(w.actionableWrite, name) }); err != nil {
				poll.Close()
				return nil, err
			}
		}
	}

	return w, nil
}

// Close releases the Waiter's epoll descriptor. It does not close the
// monitored pipe or slot descriptors; their owners do.
func (w *Waiter) Close() error {
	return w.poll.Close()
}

// Result reports what became actionable on one Wait call and the instant
// the wait returned (§4.3: "a time stamp taken immediately before
// returning").
type Result struct {
	Time           time.Time
	BroadcastReady bool
	ReadableSlots  []string
	WritableSlots  []string
}

// Wait blocks until any monitored descriptor becomes ready or timeout
// elapses (timeout <= 0 means indefinite, §4.3). It re-enters the kernel
// wait across signal interruptions (handled transparently by the
// underlying epoll wrapper) and never allocates on the waiting path itself
// — only the returned Result's slices do, sized to what is actually ready.
func (w *Waiter) Wait(timeout time.Duration) (Result, error) {
	w.broadcastReady = false
	w.actionableRead = nil
	w.actionableWrite = nil

	d := timeout
	if timeout <= 0 {
		d = -1
	}

	if _, err := w.poll.Wait(d); err != nil {
		return Result{}, &pkg.Error{Kind: pkg.SYSER, Op: "controller.Waiter.Wait", Err: err}
	}

	// The time stamp is taken now, immediately before Wait returns to the
	// caller, not when the underlying epoll_wait call itself woke up.
	now := w.now()

	return Result{
		Time:           now,
		BroadcastReady: w.broadcastReady,
		ReadableSlots:  w.actionableRead,
		WritableSlots:  w.actionableWrite,
	}, nil
}
