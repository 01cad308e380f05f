// Package router implements the server-side signal-routing loop (§4.1):
// it multiplexes reads across every controller's request pipe, validates
// each signal against the protocol state machine, synthesizes the barrier
// mstart, and broadcasts the accepted batch to every child in one pass.
package router

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// pollInterval is the periodic multiplexer wake-up (§4.1 step 1, §5):
// bounds reaction latency to process-level signals without busy-waiting.
const pollInterval = 250 * time.Millisecond

// MaxControllers is the protocol's upper bound on child count (§3, N ≤ 15).
const MaxControllers = signal.MaxControllers

// Controller is one child's pipe pair and identity, as handed to the
// router by the lifecycle manager after fork.
type Controller struct {
	ID          uint8
	RequestFd   int // child→server, read end
	BroadcastFd int // server→child, write end
}

// TrialIndex reads the current trial index at the moment an mstart is
// synthesized (§4.1 step 4). The lifecycle manager supplies an
// implementation backed by the persisted trial-index file (§6).
type TrialIndex func() (uint16, error)

// Now returns the wall-clock reading stamped on synthesized signals.
// Overridable in tests; defaults to a real clock.
type Now func() time.Time

// Option configures a Router.
type Option func(*Router)

// WithLog attaches a structured logger. The default is pkg.DefaultLogger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(r *Router) { r.log = log }
}

// WithClock overrides the wall-clock source used for synthesized signals.
func WithClock(now Now) Option {
	return func(r *Router) { r.now = now }
}

// Router owns the request/broadcast pipe sets, the protocol state machine,
// and the epoll multiplexer driving §4.1's loop.
type Router struct {
	controllers []Controller
	awmsig      int
	trialIndex  TrialIndex
	machine     *signal.Machine
	poll        *ipc.Epoll
	flags       *ipc.SignalFlags
	log         *zap.SugaredLogger
	now         Now

	byFd  map[int]uint8
	ready []int
}

// New builds a Router over the given controller set. awmsig is the atomic
// batch size in signal units (§3); trialIndex supplies the current trial
// index for synthesized mstart signals.
func New(controllers []Controller, awmsig int, trialIndex TrialIndex, opts ...Option) (*Router, error) {
	if len(controllers) == 0 || len(controllers) > MaxControllers {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "router.New", Err: errBadControllerCount}
	}

	poll, err := ipc.NewEpoll()
	if err != nil {
		return nil, err
	}

	r := &Router{
		controllers: controllers,
		awmsig:      awmsig,
		trialIndex:  trialIndex,
		machine:     signal.NewMachine(len(controllers)),
		poll:        poll,
		flags:       ipc.NewSignalFlags(),
		log:         pkg.DefaultLogger,
		now:         time.Now,
		byFd:        make(map[int]uint8, len(controllers)),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, c := range controllers {
		r.byFd[c.RequestFd] = c.ID
		fd := c.RequestFd
		if err := r.poll.Add(fd, unix.EPOLLIN, func(uint32) { r.ready = append(r.ready, fd) }); err != nil {
			r.poll.Close()
			return nil, err
		}
	}
	return r, nil
}

// controllerFor resolves a request-pipe descriptor back to the owning
// controller id, for error attribution in log lines ("error on MET
// controller %d request pipe").
func (r *Router) controllerFor(fd int) (uint8, bool) {
	id, ok := r.byFd[fd]
	return id, ok
}

// Close releases the router's epoll descriptor and signal relay. It does
// not close the controller pipes; the lifecycle manager owns those.
func (r *Router) Close() error {
	r.flags.Stop()
	return r.poll.Close()
}

// wallClock returns the current time as seconds since the Unix epoch, the
// wire representation of a signal's time field (§3).
func (r *Router) wallClock() float64 {
	t := r.now()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
