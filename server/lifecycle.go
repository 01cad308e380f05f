package server

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/router"
	"github.com/jsdpag/metcore/signal"
)

// barrierTimeout bounds the initial-ready barrier (§4.6 step 4).
const barrierTimeout = 60 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLog attaches a structured logger. The default is pkg.DefaultLogger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager is the lifecycle manager (§4.6): it validates a launch
// configuration, creates every pipe/shared-memory resource, forks and
// execs every controller, runs the initial-ready barrier, and — once the
// router's main loop exits — drives the bounded reap-then-kill shutdown
// sequence.
type Manager struct {
	cfg *Config
	res *resources
	pg  *ipc.ProcessGroup

	pids map[uint8]int
	log  *zap.SugaredLogger
	now  func() time.Time

	// termState is stdin's terminal attributes as they stood before
	// Launch forked the first controller, saved so Shutdown can restore
	// them once every child has been reaped (metserver.c's
	// tcgetattr/tcsetattr bracket around the whole run). Nil when stdin
	// isn't a controlling terminal — there is then nothing to save.
	termState *term.State
}

// New validates cfg and builds a Manager ready to Launch.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:  cfg,
		pids: make(map[uint8]int, len(cfg.Children)),
		log:  pkg.DefaultLogger,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Launch runs §4.6 steps 2-6: resource creation, fork-exec, the
// initial-ready barrier, shm unlink, and the initial mwait(init)
// broadcast. On success it returns a router.Router ready for Run(), which
// the caller should follow with Shutdown once Run returns. On failure, the
// terminal attributes Launch saved at entry are restored immediately,
// since there will be no Run/Shutdown to do it later.
func (m *Manager) Launch() (r *router.Router, err error) {
	m.saveTerminal()
	defer func() {
		if err != nil {
			m.restoreTerminal()
		}
	}()

	res, err := createResources(m.cfg)
	if err != nil {
		return nil, err
	}
	m.res = res

	pg, err := ipc.NewProcessGroup()
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("server: create process group: %w", err)
	}
	m.pg = pg

	if err := m.forkExecAll(); err != nil {
		m.teardownResources()
		return nil, err
	}

	if err := m.barrier(); err != nil {
		m.killAndReap()
		m.teardownResources()
		return nil, err
	}

	res.unlinkSlots()

	r, err = m.newRouter()
	if err != nil {
		m.killAndReap()
		m.teardownResources()
		return nil, err
	}

	if err := m.broadcastInit(r); err != nil {
		r.Close()
		m.killAndReap()
		m.teardownResources()
		return nil, err
	}

	return r, nil
}

// forkExecAll forks and execs every controller concurrently, joining them
// all to the manager's process group (§4.6 step 3). A failure on any child
// aborts the whole launch.
func (m *Manager) forkExecAll() error {
	var g errgroup.Group
	var mu sync.Mutex

	awmsig := ipc.AtomicUnit(signal.Size)

	for _, c := range m.cfg.Children {
		c := c
		g.Go(func() error {
			handoff := buildHandoff(m.cfg, m.res, c, awmsig)

			argv := append([]string{m.cfg.RuntimeExec}, c.RuntimeArgs...)
			argv = append(argv, c.Function)
			argv = append(argv, c.Args...)

			spec := ipc.ChildSpec{
				Path:  m.cfg.RuntimeExec,
				Argv:  argv,
				Env:   handoff.Env,
				Files: handoff.Files,
				Pgid:  m.pg.Pgid(),
			}

			pid, err := ipc.ForkExec(spec)
			if err != nil {
				return fmt.Errorf("server: fork/exec controller %d (%s): %w", c.ID, c.Function, err)
			}

			mu.Lock()
			m.pids[c.ID] = pid
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// barrier runs the initial-ready barrier (§4.6 step 4): it accepts exactly
// one mready(reply) from each controller on its request pipe within
// barrierTimeout. Any other signal, a duplicate, a broken pipe, or the
// timeout aborts startup.
func (m *Manager) barrier() error {
	poll, err := ipc.NewEpoll()
	if err != nil {
		return fmt.Errorf("server: create barrier epoll: %w", err)
	}
	defer poll.Close()

	ready := make(map[uint8]bool, len(m.cfg.Children))
	byFd := make(map[int]uint8, len(m.cfg.Children))
	var fired []int

	for _, c := range m.cfg.Children {
		fd := m.res.pipes[c.ID].Request.Read
		byFd[fd] = c.ID
		thisFd := fd
		if err := poll.Add(fd, unix.EPOLLIN, func(uint32) { fired = append(fired, thisFd) }); err != nil {
			return fmt.Errorf("server: register controller %d in barrier epoll: %w", c.ID, err)
		}
	}

	deadline := time.Now().Add(barrierTimeout)
	for len(ready) < len(m.cfg.Children) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &pkg.Error{Kind: pkg.TMOUT, Op: "server.barrier", Err: errBarrierTimeout}
		}

		fired = fired[:0]
		if _, err := poll.Wait(remaining); err != nil {
			return &pkg.Error{Kind: pkg.SYSER, Op: "server.barrier", Err: err}
		}

		for _, fd := range fired {
			owner := byFd[fd]

			buf := make([]byte, signal.Size)
			n, rerr := unix.Read(fd, buf)
			if rerr != nil {
				if rerr == unix.EAGAIN {
					continue
				}
				return &pkg.Error{Kind: pkg.BRKRP, Op: "server.barrier", Err: rerr}
			}
			if n == 0 {
				return &pkg.Error{Kind: pkg.BRKRP, Op: "server.barrier", Err: errBarrierClosed}
			}
			if n != signal.Size {
				return &pkg.Error{Kind: pkg.PBSIG, Op: "server.barrier", Err: errBarrierFractional}
			}

			s := signal.Decode(buf)
			if s.Source != owner {
				return &pkg.Error{Kind: pkg.PBSRC, Op: "server.barrier", Err: errBarrierSource}
			}
			if s.ID != signal.Ready || s.Cargo != signal.ReadyReply {
				return &pkg.Error{Kind: pkg.PBSIG, Op: "server.barrier", Err: errBarrierUnexpected}
			}
			if ready[owner] {
				return &pkg.Error{Kind: pkg.PBSIG, Op: "server.barrier", Err: errBarrierDuplicate}
			}
			ready[owner] = true
		}
	}
	return nil
}

// newRouter builds the router.Router over every controller's pipe pair.
func (m *Manager) newRouter() (*router.Router, error) {
	controllers := make([]router.Controller, len(m.cfg.Children))
	for i, c := range m.cfg.Children {
		p := m.res.pipes[c.ID]
		controllers[i] = router.Controller{ID: c.ID, RequestFd: p.Request.Read, BroadcastFd: p.Broadcast.Write}
	}

	awmsig := ipc.AtomicUnit(signal.Size)
	trialIndex := NewTrialIndexReader(m.cfg.TrialIndexPath)

	return router.New(controllers, awmsig, trialIndex.Read, router.WithLog(m.log))
}

// broadcastInit sends the single mwait(init) every controller must observe
// before the router's main loop begins accepting further signals (§4.6
// step 6).
func (m *Manager) broadcastInit(r *router.Router) error {
	t := m.now()
	wallClock := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	sig := signal.Signal{Source: 0, ID: signal.Wait, Cargo: signal.WaitInit, Time: wallClock}
	payload := signal.EncodeBatch([]signal.Signal{sig})

	for _, c := range m.cfg.Children {
		fd := m.res.pipes[c.ID].Broadcast.Write
		if _, err := unix.Write(fd, payload); err != nil {
			return &pkg.Error{Kind: pkg.BRKBP, Op: "server.broadcastInit", Err: err}
		}
	}
	return nil
}

// Shutdown runs §4.6 step 7: broadcast a final mquit carrying cause's error
// kind as cargo, then reap every child with 20/20 s grace periods and a
// final group kill. cause is the router's accumulated error (nil on a
// clean mquit(0)).
func (m *Manager) Shutdown(cause error) {
	kind := pkg.KindOf(cause)
	m.log.Infow("shutting down", "kind", kind.String())

	t := m.now()
	final := signal.Signal{Source: 0, ID: signal.Quit, Cargo: uint16(kind), Time: float64(t.Unix()) + float64(t.Nanosecond())/1e9}
	payload := signal.EncodeBatch([]signal.Signal{final})

	var bcastErr *multierror.Error
	for _, c := range m.cfg.Children {
		fd := m.res.pipes[c.ID].Broadcast.Write
		if _, err := unix.Write(fd, payload); err != nil {
			bcastErr = multierror.Append(bcastErr, fmt.Errorf("controller %d: %w", c.ID, err))
		}
	}
	if bcastErr != nil {
		m.log.Warnw("final mquit broadcast had failures", "error", bcastErr.ErrorOrNil())
	}

	pids := m.pidList()
	if remaining := reapAll(pids, reapGrace); len(remaining) > 0 {
		m.closeEnds()
		if remaining = reapAll(remaining, reapGrace); len(remaining) > 0 {
			m.log.Warnw("children still alive after grace period, escalating to group kill", "pids", remaining)
			if err := m.pg.Signal(syscall.SIGKILL); err != nil {
				m.log.Warnw("group kill failed", "error", err)
			}
			reapAll(remaining, killReapGrace)
		}
	}

	m.teardownResources()
	m.restoreTerminal()
}

// saveTerminal snapshots stdin's terminal attributes before the first
// controller is forked, mirroring metserver.c's tcgetattr call. It is
// best-effort: when stdin isn't a controlling terminal (piped, redirected,
// or running under a supervisor) there is nothing to save, and Shutdown's
// restoreTerminal is then a no-op.
func (m *Manager) saveTerminal() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	state, err := term.GetState(fd)
	if err != nil {
		m.log.Warnw("failed to save terminal attributes", "error", err)
		return
	}
	m.termState = state
}

// restoreTerminal puts stdin's terminal attributes back the way
// saveTerminal found them, mirroring metserver.c's tcsetattr(TCSADRAIN)
// call at the very end of the run.
func (m *Manager) restoreTerminal() {
	if m.termState == nil {
		return
	}
	if err := term.Restore(int(os.Stdin.Fd()), m.termState); err != nil {
		m.log.Warnw("failed to restore terminal attributes", "error", err)
	}
}

// closeEnds closes the server's broadcast-write and request-read pipe
// ends, cascading broken-pipe signals to any stragglers (§4.6 step 7).
func (m *Manager) closeEnds() {
	for _, c := range m.cfg.Children {
		p := m.res.pipes[c.ID]
		unix.Close(p.Broadcast.Write)
		unix.Close(p.Request.Read)
	}
}

func (m *Manager) pidList() []int {
	pids := make([]int, 0, len(m.pids))
	for _, pid := range m.pids {
		pids = append(pids, pid)
	}
	return pids
}

func (m *Manager) killAndReap() {
	if m.pg != nil {
		_ = m.pg.Signal(syscall.SIGKILL)
	}
	reapAll(m.pidList(), killReapGrace)
}

func (m *Manager) teardownResources() {
	if m.res != nil {
		m.res.Close()
	}
}
