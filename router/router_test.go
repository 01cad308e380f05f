//go:build linux

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
	"github.com/jsdpag/metcore/signal"
)

// harness wires up N controllers' pipe pairs the way the lifecycle manager
// would: the test plays the child side (writing to each request pipe,
// reading each broadcast pipe), and the Router under test plays the server
// side.
type harness struct {
	t           *testing.T
	requests    []ipc.Pipe
	broadcasts  []ipc.Pipe
	controllers []Controller
	router      *Router
	runErr      chan error
	trialIdx    uint16
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	h := &harness{t: t, runErr: make(chan error, 1), trialIdx: 7}

	for i := 0; i < n; i++ {
		req, err := ipc.NewPipe()
		require.NoError(t, err)
		bc, err := ipc.NewPipe()
		require.NoError(t, err)
		t.Cleanup(func() { req.Close(); bc.Close() })

		h.requests = append(h.requests, req)
		h.broadcasts = append(h.broadcasts, bc)
		h.controllers = append(h.controllers, Controller{
			ID:          uint8(i + 1),
			RequestFd:   req.Read,
			BroadcastFd: bc.Write,
		})
	}

	awmsig := ipc.AtomicUnit(signal.Size)
	r, err := New(h.controllers, awmsig, func() (uint16, error) { return h.trialIdx, nil },
		WithClock(func() time.Time { return time.Unix(1000, 0) }))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	h.router = r
	return h
}

func (h *harness) start() {
	go func() { h.runErr <- h.router.Run() }()
}

// send writes sigs as one batch to controller id's request pipe (simulating
// a single Endpoint.Send call from that child).
func (h *harness) send(id uint8, sigs ...signal.Signal) {
	h.t.Helper()
	payload := signal.EncodeBatch(sigs)
	total := 0
	for total < len(payload) {
		n, err := unix.Write(h.requests[id-1].Write, payload[total:])
		if err == unix.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(h.t, err)
		total += n
	}
}

// drain reads exactly wantSignals signals' worth of bytes from controller
// id's broadcast pipe, retrying briefly since the router processes
// asynchronously in its own goroutine.
func (h *harness) drain(id uint8, wantSignals int) []signal.Signal {
	h.t.Helper()
	want := wantSignals * signal.Size
	buf := make([]byte, want)
	got := 0
	deadline := time.Now().Add(2 * time.Second)
	for got < want {
		n, err := unix.Read(h.broadcasts[id-1].Read, buf[got:])
		if err == unix.EAGAIN {
			if time.Now().After(deadline) {
				h.t.Fatalf("timed out waiting for %d broadcast signals on controller %d (got %d bytes)", wantSignals, id, got)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(h.t, err)
		got += n
	}
	sigs, residue := signal.DecodeBatch(buf[:got])
	require.Zero(h.t, residue)
	return sigs
}

func TestRouter_HappyTrial(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	h.send(1, signal.Signal{Source: 1, ID: signal.Ready, Cargo: signal.ReadyTrigger, Time: 1})
	h.send(1, signal.Signal{Source: 1, ID: signal.Ready, Cargo: signal.ReadyReply, Time: 1})
	h.send(2, signal.Signal{Source: 2, ID: signal.Ready, Cargo: signal.ReadyReply, Time: 1})

	got := h.drain(1, 4)
	require.Len(t, got, 4)
	require.Equal(t, uint8(1), got[0].Source)
	require.Equal(t, signal.Ready, got[0].ID)
	require.EqualValues(t, signal.ReadyTrigger, got[0].Cargo)
	require.Equal(t, uint8(1), got[1].Source)
	require.EqualValues(t, signal.ReadyReply, got[1].Cargo)
	require.Equal(t, uint8(2), got[2].Source)
	require.EqualValues(t, signal.ReadyReply, got[2].Cargo)

	require.Equal(t, uint8(0), got[3].Source)
	require.Equal(t, signal.Start, got[3].ID)
	require.EqualValues(t, h.trialIdx, got[3].Cargo)

	got2 := h.drain(2, 4)
	require.Equal(t, got, got2)

	h.send(1, signal.Signal{Source: 1, ID: signal.Quit, Cargo: 0, Time: 2})
	select {
	case err := <-h.runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit on accepted mquit")
	}
}

func TestRouter_AbortDuringTrialInit(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	h.send(1, signal.Signal{Source: 1, ID: signal.Ready, Cargo: signal.ReadyTrigger, Time: 1})
	h.drain(1, 1)

	h.send(1, signal.Signal{Source: 1, ID: signal.Wait, Cargo: signal.WaitAbort, Time: 2})
	got := h.drain(1, 1)
	require.Equal(t, signal.Wait, got[0].ID)
	require.EqualValues(t, signal.WaitAbort, got[0].Cargo)

	require.Eventually(t, func() bool {
		return h.router.machine.State() == signal.WaitReadyOrStop
	}, time.Second, time.Millisecond)

	h.send(1, signal.Signal{Source: 1, ID: signal.Quit, Cargo: 0, Time: 3})
	select {
	case err := <-h.runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit on accepted mquit")
	}
}

func TestRouter_DuplicateReady(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	h.send(1, signal.Signal{Source: 1, ID: signal.Ready, Cargo: signal.ReadyTrigger, Time: 1})
	h.drain(1, 1)
	h.send(2, signal.Signal{Source: 2, ID: signal.Ready, Cargo: signal.ReadyReply, Time: 1})
	h.drain(1, 1)
	h.send(2, signal.Signal{Source: 2, ID: signal.Ready, Cargo: signal.ReadyReply, Time: 1})

	// Router detects the duplicate and aborts, broadcasting a final mquit
	// with cargo = PBSIG.
	got := h.drain(1, 1)
	require.Equal(t, signal.Quit, got[0].ID)
	require.EqualValues(t, pkg.PBSIG, got[0].Cargo)

	select {
	case err := <-h.runErr:
		require.Error(t, err)
		require.Equal(t, pkg.PBSIG, pkg.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit on protocol breach")
	}
}

func TestRouter_ReplyBeforeTrigger(t *testing.T) {
	h := newHarness(t, 1)
	h.start()

	// §8: "mready(reply) before any mready(trigger) is illegal" — a cargo
	// breach (PBCRG), distinct from a duplicate reply within an already-open
	// barrier (PBSIG, see TestRouter_DuplicateReady).
	h.send(1, signal.Signal{Source: 1, ID: signal.Ready, Cargo: signal.ReadyReply, Time: 1})

	got := h.drain(1, 1)
	require.Equal(t, signal.Quit, got[0].ID)
	require.EqualValues(t, pkg.PBCRG, got[0].Cargo)

	select {
	case err := <-h.runErr:
		require.Error(t, err)
		require.Equal(t, pkg.PBCRG, pkg.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit on protocol breach")
	}
}

func TestRouter_BadSource(t *testing.T) {
	h := newHarness(t, 1)
	h.start()

	// Controller 1's request pipe carries a signal claiming source 0 — a
	// protocol breach (§3: "any signal from source = 0 arriving on a
	// request pipe is PBSRC").
	h.send(1, signal.Signal{Source: 0, ID: signal.Null, Cargo: 0, Time: 1})

	got := h.drain(1, 1)
	require.Equal(t, signal.Quit, got[0].ID)
	require.EqualValues(t, pkg.PBSRC, got[0].Cargo)

	select {
	case err := <-h.runErr:
		require.Error(t, err)
		require.Equal(t, pkg.PBSRC, pkg.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("router did not exit on protocol breach")
	}
}
