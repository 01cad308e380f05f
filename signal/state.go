package signal

// Phase is one of the four server-observed protocol states (§4.2). It is
// not named State because that name is the signal id State (id 6).
type Phase int

const (
	WaitReadyOrStop Phase = iota // initial, and after every trial
	TrialInit                    // awaiting all mready(reply)
	WaitMstart                   // mstart synthesized, not yet broadcast-observed
	Run                           // between mstart and the next mstop/mwait(abort)
)

// String names the state for logging.
func (s Phase) String() string {
	switch s {
	case WaitReadyOrStop:
		return "wait-ready-or-stop"
	case TrialInit:
		return "trial-init"
	case WaitMstart:
		return "wait-mstart"
	case Run:
		return "run"
	default:
		return "unknown"
	}
}

// legal[state][id] is true when id may legally appear while the router is
// in state, independent of cargo. Transcribed directly from the §4.2
// legality table (there, 1 = illegal; here, true = legal). Start is illegal
// in every state: mstart is only ever synthesized by the server, never
// accepted from a child's request pipe.
var legal = [4][11]bool{
	WaitReadyOrStop: {
		Null: true, Ready: true, Stop: true, Wait: true, Quit: true,
		State: true, Target: true, Reward: true, Rdtype: true, Calibrate: true,
	},
	TrialInit: {
		Null: true, Ready: true, Stop: true, Wait: true, Quit: true,
		State: true, Target: true, Reward: true, Rdtype: true, Calibrate: true,
	},
	WaitMstart: {
		Null: true, Wait: true, Quit: true,
		Reward: true, Rdtype: true, Calibrate: true,
	},
	Run: {
		Null: true, Stop: true, Wait: true, Quit: true,
		State: true, Target: true, Reward: true, Rdtype: true, Calibrate: true,
	},
}

// Legal reports whether id may appear while the router is in state.
func Legal(state Phase, id ID) bool {
	if int(id) >= len(legal[state]) {
		return false
	}
	return legal[state][id]
}

// Machine tracks server-observed protocol state across a router's lifetime,
// including the per-child reply set accumulated during a trial-init
// barrier.
type Machine struct {
	state   Phase
	n       int
	replied map[uint8]bool
}

// NewMachine creates a state machine for a router coordinating n children,
// starting in WaitReadyOrStop.
func NewMachine(n int) *Machine {
	return &Machine{state: WaitReadyOrStop, n: n, replied: make(map[uint8]bool, n)}
}

// State returns the current protocol state.
func (m *Machine) State() Phase {
	return m.state
}

// ReadyResult classifies the outcome of an accepted mready signal, mirroring
// met.h's CRGILL-vs-duplicate-mready distinction (metsigsrv.c): a cargo
// that doesn't match what the current state expects (trigger in
// wait-ready-or-stop, reply in trial-init) is a cargo breach, while a
// second reply from the same controller within one open barrier is a
// signal breach.
type ReadyResult int

const (
	ReadyOK        ReadyResult = iota // accepted, state updated
	ReadyBadCargo                     // cargo illegal for the current state (→ PBCRG)
	ReadyDuplicate                    // source already replied in this barrier (→ PBSIG)
)

// Ready applies an accepted mready signal from source, per §4.2's
// transition rules and metsigsrv.c's per-state cargo check. In
// wait-ready-or-stop only ReadyTrigger is legal cargo; in trial-init only
// ReadyReply is, and a second reply from the same source is a duplicate.
// barrierDone is true the moment the Nth distinct reply arrives, telling
// the caller to synthesize mstart in the same broadcast cycle.
func (m *Machine) Ready(source uint8, cargo uint16) (result ReadyResult, barrierDone bool) {
	switch m.state {
	case WaitReadyOrStop:
		if cargo != ReadyTrigger {
			return ReadyBadCargo, false
		}
		m.state = TrialInit
		m.replied = make(map[uint8]bool, m.n)
		return ReadyOK, false

	case TrialInit:
		if cargo != ReadyReply {
			return ReadyBadCargo, false
		}
		if m.replied[source] {
			return ReadyDuplicate, false
		}
		m.replied[source] = true
		if len(m.replied) == m.n {
			m.state = WaitMstart
			return ReadyOK, true
		}
		return ReadyOK, false

	default:
		// Unreachable while callers gate on Legal(state, Ready) first:
		// mready is illegal in wait-mstart and run (§4.2's table), so the
		// router never calls Ready from those states.
		return ReadyBadCargo, false
	}
}

// Mstart records the server's own synthesized mstart taking effect once
// broadcast, advancing wait-mstart to run.
func (m *Machine) Mstart() {
	if m.state == WaitMstart {
		m.state = Run
	}
}

// StopOrAbort applies an accepted mstop or mwait(abort/init/finish) signal,
// returning the protocol to wait-ready-or-stop.
func (m *Machine) StopOrAbort() {
	m.state = WaitReadyOrStop
	m.replied = nil
}
