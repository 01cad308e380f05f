package signal

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := Signal{Source: 3, ID: Ready, Cargo: ReadyReply, Time: 12.5}
	buf := make([]byte, Size)
	Encode(buf, want)
	got := Decode(buf)
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestEncodeDecodeBatch(t *testing.T) {
	sigs := []Signal{
		{Source: 1, ID: Ready, Cargo: ReadyTrigger, Time: 1},
		{Source: 1, ID: Ready, Cargo: ReadyReply, Time: 2},
		{Source: 0, ID: Start, Cargo: 7, Time: 3},
	}
	buf := EncodeBatch(sigs)
	if len(buf) != len(sigs)*Size {
		t.Fatalf("buf len = %d, want %d", len(buf), len(sigs)*Size)
	}

	got, remainder := DecodeBatch(buf)
	if remainder != 0 {
		t.Errorf("remainder = %d, want 0", remainder)
	}
	if len(got) != len(sigs) {
		t.Fatalf("decoded %d signals, want %d", len(got), len(sigs))
	}
	for i := range sigs {
		if got[i] != sigs[i] {
			t.Errorf("signal %d = %+v, want %+v", i, got[i], sigs[i])
		}
	}
}

func TestDecodeBatchFractionalResidue(t *testing.T) {
	buf := make([]byte, Size+3)
	_, remainder := DecodeBatch(buf)
	if remainder != 3 {
		t.Errorf("remainder = %d, want 3", remainder)
	}
}

func TestTimeValid(t *testing.T) {
	valid := []float64{0, 1, 1e300}
	invalid := []float64{-1}
	for _, v := range valid {
		if !TimeValid(v) {
			t.Errorf("TimeValid(%v) = false, want true", v)
		}
	}
	for _, v := range invalid {
		if TimeValid(v) {
			t.Errorf("TimeValid(%v) = true, want false", v)
		}
	}
}

func TestCargoValid(t *testing.T) {
	tests := []struct {
		id    ID
		cargo uint16
		want  bool
	}{
		{Null, 0, true},
		{Null, 65535, true},
		{Ready, ReadyTrigger, true},
		{Ready, ReadyReply, true},
		{Ready, 3, false},
		{Start, 0, false},
		{Start, 1, true},
		{Stop, 0, false},
		{Stop, 5, true},
		{Stop, 6, false},
		{Wait, WaitInit, true},
		{Wait, WaitAbort, true},
		{Wait, 3, false},
		{Quit, 14, true},
		{Quit, 15, false},
		{State, 0, true},
	}
	for _, tt := range tests {
		if got := CargoValid(tt.id, tt.cargo); got != tt.want {
			t.Errorf("CargoValid(%v, %d) = %v, want %v", tt.id, tt.cargo, got, tt.want)
		}
	}
}

func TestLegality(t *testing.T) {
	tests := []struct {
		state Phase
		id    ID
		want  bool
	}{
		{WaitReadyOrStop, Start, false},
		{WaitReadyOrStop, Ready, true},
		{WaitReadyOrStop, Stop, true},
		{TrialInit, Start, false},
		{TrialInit, Ready, true},
		{WaitMstart, Ready, false},
		{WaitMstart, Stop, false},
		{WaitMstart, Wait, true},
		{Run, Ready, false},
		{Run, Stop, true},
		{Run, State, true},
	}
	for _, tt := range tests {
		if got := Legal(tt.state, tt.id); got != tt.want {
			t.Errorf("Legal(%v, %v) = %v, want %v", tt.state, tt.id, got, tt.want)
		}
	}
}

func TestMachineBarrier(t *testing.T) {
	m := NewMachine(2)

	if result, done := m.Ready(1, ReadyTrigger); result != ReadyOK || done {
		t.Fatalf("Ready(trigger) = %v, %v", result, done)
	}
	if m.State() != TrialInit {
		t.Fatalf("state = %v, want TrialInit", m.State())
	}

	if result, done := m.Ready(1, ReadyReply); result != ReadyOK || done {
		t.Fatalf("Ready(1, reply) = %v, %v", result, done)
	}
	if result, _ := m.Ready(1, ReadyReply); result != ReadyDuplicate {
		t.Fatalf("duplicate Ready(1, reply) = %v, want ReadyDuplicate", result)
	}
	if result, done := m.Ready(2, ReadyReply); result != ReadyOK || !done {
		t.Fatalf("Ready(2, reply) = %v, %v, want ReadyOK, true", result, done)
	}
	if m.State() != WaitMstart {
		t.Fatalf("state = %v, want WaitMstart", m.State())
	}

	m.Mstart()
	if m.State() != Run {
		t.Fatalf("state = %v, want Run", m.State())
	}

	m.StopOrAbort()
	if m.State() != WaitReadyOrStop {
		t.Fatalf("state = %v, want WaitReadyOrStop", m.State())
	}
}

func TestMachineReplyBeforeTrigger(t *testing.T) {
	m := NewMachine(2)

	// §8: "mready(reply) before any mready(trigger) is illegal in the
	// table (no state change)" — and per metsigsrv.c's CRGILL check in
	// MSP_WMRSTP, this is a cargo breach, not a signal breach: only
	// ReadyTrigger is legal cargo while waiting for the barrier to open.
	if result, done := m.Ready(1, ReadyReply); result != ReadyBadCargo || done {
		t.Fatalf("Ready(reply) before trigger = %v, %v, want ReadyBadCargo, false", result, done)
	}
	if m.State() != WaitReadyOrStop {
		t.Fatalf("state = %v, want WaitReadyOrStop (no transition)", m.State())
	}
}
