// Package signal implements the MET wire signal: the fixed four-field unit
// exchanged between the server and its controllers, its identifier/cargo
// vocabulary, and the protocol state machine that governs which signals are
// legal in which phase of a trial.
package signal

import (
	"encoding/binary"
	"math"
)

// ID identifies the kind of a signal (met.h's signal id vocabulary).
type ID uint8

// Signal identifiers. Ids 6..10 are user-defined domain signals, opaque to
// the core beyond their cargo range.
const (
	Null      ID = 0
	Ready     ID = 1
	Start     ID = 2
	Stop      ID = 3
	Wait      ID = 4
	Quit      ID = 5
	State     ID = 6
	Target    ID = 7
	Reward    ID = 8
	Rdtype    ID = 9
	Calibrate ID = 10
)

// String returns the met.h mnemonic for the signal id.
func (id ID) String() string {
	switch id {
	case Null:
		return "null"
	case Ready:
		return "ready"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Wait:
		return "wait"
	case Quit:
		return "quit"
	case State:
		return "state"
	case Target:
		return "target"
	case Reward:
		return "reward"
	case Rdtype:
		return "rdtype"
	case Calibrate:
		return "calibrate"
	default:
		return "unknown"
	}
}

// Discrete cargo values for the signals whose cargo is an enumeration
// rather than a range.
const (
	ReadyTrigger uint16 = 1
	ReadyReply   uint16 = 2

	WaitInit   uint16 = 1 // also "finish" — ambiguous in met.h, same wire value
	WaitFinish uint16 = 1
	WaitAbort  uint16 = 2
)

// MaxControllers is the protocol's upper bound on child count (§3, N ≤ 15).
const MaxControllers = 15

// Size is the wire size in bytes of one signal unit. The natural Go layout
// of {u8, u8, u16, f64} pads to 16 bytes on every platform this module
// targets (8-byte float64 alignment); server and controllers share this
// binary, so the padding is implicit and consistent by construction.
const Size = 16

// Signal is the 4-field MET wire unit.
type Signal struct {
	Source uint8
	ID     ID
	Cargo  uint16
	Time   float64
}

// Encode writes s into the first Size bytes of buf in native byte order.
func Encode(buf []byte, s Signal) {
	_ = buf[Size-1]
	buf[0] = s.Source
	buf[1] = uint8(s.ID)
	binary.NativeEndian.PutUint16(buf[2:4], s.Cargo)
	binary.NativeEndian.PutUint64(buf[8:16], math.Float64bits(s.Time))
}

// Decode reads one signal from the first Size bytes of buf.
func Decode(buf []byte) Signal {
	_ = buf[Size-1]
	return Signal{
		Source: buf[0],
		ID:     ID(buf[1]),
		Cargo:  binary.NativeEndian.Uint16(buf[2:4]),
		Time:   math.Float64frombits(binary.NativeEndian.Uint64(buf[8:16])),
	}
}

// EncodeBatch encodes sigs into a freshly allocated buffer of len(sigs)*Size
// bytes.
func EncodeBatch(sigs []Signal) []byte {
	buf := make([]byte, len(sigs)*Size)
	for i, s := range sigs {
		Encode(buf[i*Size:(i+1)*Size], s)
	}
	return buf
}

// DecodeBatch decodes as many whole signals as fit in buf. Its second
// return is the number of leftover bytes that did not form a whole signal
// (a protocol breach if nonzero).
func DecodeBatch(buf []byte) ([]Signal, int) {
	n := len(buf) / Size
	sigs := make([]Signal, n)
	for i := 0; i < n; i++ {
		sigs[i] = Decode(buf[i*Size : (i+1)*Size])
	}
	return sigs, len(buf) - n*Size
}

// TimeValid reports whether t satisfies §3's time-field constraint: finite
// and non-negative.
func TimeValid(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= 0
}
