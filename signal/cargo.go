package signal

// CargoValid reports whether cargo is within the legal range for id, per
// the §3 table. Out-of-range cargo is a protocol breach (PBCRG), not a
// parse error — callers are expected to wrap a false result accordingly.
func CargoValid(id ID, cargo uint16) bool {
	switch id {
	case Null:
		return true // 0..=u16::MAX
	case Ready:
		return cargo == ReadyTrigger || cargo == ReadyReply
	case Start:
		return cargo >= 1
	case Stop:
		return cargo >= 1 && cargo <= 5
	case Wait:
		return cargo == WaitInit || cargo == WaitAbort
	case Quit:
		return cargo <= 14
	case State, Target, Reward, Rdtype, Calibrate:
		return true // 0 or 1..=u16::MAX — full range, domain-opaque
	default:
		return false
	}
}
