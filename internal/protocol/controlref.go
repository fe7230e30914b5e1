package protocol

// ControlRef identifies one user control — attack, a movement direction,
// an action-bar slot, etc. — as a (slot, ordinal) pair. The wire
// encoding packs both into a single byte: bit 7 selects the slot (0 or 1,
// used only in split-screen), and bits 0-6 hold the ordinal, a 7-bit
// space bijective with the set of distinct controls. An ordinal of zero
// is reserved and never sent.
type ControlRef struct {
	Slot    uint8 // 0 or 1
	Ordinal uint8 // 1..127
}

// Continuous reports whether this control is held-state (movement
// direction, action-bar selection) rather than edge-triggered
// (attack, use): continuous controls have their last value re-injected
// on every tick the worker consumes, per spec.md §4.1 step 5, and
// contiguous repeats are elided before they reach the input queue
// (spec.md §4.2 send-control).
func (c ControlRef) Continuous(continuousOrdinals map[uint8]bool) bool {
	return continuousOrdinals[c.Ordinal]
}

// Encode packs the ControlRef into the wire's single ubyte
// representation.
func (c ControlRef) Encode() byte {
	b := c.Ordinal & 0x7f
	if c.Slot != 0 {
		b |= 0x80
	}
	return b
}

// DecodeControlRef unpacks a ControlRef from its wire byte. An ordinal
// of zero is invalid (reserved) and is reported as an error by the
// caller, not here, since the caller has the connection context needed
// to build a protocol.Error.
func DecodeControlRef(b byte) ControlRef {
	return ControlRef{
		Slot:    (b >> 7) & 1,
		Ordinal: b & 0x7f,
	}
}

// Valid reports whether the ordinal is non-zero, as required by the
// wire format (SendControl's ubyte id has "non-zero" bits 0-6).
func (c ControlRef) Valid() bool {
	return c.Ordinal != 0
}
