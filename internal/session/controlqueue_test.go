package session

import (
	"testing"

	"github.com/sdthompson1/knights-go/internal/protocol"
)

// TestDrainReseedsHeldContinuousControl covers spec.md §4.1 step 5: a
// continuous control (movement) that is still pressed must be re-injected
// on the following tick's Drain rather than dropped after one.
func TestDrainReseedsHeldContinuousControl(t *testing.T) {
	q := newControlQueue()
	moveLeft := protocol.ControlRef{Slot: 0, Ordinal: 1}
	q.Enqueue(moveLeft, true)

	first := q.Drain()
	if len(first) != 1 || first[0].ref != moveLeft || !first[0].pressed {
		t.Fatalf("expected one held move entry, got %v", first)
	}

	second := q.Drain()
	if len(second) != 1 || second[0].ref != moveLeft || !second[0].pressed {
		t.Fatalf("continuous control should still be queued on the next tick, got %v", second)
	}

	q.Enqueue(moveLeft, false)
	if released := q.Drain(); len(released) != 1 || released[0].pressed {
		t.Fatalf("expected a release entry once pressed=false, got %v", released)
	}
	if after := q.Drain(); len(after) != 0 {
		t.Fatalf("released control must not be re-seeded, got %v", after)
	}
}

// TestDrainDoesNotReseedEdgeTriggeredControl covers the attack/use case:
// a non-continuous control fires once and is gone.
func TestDrainDoesNotReseedEdgeTriggeredControl(t *testing.T) {
	q := newControlQueue()
	attack := protocol.ControlRef{Slot: 0, Ordinal: 10}
	q.Enqueue(attack, true)

	if first := q.Drain(); len(first) != 1 {
		t.Fatalf("expected one attack entry, got %v", first)
	}
	if second := q.Drain(); len(second) != 0 {
		t.Fatalf("edge-triggered control must not persist, got %v", second)
	}
}
