// Package session implements the per-game session core (C4): the
// KnightsGame state machine, its connection roster, and the simulation
// worker that drives a GameEngine once per tick. It is adapted from the
// teacher's internal/server package (Session/Server, tick-loop goroutine
// with a quit/done channel pair) and internal/input (Buffer, the
// tick-aligned input queue).
package session

import "github.com/sdthompson1/knights-go/internal/protocol"

// continuousOrdinals lists the control ordinals treated as held-state
// rather than edge-triggered (spec.md §3 ControlRef, §4.2 send-control).
// Only ordinals 1 and 2 (move left/right) are continuous here; every
// other ordinal, attack included, is edge-triggered. The reference set here is a placeholder the real
// config-script registry would otherwise supply (SPEC_FULL.md's
// "indexed registry" redesign note), but the elision behaviour itself is
// required by the spec regardless of which ordinals are continuous.
var continuousOrdinals = map[uint8]bool{
	1: true, // move left
	2: true, // move right
}

// controlQueue is the tick-aligned per-connection input buffer, adapted
// from the teacher's internal/input.Buffer: it records one pending
// (slot, ControlRef, pressed) entry per unique slot and elides
// contiguous repeats of a continuous control (spec.md §4.2 "if the
// control is continuous, elide contiguous repeats").
type controlQueue struct {
	pending map[uint8]queuedControl
}

type queuedControl struct {
	ref     protocol.ControlRef
	pressed bool
}

func newControlQueue() *controlQueue {
	return &controlQueue{pending: make(map[uint8]queuedControl)}
}

// Enqueue records a control input for its slot, replacing any prior
// pending entry for that slot this tick. A continuous control repeating
// its last value is dropped rather than queued again.
func (q *controlQueue) Enqueue(ref protocol.ControlRef, pressed bool) {
	slot := ref.Slot
	if prev, ok := q.pending[slot]; ok && ref.Continuous(continuousOrdinals) {
		if prev.ref == ref && prev.pressed == pressed {
			return
		}
	}
	q.pending[slot] = queuedControl{ref: ref, pressed: pressed}
}

// Drain returns every queued control and clears the queue, except that a
// continuous control still held (pressed) is re-seeded for the next tick
// rather than dropped: spec.md §4.1 step 5 requires the last value of a
// continuous control to be re-injected every tick it is held, the same
// way the original's control_queue.push_back(final_ctrl) keeps a held
// key alive until release. Called once per tick by the simulation
// worker's post-update step.
func (q *controlQueue) Drain() []queuedControl {
	if len(q.pending) == 0 {
		return nil
	}
	out := make([]queuedControl, 0, len(q.pending))
	next := make(map[uint8]queuedControl)
	for slot, c := range q.pending {
		out = append(out, c)
		if c.pressed && c.ref.Continuous(continuousOrdinals) {
			next[slot] = c
		}
	}
	q.pending = next
	return out
}
