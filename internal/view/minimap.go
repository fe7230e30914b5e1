package view

import (
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// MiniMap is the mini-map encoder. It coalesces horizontal colour runs
// (spec.md §4.4): a SetColour(x, y) call that continues the run just
// emitted (same y, next x) extends it instead of starting a new wire
// command, and it memoises each knight's last-reported location so an
// unchanged position is never re-sent.
type MiniMap struct {
	// runStartX/runY/runColour describe the pending, not-yet-flushed
	// horizontal run; runLen is its length in squares.
	haveRun              bool
	runStartX, runY      int
	runLen               int
	runColour            uint8
	commands             []mmCommand
	knightLocation       map[uint32]mmPoint
}

type mmPoint struct{ x, y int32 }

type mmCommand struct {
	isKnight bool
	x, y     int
	len      int
	colour   uint8
	knightID uint32
	px, py   int32
}

// NewMiniMap creates an empty mini-map encoder.
func NewMiniMap() *MiniMap {
	return &MiniMap{knightLocation: make(map[uint32]mmPoint)}
}

// SetColour records that square (x, y) should be set to colour,
// coalescing it into the in-progress horizontal run when possible.
func (m *MiniMap) SetColour(x, y int, colour uint8) {
	if m.haveRun && y == m.runY && x == m.runStartX+m.runLen && colour == m.runColour {
		m.runLen++
		return
	}
	m.flushRun()
	m.haveRun = true
	m.runStartX, m.runY, m.runLen, m.runColour = x, y, 1, colour
}

func (m *MiniMap) flushRun() {
	if !m.haveRun {
		return
	}
	m.commands = append(m.commands, mmCommand{
		x: m.runStartX, y: m.runY, len: m.runLen, colour: m.runColour,
	})
	m.haveRun = false
}

// SetKnightLocation records a knight's mini-map position, only emitting
// a command if the position actually changed since the last call.
func (m *MiniMap) SetKnightLocation(knightID uint32, x, y int32) {
	prev, ok := m.knightLocation[knightID]
	if ok && prev.x == x && prev.y == y {
		return
	}
	m.knightLocation[knightID] = mmPoint{x, y}
	m.commands = append(m.commands, mmCommand{isKnight: true, knightID: knightID, px: x, py: y})
}

// Flush writes every buffered command (runs first-in-first-out, as they
// were produced) into b and clears the buffer.
func (m *MiniMap) Flush(b *wire.Buf) {
	m.flushRun()
	for _, c := range m.commands {
		if c.isKnight {
			b.WriteUByte(byte(protocol.SMMKnightLocation))
			b.WriteVarint(c.knightID)
			b.WriteUint32(uint32(c.px))
			b.WriteUint32(uint32(c.py))
			continue
		}
		b.WriteUByte(byte(protocol.SMMSetColour))
		b.WriteVarint(uint32(c.x))
		b.WriteVarint(uint32(c.y))
		b.WriteVarint(uint32(c.len))
		b.WriteUByte(c.colour)
	}
	m.commands = m.commands[:0]
}
