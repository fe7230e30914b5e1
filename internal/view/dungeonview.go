// Package view implements the per-observer adapters (C3) that translate
// GameEngine callbacks into the dungeon-view, mini-map, and
// status-display wire sub-protocols. Each maintains a diff cache so that
// redundant state is never re-sent to a client that has already seen it.
package view

import (
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// SquareSeen is the per-square visibility state the dungeon-view encoder
// remembers for every square in every room an observer has ever visited.
type SquareSeen uint8

const (
	Unseen SquareSeen = iota
	Seen
	ItemCleared
)

// roomCoord packs a room-local (x, y) pair (rooms are bounded 0..15 on
// each axis); it keys each room's SquareSeen map.
type roomCoord struct{ x, y uint8 }

type roomKey struct {
	observerID string
	roomID     uint32
}

type squareState struct {
	seen SquareSeen
}

// ColourChange identifies an optional palette remap applied to a tile's
// graphic. The zero value means "no colour change".
type ColourChange uint8

// command is a buffered dungeon-view update pending flush for the
// current room. SetItem is represented by GfxIsNil=true rather than a
// nilable pointer so commands stay a flat, allocation-free slice.
type command struct {
	kind      cmdKind
	x, y      uint8
	depth     int8
	gfx       uint32
	gfxIsNil  bool
	colour    ColourChange
	hasColour bool
	force     bool
}

type cmdKind uint8

const (
	cmdSetTile cmdKind = iota
	cmdClearTiles
	cmdSetItem
)

// Encoder is the dungeon-view adapter for one observer. It buffers
// set-tile/clear-tiles/set-item commands for the observer's current
// room and, on Flush, emits only the commands that changed visible
// state, per spec.md §4.4.
type Encoder struct {
	observerID string
	room       uint32
	squares    map[roomKey]map[roomCoord]SquareSeen
	pending    []command
}

// NewEncoder creates a dungeon-view encoder for the given observer.
func NewEncoder(observerID string) *Encoder {
	return &Encoder{
		observerID: observerID,
		squares:    make(map[roomKey]map[roomCoord]SquareSeen),
	}
}

func (e *Encoder) roomMap(room uint32) map[roomCoord]SquareSeen {
	key := roomKey{e.observerID, room}
	m, ok := e.squares[key]
	if !ok {
		m = make(map[roomCoord]SquareSeen)
		e.squares[key] = m
	}
	return m
}

// SwitchRoom moves the encoder's buffering context to a new room. Any
// buffered *forced* commands for the previous room that were never
// flushed have their squares downgraded to ItemCleared, so that if the
// observer later returns to that room, those squares are re-sent
// (spec.md §4.4 "fixes a scroll-edge bug").
func (e *Encoder) SwitchRoom(room uint32) {
	if room == e.room {
		return
	}
	oldMap := e.roomMap(e.room)
	for _, c := range e.pending {
		if c.force {
			if oldMap[roomCoord{c.x, c.y}] == Seen {
				oldMap[roomCoord{c.x, c.y}] = ItemCleared
			}
		}
	}
	e.pending = e.pending[:0]
	e.room = room
}

// SetTile buffers a set-tile command for the current room.
func (e *Encoder) SetTile(x, y uint8, depth int8, gfx uint32, cc ColourChange, hasColour bool, force bool) {
	e.pending = append(e.pending, command{
		kind: cmdSetTile, x: x, y: y, depth: depth, gfx: gfx,
		colour: cc, hasColour: hasColour, force: force,
	})
}

// ClearTiles buffers a clear-tiles command for the current room.
func (e *Encoder) ClearTiles(x, y uint8, force bool) {
	e.pending = append(e.pending, command{kind: cmdClearTiles, x: x, y: y, force: force})
}

// SetItem buffers a set-item command. gfx==nil (gfxIsNil=true) means "no
// item"; per spec.md §4.4 this is omitted entirely when the square is
// still Unseen, since clients default unseen squares to having no item.
func (e *Encoder) SetItem(x, y uint8, gfx uint32, gfxIsNil bool, force bool) {
	e.pending = append(e.pending, command{kind: cmdSetItem, x: x, y: y, gfx: gfx, gfxIsNil: gfxIsNil, force: force})
}

// Flush emits the buffered commands for the current room into b,
// applying the diff-suppression rule: a command is written only if it
// carries Force, or its square has not already been flagged Seen. After
// a square's commands are emitted it is marked Seen.
func (e *Encoder) Flush(b *wire.Buf) {
	m := e.roomMap(e.room)
	for _, c := range e.pending {
		coord := roomCoord{c.x, c.y}
		prevSeen := m[coord]
		emit := c.force || prevSeen != Seen

		if c.kind == cmdSetItem && c.gfxIsNil && prevSeen == Unseen {
			// Clients already default unseen squares to "no item";
			// sending this would be a wasted, redundant byte.
			emit = false
		}

		if emit {
			e.encodeCommand(b, c)
		}

		m[coord] = Seen
	}
	e.pending = e.pending[:0]
}

func (e *Encoder) encodeCommand(b *wire.Buf, c command) {
	switch c.kind {
	case cmdSetTile:
		b.WriteUByte(byte(protocolSetTileCode))
		b.WriteNibblePair(c.x+1, c.y+1)
		depthField := uint8(c.depth+64) & 0x7f
		if c.hasColour {
			depthField |= 0x80
		}
		b.WriteUByte(depthField)
		b.WriteVarint(c.gfx)
		if c.hasColour {
			b.WriteUByte(byte(c.colour))
		}
	case cmdClearTiles:
		b.WriteUByte(byte(protocolClearTilesCode))
		b.WriteNibblePair(c.x+1, c.y+1)
	case cmdSetItem:
		b.WriteUByte(byte(protocolSetItemCode))
		b.WriteNibblePair(c.x+1, c.y+1)
		b.WriteUByte(boolByte(!c.gfxIsNil))
		if !c.gfxIsNil {
			b.WriteVarint(c.gfx)
		}
	}
}

// Entity commands (add/remove/move/face/animate/speech-bubble) have no
// diff cache — they are emitted directly every time, per spec.md §4.4.

func (e *Encoder) AddEntity(b *wire.Buf, id uint32, gfx uint32, x, y uint8) {
	b.WriteUByte(byte(protocolAddEntityCode))
	b.WriteVarint(id)
	b.WriteVarint(gfx)
	b.WriteNibblePair(x+1, y+1)
}

func (e *Encoder) RemoveEntity(b *wire.Buf, id uint32) {
	b.WriteUByte(byte(protocolRemoveEntityCode))
	b.WriteVarint(id)
}

func (e *Encoder) MoveEntity(b *wire.Buf, id uint32, x, y uint8) {
	b.WriteUByte(byte(protocolMoveEntityCode))
	b.WriteVarint(id)
	b.WriteNibblePair(x+1, y+1)
}

func (e *Encoder) FaceEntity(b *wire.Buf, id uint32, dir uint8) {
	b.WriteUByte(byte(protocolFaceEntityCode))
	b.WriteVarint(id)
	b.WriteUByte(dir)
}

func (e *Encoder) AnimateEntity(b *wire.Buf, id uint32, anim uint32) {
	b.WriteUByte(byte(protocolAnimateEntityCode))
	b.WriteVarint(id)
	b.WriteVarint(anim)
}

func (e *Encoder) SpeechBubble(b *wire.Buf, id uint32, on bool) {
	b.WriteUByte(byte(protocolSpeechBubbleCode))
	b.WriteVarint(id)
	b.WriteUByte(boolByte(on))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

const (
	protocolSetTileCode       = protocol.SDVSetTile
	protocolClearTilesCode    = protocol.SDVClearTiles
	protocolSetItemCode       = protocol.SDVSetItem
	protocolAddEntityCode     = protocol.SDVAddEntity
	protocolRemoveEntityCode  = protocol.SDVRemoveEntity
	protocolMoveEntityCode    = protocol.SDVMoveEntity
	protocolFaceEntityCode    = protocol.SDVFaceEntity
	protocolAnimateEntityCode = protocol.SDVAnimateEntity
	protocolSpeechBubbleCode  = protocol.SDVSpeechBubble
)
