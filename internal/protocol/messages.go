package protocol

import (
	"github.com/sdthompson1/knights-go/internal/wire"
)

// RosterEntry is one row of JoinGameAccepted's player roster: ready flag
// and assigned colour for an already-present GameConnection.
type RosterEntry struct {
	ID       PlayerID
	Ready    bool
	Colour   uint8
	Observer bool
}

// JoinGameAccepted is the most complex message in the protocol: it
// equips a newly-joined client with everything needed to render the
// lobby and, if applicable, rejoin an in-progress game. Graphic/anim/
// overlay/sound/control tables are transmitted as dense registries of
// opaque ids (see SPEC_FULL.md DOMAIN STACK / spec.md §9's "indexed
// registry" redesign note) — the contents of each table entry are owned
// by the external GameEngine/config boundary and are opaque []byte blobs
// here; only the registry's shape (count + id) is protocol-visible.
type JoinGameAccepted struct {
	GraphicTable              []RegistryEntry
	AnimTable                 []RegistryEntry
	OverlayTable              []RegistryEntry
	SoundTable                []RegistryEntry
	ControlTable              []RegistryEntry
	MenuTable                 []byte // opaque menu-widget layout blob
	ApproachOffsetX           int32
	ApproachOffsetY           int32
	OwnColour                 uint8
	Roster                    []RosterEntry
	Observers                 []PlayerID
	AlreadyStarted            bool
}

// RegistryEntry is one dense id->opaque-blob row of a JoinGameAccepted
// table.
type RegistryEntry struct {
	ID   uint32
	Data []byte
}

func writeRegistry(b *wire.Buf, entries []RegistryEntry) {
	b.WriteVarint(uint32(len(entries)))
	for _, e := range entries {
		b.WriteVarint(e.ID)
		b.WriteVarint(uint32(len(e.Data)))
		b.WriteBytes(e.Data)
	}
}

func readRegistry(r *wire.Reader) ([]RegistryEntry, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make([]RegistryEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		l, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		data, err := r.ReadBytes(int(l))
		if err != nil {
			return nil, err
		}
		out = append(out, RegistryEntry{ID: id, Data: data})
	}
	return out, nil
}

// Encode writes the JoinGameAccepted payload (preceded by its
// SJoinGameAccepted code) into b.
func (m *JoinGameAccepted) Encode(b *wire.Buf) {
	b.WriteUByte(byte(SJoinGameAccepted))
	writeRegistry(b, m.GraphicTable)
	writeRegistry(b, m.AnimTable)
	writeRegistry(b, m.OverlayTable)
	writeRegistry(b, m.SoundTable)
	writeRegistry(b, m.ControlTable)
	b.WriteVarint(uint32(len(m.MenuTable)))
	b.WriteBytes(m.MenuTable)
	b.WriteUint32(uint32(m.ApproachOffsetX))
	b.WriteUint32(uint32(m.ApproachOffsetY))
	b.WriteUByte(m.OwnColour)
	b.WriteVarint(uint32(len(m.Roster)))
	for _, r := range m.Roster {
		b.WriteString(r.ID.Platform)
		b.WriteString(r.ID.Name)
		b.WriteUByte(boolByte(r.Ready))
		b.WriteUByte(r.Colour)
		b.WriteUByte(boolByte(r.Observer))
	}
	b.WriteVarint(uint32(len(m.Observers)))
	for _, o := range m.Observers {
		b.WriteString(o.Platform)
		b.WriteString(o.Name)
	}
	b.WriteUByte(boolByte(m.AlreadyStarted))
}

// DecodeJoinGameAccepted reads a JoinGameAccepted payload (the leading
// code byte must already have been consumed by the caller's dispatch).
func DecodeJoinGameAccepted(r *wire.Reader) (*JoinGameAccepted, error) {
	m := &JoinGameAccepted{}
	var err error
	if m.GraphicTable, err = readRegistry(r); err != nil {
		return nil, err
	}
	if m.AnimTable, err = readRegistry(r); err != nil {
		return nil, err
	}
	if m.OverlayTable, err = readRegistry(r); err != nil {
		return nil, err
	}
	if m.SoundTable, err = readRegistry(r); err != nil {
		return nil, err
	}
	if m.ControlTable, err = readRegistry(r); err != nil {
		return nil, err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if m.MenuTable, err = r.ReadBytes(int(n)); err != nil {
		return nil, err
	}
	ox, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	oy, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	m.ApproachOffsetX, m.ApproachOffsetY = int32(ox), int32(oy)
	if m.OwnColour, err = r.ReadUByte(); err != nil {
		return nil, err
	}
	nr, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	m.Roster = make([]RosterEntry, 0, nr)
	for i := uint32(0); i < nr; i++ {
		plat, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		ready, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		colour, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		obs, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.Roster = append(m.Roster, RosterEntry{
			ID:       PlayerID{Platform: plat, Name: name},
			Ready:    ready != 0,
			Colour:   colour,
			Observer: obs != 0,
		})
	}
	no, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	m.Observers = make([]PlayerID, 0, no)
	for i := uint32(0); i < no; i++ {
		plat, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		m.Observers = append(m.Observers, PlayerID{Platform: plat, Name: name})
	}
	started, err := r.ReadUByte()
	if err != nil {
		return nil, err
	}
	m.AlreadyStarted = started != 0
	return m, nil
}

// PlayerListEntry is one row of the PlayerList broadcast.
type PlayerListEntry struct {
	ID     PlayerID
	RGB    uint32
	Kills  int32
	Deaths int32
	Frags  int32
	PingMS uint16
	State  PlayerState
}

// GameInfo is the payload of UpdateGame.
type GameInfo struct {
	Name         string
	NumPlayers   int
	NumObservers int
	Status       GameStatus
}

// AnnouncementLoc is a localised (key, params) announcement, the only
// form user-visible strings may take once they can originate from a
// replicated-mode peer (see protocol.Placeholder).
type AnnouncementLoc struct {
	Key    string
	Params []string
}

func (a *AnnouncementLoc) Encode(b *wire.Buf) {
	b.WriteUByte(byte(SAnnouncementLoc))
	b.WriteString(a.Key)
	b.WriteVarint(uint32(len(a.Params)))
	for _, p := range a.Params {
		b.WriteString(p)
	}
}

func DecodeAnnouncementLoc(r *wire.Reader) (*AnnouncementLoc, error) {
	key, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	params := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		p, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return &AnnouncementLoc{Key: key, Params: params}, nil
}

// ExtendedMessage is the envelope for forward-compatible messages:
// code:varint, len:ushort (back-patched), payload. Unknown codes are
// skipped by consuming exactly len bytes.
type ExtendedMessage struct {
	Code    ExtendedCode
	Payload []byte
}

func (e *ExtendedMessage) Encode(b *wire.Buf) {
	b.WriteUByte(byte(SExtendedMessage))
	b.WriteVarint(uint32(e.Code))
	off := b.PayloadSizePlaceholder()
	b.WriteBytes(e.Payload)
	// Backpatch is infallible here: Payload is produced internally and
	// is always well under the ushort ceiling.
	_ = b.BackpatchPayloadSize(off)
}

// DecodeExtendedMessage reads the envelope and returns the raw payload
// bytes regardless of whether Code is recognised; callers dispatch on
// Code themselves and simply discard unrecognised payloads.
func DecodeExtendedMessage(r *wire.Reader) (*ExtendedMessage, error) {
	code, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadPayloadSize()
	if err != nil {
		return nil, err
	}
	if r.Remaining() < int(size) {
		return nil, NewError(ErrPayloadOverrun)
	}
	payload, err := r.ReadBytes(int(size))
	if err != nil {
		return nil, err
	}
	return &ExtendedMessage{Code: ExtendedCode(code), Payload: payload}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
