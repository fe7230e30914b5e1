package view

import (
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// StatusDisplay is a stateless passthrough adapter (spec.md §4.4):
// backpack slot updates, skulls, health, potion/magic/poison-immunity,
// and the quest-hint extended message are all emitted immediately with
// no diff cache, since the engine itself only calls these when a value
// actually changes.
type StatusDisplay struct{}

func NewStatusDisplay() *StatusDisplay { return &StatusDisplay{} }

func (s *StatusDisplay) BackpackSlot(b *wire.Buf, slot uint8, gfx uint32, number int) {
	b.WriteUByte(byte(protocol.SSDBackpackSlot))
	b.WriteUByte(slot)
	b.WriteVarint(gfx)
	b.WriteVarint(uint32(number))
}

func (s *StatusDisplay) Skulls(b *wire.Buf, count int) {
	b.WriteUByte(byte(protocol.SSDSkulls))
	b.WriteVarint(uint32(count))
}

func (s *StatusDisplay) Health(b *wire.Buf, current, max int) {
	b.WriteUByte(byte(protocol.SSDHealth))
	b.WriteVarint(uint32(current))
	b.WriteVarint(uint32(max))
}

func (s *StatusDisplay) Potion(b *wire.Buf, kind uint8) {
	b.WriteUByte(byte(protocol.SSDPotion))
	b.WriteUByte(kind)
}

func (s *StatusDisplay) Magic(b *wire.Buf, level int) {
	b.WriteUByte(byte(protocol.SSDMagic))
	b.WriteVarint(uint32(level))
}

func (s *StatusDisplay) PoisonImmunity(b *wire.Buf, immune bool) {
	b.WriteUByte(byte(protocol.SSDPoisonImmunity))
	b.WriteUByte(boolByte(immune))
}

// QuestHint emits the extended SetQuestHints message (spec.md §6
// "Extended messages"), one localised (key, params) hint per call.
func (s *StatusDisplay) QuestHint(b *wire.Buf, key string, params []string) {
	inner := wire.NewBuf()
	inner.WriteString(key)
	inner.WriteVarint(uint32(len(params)))
	for _, p := range params {
		inner.WriteString(p)
	}
	ext := protocol.ExtendedMessage{Code: protocol.ExtSetQuestHints, Payload: inner.Bytes()}
	ext.Encode(b)
}
