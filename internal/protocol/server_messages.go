package protocol

import (
	"github.com/sdthompson1/knights-go/internal/wire"
)

// Encoder groups the handful of simple server->client messages that are
// just a code plus a couple of fields. Complex ones (JoinGameAccepted,
// AnnouncementLoc, ExtendedMessage) have their own Encode methods above;
// the dungeon-view/mini-map/status sub-protocols live in internal/view.

func EncodeServerError(b *wire.Buf, key string, params []string) {
	b.WriteUByte(byte(SServerError))
	b.WriteString(key)
	b.WriteVarint(uint32(len(params)))
	for _, p := range params {
		b.WriteString(p)
	}
}

func EncodeConnectionAccepted(b *wire.Buf, version int) {
	b.WriteUByte(byte(SConnectionAccepted))
	b.WriteVarint(uint32(version))
}

func EncodeJoinGameDenied(b *wire.Buf, key string) {
	b.WriteUByte(byte(SJoinGameDenied))
	b.WriteString(key)
}

func EncodePlayerConnected(b *wire.Buf, id PlayerID) {
	b.WriteUByte(byte(SPlayerConnected))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
}

func EncodePlayerDisconnected(b *wire.Buf, id PlayerID) {
	b.WriteUByte(byte(SPlayerDisconnected))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
}

func EncodeLeaveGame(b *wire.Buf) {
	b.WriteUByte(byte(SLeaveGame))
}

func EncodeSetMenuSelection(b *wire.Buf, key, value string) {
	b.WriteUByte(byte(SSetMenuSelection))
	b.WriteString(key)
	b.WriteString(value)
}

func EncodeSetQuestDescription(b *wire.Buf, text string) {
	b.WriteUByte(byte(SSetQuestDescription))
	b.WriteString(text)
}

// StartGame encodes the numDisplays/deathmatch/alreadyStarted triple
// described by S2 in spec.md §8.
func EncodeStartGame(b *wire.Buf, obs bool, numDisplays int, deathmatch bool, alreadyStarted bool) {
	if obs {
		b.WriteUByte(byte(SStartGameObs))
	} else {
		b.WriteUByte(byte(SStartGame))
	}
	b.WriteVarint(uint32(numDisplays))
	b.WriteUByte(boolByte(deathmatch))
	b.WriteUByte(boolByte(alreadyStarted))
}

func EncodeGoIntoObsMode(b *wire.Buf) {
	b.WriteUByte(byte(SGoIntoObsMode))
}

func EncodeGotoMenu(b *wire.Buf) {
	b.WriteUByte(byte(SGotoMenu))
}

func EncodePlayerJoinedThisGame(b *wire.Buf, id PlayerID, obs bool) {
	b.WriteUByte(byte(SPlayerJoinedThisGame))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
	b.WriteUByte(boolByte(obs))
}

func EncodePlayerLeftThisGame(b *wire.Buf, id PlayerID) {
	b.WriteUByte(byte(SPlayerLeftThisGame))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
}

func EncodeSetReady(b *wire.Buf, id PlayerID, ready bool) {
	b.WriteUByte(byte(SSetReady))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
	b.WriteUByte(boolByte(ready))
}

func EncodeSetHouseColour(b *wire.Buf, id PlayerID, colour uint8) {
	b.WriteUByte(byte(SSetHouseColour))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
	b.WriteUByte(colour)
}

func EncodeSetAvailableHouseColours(b *wire.Buf, available []bool) {
	b.WriteUByte(byte(SSetAvailableHouseColours))
	b.WriteVarint(uint32(len(available)))
	for _, a := range available {
		b.WriteUByte(boolByte(a))
	}
}

func EncodeSetObsFlag(b *wire.Buf, id PlayerID, obs bool) {
	b.WriteUByte(byte(SSetObsFlag))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
	b.WriteUByte(boolByte(obs))
}

func EncodeDeactivateReadyFlags(b *wire.Buf) {
	b.WriteUByte(byte(SDeactivateReadyFlags))
}

func EncodeChat(b *wire.Buf, from PlayerID, code ChatCode, text string) {
	b.WriteUByte(byte(SChat))
	b.WriteString(from.Platform)
	b.WriteString(from.Name)
	b.WriteUByte(byte(code))
	b.WriteString(text)
}

func EncodePopUpWindow(b *wire.Buf, title, text string) {
	b.WriteUByte(byte(SPopUpWindow))
	b.WriteString(title)
	b.WriteString(text)
}

func EncodeUpdateGame(b *wire.Buf, g GameInfo) {
	b.WriteUByte(byte(SUpdateGame))
	b.WriteString(g.Name)
	b.WriteVarint(uint32(g.NumPlayers))
	b.WriteVarint(uint32(g.NumObservers))
	b.WriteUByte(byte(g.Status))
}

func EncodeDropGame(b *wire.Buf, name string) {
	b.WriteUByte(byte(SDropGame))
	b.WriteString(name)
}

func EncodeUpdatePlayer(b *wire.Buf, e PlayerListEntry) {
	b.WriteUByte(byte(SUpdatePlayer))
	b.WriteString(e.ID.Platform)
	b.WriteString(e.ID.Name)
	b.WriteUint32(e.RGB)
	b.WriteUint32(uint32(e.Kills))
	b.WriteUint32(uint32(e.Deaths))
	b.WriteUint32(uint32(e.Frags))
	b.WriteUShort(e.PingMS)
	b.WriteUByte(byte(e.State))
}

func EncodePlaySound(b *wire.Buf, id uint32, freq uint16) {
	b.WriteUByte(byte(SPlaySound))
	b.WriteVarint(id)
	b.WriteUShort(freq)
}

func EncodeWinGame(b *wire.Buf)  { b.WriteUByte(byte(SWinGame)) }
func EncodeLoseGame(b *wire.Buf) { b.WriteUByte(byte(SLoseGame)) }

func EncodeSetMenuHighlight(b *wire.Buf, key string) {
	b.WriteUByte(byte(SSetMenuHighlight))
	b.WriteString(key)
}

func EncodeFlashScreen(b *wire.Buf) {
	b.WriteUByte(byte(SFlashScreen))
}

func EncodeSwitchPlayer(b *wire.Buf, playerNum int) {
	b.WriteUByte(byte(SSwitchPlayer))
	b.WriteVarint(uint32(playerNum))
}

func EncodeTimeRemaining(b *wire.Buf, ms uint32) {
	b.WriteUByte(byte(STimeRemaining))
	b.WriteUint32(ms)
}

func EncodeReadyToEnd(b *wire.Buf, id PlayerID) {
	b.WriteUByte(byte(SReadyToEnd))
	b.WriteString(id.Platform)
	b.WriteString(id.Name)
}
