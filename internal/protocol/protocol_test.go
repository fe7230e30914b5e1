package protocol

import (
	"testing"

	"github.com/sdthompson1/knights-go/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestParseHandshakeAccepted(t *testing.T) {
	v, err := ParseHandshake("Knights/018")
	require.NoError(t, err)
	require.Equal(t, 18, v)
}

func TestParseHandshakeTooOld(t *testing.T) {
	_, err := ParseHandshake("Knights/017")
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrVersionTooOld, perr.Key)
}

func TestParseHandshakeTooNew(t *testing.T) {
	_, err := ParseHandshake("Knights/019")
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, ErrVersionTooNew, perr.Key)
}

func TestParseHandshakeMalformed(t *testing.T) {
	for _, s := range []string{"", "Knight/018", "Knights/", "Knights/abc"} {
		_, err := ParseHandshake(s)
		require.Error(t, err, s)
	}
}

func TestPlayerIDEquality(t *testing.T) {
	a := PlayerID{Platform: "steam", Name: "alice"}
	b := PlayerID{Platform: "steam", Name: "alice"}
	c := PlayerID{Platform: "", Name: "alice"}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.True(t, PlayerID{}.Empty())
	require.False(t, a.Empty())
	require.Equal(t, "steam:alice", a.String())
	require.Equal(t, "alice", c.String())
}

func TestControlRefEncodeDecode(t *testing.T) {
	cases := []ControlRef{
		{Slot: 0, Ordinal: 1},
		{Slot: 1, Ordinal: 1},
		{Slot: 0, Ordinal: 127},
		{Slot: 1, Ordinal: 64},
	}
	for _, c := range cases {
		got := DecodeControlRef(c.Encode())
		require.Equal(t, c, got)
		require.True(t, got.Valid())
	}

	zero := DecodeControlRef(0x80) // slot bit set, ordinal 0
	require.False(t, zero.Valid())
}

func TestClientMessageDecodeSendControl(t *testing.T) {
	b := wire.NewBuf()
	b.WriteUByte(ControlRef{Slot: 1, Ordinal: 5}.Encode())
	b.WriteUByte(1)
	r := wire.NewReader(b.Bytes())
	m, err := DecodeClientMessage(CSendControl, r)
	require.NoError(t, err)
	require.Equal(t, ControlRef{Slot: 1, Ordinal: 5}, m.Control)
	require.True(t, m.ControlPressed)
}

func TestClientMessageDecodeInvalidControlOrdinal(t *testing.T) {
	b := wire.NewBuf()
	b.WriteUByte(0) // ordinal 0 is reserved
	b.WriteUByte(1)
	r := wire.NewReader(b.Bytes())
	_, err := DecodeClientMessage(CSendControl, r)
	require.Error(t, err)
}

func TestClientMessageDecodeUnknownCode(t *testing.T) {
	r := wire.NewReader(nil)
	_, err := DecodeClientMessage(ClientCode(0xff), r)
	require.Error(t, err)
}

func TestClientMessageDecodeSetPlayerId(t *testing.T) {
	b := wire.NewBuf()
	b.WriteString("steam")
	b.WriteString("alice")
	r := wire.NewReader(b.Bytes())
	m, err := DecodeClientMessage(CSetPlayerId, r)
	require.NoError(t, err)
	require.Equal(t, PlayerID{Platform: "steam", Name: "alice"}, m.PlayerID)
}

func TestJoinGameAcceptedRoundTrip(t *testing.T) {
	msg := &JoinGameAccepted{
		GraphicTable: []RegistryEntry{{ID: 1, Data: []byte{1, 2}}},
		AnimTable:    []RegistryEntry{},
		OverlayTable: []RegistryEntry{},
		SoundTable:   []RegistryEntry{},
		ControlTable: []RegistryEntry{{ID: 3, Data: nil}},
		MenuTable:    []byte{0xaa, 0xbb},
		ApproachOffsetX: -5,
		ApproachOffsetY: 7,
		OwnColour:       2,
		Roster: []RosterEntry{
			{ID: PlayerID{Name: "bob"}, Ready: true, Colour: 1, Observer: false},
		},
		Observers:      []PlayerID{{Platform: "lan", Name: "eve"}},
		AlreadyStarted: true,
	}
	b := wire.NewBuf()
	msg.Encode(b)

	r := wire.NewReader(b.Bytes())
	code, err := r.ReadUByte()
	require.NoError(t, err)
	require.Equal(t, byte(SJoinGameAccepted), code)

	got, err := DecodeJoinGameAccepted(r)
	require.NoError(t, err)
	require.Equal(t, msg.GraphicTable, got.GraphicTable)
	require.Equal(t, msg.ControlTable, got.ControlTable)
	require.Equal(t, msg.MenuTable, got.MenuTable)
	require.Equal(t, msg.ApproachOffsetX, got.ApproachOffsetX)
	require.Equal(t, msg.ApproachOffsetY, got.ApproachOffsetY)
	require.Equal(t, msg.OwnColour, got.OwnColour)
	require.Equal(t, msg.Roster, got.Roster)
	require.Equal(t, msg.Observers, got.Observers)
	require.Equal(t, msg.AlreadyStarted, got.AlreadyStarted)
	require.Zero(t, r.Remaining())
}

func TestAnnouncementLocRoundTrip(t *testing.T) {
	msg := &AnnouncementLoc{Key: "server_error_foo", Params: []string{"a", "b"}}
	b := wire.NewBuf()
	msg.Encode(b)

	r := wire.NewReader(b.Bytes())
	code, err := r.ReadUByte()
	require.NoError(t, err)
	require.Equal(t, byte(SAnnouncementLoc), code)

	got, err := DecodeAnnouncementLoc(r)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestExtendedMessageRoundTrip(t *testing.T) {
	msg := &ExtendedMessage{Code: ExtendedCode(7), Payload: []byte{1, 2, 3, 4}}
	b := wire.NewBuf()
	msg.Encode(b)

	r := wire.NewReader(b.Bytes())
	code, err := r.ReadUByte()
	require.NoError(t, err)
	require.Equal(t, byte(SExtendedMessage), code)

	got, err := DecodeExtendedMessage(r)
	require.NoError(t, err)
	require.Equal(t, msg.Code, got.Code)
	require.Equal(t, msg.Payload, got.Payload)
}

func TestExtendedMessageOverrunRejected(t *testing.T) {
	b := wire.NewBuf()
	b.WriteVarint(uint32(ExtendedCode(7)))
	b.WriteUShort(100) // claims 100 bytes but none follow
	r := wire.NewReader(b.Bytes())
	_, err := DecodeExtendedMessage(r)
	require.Error(t, err)
}
