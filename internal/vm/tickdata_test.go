package vm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingCallbacks struct {
	NoopCallbacks
	events []string
}

func (r *recordingCallbacks) OnNewTick(ms int) {
	r.events = append(r.events, sprintf("newTick(%d)", ms))
}
func (r *recordingCallbacks) OnNewConnection(client uint8, id string) {
	r.events = append(r.events, sprintf("newConn(%d,%q)", client, id))
}
func (r *recordingCallbacks) OnClientSendData(client uint8, data []byte) {
	r.events = append(r.events, sprintf("clientSend(%d,%v)", client, data))
}
func (r *recordingCallbacks) OnClientPingReport(client uint8, ms uint16) {
	r.events = append(r.events, sprintf("ping(%d,%d)", client, ms))
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// TestTickRoundTripS6 reproduces spec.md §8 scenario S6: writer encodes a
// 17ms tick with NewConnection/ClientSendData/ClientPingReport for client
// 0, and the reader must invoke callbacks in exactly that order with
// exactly those argument bytes.
func TestTickRoundTripS6(t *testing.T) {
	w := NewTickWriter(17)
	require.NoError(t, w.WriteNewConnection(0, ""))
	require.NoError(t, w.WriteClientSendData(0, []byte{0xAA, 0xBB}))
	require.NoError(t, w.WriteClientPingReport(0, 42))
	frame, err := w.Finalize()
	require.NoError(t, err)

	cb := &recordingCallbacks{}
	rest, err := ReadTickData(frame, cb)
	require.NoError(t, err)
	require.Empty(t, rest)

	require.Equal(t, []string{
		`newTick(17)`,
		`newConn(0,"")`,
		`clientSend(0,[170 187])`,
		`ping(0,42)`,
	}, cb.events)
}

func TestTickRoundTripEmptyFrame(t *testing.T) {
	w := NewTickWriter(0)
	frame, err := w.Finalize()
	require.NoError(t, err)
	require.False(t, w.WasMessageWritten())

	cb := &recordingCallbacks{}
	rest, err := ReadTickData(frame, cb)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, []string{"newTick(0)"}, cb.events)
}

func TestTickDurationClamped(t *testing.T) {
	w := NewTickWriter(5000)
	frame, err := w.Finalize()
	require.NoError(t, err)

	cb := &recordingCallbacks{}
	_, err = ReadTickData(frame, cb)
	require.NoError(t, err)
	require.Equal(t, []string{"newTick(1000)"}, cb.events)
}

// TestLengthCodecRoundTrip is spec.md §8 invariant 8: for every integer
// in [0, MaxLength], decode(encode(n)) == n.
func TestLengthCodecRoundTrip(t *testing.T) {
	samples := []uint32{0, 1, 14, 15, 127, 128, 16383, 16384, MaxLength, MaxLength - 1}
	for _, n := range samples {
		buf, err := encodeLength(nil, n)
		require.NoError(t, err)
		got, consumed, err := decodeLength(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), consumed)
		require.Equal(t, n, got)
	}
}

func TestMultipleMessagesAndCloseAll(t *testing.T) {
	w := NewTickWriter(10)
	require.NoError(t, w.WriteNewConnection(1, "abc"))
	require.NoError(t, w.WriteCloseConnection(2))
	require.NoError(t, w.WriteCloseAllConnections())
	require.NoError(t, w.WriteServerSendData(3, []byte{1, 2, 3}))
	frame, err := w.Finalize()
	require.NoError(t, err)

	cc := &countingCallbacks{}
	rest, err := ReadTickData(frame, cc)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, 1, cc.newConn)
	require.Equal(t, 1, cc.closeConn)
	require.Equal(t, 1, cc.closeAll)
	require.Equal(t, 1, cc.serverSend)
}

type countingCallbacks struct {
	NoopCallbacks
	newConn, closeConn, closeAll, serverSend int
}

func (c *countingCallbacks) OnNewConnection(uint8, string)  { c.newConn++ }
func (c *countingCallbacks) OnCloseConnection(uint8)        { c.closeConn++ }
func (c *countingCallbacks) OnCloseAllConnections()         { c.closeAll++ }
func (c *countingCallbacks) OnServerSendData(uint8, []byte) { c.serverSend++ }
