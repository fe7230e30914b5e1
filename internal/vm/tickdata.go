// Package vm implements the deterministic replicated-mode execution
// environment (spec.md §4.5): the tick-frame wire format that carries
// every input/output crossing the VM boundary, and the single-threaded
// Machine that steps a GameEngine from a stream of tick frames so that
// two machines fed identical frames produce byte-identical output
// (spec.md §8 invariant 10).
//
// Ported from the teacher repo's netcode message-framing style, adapted
// to the exact byte layout of the original implementation's
// src/virtual_server/tick_data.cpp (see DESIGN.md) since the wire layout
// here is a hard external-interop requirement (spec.md §4.5), not a free
// design choice.
package vm

import "fmt"

// MaxLength is the largest value the 3-byte length encoding below can
// carry (22 bits), matching wire.MaxLength.
const MaxLength = 0x3fffff

// MaxTickDurationMS clamps a single tick frame's elapsed-time header
// (spec.md §3 "clamped 0-1000").
const MaxTickDurationMS = 1000

// MessageKind identifies one tick-frame sub-message (spec.md §4.5).
type MessageKind uint8

const (
	MsgNewConnection MessageKind = iota
	MsgCloseConnection
	MsgClientSendData
	MsgClientPingReport
	MsgServerSendData
	// MsgCloseAllConnections is the one kind spec.md §3/§4.5 name that the
	// original src/virtual_server/tick_data.cpp does not: it is needed so
	// a promoted leader can tear down every replica's connections in one
	// record rather than one CloseConnection per client.
	MsgCloseAllConnections
)

// Callbacks receives decoded tick-frame events in wire order. A type
// that only cares about some events can embed NoopCallbacks.
type Callbacks interface {
	OnNewTick(tickDurationMS int)
	OnNewConnection(client uint8, platformUserID string)
	OnCloseConnection(client uint8)
	OnCloseAllConnections()
	OnClientSendData(client uint8, data []byte)
	OnClientPingReport(client uint8, pingMS uint16)
	OnServerSendData(client uint8, data []byte)
}

// NoopCallbacks gives every Callbacks method a no-op body so embedders
// only need to override what they use.
type NoopCallbacks struct{}

func (NoopCallbacks) OnNewTick(int)                    {}
func (NoopCallbacks) OnNewConnection(uint8, string)    {}
func (NoopCallbacks) OnCloseConnection(uint8)          {}
func (NoopCallbacks) OnCloseAllConnections()           {}
func (NoopCallbacks) OnClientSendData(uint8, []byte)   {}
func (NoopCallbacks) OnClientPingReport(uint8, uint16) {}
func (NoopCallbacks) OnServerSendData(uint8, []byte)   {}

// encodeLength appends n as the tick-frame's 1-3 byte length encoding:
// byte0 holds the low 7 bits (continuation bit set if more follow),
// byte1 holds the next 7 bits (continuation bit set if byte2 present),
// byte2 holds the remaining 8 bits verbatim. This is distinct from
// wire.EncodeVarint (which spends a continuation bit in every byte) and
// must stay that way: it is the literal format the original
// PushBackLength function uses and replicated peers decode it the same
// way regardless of implementation language.
func encodeLength(buf []byte, n uint32) ([]byte, error) {
	if n > MaxLength {
		return nil, fmt.Errorf("vm: length %d exceeds MaxLength", n)
	}
	x := byte(n & 0x7f)
	y := byte((n >> 7) & 0x7f)
	z := byte((n >> 14) & 0xff)
	if y != 0 || z != 0 {
		x |= 0x80
	}
	if z != 0 {
		y |= 0x80
	}
	buf = append(buf, x)
	if x&0x80 != 0 {
		buf = append(buf, y)
	}
	if y&0x80 != 0 {
		buf = append(buf, z)
	}
	return buf, nil
}

func decodeLength(data []byte) (uint32, int, error) {
	if len(data) < 1 {
		return 0, 0, fmt.Errorf("vm: tick data truncated reading length")
	}
	x := data[0]
	n := 1
	var y, z byte
	if x&0x80 != 0 {
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("vm: tick data truncated reading length")
		}
		y = data[1]
		n = 2
		if y&0x80 != 0 {
			if len(data) < 3 {
				return 0, 0, fmt.Errorf("vm: tick data truncated reading length")
			}
			z = data[2]
			n = 3
		}
	}
	return uint32(z)<<14 | uint32(y&0x7f)<<7 | uint32(x&0x7f), n, nil
}

// TickWriter appends one tick frame's worth of messages to an internal
// buffer. Callers write zero or more messages and must call Finalize
// exactly once before using the result.
type TickWriter struct {
	data           []byte
	tickDurationMS int
	lastMsgPos     int // -1 until the first message is written
}

// NewTickWriter starts a frame with the given elapsed time, clamped to
// [0, MaxTickDurationMS] per spec.md §3.
func NewTickWriter(tickDurationMS int) *TickWriter {
	if tickDurationMS < 0 {
		tickDurationMS = 0
	}
	if tickDurationMS > MaxTickDurationMS {
		tickDurationMS = MaxTickDurationMS
	}
	return &TickWriter{tickDurationMS: tickDurationMS, lastMsgPos: -1}
}

// WasMessageWritten reports whether any write* method has been called.
func (w *TickWriter) WasMessageWritten() bool { return w.lastMsgPos != -1 }

func (w *TickWriter) beginMessage(kind MessageKind, payloadLen int, client uint8) error {
	if w.lastMsgPos == -1 {
		var err error
		w.data, err = encodeLength(w.data, uint32(w.tickDurationMS)<<1|1)
		if err != nil {
			return err
		}
	}
	if len(w.data) >= MaxLength {
		return fmt.Errorf("vm: tick data too long")
	}

	w.lastMsgPos = len(w.data)

	b := byte(0x80) // more-messages flag, cleared by Finalize on the last record
	needSeparateLength := payloadLen >= 15
	if needSeparateLength {
		b |= 0x78
	} else {
		b |= byte(payloadLen) << 3
	}
	b |= byte(kind)
	w.data = append(w.data, b)

	if needSeparateLength {
		var err error
		w.data, err = encodeLength(w.data, uint32(payloadLen))
		if err != nil {
			return err
		}
	}

	w.data = append(w.data, client)
	return nil
}

// WriteNewConnection records a new replica-side connection.
func (w *TickWriter) WriteNewConnection(client uint8, platformUserID string) error {
	if err := w.beginMessage(MsgNewConnection, len(platformUserID), client); err != nil {
		return err
	}
	w.data = append(w.data, platformUserID...)
	return nil
}

// WriteCloseConnection records one connection closing.
func (w *TickWriter) WriteCloseConnection(client uint8) error {
	return w.beginMessage(MsgCloseConnection, 0, client)
}

// WriteCloseAllConnections records every connection closing at once
// (used on leader handover, spec.md §4.6 "Promotion/demotion").
func (w *TickWriter) WriteCloseAllConnections() error {
	return w.beginMessage(MsgCloseAllConnections, 0, 0)
}

// WriteClientSendData records raw bytes a client sent this tick.
func (w *TickWriter) WriteClientSendData(client uint8, data []byte) error {
	if err := w.beginMessage(MsgClientSendData, len(data), client); err != nil {
		return err
	}
	w.data = append(w.data, data...)
	return nil
}

// WriteClientPingReport records a measured RTT, encoded in the payload-
// length slot per the original format (spec.md §4.6 step 3).
func (w *TickWriter) WriteClientPingReport(client uint8, pingMS uint16) error {
	return w.beginMessage(MsgClientPingReport, int(pingMS), client)
}

// WriteServerSendData records raw bytes the server/VM produced for a
// client this tick.
func (w *TickWriter) WriteServerSendData(client uint8, data []byte) error {
	if err := w.beginMessage(MsgServerSendData, len(data), client); err != nil {
		return err
	}
	w.data = append(w.data, data...)
	return nil
}

// Finalize clears the chain bit on the last record (or writes a
// messages-absent header if none were written) and returns the
// completed frame bytes. The TickWriter must not be reused afterwards.
func (w *TickWriter) Finalize() ([]byte, error) {
	if w.lastMsgPos == -1 {
		var err error
		w.data, err = encodeLength(w.data, uint32(w.tickDurationMS)<<1)
		if err != nil {
			return nil, err
		}
	} else {
		w.data[w.lastMsgPos] ^= 0x80
	}
	return w.data, nil
}

// ReadTickData decodes exactly one tick frame from the start of data,
// invoking cb in wire order, and returns the unconsumed remainder. An
// empty input yields an empty remainder with no callbacks invoked.
func ReadTickData(data []byte, cb Callbacks) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	header, n, err := decodeLength(data)
	if err != nil {
		return nil, err
	}
	data = data[n:]

	moreMessages := header&1 != 0
	duration := int(header >> 1)
	if duration > 1000 {
		return nil, fmt.Errorf("vm: invalid tick duration %d", duration)
	}
	cb.OnNewTick(duration)

	for moreMessages {
		if len(data) < 1 {
			return nil, fmt.Errorf("vm: tick data truncated reading message header")
		}
		b := data[0]
		data = data[1:]

		moreMessages = b&0x80 != 0
		payloadLen := int((b >> 3) & 0xf)
		kind := MessageKind(b & 0x7)

		if payloadLen == 0xf {
			var ln uint32
			ln, n, err = decodeLength(data)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			payloadLen = int(ln)
		}

		if len(data) < 1 {
			return nil, fmt.Errorf("vm: tick data truncated reading client number")
		}
		client := data[0]
		data = data[1:]

		// ClientPingReport is the one kind whose "payload length" field
		// IS the value (the measured RTT), not a byte count: no payload
		// bytes follow the client-number byte for this kind (mirrors
		// the original ReadTickData's ping-report branch, which never
		// calls ReadVector/ReadString).
		if kind == MsgClientPingReport {
			cb.OnClientPingReport(client, uint16(payloadLen))
			continue
		}

		if len(data) < payloadLen {
			return nil, fmt.Errorf("vm: tick data truncated reading payload")
		}
		payload := data[:payloadLen]
		data = data[payloadLen:]

		switch kind {
		case MsgNewConnection:
			cb.OnNewConnection(client, string(payload))
		case MsgCloseConnection:
			cb.OnCloseConnection(client)
		case MsgCloseAllConnections:
			cb.OnCloseAllConnections()
		case MsgClientSendData:
			cb.OnClientSendData(client, payload)
		case MsgServerSendData:
			cb.OnServerSendData(client, payload)
		default:
			return nil, fmt.Errorf("vm: invalid tick message kind %d", kind)
		}
	}

	return data, nil
}
