// Package protocol defines the wire message codes, structured payloads,
// and version constants shared by client and server. It has no I/O of
// its own; internal/wire provides the byte-level codec and
// internal/gameserver/internal/session drive the handshake described
// below.
package protocol

// Version constants for the "Knights/NNN" handshake string (spec.md
// §4.3): a connecting client's version must fall in [Compatible,
// Current] or the server rejects it with a protocol error before any
// further bytes are processed.
const (
	Compatible = 18
	Current    = 18
)

// VersionAccepted reports whether a connecting client's advertised
// version can be served by this build.
func VersionAccepted(remote int) bool {
	return remote >= Compatible && remote <= Current
}

// HandshakePrefix is the literal prefix of the first bytes a client
// must send, before the numeric version ("Knights/018").
const HandshakePrefix = "Knights/"
