// Package knlog is a thin wrapper around log/slog: it names attribute
// keys for game, connection and player identity and offers helpers that
// attach them. The session, gameserver and migration packages take a
// plain *slog.Logger and add their own keys with slog.With (session uses
// "game"; gameserver uses "conn" rather than FieldConnID), so only the
// loggers built through these helpers use these exact keys.
package knlog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Structured field names attached by the helpers below.
const (
	FieldGame     = "game"
	FieldConnID   = "conn_id"
	FieldPlayerID = "player_id"
	FieldClient   = "client" // migration's follower client number
)

// New builds the process-wide *slog.Logger, text-handler by default
// (matching the teacher repo's plain stdout diagnostics — it has no
// logging library of its own, so this stays on stdlib slog rather than
// adopting a third-party structured-logging library none of the
// retrieval pack's examples pull in either).
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default builds a logger writing to os.Stderr at slog.LevelInfo, for
// callers (notably cmd/* entrypoints) that don't need a custom sink.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}

// Game returns a logger scoped to one running game/session.
func Game(base *slog.Logger, name string) *slog.Logger {
	return base.With(FieldGame, name)
}

// Conn returns a logger scoped to one server connection.
func Conn(base *slog.Logger, id uint64) *slog.Logger {
	return base.With(FieldConnID, id)
}

// Player returns a logger scoped to one player identity.
func Player(base *slog.Logger, id string) *slog.Logger {
	return base.With(FieldPlayerID, id)
}

// LogProtocolError records a *protocol.Error-shaped failure at a level
// determined by its fatality, without internal/knlog needing to import
// internal/protocol (avoids a dependency cycle candidate: protocol is
// imported by nearly everything).
func LogProtocolError(ctx context.Context, log *slog.Logger, key string, fatal bool, params []string) {
	level := slog.LevelWarn
	if fatal {
		level = slog.LevelError
	}
	log.Log(ctx, level, "protocol error", "key", key, "fatal", fatal, "params", params)
}
