package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		"Port":       {},
		"MaxPlayers": {},
		"UseBroadcast": {},
		"Description": {},
	}
}

func TestParseBasic(t *testing.T) {
	src := "# comment\n\nPort = 16399\nMaxPlayers = 8\nUseBroadcast = yes\n"
	cfg, err := Parse(strings.NewReader(src), testSchema())
	require.NoError(t, err)

	port, err := cfg.Int("Port")
	require.NoError(t, err)
	require.Equal(t, 16399, port)

	maxPlayers := cfg.IntDefault("MaxPlayers", -1)
	require.Equal(t, 8, maxPlayers)

	bcast, err := cfg.Bool("UseBroadcast")
	require.NoError(t, err)
	require.True(t, bcast)

	require.Equal(t, []string{"Port", "MaxPlayers", "UseBroadcast"}, cfg.Keys())
}

func TestParseUnknownKeyFatal(t *testing.T) {
	src := "Bogus = 1\n"
	_, err := Parse(strings.NewReader(src), testSchema())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 1")
	require.Contains(t, err.Error(), "Bogus")
}

func TestParseMissingEquals(t *testing.T) {
	src := "NotKeyValue\n"
	_, err := Parse(strings.NewReader(src), testSchema())
	require.Error(t, err)
}

func TestParseDuplicateKey(t *testing.T) {
	src := "Port = 1\nPort = 2\n"
	_, err := Parse(strings.NewReader(src), testSchema())
	require.Error(t, err)
}

func TestStringDefaultAndBoolDefault(t *testing.T) {
	cfg, err := Parse(strings.NewReader("Description = hello\n"), testSchema())
	require.NoError(t, err)

	require.Equal(t, "hello", cfg.StringDefault("Description", "fallback"))
	require.Equal(t, "fallback", cfg.StringDefault("MOTDFile", "fallback"))
	require.True(t, cfg.BoolDefault("UseBroadcast", true))
}

func TestNilSchemaAllowsAnyKey(t *testing.T) {
	cfg, err := Parse(strings.NewReader("Anything = 1\n"), nil)
	require.NoError(t, err)
	v, ok := cfg.String("Anything")
	require.True(t, ok)
	require.Equal(t, "1", v)
}
