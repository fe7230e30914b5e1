// Package config parses the Knights server's key=value configuration
// file format (spec.md §6 "resource path format" / the original
// `knights_config.txt`). A generic config library (viper, toml, yaml)
// cannot reproduce the original's diagnostics — "unknown key X at line
// N is fatal" — without being driven through the same amount of custom
// validation code this package already is, so the line-oriented parse
// itself stays on stdlib bufio.Scanner; see DESIGN.md.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Entry is one parsed key=value line together with its source line
// number, kept so callers can report "unknown key" errors the same way
// the original implementation does.
type Entry struct {
	Key   string
	Value string
	Line  int
}

// Config is the parsed key=value file. The schema used to validate it
// is passed to Parse and not kept here.
type Config struct {
	entries map[string]Entry
	order   []string
}

// Schema lists every key this server version recognises; any key
// present in the file but absent here is a fatal "unknown key" error,
// matching the original's strict config validation.
type Schema map[string]struct{}

// Parse reads a knights_config.txt-format stream: blank lines and lines
// beginning with '#' are ignored, every other line must be
// "key = value" (whitespace around '=' is trimmed).
func Parse(r io.Reader, schema Schema) (*Config, error) {
	cfg := &Config{entries: make(map[string]Entry)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("knights_config.txt line %d: missing '=' in %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if schema != nil {
			if _, ok := schema[key]; !ok {
				return nil, fmt.Errorf("knights_config.txt line %d: unknown key %q", lineNo, key)
			}
		}
		if _, dup := cfg.entries[key]; dup {
			return nil, fmt.Errorf("knights_config.txt line %d: duplicate key %q", lineNo, key)
		}
		cfg.entries[key] = Entry{Key: key, Value: value, Line: lineNo}
		cfg.order = append(cfg.order, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("knights_config.txt: %w", err)
	}
	return cfg, nil
}

// String returns a key's raw value, or ok=false if unset.
func (c *Config) String(key string) (string, bool) {
	e, ok := c.entries[key]
	return e.Value, ok
}

// StringDefault returns a key's value, or def if unset.
func (c *Config) StringDefault(key, def string) string {
	if v, ok := c.String(key); ok {
		return v
	}
	return def
}

// Int returns a key's value parsed as an integer.
func (c *Config) Int(key string) (int, error) {
	e, ok := c.entries[key]
	if !ok {
		return 0, fmt.Errorf("config key %q not set", key)
	}
	n, err := strconv.Atoi(e.Value)
	if err != nil {
		return 0, fmt.Errorf("knights_config.txt line %d: %q is not an integer", e.Line, key)
	}
	return n, nil
}

// IntDefault returns a key's integer value, or def if unset.
func (c *Config) IntDefault(key string, def int) int {
	n, err := c.Int(key)
	if err != nil {
		return def
	}
	return n
}

// Bool returns a key's value parsed as a boolean ("true"/"false",
// "1"/"0", "yes"/"no").
func (c *Config) Bool(key string) (bool, error) {
	e, ok := c.entries[key]
	if !ok {
		return false, fmt.Errorf("config key %q not set", key)
	}
	switch strings.ToLower(e.Value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("knights_config.txt line %d: %q is not a boolean", e.Line, key)
	}
}

// BoolDefault returns a key's boolean value, or def if unset/invalid.
func (c *Config) BoolDefault(key string, def bool) bool {
	b, err := c.Bool(key)
	if err != nil {
		return def
	}
	return b
}

// Keys returns every key present in file order, for diagnostics.
func (c *Config) Keys() []string {
	return append([]string(nil), c.order...)
}
