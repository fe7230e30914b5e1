package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseHandshake validates and extracts the numeric version from the
// first UTF-8 line a client sends, which must be exactly
// "Knights/NNN". Returns a protocol.Error with ErrBadHandshake,
// ErrVersionTooOld, or ErrVersionTooNew on failure.
func ParseHandshake(line string) (int, error) {
	if !strings.HasPrefix(line, HandshakePrefix) {
		return 0, NewError(ErrBadHandshake)
	}
	numStr := line[len(HandshakePrefix):]
	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, NewError(ErrBadHandshake)
	}
	if n < Compatible {
		return 0, NewError(ErrVersionTooOld, fmt.Sprintf("%d", n))
	}
	if n > Current {
		return 0, NewError(ErrVersionTooNew, fmt.Sprintf("%d", n))
	}
	return n, nil
}
