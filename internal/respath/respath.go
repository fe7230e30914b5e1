// Package respath normalises the resource paths used to key into the
// file-resource layer's keyed byte-stream opener (spec.md §1, §6). The
// opener itself — and the underlying file/archive storage it reads
// from — is out of scope; this package only owns the path-format rule
// spec.md §6 specifies and §8 invariant 9 tests, so that callers never
// have to hand a `..`-laden or absolute-looking string to whatever
// concrete opener implementation the embedding game supplies.
package respath

import "strings"

// Normalize splits and validates a resource path per spec.md §6:
// components are separated by '/' or '\\', ':' is forbidden anywhere,
// '.' and empty components are dropped silently, and '..' is rejected
// outright if it would climb above the root (i.e. if doing so would
// leave fewer than zero directories below the root at that point).
//
// It returns the cleaned component list with no '.', '..', or empty
// entries, or an error if the path is malformed or attempts to escape
// the root.
func Normalize(path string) ([]string, error) {
	if strings.ContainsRune(path, ':') {
		return nil, &Error{Path: path, Reason: "colon not allowed"}
	}

	raw := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})

	out := make([]string, 0, len(raw))
	for _, c := range raw {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return nil, &Error{Path: path, Reason: "'..' escapes root"}
			}
			out = out[:len(out)-1]
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

// Error reports why a resource path was rejected.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return "respath: " + e.Path + ": " + e.Reason
}
