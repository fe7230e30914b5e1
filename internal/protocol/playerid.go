package protocol

// PlayerID is an opaque player identity, optionally namespaced by the
// platform it came from (e.g. a LAN name vs. a platform account id).
// Equality is byte-exact; the empty PlayerID means "unidentified".
type PlayerID struct {
	Platform string
	Name     string
}

// Empty reports whether this PlayerID is the unidentified value.
func (p PlayerID) Empty() bool {
	return p.Platform == "" && p.Name == ""
}

// Equal reports byte-exact equality between two PlayerIDs.
func (p PlayerID) Equal(o PlayerID) bool {
	return p.Platform == o.Platform && p.Name == o.Name
}

// String renders the id for logging as "platform:name", or just "name"
// when unqualified.
func (p PlayerID) String() string {
	if p.Platform == "" {
		return p.Name
	}
	return p.Platform + ":" + p.Name
}
