package migration

import "github.com/sdthompson1/knights-go/internal/protocol"

// ChecksumEntry is one deterministic-point checksum sample, produced by
// both leader and follower at the same logical tick so they can be
// compared (spec.md §4.6 "Desync detection policy").
type ChecksumEntry struct {
	TimerMS  uint32
	Checksum uint64
}

// ChecksumTracker queues checksums from one side (the leader's, as
// relayed to a follower) and compares them against the follower's own
// as they become available, in timer order. A mismatch is fatal: the
// peer has diverged and must disconnect and re-sync from scratch
// (spec.md §7 "Desync").
type ChecksumTracker struct {
	remote []ChecksumEntry
	local  []ChecksumEntry
}

// PushRemote records a checksum received from the peer.
func (t *ChecksumTracker) PushRemote(e ChecksumEntry) { t.remote = append(t.remote, e) }

// PushLocal records a checksum computed locally.
func (t *ChecksumTracker) PushLocal(e ChecksumEntry) { t.local = append(t.local, e) }

// Compare matches up queued remote/local pairs in arrival order and
// reports the first desync found, consuming every pair it compares
// (matched or not) so the queues don't grow unbounded.
func (t *ChecksumTracker) Compare() (*protocol.Error, bool) {
	n := len(t.remote)
	if len(t.local) < n {
		n = len(t.local)
	}
	var mismatch *protocol.Error
	for i := 0; i < n; i++ {
		if t.remote[i].TimerMS != t.local[i].TimerMS || t.remote[i].Checksum != t.local[i].Checksum {
			mismatch = protocol.NewFatalError(protocol.ErrDesync)
		}
	}
	t.remote = t.remote[n:]
	t.local = t.local[n:]
	return mismatch, mismatch != nil
}
