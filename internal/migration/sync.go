package migration

// Tunables named directly in spec.md §4.6.
const (
	OutstandingWindow  = 200 // "bounded outstanding window (200 blocks+segments)"
	TickMarginSegments = 20  // "TICK_MARGIN_SEGMENTS (20)"
	CatchupSegmentSize = 4096
)

// catchupQueue buffers leader tick output produced while a sync is in
// progress, split into ~CatchupSegmentSize chunks so it interleaves with
// memory-block groups on the wire (spec.md §4.6 "segmented into ~4KB
// chunks ... interleaved with the memory blocks").
type catchupQueue struct {
	segments [][]byte
	pending  []byte
}

func (q *catchupQueue) push(tickBytes []byte) {
	q.pending = append(q.pending, tickBytes...)
	for len(q.pending) >= CatchupSegmentSize {
		q.segments = append(q.segments, q.pending[:CatchupSegmentSize:CatchupSegmentSize])
		q.pending = append([]byte(nil), q.pending[CatchupSegmentSize:]...)
	}
}

// flush moves any partial trailing segment into segments, used once no
// more ticks will arrive before SyncDone.
func (q *catchupQueue) flush() {
	if len(q.pending) > 0 {
		q.segments = append(q.segments, q.pending)
		q.pending = nil
	}
}

func (q *catchupQueue) len() int { return len(q.segments) }

func (q *catchupQueue) pop() ([]byte, bool) {
	if len(q.segments) == 0 {
		return nil, false
	}
	seg := q.segments[0]
	q.segments = q.segments[1:]
	return seg, true
}

// LeaderSync drives one follower's late-joiner sync from the leader
// side: diffing the VM snapshot against the follower's reported hashes,
// streaming changed blocks and interleaved catch-up ticks under a
// bounded outstanding window, and declaring SyncDone once both are
// drained (spec.md §4.6).
type LeaderSync struct {
	encoder *BlockGroupEncoder

	pendingBlocks []MemoryBlock // front-only deque; trimmed on ack
	catchup       catchupQueue

	outstandingBlocks   int
	outstandingSegments int

	noMoreTicks bool
}

// NewLeaderSync starts a sync given the full current snapshot and the
// follower's reported per-block hashes (same order as snapshot).
func NewLeaderSync(snapshot []MemoryBlock, followerHashes []MemoryHash) (*LeaderSync, error) {
	enc, err := NewBlockGroupEncoder()
	if err != nil {
		return nil, err
	}
	s := &LeaderSync{encoder: enc}
	for i, blk := range snapshot {
		if i >= len(followerHashes) || followerHashes[i] != blk.Hash {
			s.pendingBlocks = append(s.pendingBlocks, blk)
		}
	}
	return s, nil
}

// AddTicks records tick bytes produced by the leader VM while this sync
// is still in progress, so the follower catches up to the same point.
func (s *LeaderSync) AddTicks(tickBytes []byte) {
	if !s.noMoreTicks {
		s.catchup.push(tickBytes)
	}
}

// NoMoreTicks flags that the leader VM has stopped producing ticks for
// this follower to catch up on (the follower has been promoted to
// steady-state tick delivery); remaining buffered bytes are flushed into
// a final segment.
func (s *LeaderSync) NoMoreTicks() {
	s.noMoreTicks = true
	s.catchup.flush()
}

// Done reports whether nothing is left to send and the outstanding
// window has drained below the tick margin (spec.md §4.6 "When there is
// nothing left to send and <= TICK_MARGIN_SEGMENTS segments remain
// outstanding, the leader emits SyncDone").
func (s *LeaderSync) Done() bool {
	return len(s.pendingBlocks) == 0 &&
		s.catchup.len() == 0 &&
		s.outstandingBlocks == 0 &&
		s.outstandingSegments <= TickMarginSegments
}

// NextMemoryBlockGroup pops up to MaxGroupBlocks pending blocks,
// compresses them, and marks them outstanding, or returns ok=false if
// the window is full or there is nothing left.
func (s *LeaderSync) NextMemoryBlockGroup() (group []byte, count int, ok bool, err error) {
	if s.outstandingBlocks+s.outstandingSegments >= OutstandingWindow {
		return nil, 0, false, nil
	}
	if len(s.pendingBlocks) == 0 {
		return nil, 0, false, nil
	}
	n := len(s.pendingBlocks)
	if n > MaxGroupBlocks {
		n = MaxGroupBlocks
	}
	batch := s.pendingBlocks[:n]
	group, err = s.encoder.EncodeGroup(batch)
	if err != nil {
		return nil, 0, false, err
	}
	s.pendingBlocks = s.pendingBlocks[n:]
	s.outstandingBlocks += n
	return group, n, true, nil
}

// NextCatchupSegment pops one buffered catch-up segment, or returns
// ok=false if the window is full or nothing is queued.
func (s *LeaderSync) NextCatchupSegment() (segment []byte, ok bool) {
	if s.outstandingBlocks+s.outstandingSegments >= OutstandingWindow {
		return nil, false
	}
	seg, ok := s.catchup.pop()
	if !ok {
		return nil, false
	}
	s.outstandingSegments++
	return seg, true
}

// AckMemoryBlocks retires n outstanding blocks after the follower
// acknowledges receipt (spec.md §5 "trimmed after every hash match").
func (s *LeaderSync) AckMemoryBlocks(n int) {
	s.outstandingBlocks -= n
	if s.outstandingBlocks < 0 {
		s.outstandingBlocks = 0
	}
}

// AckCatchupSegments retires n outstanding catch-up segments.
func (s *LeaderSync) AckCatchupSegments(n int) {
	s.outstandingSegments -= n
	if s.outstandingSegments < 0 {
		s.outstandingSegments = 0
	}
}
