package migration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeaderSyncSendsOnlyChangedBlocks(t *testing.T) {
	snapshot := sampleBlocks(5, 0)
	followerHashes := make([]MemoryHash, len(snapshot))
	for i, b := range snapshot {
		followerHashes[i] = b.Hash
	}
	// Follower's block 2 is stale.
	followerHashes[2] = 0xdeadbeef

	s, err := NewLeaderSync(snapshot, followerHashes)
	require.NoError(t, err)
	require.Len(t, s.pendingBlocks, 1)
	require.Equal(t, snapshot[2].BaseAddress, s.pendingBlocks[0].BaseAddress)
}

func TestLeaderSyncDoneOnlyAfterDrainAndMargin(t *testing.T) {
	snapshot := sampleBlocks(2, 0)
	s, err := NewLeaderSync(snapshot, nil) // follower has nothing, everything changed
	require.NoError(t, err)
	require.False(t, s.Done())

	group, n, ok, err := s.NextMemoryBlockGroup()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.NotEmpty(t, group)
	require.False(t, s.Done(), "outstanding block not yet acked")

	s.AckMemoryBlocks(n)
	require.True(t, s.Done())
}

func TestLeaderSyncCatchupSegmentsInterleave(t *testing.T) {
	s, err := NewLeaderSync(nil, nil)
	require.NoError(t, err)
	require.True(t, s.Done())

	s.AddTicks(make([]byte, CatchupSegmentSize+10))
	require.False(t, s.Done())

	seg, ok := s.NextCatchupSegment()
	require.True(t, ok)
	require.Len(t, seg, CatchupSegmentSize)

	// One full segment popped, one partial still pending until flushed.
	require.False(t, s.Done())
	s.NoMoreTicks()
	seg2, ok := s.NextCatchupSegment()
	require.True(t, ok)
	require.Len(t, seg2, 10)

	require.True(t, s.Done(), "2 outstanding segments are within TickMarginSegments")
	s.AckCatchupSegments(2)
	require.True(t, s.Done())
}

func TestLeaderSyncWindowLimitsOutstanding(t *testing.T) {
	snapshot := sampleBlocks(OutstandingWindow*MaxGroupBlocks+MaxGroupBlocks, 0)
	s, err := NewLeaderSync(snapshot, nil)
	require.NoError(t, err)

	sent := 0
	for {
		_, n, ok, err := s.NextMemoryBlockGroup()
		require.NoError(t, err)
		if !ok {
			break
		}
		sent += n
	}
	require.Equal(t, OutstandingWindow, sent)
	require.Greater(t, len(s.pendingBlocks), 0, "window should cap outstanding blocks")
}
