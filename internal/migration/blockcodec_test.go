package migration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleBlocks(n int, seed byte) []MemoryBlock {
	blocks := make([]MemoryBlock, n)
	for i := 0; i < n; i++ {
		data := make([]byte, BlockSize)
		for j := range data {
			data[j] = byte(i) + seed + byte(j)
		}
		blocks[i] = NewMemoryBlock(uint32((i+1)*BlockSize), data)
	}
	return blocks
}

func TestBlockGroupRoundTrip(t *testing.T) {
	enc, err := NewBlockGroupEncoder()
	require.NoError(t, err)
	dec := NewBlockGroupDecoder()

	groups := [][]MemoryBlock{
		sampleBlocks(3, 0),
		sampleBlocks(8, 10),
		sampleBlocks(1, 20),
	}

	for _, blocks := range groups {
		wire, err := enc.EncodeGroup(blocks)
		require.NoError(t, err)

		got, consumed, err := dec.DecodeGroup(wire)
		require.NoError(t, err)
		require.Equal(t, len(wire), consumed)
		require.Len(t, got, len(blocks))
		for i := range blocks {
			require.Equal(t, blocks[i].BaseAddress, got[i].BaseAddress)
			require.Equal(t, blocks[i].Data, got[i].Data)
			require.Equal(t, blocks[i].Hash, got[i].Hash)
		}
	}
}

func TestBlockGroupRejectsOversizedGroup(t *testing.T) {
	enc, err := NewBlockGroupEncoder()
	require.NoError(t, err)
	_, err = enc.EncodeGroup(sampleBlocks(MaxGroupBlocks+1, 0))
	require.Error(t, err)
}

func TestBlockGroupRejectsEmptyGroup(t *testing.T) {
	enc, err := NewBlockGroupEncoder()
	require.NoError(t, err)
	_, err = enc.EncodeGroup(nil)
	require.Error(t, err)
}
