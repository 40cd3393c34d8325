package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPutRoundtrip(t *testing.T) {
	c := New()
	sdb := &SubDb{SingleValue: NotSingleValue}
	c.Put(2, 0, 1, 0, Black, 3, sdb)

	got, ok := c.Get(2, 0, 1, 0, Black, 3)
	require.True(t, ok)
	assert.Same(t, sdb, got)

	_, ok = c.Get(2, 0, 1, 0, White, 3)
	assert.False(t, ok)
	_, ok = c.Get(2, 0, 1, 0, Black, 4)
	assert.False(t, ok)
}

func TestAppendToArenaLinksSiblings(t *testing.T) {
	c := New()
	a := &SubDb{}
	b := &SubDb{}
	d := &SubDb{}

	idA := c.AppendToArena(7, a)
	idB := c.AppendToArena(7, b)
	idD := c.AppendToArena(7, d)

	require.Equal(t, int32(0), idA)
	require.Equal(t, int32(1), idB)
	require.Equal(t, int32(2), idD)

	assert.Equal(t, int32(-1), a.PrevID)
	assert.Equal(t, int32(1), a.NextID)
	assert.Equal(t, int32(0), b.PrevID)
	assert.Equal(t, int32(2), b.NextID)
	assert.Equal(t, int32(1), d.PrevID)
	assert.Equal(t, int32(-1), d.NextID)

	arena := c.Arena(7)
	require.Len(t, arena, 3)
	assert.Empty(t, c.Arena(99))
}

func TestNeedsReversal(t *testing.T) {
	// more white men than black men -> reverse
	assert.True(t, NeedsReversal(1, 0, 2, 0, Black))
	// equal totals, more white kings -> reverse
	assert.True(t, NeedsReversal(2, 0, 1, 1, Black))
	// identical tuple, white to move -> reverse (canonicalize to black-to-move)
	assert.True(t, NeedsReversal(2, 1, 2, 1, White))
	assert.False(t, NeedsReversal(2, 1, 2, 1, Black))
	// black has materially more -> no reversal
	assert.False(t, NeedsReversal(3, 0, 1, 0, Black))
}

func TestFindBlock(t *testing.T) {
	starts := []uint32{0, 10, 10, 25, 100}
	assert.Equal(t, 0, FindBlock(starts, 0))
	assert.Equal(t, 0, FindBlock(starts, 5))
	assert.Equal(t, 2, FindBlock(starts, 10))
	assert.Equal(t, 2, FindBlock(starts, 24))
	assert.Equal(t, 3, FindBlock(starts, 25))
	assert.Equal(t, 4, FindBlock(starts, 1000))
}

func TestSearchAutoloadSlot(t *testing.T) {
	sdb := &SubDb{
		NumIdxBlocks:       2,
		FirstSubidxBlock:   60,
		LastSubidxBlock:    10, // in the second (last) index block
		StartByte:          60 * SubindexBlockSize,
		AutoloadSubindices: make([]uint32, 2*NumSubindices),
	}
	for i := 60; i < 2*NumSubindices; i++ {
		sdb.AutoloadSubindices[i] = uint32(i-60) * 5
	}

	slot, acc, off := SearchAutoloadSlot(sdb, 0)
	assert.Equal(t, 60, slot)
	assert.Equal(t, uint32(0), acc)
	assert.Equal(t, 0, off)

	slot, acc, _ = SearchAutoloadSlot(sdb, 42)
	assert.LessOrEqual(t, acc, uint32(42))
	assert.True(t, slot >= 60)

	// the computed upper bound: two blocks of slots minus the 53 slots after
	// LastSubidxBlock in the last block
	hi := int(sdb.NumIdxBlocks)*NumSubindices - (NumSubindices - 1 - int(sdb.LastSubidxBlock))
	assert.Equal(t, 2*NumSubindices-(NumSubindices-1-10), hi)
}

func TestFindSubidxSlotFirstBlockSingleSlot(t *testing.T) {
	sdb := &SubDb{
		FirstSubidxBlock: 30,
		LastSubidxBlock:  30,
		StartByte:        30*SubindexBlockSize + 5,
	}
	subindices := make([]uint32, NumSubindices)
	slot, acc, off := FindSubidxSlot(subindices, sdb, 0, true, 123)
	assert.Equal(t, 30, slot)
	assert.Equal(t, uint32(0), acc)
	assert.Equal(t, 5, off)
}

func TestFindSubidxSlotSearchesForward(t *testing.T) {
	sdb := &SubDb{
		FirstSubidxBlock: 0,
		LastSubidxBlock:  63,
	}
	subindices := make([]uint32, NumSubindices)
	for i := range subindices {
		subindices[i] = uint32(i) * 10
	}
	slot, acc, _ := FindSubidxSlot(subindices, sdb, 0, false, 55)
	assert.Equal(t, 5, slot)
	assert.Equal(t, uint32(50), acc)
}

func TestFindBlockParticipantsAndComputeBlockSubindices(t *testing.T) {
	c := New()
	first := &SubDb{FirstIdxBlock: 0, NumIdxBlocks: 1, StartByte: 0, FirstSubidxBlock: 0, LastSubidxBlock: 31, SingleValue: NotSingleValue}
	second := &SubDb{FirstIdxBlock: 0, NumIdxBlocks: 1, StartByte: 32 * SubindexBlockSize, FirstSubidxBlock: 32, LastSubidxBlock: 63, SingleValue: NotSingleValue}
	c.AppendToArena(1, first)
	c.AppendToArena(1, second)

	participants := FindBlockParticipants(c.Arena(1), 0, 0)
	require.Len(t, participants, 2)
	assert.Equal(t, first, participants[0].SubDb)
	assert.Equal(t, second, participants[1].SubDb)
	assert.Equal(t, uint8(0), participants[0].StartSlot)
	assert.Equal(t, uint8(32), participants[1].StartSlot)

	block := make([]byte, CacheBlockSize)
	for i := range block {
		block[i] = 0 // all increment-4 uncompressed bytes in the base table
	}
	out := make([]uint32, NumSubindices)
	ComputeBlockSubindices(block, participants, out)

	assert.Equal(t, uint32(0), out[0])
	assert.Equal(t, uint32(0), out[32])
	// slot 1 is 64 bytes (64 increments of 4) into the first subdb's span
	assert.Equal(t, uint32(64*4), out[1])
}
