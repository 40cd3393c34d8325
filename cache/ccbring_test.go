package cache

import (
	"errors"
	"testing"

	"github.com/eygilbert/egdb/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRejectsTooFewCCBs(t *testing.T) {
	_, err := NewManager(1)
	assert.Error(t, err)
	_, err = NewManager(0)
	assert.Error(t, err)
}

func TestRingStartsAsValidCycle(t *testing.T) {
	m, err := NewManager(4)
	require.NoError(t, err)
	seen := map[int32]bool{}
	slot := m.Top()
	for i := 0; i < 4; i++ {
		assert.False(t, seen[slot], "cycle revisited a slot early")
		seen[slot] = true
		slot = m.Info(slot).Next
	}
	assert.Equal(t, m.Top(), slot, "cycle should return to top after N steps")
}

type fakeReader struct {
	calls int
	fail  error
}

func (r *fakeReader) ReadBlock(blockNum uint32, buf []byte) error {
	r.calls++
	if r.fail != nil {
		return r.fail
	}
	for i := range buf {
		buf[i] = byte(blockNum)
	}
	return nil
}

func TestProbeMissThenEvictAndLoadThenHit(t *testing.T) {
	m, err := NewManager(2)
	require.NoError(t, err)
	m.RegisterFile(0, 10)

	m.Lock()
	_, hit := m.Probe(0, 3)
	assert.False(t, hit)

	reader := &fakeReader{}
	slot, err := m.EvictAndLoad(0, 3, reader, nil, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, slot, m.BlockMapSlot(0, 3))

	gotSlot, hit := m.Probe(0, 3)
	assert.True(t, hit)
	assert.Equal(t, slot, gotSlot)
	m.Unlock()
}

func TestEvictAndLoadClearsOldOwnersBlockMap(t *testing.T) {
	m, err := NewManager(2)
	require.NoError(t, err)
	m.RegisterFile(0, 10)
	m.RegisterFile(1, 10)

	m.Lock()
	reader := &fakeReader{}
	// Fill both slots with file 0's blocks.
	_, err = m.EvictAndLoad(0, 0, reader, nil, -1)
	require.NoError(t, err)
	secondSlot, err := m.EvictAndLoad(0, 1, reader, nil, -1)
	require.NoError(t, err)

	// Loading a third block must evict the LRU slot and clear its old
	// block-map entry. After two loads in a 2-CCB ring, top has wrapped
	// back to the first load's slot (block 0), not secondSlot.
	_ = secondSlot
	evictedBlock := m.Info(m.Top()).BlockNumber
	newSlot, err := m.EvictAndLoad(1, 0, reader, nil, -1)
	require.NoError(t, err)

	assert.Equal(t, NoSlot, m.BlockMapSlot(0, evictedBlock))
	assert.Equal(t, newSlot, m.BlockMapSlot(1, 0))
	m.Unlock()
}

func TestTouchMakesSlotMRUAndAdvancesTopOnlyWhenNecessary(t *testing.T) {
	m, err := NewManager(3)
	require.NoError(t, err)
	m.RegisterFile(0, 5)

	top0 := m.Top()
	m.Lock()
	// Touching top rotates the ring (top itself becomes MRU by definition).
	m.Touch(top0)
	assert.NotEqual(t, top0, m.Top())

	// Touching the current MRU is a no-op.
	mru := m.Info(m.Top()).Prev
	beforeMRUInfo := m.Info(mru)
	m.Touch(mru)
	assert.Equal(t, beforeMRUInfo, m.Info(mru))
	m.Unlock()
}

func TestEvictAndLoadPropagatesReaderError(t *testing.T) {
	m, err := NewManager(2)
	require.NoError(t, err)
	m.RegisterFile(0, 5)

	m.Lock()
	defer m.Unlock()
	reader := &fakeReader{fail: errors.New("disk failure")}
	_, err = m.EvictAndLoad(0, 0, reader, nil, -1)
	assert.Error(t, err)
}

func TestEvictAndLoadComputesSubindices(t *testing.T) {
	m, err := NewManager(2)
	require.NoError(t, err)
	m.RegisterFile(0, 5)

	sdb := &catalog.SubDb{
		FirstIdxBlock: 0, NumIdxBlocks: 1, StartByte: 0,
		FirstSubidxBlock: 0, LastSubidxBlock: 63, SingleValue: catalog.NotSingleValue,
	}
	participants := []catalog.SubindexSlot{{SubDb: sdb, StartSlot: 0, EndSlot: 63, StartByte: 0}}

	m.Lock()
	reader := &fakeReader{}
	slot, err := m.EvictAndLoad(0, 0, reader, participants, 0)
	require.NoError(t, err)
	_, subindices := m.DataAndSubindices(slot)
	m.Unlock()

	assert.Equal(t, uint32(0), subindices[0])
}
