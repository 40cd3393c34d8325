package filecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eygilbert/egdb/cache"
	"github.com/eygilbert/egdb/catalog"
	"github.com/eygilbert/egdb/runlen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNamePrefix(t *testing.T) {
	assert.Equal(t, "db3", composition{BM: 2, BK: 0, WM: 1, WK: 0}.fileNamePrefix())
	assert.Equal(t, "db6-2121", composition{BM: 2, BK: 1, WM: 2, WK: 1}.fileNamePrefix())
}

func TestEnumerateCompositionsSkipsWhiteDominated(t *testing.T) {
	comps := enumerateCompositions(2, -1)
	for _, c := range comps {
		assert.False(t, catalog.NeedsReversal(c.BM, c.BK, c.WM, c.WK, catalog.Black),
			"composition %+v should have been skipped as white-dominated", c)
	}
	assert.Contains(t, comps, composition{BM: 1, BK: 0, WM: 1, WK: 0})
	assert.NotContains(t, comps, composition{BM: 0, BK: 0, WM: 1, WK: 0}) // black has none, white-dominated
}

func TestBudgetFractionScalesLinearly(t *testing.T) {
	assert.InDelta(t, 0.18, budgetFraction(1), 1e-9)
	assert.InDelta(t, 0.35, budgetFraction(10*1024*1024*1024), 1e-9)
	mid := budgetFraction((15*1024*1024 + 1024*1024*1024) / 2)
	assert.Greater(t, mid, 0.18)
	assert.Less(t, mid, 0.35)
}

func TestPlanAutoloadAlwaysIncludesSmallCompositions(t *testing.T) {
	small := candidate{composition: composition{BM: 1, BK: 0, WM: 1, WK: 0}, cprSize: 1000}
	big := candidate{composition: composition{BM: 5, BK: 0, WM: 4, WK: 0}, cprSize: 1 << 40}
	autoload, rest := planAutoload([]candidate{small, big}, 15*1024*1024)
	assert.Contains(t, autoload, small)
	assert.Contains(t, rest, big)
}

func TestPlanAutoloadFitsEverythingWhenBudgetCovers(t *testing.T) {
	small := candidate{composition: composition{BM: 1, BK: 0, WM: 1, WK: 0}, cprSize: 1000}
	other := candidate{composition: composition{BM: 5, BK: 0, WM: 5, WK: 0}, cprSize: 2000}
	autoload, rest := planAutoload([]candidate{small, other}, 1<<30)
	assert.Len(t, autoload, 2)
	assert.Empty(t, rest)
}

func TestBackfillLastSubidxBlocks(t *testing.T) {
	a := &catalog.SubDb{FirstIdxBlock: 0, NumIdxBlocks: 2, FirstSubidxBlock: 0}
	b := &catalog.SubDb{FirstIdxBlock: 1, NumIdxBlocks: 1, FirstSubidxBlock: 40}
	backfillLastSubidxBlocks([]*catalog.SubDb{a, b}, 2*catalog.IdxBlockSize+100)

	assert.Equal(t, uint8(39), a.LastSubidxBlock) // a's last block (1) is shared with b, which starts at slot 40
	assert.Equal(t, uint8(100/catalog.SubindexBlockSize), b.LastSubidxBlock)
}

func TestComputeAutoloadSubindices(t *testing.T) {
	sdb := &catalog.SubDb{FirstIdxBlock: 0, NumIdxBlocks: 1, FirstSubidxBlock: 0, LastSubidxBlock: 63, SingleValue: catalog.NotSingleValue, PrevID: -1, NextID: -1}
	image := make([]byte, catalog.CacheBlockSize)
	arena := []*catalog.SubDb{sdb}

	computeAutoloadSubindices(image, arena, 1)

	require.Len(t, sdb.AutoloadSubindices, catalog.NumSubindices)
	assert.Equal(t, uint32(0), sdb.AutoloadSubindices[0])
	assert.Equal(t, uint32(64*4), sdb.AutoloadSubindices[1]) // 64 zero bytes, each Base[0].Increment==4
}

func TestOpenSingleValueAutoloadedSlice(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db2.idx"), []byte("BASE1,0,1,0,0,b:+\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db2.cpr"), nil, 0o644))

	cat := catalog.New()
	mgr, err := cache.NewManager(4)
	require.NoError(t, err)

	reg, err := Open(dir, cat, mgr, DefaultOptions(), 1<<30)
	require.NoError(t, err)
	defer reg.Close()

	require.Equal(t, 1, reg.Len())
	fd := reg.Get(0)
	assert.True(t, fd.Autoload)

	sdb, ok := cat.Get(1, 0, 1, 0, catalog.Black, 0)
	require.True(t, ok)
	assert.Equal(t, runlen.Win, sdb.SingleValue)
}

func TestOpenRejectsIdxWithoutCpr(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db2.idx"), []byte("BASE1,0,1,0,0,b:+\n"), 0o644))

	cat := catalog.New()
	mgr, err := cache.NewManager(4)
	require.NoError(t, err)

	_, err = Open(dir, cat, mgr, DefaultOptions(), 1<<30)
	assert.Error(t, err)
}
