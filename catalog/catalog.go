// Package catalog implements the slice catalog (spec §4.2), the sub-database
// descriptor arena used for on-disk-order sibling traversal (spec §3, §4.4),
// and the binary searches the lookup pipeline runs over a subdb's indices.
//
// None of this is grounded on the teacher's compactindexsized package —
// that package is a hashtable (FKS perfect hashing over buckets), and this
// catalog is a plain Go map keyed by the piece tuple, over strictly
// sequential on-disk blocks. The two data structures don't share code, only
// some shape (a fixed binary header, an Open-time fadvise, a binary search
// over an in-memory buffer) — see DESIGN.md.
package catalog

import "github.com/eygilbert/egdb/runlen"

// Fixed on-disk constants (spec §3). These define the wire format and must
// never change independently of the corpus.
const (
	FileIdxBlockSize      = 1024
	IdxBlockMult          = 4
	IdxBlockSize          = 4096
	IdxBlocksPerCacheBlock = 1
	CacheBlockSize        = 4096
	NumSubindices         = 64
	SubindexBlockSize     = IdxBlockSize / NumSubindices // 64

	MaxPiecesPerSide = 5
	MaxTotalPieces   = 9

	// NotSingleValue marks a subdb whose bytes must be looked up normally,
	// as opposed to one that is a single constant value for every position.
	NotSingleValue runlen.Value = -1

	// MaxSubsliceIndices bounds how many positions one subslice covers.
	// The spec fixes this at a single constant shared by the whole corpus
	// but does not pin its value; it is fixed at 1<<30 here, and nothing
	// in the core's correctness depends on the specific number, only on
	// subslicenum = index64 / MaxSubsliceIndices being computed
	// consistently with whatever generated the corpus.
	MaxSubsliceIndices uint64 = 1 << 30
)

// Color is the side to move.
type Color uint8

const (
	Black Color = iota
	White
)

// SubDb is one (piece tuple, subslicenum) sub-database descriptor (spec §3).
type SubDb struct {
	SingleValue   runlen.Value // NotSingleValue unless the whole subdb is one constant value
	HasPartials   bool
	FileID        int // index into the owning filecache.Registry

	FirstIdxBlock uint32
	NumIdxBlocks  uint32
	StartByte     uint32

	FirstSubidxBlock uint8
	LastSubidxBlock  uint8

	// Indices[k] is the local-index of the first position whose byte lies
	// in this subdb's k'th index block. Strictly nondecreasing, Indices[0]==0.
	Indices []uint32

	// AutoloadSubindices is populated only for pinned (autoloaded) files:
	// one entry per sub-index slot across the subdb's full span
	// (NumIdxBlocks*NumSubindices long), slots before FirstSubidxBlock left
	// zero.
	AutoloadSubindices []uint32

	// PrevID/NextID are arena indices (not pointers, per spec design
	// notes) into the owning file's on-disk-ordered list of not-single-
	// value subdbs. -1 marks the end of the list. Used only while
	// computing sub-indices for a freshly loaded block (§4.4).
	PrevID, NextID int32

	// ArenaID is this subdb's own index into its file's arena, set by
	// AppendToArena. Lets a caller holding only a *SubDb re-enter the
	// arena (e.g. to seed FindBlockParticipants on a cache miss) without
	// a linear search.
	ArenaID int32
}

// IsSingleValue reports whether every position in this subdb shares one
// constant value.
func (s *SubDb) IsSingleValue() bool { return s.SingleValue != NotSingleValue }

type cellKey struct {
	BM, BK, WM, WK int
	Color          Color
}

// Catalog is the sparse associative table from spec §4.2: keyed by piece
// tuple (bm,bk,wm,wk,color), each cell a map from subslicenum to subdb.
// Implemented as a Go map rather than a literal 5-dimensional fixed array
// (the spec's "dense 5-axis array" describes the semantics, not the
// storage; see DESIGN.md) — lookups are O(1) either way and an absent cell
// means exactly the same thing: not in the database.
//
// Populated once at open time by the idxfile parser and read lock-free
// afterward (spec §5: immutable after init).
type Catalog struct {
	cells  map[cellKey]map[int]*SubDb
	arenas map[int][]*SubDb // fileID -> not-single-value subdbs, on-disk order
}

// New returns an empty catalog ready for population by the idxfile parser.
func New() *Catalog {
	return &Catalog{
		cells:  make(map[cellKey]map[int]*SubDb),
		arenas: make(map[int][]*SubDb),
	}
}

// Get implements the get_subdb operation (spec §4.2).
func (c *Catalog) Get(bm, bk, wm, wk int, color Color, subslicenum int) (*SubDb, bool) {
	m, ok := c.cells[cellKey{bm, bk, wm, wk, color}]
	if !ok {
		return nil, false
	}
	sdb, ok := m[subslicenum]
	return sdb, ok
}

// Put registers a subdb for a (piece tuple, subslicenum) cell. Called only
// during index-file parsing at open time.
func (c *Catalog) Put(bm, bk, wm, wk int, color Color, subslicenum int, sdb *SubDb) {
	key := cellKey{bm, bk, wm, wk, color}
	m := c.cells[key]
	if m == nil {
		m = make(map[int]*SubDb)
		c.cells[key] = m
	}
	m[subslicenum] = sdb
}

// AppendToArena appends a not-single-value subdb to the end of file fileID's
// on-disk-ordered sibling list, wiring PrevID/NextID, and returns its arena
// index. Single-value subdbs are never appended — they have no bytes to
// scan and therefore no sub-index bookkeeping need.
func (c *Catalog) AppendToArena(fileID int, sdb *SubDb) int32 {
	arr := c.arenas[fileID]
	id := int32(len(arr))
	sdb.PrevID, sdb.NextID = -1, -1
	sdb.ArenaID = id
	if len(arr) > 0 {
		prev := arr[len(arr)-1]
		prev.NextID = id
		sdb.PrevID = int32(len(arr) - 1)
	}
	c.arenas[fileID] = append(arr, sdb)
	return id
}

// Arena returns the on-disk-ordered not-single-value subdbs for fileID.
func (c *Catalog) Arena(fileID int) []*SubDb {
	return c.arenas[fileID]
}

// NeedsReversal implements the reversal predicate from spec §4.5 step 3,
// grounded directly on original_source/egdb/egdb_common.h's needs_reversal.
func NeedsReversal(nbm, nbk, nwm, nwk int, color Color) bool {
	if nwm+nwk > nbm+nbk {
		return true
	}
	if nwm+nwk == nbm+nbk {
		if nwk > nbk {
			return true
		}
		if nbm == nwm && nbk == nwk && color == White {
			return true
		}
	}
	return false
}

// FindBlock performs the binary search from spec §9 ("find_block"),
// grounded directly on egdb_common.h's find_block: the largest index k in
// [0,len(starts)) such that starts[k] <= target.
func FindBlock(starts []uint32, target uint32) int {
	first, last := 0, len(starts)
	for last > first+1 {
		mid := first + (last-first)/2
		if starts[mid] <= target {
			first = mid
		} else {
			last = mid
		}
	}
	return first
}

// SearchAutoloadSlot implements the pinned-file path of spec §4.5 step 7:
// binary search over subdb.AutoloadSubindices for the largest slot whose
// stored local-index is <= localIndex, within the valid half-open range
// [FirstSubidxBlock, NumIdxBlocks*NumSubindices - (NumSubindices-1-LastSubidxBlock)).
func SearchAutoloadSlot(sdb *SubDb, localIndex uint32) (slot int, accumulated uint32, byteOffset int) {
	lo := int(sdb.FirstSubidxBlock)
	hi := int(sdb.NumIdxBlocks)*NumSubindices - (NumSubindices - 1 - int(sdb.LastSubidxBlock))
	slot = FindBlock(sdb.AutoloadSubindices[lo:hi], localIndex) + lo
	accumulated = sdb.AutoloadSubindices[slot]
	if slot == lo {
		byteOffset = int(sdb.StartByte) - slot*SubindexBlockSize
	}
	return
}

// FindSubidxSlot implements the cached-file path of spec §4.5 step 7: a
// binary search over one CCB's 64-entry subindices array, honoring the
// first-index-block special case, grounded directly on the sequence of
// conditions in original_source/egdb/egdb_wld_runlen.cpp's dblookup.
func FindSubidxSlot(subindices []uint32, sdb *SubDb, idxBlocknum int, isLastIdxBlock bool, localIndex uint32) (slot int, accumulated uint32, byteOffset int) {
	fsb := int(sdb.FirstSubidxBlock)
	singleSlot := isLastIdxBlock && int(sdb.LastSubidxBlock) == fsb
	if idxBlocknum == 0 && (singleSlot || fsb == NumSubindices-1 || subindices[fsb+1] > localIndex) {
		slot = fsb
		accumulated = 0
		byteOffset = int(sdb.StartByte) - slot*SubindexBlockSize
		return
	}

	lo := 0
	if idxBlocknum == 0 {
		lo = fsb + 1
	}
	hi := NumSubindices
	if isLastIdxBlock {
		hi = int(sdb.LastSubidxBlock) + 1
	}
	slot = FindBlock(subindices[lo:hi], localIndex) + lo
	accumulated = subindices[slot]
	return
}

// SubindexSlot describes one not-single-value subdb's participation in a
// single cache block, as produced by FindBlockParticipants and consumed by
// ComputeBlockSubindices.
type SubindexSlot struct {
	SubDb         *SubDb
	StartSlot     uint8
	EndSlot       uint8
	StartByte     uint16
	StartLocalIdx uint32
}

// FindBlockParticipants implements spec §4.4 steps 1-2: given any
// not-single-value subdb known to touch cache block blockNum (arena[seedIdx]),
// walk backward to the first subdb whose bytes appear in the block, then
// forward collecting every subdb (in on-disk order) that has bytes there.
func FindBlockParticipants(arena []*SubDb, seedIdx int32, blockNum uint32) []SubindexSlot {
	first := seedIdx
	for {
		cur := arena[first]
		if cur.PrevID < 0 {
			break
		}
		// cur starting inside blockNum past byte 0 means its predecessor's
		// tail lies in the same block.
		if cur.FirstIdxBlock/IdxBlocksPerCacheBlock == blockNum && cur.StartByte > 0 {
			first = cur.PrevID
			continue
		}
		break
	}

	var out []SubindexSlot
	for idx := first; idx >= 0 && int(idx) < len(arena); {
		sdb := arena[idx]
		sdbBlockNum := sdb.FirstIdxBlock / IdxBlocksPerCacheBlock
		lastBlockNum := (sdb.FirstIdxBlock + sdb.NumIdxBlocks - 1) / IdxBlocksPerCacheBlock
		if sdbBlockNum > blockNum {
			break
		}
		if lastBlockNum < blockNum {
			idx = sdb.NextID
			continue
		}

		slot := SubindexSlot{SubDb: sdb}
		if sdbBlockNum == blockNum {
			slot.StartSlot = sdb.FirstSubidxBlock
			slot.StartByte = uint16(sdb.StartByte)
		} else {
			slot.StartSlot = 0
			slot.StartByte = 0
			slot.StartLocalIdx = sdb.Indices[blockNum-sdbBlockNum]
		}
		if lastBlockNum == blockNum {
			slot.EndSlot = sdb.LastSubidxBlock
		} else {
			slot.EndSlot = NumSubindices - 1
		}
		out = append(out, slot)

		if lastBlockNum > blockNum {
			break
		}
		idx = sdb.NextID
	}
	return out
}

// ComputeBlockSubindices implements spec §4.4 step 2c: for each participant
// (in on-disk order), walk its bytes forward from its start, recording the
// running local-index into out[] at every SubindexBlockSize boundary.
// blockData is one cache block and out must have at least NumSubindices
// entries: slot s of the block is written to out[s]. For a pinned file,
// computeAutoloadSubindices (filecache) calls this once per cache block and
// copies each participant's slots into its AutoloadSubindices.
func ComputeBlockSubindices(blockData []byte, participants []SubindexSlot, out []uint32) {
	for _, p := range participants {
		table := &runlen.Base
		if p.SubDb.HasPartials {
			table = &runlen.Partials
		}
		localIndex := p.StartLocalIdx
		startSlot := int(p.StartSlot)
		out[startSlot] = localIndex

		endByte := len(blockData)
		if int(p.EndSlot) < NumSubindices-1 {
			endByte = (int(p.EndSlot) + 1) * SubindexBlockSize
		}
		i := int(p.StartByte)
		for i < endByte {
			e := table[blockData[i]]
			localIndex += uint32(e.Increment)
			i++
			if i < endByte && i%SubindexBlockSize == 0 {
				out[i/SubindexBlockSize] = localIndex
			}
		}
	}
}
