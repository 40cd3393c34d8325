package egdb

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/eygilbert/egdb/catalog"
	"github.com/eygilbert/egdb/filecache"
	"github.com/eygilbert/egdb/metrics"
	"github.com/eygilbert/egdb/runlen"
)

// Lookup implements spec §4.5's lookup(position, color, conditional) → V |
// NOT_IN_CACHE | UNKNOWN. conditional=true forbids disk I/O: a cache miss
// returns NotInCache instead of loading the block (spec §8 invariant 6).
func (h *Handle) Lookup(p Position, color Color, conditional bool) Value {
	metrics.DbRequests.Inc()
	h.stats.DbRequests.Add(1)

	start := time.Now()
	v := h.lookup(p, color, conditional)
	metrics.LookupLatency.WithLabelValues(strconv.FormatBool(conditional)).Observe(time.Since(start).Seconds())

	metrics.DbReturns.Inc()
	h.stats.DbReturns.Add(1)
	metrics.ValuesReturned.WithLabelValues(valueLabel(v)).Inc()
	return v
}

func (h *Handle) lookup(p Position, color Color, conditional bool) Value {
	// Step 1: terminal material.
	bm, bk, wm, wk := p.pieceCounts()
	if bm+bk == 0 {
		if color == Black {
			return Loss
		}
		return Win
	}
	if wm+wk == 0 {
		if color == Black {
			return Win
		}
		return Loss
	}

	// Step 2: out-of-range material.
	if bm+bk+wm+wk > catalog.MaxTotalPieces || bm+bk > catalog.MaxPiecesPerSide || wm+wk > catalog.MaxPiecesPerSide {
		h.recordNotPresent()
		return Unknown
	}

	// Step 3: reversal.
	pos, nbm, nbk, nwm, nwk, col := p, bm, bk, wm, wk, color
	if catalog.NeedsReversal(bm, bk, wm, wk, color) {
		pos = h.reverser.Reverse(p)
		nbm, nbk, nwm, nwk = wm, wk, bm, bk
		col = oppositeColor(color)
	}

	// Step 4: indexing.
	index64 := h.indexOracle.IndexSlice(pos, nbm, nbk, nwm, nwk)
	subslicenum := int(index64 / catalog.MaxSubsliceIndices)
	localIndex := uint32(index64 % catalog.MaxSubsliceIndices)

	// Step 5: slice lookup.
	sdb, ok := h.catalog.Get(nbm, nbk, nwm, nwk, col, subslicenum)
	if !ok {
		h.recordNotPresent()
		return Unknown
	}

	// Step 6: single-value shortcut.
	if sdb.IsSingleValue() {
		return sdb.SingleValue
	}

	fd := h.registry.Get(sdb.FileID)
	if fd.Autoload {
		v := h.lookupPinned(fd, sdb, localIndex)
		metrics.AutoloadHits.Inc()
		h.stats.AutoloadHits.Add(1)
		return v
	}
	return h.lookupCached(fd, sdb, localIndex, conditional)
}

func (h *Handle) recordNotPresent() {
	metrics.DbNotPresentRequests.Inc()
	h.stats.DbNotPresentRequests.Add(1)
}

// lookupPinned implements spec §4.5 step 7's pinned-file path: no lock, no
// I/O, direct binary search over the subdb's precomputed autoload_subindices.
func (h *Handle) lookupPinned(fd *filecache.FileDescriptor, sdb *catalog.SubDb, localIndex uint32) Value {
	slot, accumulated, byteOffset := catalog.SearchAutoloadSlot(sdb, localIndex)

	idxBlockNum := sdb.FirstIdxBlock + uint32(slot)/catalog.NumSubindices
	slotInBlock := int(uint32(slot) % catalog.NumSubindices)
	slabStart := int64(idxBlockNum)*catalog.CacheBlockSize + int64(slotInBlock)*catalog.SubindexBlockSize
	slab := fd.Image[slabStart : slabStart+catalog.SubindexBlockSize]

	return scanSlab(slab, byteOffset, accumulated, localIndex, sdb.HasPartials, "pinned")
}

// lookupCached implements spec §4.5 step 7's cached-file path under the
// shared cache.Manager lock, and step 8's byte scan afterward, released.
func (h *Handle) lookupCached(fd *filecache.FileDescriptor, sdb *catalog.SubDb, localIndex uint32, conditional bool) Value {
	idxBlocknum := catalog.FindBlock(sdb.Indices, localIndex)
	blockNum := (sdb.FirstIdxBlock + uint32(idxBlocknum)) / catalog.IdxBlocksPerCacheBlock
	isLastIdxBlock := idxBlocknum == int(sdb.NumIdxBlocks)-1

	h.cacheMgr.Lock()

	slot, hit := h.cacheMgr.Probe(fd.ID, blockNum)
	if hit {
		h.cacheMgr.Touch(slot)
		metrics.LruCacheHits.Inc()
		h.stats.LruCacheHits.Add(1)
	} else {
		if conditional {
			h.cacheMgr.Unlock()
			return NotInCache
		}
		// Re-probe already happened under this same lock acquisition, so
		// this is the only load attempt for this request (spec §5's
		// ordering note: a concurrent loader, if any, finishes before we
		// could have acquired the lock, and we'd have hit above).
		arena := h.catalog.Arena(fd.ID)
		participants := catalog.FindBlockParticipants(arena, sdb.ArenaID, blockNum)
		var err error
		slot, err = h.cacheMgr.EvictAndLoad(fd.ID, blockNum, fd.Reader, participants, sdb.ArenaID)
		if err != nil {
			h.cacheMgr.Unlock()
			slog.Warn("egdb: block load failed", "file", fd.NamePrefix, "block", blockNum, "error", err)
			return Unknown
		}
		metrics.LruCacheLoads.Inc()
		h.stats.LruCacheLoads.Add(1)
	}

	data, subindices := h.cacheMgr.DataAndSubindices(slot)
	subSlot, accumulated, byteOffset := catalog.FindSubidxSlot(subindices, sdb, idxBlocknum, isLastIdxBlock, localIndex)
	h.cacheMgr.Unlock()

	slabStart := subSlot * catalog.SubindexBlockSize
	slabEnd := slabStart + catalog.SubindexBlockSize
	if slabEnd > len(data) {
		slabEnd = len(data)
	}
	slab := data[slabStart:slabEnd]

	return scanSlab(slab, byteOffset, accumulated, localIndex, sdb.HasPartials, "cached")
}

// scanSlab implements spec §4.5 step 8 (linear byte scan) and step 9 (value
// decode) over one 64-byte sub-index slab, starting at byteOffset with the
// running local-index accumulated.
func scanSlab(slab []byte, byteOffset int, accumulated, localIndex uint32, hasPartials bool, path string) Value {
	if byteOffset < 0 || byteOffset >= catalog.SubindexBlockSize {
		slog.Warn("egdb: byte-scan start out of range", "path", path, "offset", byteOffset)
		return Unknown
	}

	table := &runlen.Base
	if hasPartials {
		table = &runlen.Partials
	}

	i := byteOffset
	for i < len(slab) {
		b := slab[i]
		e := table[b]
		if accumulated+uint32(e.Increment) > localIndex {
			if runlen.IsCompressed(hasPartials, b) {
				return e.Value
			}
			k := int(localIndex - accumulated)
			return runlen.DecodePack(hasPartials, b, k)
		}
		accumulated += uint32(e.Increment)
		i++
	}

	slog.Warn("egdb: byte-scan exhausted slab without resolving", "path", path)
	return Unknown
}

func valueLabel(v Value) string {
	switch v {
	case Unknown:
		return "unknown"
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Draw:
		return "draw"
	case DrawOrLoss:
		return "draw_or_loss"
	case WinOrDraw:
		return "win_or_draw"
	case NotInCache:
		return "not_in_cache"
	case SubdbUnavailable:
		return "subdb_unavailable"
	default:
		return fmt.Sprintf("value(%d)", int8(v))
	}
}
