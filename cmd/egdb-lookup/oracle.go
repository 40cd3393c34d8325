package main

import (
	"math/bits"

	"github.com/eygilbert/egdb"
)

// referenceOracle is a combinadic position-to-index function over this CLI's
// own 64-bit/gap-bit board layout (see position.go). It is NOT the real
// corpus generator's convention — spec.md has no opinion on one, and none
// was present in the retrieved reference material — so it exists only to
// make `egdb-lookup` runnable end to end against a database built with this
// same convention. A production deployment supplies its own egdb.IndexOracle
// wired to its generator.
type referenceOracle struct{}

// IndexSlice ranks each side's pieces by their bit indices in position.go's
// gap-bit layout (kings and men sharing the same axis) and combines black's,
// white's and the kings' combinadic ranks with a simple base-squareSpan mix.
// This is a well-defined, stable bijection-per-composition, not a claim of
// matching any specific corpus.
func (referenceOracle) IndexSlice(p egdb.Position, bm, bk, wm, wk int) uint64 {
	blackRank := combinadicRank(occupiedSquares(p.Black), bm+bk)
	whiteRank := combinadicRank(occupiedSquares(p.White), wm+wk)
	kingRank := combinadicRank(occupiedSquares(p.King&(p.Black|p.White)), bk+wk)
	const squareSpan = 1 << 20 // generous headroom per axis; never claims a true corpus's span
	return (blackRank*squareSpan+whiteRank)*squareSpan + kingRank
}

func occupiedSquares(board uint64) []int {
	var out []int
	for board != 0 {
		lsb := bits.TrailingZeros64(board)
		out = append(out, lsb)
		board &^= 1 << lsb
	}
	return out
}

// combinadicRank computes the standard combinadic (combinatorial number
// system) rank, in colex order, of a strictly increasing list of bit
// indices (not of 1-50 square numbers, so ranks are not dense).
func combinadicRank(squares []int, _ int) uint64 {
	var rank uint64
	for i, sq := range squares {
		rank += binomial(sq, i+1)
	}
	return rank
}

func binomial(n, k int) uint64 {
	if k < 0 || k > n {
		return 0
	}
	if k == 0 || k == n {
		return 1
	}
	var result uint64 = 1
	for i := 0; i < k; i++ {
		result = result * uint64(n-i) / uint64(i+1)
	}
	return result
}

// referenceReverser swaps black and white and mirrors every occupied square
// 180 degrees (standard square-i <-> (51-i) reflection for a 50-square
// board), matching squareToBit's row/col layout in position.go.
type referenceReverser struct{}

func (referenceReverser) Reverse(p egdb.Position) egdb.Position {
	return egdb.Position{
		Black: mirrorBoard(p.White),
		White: mirrorBoard(p.Black),
		King:  mirrorBoard(p.King),
	}
}

func mirrorBoard(board uint64) uint64 {
	var out uint64
	for board != 0 {
		lsb := bits.TrailingZeros64(board)
		board &^= 1 << lsb
		row := lsb / 11
		col := lsb % 11
		mRow := 4 - row
		mCol := 9 - col
		out |= 1 << uint(mRow*11+mCol)
	}
	return out
}
