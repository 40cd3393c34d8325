// Package egdb is a read-only query engine for a precomputed draughts
// (international checkers) endgame database: given a position and a side to
// move, it locates and decodes the game-theoretic value stored for that
// position across a corpus of run-length-compressed on-disk slices.
//
// The package never writes to the database and never generates moves —
// position-to-index computation and symmetry reversal are supplied by the
// caller (see IndexOracle and Reverser), since both depend on conventions
// (square numbering, board geometry) this package has no opinion about.
package egdb

import (
	"math/bits"

	"github.com/eygilbert/egdb/catalog"
	"github.com/eygilbert/egdb/runlen"
)

// Value is the game-theoretic outcome a lookup returns.
type Value = runlen.Value

const (
	Unknown    = runlen.Unknown
	Win        = runlen.Win
	Loss       = runlen.Loss
	Draw       = runlen.Draw
	DrawOrLoss = runlen.DrawOrLoss
	WinOrDraw  = runlen.WinOrDraw

	// NotInCache is returned only when a conditional lookup's target block
	// isn't resident, so it can never be confused with a decoded value.
	NotInCache Value = -1
	// SubdbUnavailable is reserved for a subdb that exists in the catalog
	// but whose backing data could not be made available (e.g. an I/O
	// failure opening its file); lookup itself never distinguishes this
	// from Unknown, since both degrade to the same "don't know" answer —
	// kept as a named constant so callers building diagnostics can tell
	// "never in this database" apart from "should be, couldn't load".
	SubdbUnavailable Value = -2
)

// Color is the side to move.
type Color = catalog.Color

const (
	Black = catalog.Black
	White = catalog.White
)

func oppositeColor(c Color) Color {
	if c == Black {
		return White
	}
	return Black
}

// Position is a draughts board position as three 64-bit bitboards. King is a
// subset of Black|White. Bit layout (including the 1-bit gap after every 10
// squares) is opaque to this package — only IndexOracle and Reverser
// interpret square numbering.
type Position struct {
	Black, White, King uint64
}

func (p Position) pieceCounts() (bm, bk, wm, wk int) {
	bm = bits.OnesCount64(p.Black &^ p.King)
	bk = bits.OnesCount64(p.Black & p.King)
	wm = bits.OnesCount64(p.White &^ p.King)
	wk = bits.OnesCount64(p.White & p.King)
	return
}

// IndexOracle maps a position, given its already-counted piece tuple, to its
// 64-bit slice index. This is the "position_to_index_slice" collaborator
// spec §1 treats as an external oracle: its convention for numbering
// positions within a slice is a property of the corpus generator, not of
// this package.
type IndexOracle interface {
	IndexSlice(p Position, bm, bk, wm, wk int) uint64
}

// IndexOracleFunc adapts a plain function to an IndexOracle.
type IndexOracleFunc func(p Position, bm, bk, wm, wk int) uint64

// IndexSlice implements IndexOracle.
func (f IndexOracleFunc) IndexSlice(p Position, bm, bk, wm, wk int) uint64 {
	return f(p, bm, bk, wm, wk)
}

// Reverser swaps the two sides of a position (color-swap plus whatever
// board-geometry transform the corpus's square numbering requires) as spec
// §1's "symmetry reversal" collaborator. Only the piece-count tuple's
// reversal (a simple swap, used to pick the catalog cell) is this package's
// own concern; the bitboards themselves are opaque to it.
type Reverser interface {
	Reverse(p Position) Position
}

// ReverserFunc adapts a plain function to a Reverser.
type ReverserFunc func(Position) Position

// Reverse implements Reverser.
func (f ReverserFunc) Reverse(p Position) Position { return f(p) }
