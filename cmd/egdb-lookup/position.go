package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eygilbert/egdb"
)

// parsePosition reads the FEN-like piece list spec §10's CLI section calls
// for: "<turn>:B<sq>,<sq>,...:W<sq>,...", using international draughts'
// standard 50-square numbering (1-50) with a leading "K" marking a king, e.g.
//
//	B:B6,19,23:WK32,1,11,22,31
//
// This numbering and the piece-list grammar are this CLI's own invention:
// spec.md treats both position-to-index and the board's square geometry as
// external to the package (see egdb.IndexOracle/egdb.Reverser), so there is
// no corpus convention to match here. A deployment wired to a real database
// replaces this file's Position<->square mapping and the oracle below with
// its generator's actual numbering.
func parsePosition(s string) (egdb.Position, egdb.Color, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return egdb.Position{}, 0, fmt.Errorf("expected 3 ':'-separated fields (turn:black:white), got %d", len(parts))
	}

	turn, err := parseColor(parts[0])
	if err != nil {
		return egdb.Position{}, 0, err
	}

	var pos egdb.Position
	for _, field := range parts[1:] {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		side := field[0]
		squares := field[1:]
		var target *uint64
		switch side {
		case 'B', 'b':
			target = &pos.Black
		case 'W', 'w':
			target = &pos.White
		default:
			return egdb.Position{}, 0, fmt.Errorf("bad side marker %q in field %q", string(side), field)
		}
		for _, tok := range strings.Split(squares, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			king := false
			if tok[0] == 'K' || tok[0] == 'k' {
				king = true
				tok = tok[1:]
			}
			sq, err := strconv.Atoi(tok)
			if err != nil {
				return egdb.Position{}, 0, fmt.Errorf("bad square %q: %w", tok, err)
			}
			if sq < 1 || sq > 50 {
				return egdb.Position{}, 0, fmt.Errorf("square %d out of range [1,50]", sq)
			}
			bit := squareToBit(sq)
			*target |= 1 << bit
			if king {
				pos.King |= 1 << bit
			}
		}
	}
	return pos, turn, nil
}

func parseColor(s string) (egdb.Color, error) {
	switch strings.TrimSpace(s) {
	case "B", "b":
		return egdb.Black, nil
	case "W", "w":
		return egdb.White, nil
	default:
		return 0, fmt.Errorf("bad turn marker %q, expected B or W", s)
	}
}

// squareToBit maps a standard 1-based draughts square number to a bit index
// in a 64-bit board that reserves a gap bit after every 10 squares (spec
// §3's "opaque ... gap bit" layout): each row of 10 squares occupies 11
// bits, the last of them unused.
func squareToBit(sq int) uint {
	sq--
	row := sq / 10
	col := sq % 10
	return uint(row*11 + col)
}
