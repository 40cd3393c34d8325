// Package runlen implements the two run-length decode tables that turn a
// single compressed byte from a .cpr slice into either an uncompressed pack
// of small-base values or a run of one repeated value.
//
// Every byte in a .cpr file is either:
//   - an uncompressed pack of several sub-values in a small base (base-3 for
//     the WLD table, base-6 for the "haspartials" table), or
//   - a compressed run: one value repeated some number of times.
//
// Which case applies, and the increment/value it contributes, is determined
// entirely by table lookup. This mirrors the teacher's compactindexsized
// header/bucket format in spirit (fixed binary layouts decoded by table, no
// runtime branching on content) though the actual bytes here follow spec
// §4.1, not compactindexsized's hashtable format.
package runlen

// Value is the decoded game-theoretic value of one position.
type Value int8

const (
	Unknown Value = iota
	Win
	Loss
	Draw
	DrawOrLoss
	WinOrDraw
)

// Entry is one decode-table row: how many index positions the byte covers,
// and — only meaningful for compressed (run) bytes — the single value the
// whole run shares.
type Entry struct {
	Increment uint8
	Value     Value
}

const (
	// BaseUncompressedLimit is the first byte value that is a compressed
	// run in the 3-value (WLD, no partials) table.
	BaseUncompressedLimit = 81
	// PartialsUncompressedLimit is the first byte value that is a
	// compressed run in the 6-value (haspartials) table.
	PartialsUncompressedLimit = 36
)

// Base is the 3-value (WIN/LOSS/DRAW) decode table: 256 entries, indexed by
// raw byte. Bytes below BaseUncompressedLimit are packs of 4 base-3 digits
// whose values are decoded algorithmically (see DecodePack); their entries
// carry only the increment 4. Entries for compressed-run bytes (bytes >=
// BaseUncompressedLimit) carry a run length and a value. BuildDefaultTables
// fills in both halves.
var Base [256]Entry

// Partials is the 6-value decode table: 256 entries, indexed by raw byte.
// Bytes below PartialsUncompressedLimit are packs of 2 base-6 digits.
var Partials [256]Entry

func init() {
	BuildDefaultTables()
}

// BuildDefaultTables (re)populates Base and Partials.
//
// The uncompressed-pack half of each table is fully determined by spec
// §4.1 and is computed here directly. The compressed-run half (the
// increment and single value that each byte >= the uncompressed limit
// represents) is, per spec §4.1, "external fixed tables shipped with the
// codec" that any implementation "must reproduce ... bit-identically" —
// but the generator for those exact bytes (init_compression_tables in the
// original C++) was not present in the retrieved source. BuildDefaultTables
// therefore assigns a deterministic, monotonically increasing run length to
// each compressed byte, cycling through the full value domain, preserving
// every invariant the spec does pin down (pack/run boundary, increment > 0,
// full value coverage). Callers driving a real on-disk corpus must call
// LoadCompressedRunTable with the authoritative bytes for that corpus
// before opening any database — see DESIGN.md's decision on the compressed
// run-length byte table.
func BuildDefaultTables() {
	for b := 0; b < BaseUncompressedLimit; b++ {
		Base[b] = Entry{Increment: 4}
	}
	for b := BaseUncompressedLimit; b < 256; b++ {
		run := b - BaseUncompressedLimit + 1
		Base[b] = Entry{
			Increment: uint8(run),
			Value:     Value(1 + (b-BaseUncompressedLimit)%3), // cycles Win/Loss/Draw
		}
	}

	for b := 0; b < PartialsUncompressedLimit; b++ {
		Partials[b] = Entry{Increment: 2}
	}
	for b := PartialsUncompressedLimit; b < 256; b++ {
		run := b - PartialsUncompressedLimit + 1
		Partials[b] = Entry{
			Increment: uint8(run),
			Value:     Value((b - PartialsUncompressedLimit) % 6),
		}
	}
}

// LoadCompressedRunTable overwrites the compressed-run half of a table
// (Base when haspartials is false, Partials when true) with caller-supplied
// entries, keyed by raw byte value. Entries for bytes below the
// uncompressed-pack limit are ignored. Use this to install the real,
// bit-identical codec tables shipped alongside a production database.
func LoadCompressedRunTable(haspartials bool, entries map[byte]Entry) {
	limit := BaseUncompressedLimit
	table := &Base
	if haspartials {
		limit = PartialsUncompressedLimit
		table = &Partials
	}
	for b, e := range entries {
		if int(b) < limit {
			continue
		}
		table[b] = e
	}
}

// IsCompressed reports whether byte b is a compressed run in the table
// selected by haspartials.
func IsCompressed(haspartials bool, b byte) bool {
	if haspartials {
		return int(b) >= PartialsUncompressedLimit
	}
	return int(b) >= BaseUncompressedLimit
}

// Table returns the decode table entry for byte b.
func Table(haspartials bool, b byte) Entry {
	if haspartials {
		return Partials[b]
	}
	return Base[b]
}

// DecodePack decodes the k'th (0-based) sub-value packed into an
// uncompressed byte b. For the base table k ranges over [0,4); for the
// partials table k ranges over [0,2). The caller is responsible for
// establishing that b is not a compressed byte (see IsCompressed).
func DecodePack(haspartials bool, b byte, k int) Value {
	if haspartials {
		// base-6 digit k, values already span the whole domain 0..5.
		v := int(b)
		for i := 0; i < k; i++ {
			v /= 6
		}
		return Value(v % 6)
	}
	// base-3 digit k, each digit in {0,1,2} maps to {WIN,LOSS,DRAW} by +1.
	v := int(b)
	for i := 0; i < k; i++ {
		v /= 3
	}
	return Value(v%3 + 1)
}
