// Package idxfile parses the ASCII ".idx" sidecar files that describe the
// subdbs inside a ".cpr" compressed-block file.
//
// The spec names this an external collaborator ("index-file text parser...
// output schema is fixed") and does not require the core to own it. It is
// implemented here, minimally, because the module has to compile and run
// end to end — grounded directly on
// _examples/original_source/egdb/egdb_wld_runlen.cpp's read_from_file
// (around its `fscanf(fp, "%d/%d", &first_idx_block, &startbyte)` and the
// `linecount`/`indices[]` loop that follows), not on spec.md's prose alone —
// see DESIGN.md's Open Question decision on this grammar point.
package idxfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/eygilbert/egdb/catalog"
	"github.com/eygilbert/egdb/runlen"
)

// Record is one parsed BASE entry, still in raw on-disk units: the caller
// (filecache's open-time builder) turns it into a catalog.SubDb once it
// knows the owning file's id and size.
type Record struct {
	BM, BK, WM, WK, Subslicenum int
	Color                       catalog.Color

	SingleValue runlen.Value // catalog.NotSingleValue unless this subdb is constant
	HasPartials bool

	// RawFirstIdxBlock and RawStartByte are the two raw integers the on-disk
	// line carries literally, joined by '/' ("<first_idx_block>/<startbyte>",
	// egdb_wld_runlen.cpp's `fscanf(fp, "%d/%d", &first_idx_block,
	// &startbyte)"). Both are zero and unused when SingleValue is set.
	RawFirstIdxBlock uint32
	RawStartByte     uint32

	// PerBlockLocalIndex is the full whitespace-separated stream of
	// starting local-indices that followed the header line, in on-disk
	// order, before FilteredIndices applies the keep-every-fourth rule.
	PerBlockLocalIndex []uint32
}

// FilteredIndices returns the subset of PerBlockLocalIndex that becomes the
// subdb's indices[] (spec §6: "only every fourth such integer ... is kept").
//
// Grounded directly on egdb_wld_runlen.cpp's read loop: indices[0] is always
// the hardcoded 0 ("first block is index 0"), and linecount is seeded from
// `first_idx_block % IDX_BLOCK_MULT` (the *raw* first_idx_block, before the
// IDX_BLOCK_MULT division that produces the cache-block-relative value) —
// not from zero — so which stream positions land in indices[] shifts
// whenever RawFirstIdxBlock isn't already a multiple of IdxBlockMult.
func (r *Record) FilteredIndices() []uint32 {
	out := []uint32{0}
	linecount := r.RawFirstIdxBlock % catalog.IdxBlockMult
	for _, v := range r.PerBlockLocalIndex {
		linecount++
		if linecount >= catalog.IdxBlockMult {
			linecount = 0
			out = append(out, v)
		}
	}
	return out
}

// FirstIdxBlockAndStartByte converts the raw (first_idx_block, startbyte)
// pair into the cache-block-relative (first_idx_block, startbyte) pair, per
// egdb_wld_runlen.cpp:
//
//	dbpointer->first_idx_block = first_idx_block / IDX_BLOCK_MULT;
//	dbpointer->startbyte = startbyte + (first_idx_block % IDX_BLOCK_MULT) * FILE_IDX_BLOCKSIZE;
func (r *Record) FirstIdxBlockAndStartByte() (firstIdxBlock, startByte uint32) {
	firstIdxBlock = r.RawFirstIdxBlock / catalog.IdxBlockMult
	startByte = r.RawStartByte + (r.RawFirstIdxBlock%catalog.IdxBlockMult)*catalog.FileIdxBlockSize
	return
}

// Parse reads a whole .idx file and returns its records in on-disk order.
func Parse(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []Record
	var cur *Record
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "BASE") {
			rec, rest, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("idxfile: line %d: %w", lineNo, err)
			}
			records = append(records, rec)
			cur = &records[len(records)-1]
			if err := applyHeaderRest(cur, rest); err != nil {
				return nil, fmt.Errorf("idxfile: line %d: %w", lineNo, err)
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.Contains(line, "haspartials") && cur != nil {
				cur.HasPartials = true
			}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("idxfile: line %d: data before any BASE record", lineNo)
		}
		if err := appendTokens(cur, line); err != nil {
			return nil, fmt.Errorf("idxfile: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("idxfile: %w", err)
	}
	return records, nil
}

// parseHeader parses "BASE<bm>,<bk>,<wm>,<wk>,<subslicenum>,<color>:<rest>"
// and returns the record (sans rest) plus the unparsed remainder.
func parseHeader(line string) (Record, string, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return Record{}, "", fmt.Errorf("missing ':' in BASE header %q", line)
	}
	header := strings.TrimPrefix(line[:colon], "BASE")
	rest := strings.TrimSpace(line[colon+1:])

	fields := strings.Split(header, ",")
	if len(fields) != 6 {
		return Record{}, "", fmt.Errorf("expected 6 comma-separated fields in %q, got %d", header, len(fields))
	}
	ints := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Record{}, "", fmt.Errorf("bad integer field %q: %w", fields[i], err)
		}
		ints[i] = v
	}
	colorField := strings.TrimSpace(fields[5])
	var color catalog.Color
	switch colorField {
	case "b":
		color = catalog.Black
	case "w":
		color = catalog.White
	default:
		return Record{}, "", fmt.Errorf("bad color field %q", colorField)
	}

	return Record{
		BM:          ints[0],
		BK:          ints[1],
		WM:          ints[2],
		WK:          ints[3],
		Subslicenum: ints[4],
		Color:       color,
		SingleValue: catalog.NotSingleValue,
	}, rest, nil
}

// applyHeaderRest parses everything after the BASE header's ':'. The first
// whitespace-separated field is either one of the single-value markers
// ("+","-","=",".") or the literal "<first_idx_block>/<startbyte>" pair;
// anything further on the same line is per-block local-index data, handed
// to appendTokens exactly as if it had started on its own line (fscanf in
// the original doesn't care about line boundaries either).
func applyHeaderRest(rec *Record, rest string) error {
	if rest == "" {
		return nil
	}
	fields := strings.Fields(rest)
	switch fields[0] {
	case "+":
		rec.SingleValue = runlen.Win
		return nil
	case "-":
		rec.SingleValue = runlen.Loss
		return nil
	case "=":
		rec.SingleValue = runlen.Draw
		return nil
	case ".":
		rec.SingleValue = runlen.Unknown
		return nil
	}

	first, start, err := parseFirstIdxBlockAndStartByte(fields[0])
	if err != nil {
		return err
	}
	rec.RawFirstIdxBlock = first
	rec.RawStartByte = start

	if len(fields) > 1 {
		return appendTokens(rec, strings.Join(fields[1:], " "))
	}
	return nil
}

// parseFirstIdxBlockAndStartByte parses the literal "<first_idx_block>/<startbyte>"
// token into its two raw integers.
func parseFirstIdxBlockAndStartByte(tok string) (firstIdxBlock, startByte uint32, err error) {
	parts := strings.SplitN(tok, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected <first_idx_block>/<startbyte>, got %q", tok)
	}
	a, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad first_idx_block %q: %w", parts[0], err)
	}
	b, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad startbyte %q: %w", parts[1], err)
	}
	return uint32(a), uint32(b), nil
}

func appendTokens(rec *Record, s string) error {
	for _, tok := range strings.Fields(s) {
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return fmt.Errorf("bad integer token %q: %w", tok, err)
		}
		rec.PerBlockLocalIndex = append(rec.PerBlockLocalIndex, uint32(v))
	}
	return nil
}
