// toc.go -- table-of-contents index over a sorted flatfile corpus.
//
// A ToC is a dense array of uint32 record offsets, one per `bits`-bit
// digest prefix: entry[p] is the position of the first record whose
// top bits equal p. Building one turns a binary search (~log2(N) seeks)
// into an array lookup plus a binary search confined to a single,
// much smaller, span. Grounded on include/toc.hpp / src/toc.cpp.
package toc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
)

// ErrGap is returned when a prefix has no records at all in a full corpus;
// the corpus is expected to be dense over [0, 2^bits), so a missing prefix
// means the corpus is corrupt or has not been fully downloaded.
var ErrGap = fmt.Errorf("gap in table of contents: corpus is missing a prefix")

// Index is an in-memory table of contents: index[p] is the record
// position of the first record whose top `bits` bits equal p.
type Index struct {
	Bits  uint
	table []uint32
}

// FileName returns the canonical ToC sidecar path for a corpus file.
func FileName(corpusPath string, bits uint) string {
	return fmt.Sprintf("%s.%d.toc", corpusPath, bits)
}

// Open loads or (re)builds the ToC for dbfile, using prefix() to extract
// the ordering key from a record. It rebuilds whenever the sidecar file
// is missing or older than the corpus, mirroring toc_build's mtime check.
func Open[T any](dbfile string, codec record.Codec[T], bits uint, prefix func(T, uint) uint32) (*Index, error) {
	tocfile := FileName(dbfile, bits)

	dbInfo, err := os.Stat(dbfile)
	if err != nil {
		return nil, fmt.Errorf("toc: %w", err)
	}

	if tocInfo, err := os.Stat(tocfile); err == nil && !tocInfo.ModTime().Before(dbInfo.ModTime()) {
		idx, err := load(tocfile)
		if err != nil {
			return nil, err
		}
		idx.Bits = bits
		return idx, nil
	}

	idx, err := build(dbfile, codec, bits, prefix)
	if err != nil {
		return nil, err
	}
	if err := idx.save(tocfile); err != nil {
		return nil, err
	}
	return idx, nil
}

func build[T any](dbfile string, codec record.Codec[T], bits uint, prefix func(T, uint) uint32) (*Index, error) {
	r, err := flatfile.Open(dbfile, codec)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	n := r.Len()
	if n == 0 {
		return &Index{Bits: bits, table: nil}, nil
	}

	last, err := r.At(n - 1)
	if err != nil {
		return nil, err
	}

	entries := uint64(1) << bits
	lastPrefix := uint64(prefix(last, bits))
	if lastPrefix+1 < entries {
		// partial corpus: shorten the table rather than fabricate entries
		// for prefixes that can never occur.
		entries = lastPrefix + 1
	}

	if n > (1<<32 - 1) {
		return nil, fmt.Errorf("toc: corpus has %d records, too large for a uint32 offset table", n)
	}

	table := make([]uint32, 0, entries)
	var lastPos int64
	for p := uint64(0); p != entries; p++ {
		pos, found, err := searchFirst(r, lastPos, n, uint32(p), bits, prefix)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("toc: missing prefix %05X: %w", p, ErrGap)
		}
		table = append(table, uint32(pos))
		lastPos = pos
	}

	return &Index{Bits: bits, table: table}, nil
}

// searchFirst scans forward from lastPos for the first record whose prefix
// equals want. Records are sorted, so this is a linear scan bounded by the
// size of one prefix bucket -- exactly std::find_if's cost in toc.cpp.
func searchFirst[T any](r *flatfile.Reader[T], from, n int64, want uint32, bits uint, prefix func(T, uint) uint32) (int64, bool, error) {
	for pos := from; pos < n; pos++ {
		v, err := r.At(pos)
		if err != nil {
			return 0, false, err
		}
		if prefix(v, bits) == want {
			return pos, true, nil
		}
	}
	return 0, false, nil
}

func load(tocfile string) (*Index, error) {
	b, err := os.ReadFile(tocfile)
	if err != nil {
		return nil, fmt.Errorf("toc: %w", err)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("toc: %s: %w", tocfile, flatfile.ErrFormat)
	}

	table := make([]uint32, len(b)/4)
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}

	// bits is recovered from the file name by the caller (Open knows it
	// already); Index.Bits is set by Open after load returns.
	return &Index{table: table}, nil
}

func (idx *Index) save(tocfile string) error {
	b := make([]byte, len(idx.table)*4)
	for i, v := range idx.table {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], v)
	}
	return os.WriteFile(tocfile, b, 0o644)
}

// Span returns the [start, end) record-position range that a digest with
// the given prefix can fall in: end is the next entry's offset, or the
// corpus length for the final entry.
func (idx *Index) Span(prefix uint32, corpusLen int64) (start, end int64) {
	if int(prefix) >= len(idx.table) {
		return 0, 0
	}
	start = int64(idx.table[prefix])
	if int(prefix)+1 < len(idx.table) {
		end = int64(idx.table[prefix+1])
	} else {
		end = corpusLen
	}
	return start, end
}

// Entries returns the number of populated prefix buckets.
func (idx *Index) Entries() int { return len(idx.table) }

// Age reports whether the on-disk ToC sidecar for dbfile is stale relative
// to the corpus, without loading or rebuilding it.
func Age(dbfile string, bits uint) (stale bool, err error) {
	dbInfo, err := os.Stat(dbfile)
	if err != nil {
		return false, err
	}
	tocInfo, err := os.Stat(FileName(dbfile, bits))
	if err != nil {
		return true, nil
	}
	return tocInfo.ModTime().Before(dbInfo.ModTime()), nil
}
