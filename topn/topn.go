// topn.go -- reduce a corpus to its N records with the highest occurrence
// count, re-sorted back into digest order so the result is itself a valid
// corpus. Grounded on app/hibp_topn.cpp: partial_sort_copy by count desc
// into a bounded buffer, then a plain sort by hash ascending.
package topn

import (
	"bytes"
	"container/heap"
	"fmt"
	"sort"

	atomicfile "github.com/natefinch/atomic"
	"github.com/opencoff/go-hibp/flatfile"
	"github.com/opencoff/go-hibp/record"
)

// ErrInputTooSmall is returned when the corpus has no more records than
// the requested N: the output would be identical to the input.
var ErrInputTooSmall = fmt.Errorf("topn: input corpus is not larger than N, output would be identical")

// countHeap is a min-heap by Count, used to keep the N largest-count
// records seen so far in O(log N) per record instead of sorting the
// whole corpus.
type countHeap[T any] struct {
	items []T
	count func(T) int32
}

func (h countHeap[T]) Len() int            { return len(h.items) }
func (h countHeap[T]) Less(i, j int) bool  { return h.count(h.items[i]) < h.count(h.items[j]) }
func (h countHeap[T]) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *countHeap[T]) Push(x interface{}) { h.items = append(h.items, x.(T)) }
func (h *countHeap[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	v := old[n-1]
	h.items = old[:n-1]
	return v
}

// Reduce streams dbfile through a bounded min-heap to find the topN
// records by Count, then writes them back out sorted ascending by digest
// so the result is a well-formed corpus. count extracts the sort key and
// cmp orders two records by digest, both supplied so this works across
// SHA1/NTLM/SHA1T64 without reflection.
func Reduce[T any](dbfile, outfile string, codec record.Codec[T], topN int, count func(T) int32, cmp func(a, b T) int) error {
	r, err := flatfile.Open(dbfile, codec)
	if err != nil {
		return err
	}
	defer r.Close()

	n := r.Len()
	if n <= int64(topN) {
		return fmt.Errorf("%w: input has %d records, requested top %d", ErrInputTooSmall, n, topN)
	}

	h := &countHeap[T]{count: count}
	h.items = make([]T, 0, topN)

	for pos := int64(0); pos < n; pos++ {
		v, err := r.At(pos)
		if err != nil {
			return err
		}
		if h.Len() < topN {
			heap.Push(h, v)
			continue
		}
		if count(v) > count(h.items[0]) {
			h.items[0] = v
			heap.Fix(h, 0)
		}
	}

	items := h.items
	sort.Slice(items, func(i, j int) bool { return cmp(items[i], items[j]) < 0 })

	return writeAtomic(outfile, codec, items)
}

func writeAtomic[T any](outfile string, codec record.Codec[T], items []T) error {
	buf := make([]byte, 0, len(items)*codec.Size)
	rec := make([]byte, codec.Size)
	for _, v := range items {
		codec.Encode(v, rec)
		buf = append(buf, rec...)
	}
	return atomicfile.WriteFile(outfile, bytes.NewReader(buf))
}
