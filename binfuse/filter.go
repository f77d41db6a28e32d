// filter.go -- a single-shard approximate membership filter over a set of
// 64-bit keys, with no false negatives and a tunable false-positive rate.
// Wraps github.com/FastFilter/xorfilter's binary fuse filter, the Go
// library with equivalent semantics to the upstream binary_fuse8/16_t C
// structures in include/binfuse/filter.hpp.
//
// Fingerprint width is a compile-time choice upstream (f=8 or f=16 bits);
// here it's a runtime choice between Filter8 and Filter16, mirroring the
// header's filter<binary_fuse8_t>/filter<binary_fuse16_t> specialisations.
package binfuse

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/FastFilter/xorfilter"
)

// header layout shared by both fingerprint widths: 5 little-endian
// uint64/uint32 fields, in the order xorfilter.BinaryFuse{8,16} declares
// them, followed by the fingerprint array.
const headerSize = 8 + 4 + 4 + 4 + 4 // Seed, SegmentLength, SegmentLengthMask, SegmentCount, SegmentCountLength

// Filter8 is a binary fuse filter with 8-bit fingerprints (~0.4% FP rate).
type Filter8 struct {
	f    *xorfilter.BinaryFuse8
	size int

	// borrowed, when true, means Fingerprints aliases a caller-owned
	// buffer (typically an mmap'd region) rather than memory this Filter
	// allocated; Deserialize sets this so callers know not to expect the
	// buffer to outlive its source.
	borrowed bool
}

// PopulateFilter8 builds a filter over keys. keys must be non-empty.
func PopulateFilter8(keys []uint64) (*Filter8, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("binfuse: empty key set")
	}
	f, err := xorfilter.PopulateBinaryFuse8(keys)
	if err != nil {
		return nil, fmt.Errorf("binfuse: populate: %w", err)
	}
	return &Filter8{f: f, size: len(keys)}, nil
}

// Contains reports whether key was (probably) a member of the populated
// set. Never false-negative; may be a false positive at the configured rate.
func (f *Filter8) Contains(key uint64) bool {
	return f.f.Contains(key)
}

// SerializationBytes returns the exact size Serialize will write.
func (f *Filter8) SerializationBytes() int {
	return headerSize + len(f.f.Fingerprints)
}

// Serialize writes the filter's header and fingerprints into buf, which
// must be at least SerializationBytes() long.
func (f *Filter8) Serialize(buf []byte) {
	putHeader(buf, f.f.Seed, f.f.SegmentLength, f.f.SegmentLengthMask, f.f.SegmentCount, f.f.SegmentCountLength)
	copy(buf[headerSize:], f.f.Fingerprints)
}

// DeserializeFilter8 reconstructs a Filter8 from a buffer produced by
// Serialize. The fingerprint slice aliases buf[headerSize:] rather than
// copying it, so callers backing buf with an mmap get zero-copy reads;
// Borrowed() reports this.
func DeserializeFilter8(buf []byte) (*Filter8, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("binfuse: buffer too small for header")
	}
	seed, segLen, segLenMask, segCount, segCountLen := getHeader(buf)
	fp := buf[headerSize:]

	f := &xorfilter.BinaryFuse8{
		Seed:               seed,
		SegmentLength:      segLen,
		SegmentLengthMask:  segLenMask,
		SegmentCount:       segCount,
		SegmentCountLength: segCountLen,
		Fingerprints:       fp,
	}
	return &Filter8{f: f, borrowed: true}, nil
}

// Borrowed reports whether this filter's fingerprint bytes alias external
// (e.g. mmap'd) memory rather than memory owned by this Filter8.
func (f *Filter8) Borrowed() bool { return f.borrowed }

// Verify checks that every key in keys reports as contained; a failure
// here means the filter was built or deserialized incorrectly, since a
// binary fuse filter must never produce a false negative.
func (f *Filter8) Verify(keys []uint64) (ok bool, falseNegative uint64) {
	for _, k := range keys {
		if !f.Contains(k) {
			return false, k
		}
	}
	return true, 0
}

// EstimateFalsePositiveRate samples random 64-bit keys and reports the
// fraction that (incorrectly) report as contained, minus the expected
// baseline contribution from the filter's own key count. Matches
// estimate_false_positive_rate in filter.hpp.
func (f *Filter8) EstimateFalsePositiveRate() float64 {
	return estimateFPR(f.Contains, f.size)
}

// Filter16 is a binary fuse filter with 16-bit fingerprints
// (~0.0015% FP rate), at twice the on-disk size of Filter8.
type Filter16 struct {
	f        *xorfilter.BinaryFuse16
	size     int
	borrowed bool
}

// PopulateFilter16 builds a filter over keys. keys must be non-empty.
func PopulateFilter16(keys []uint64) (*Filter16, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("binfuse: empty key set")
	}
	f, err := xorfilter.PopulateBinaryFuse16(keys)
	if err != nil {
		return nil, fmt.Errorf("binfuse: populate: %w", err)
	}
	return &Filter16{f: f, size: len(keys)}, nil
}

// Contains reports whether key was (probably) a member of the populated set.
func (f *Filter16) Contains(key uint64) bool {
	return f.f.Contains(key)
}

// SerializationBytes returns the exact size Serialize will write.
func (f *Filter16) SerializationBytes() int {
	return headerSize + len(f.f.Fingerprints)*2
}

// Serialize writes the filter's header and fingerprints into buf.
func (f *Filter16) Serialize(buf []byte) {
	putHeader(buf, f.f.Seed, f.f.SegmentLength, f.f.SegmentLengthMask, f.f.SegmentCount, f.f.SegmentCountLength)
	body := buf[headerSize:]
	for i, v := range f.f.Fingerprints {
		binary.LittleEndian.PutUint16(body[i*2:i*2+2], v)
	}
}

// DeserializeFilter16 reconstructs a Filter16 from a buffer produced by
// Serialize. Unlike Filter8, the 16-bit fingerprints cannot alias buf
// directly (endianness requires decoding), so this copies.
func DeserializeFilter16(buf []byte) (*Filter16, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("binfuse: buffer too small for header")
	}
	seed, segLen, segLenMask, segCount, segCountLen := getHeader(buf)
	body := buf[headerSize:]
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("binfuse: fingerprint body is not a multiple of 2 bytes")
	}

	fp := make([]uint16, len(body)/2)
	for i := range fp {
		fp[i] = binary.LittleEndian.Uint16(body[i*2 : i*2+2])
	}

	f := &xorfilter.BinaryFuse16{
		Seed:               seed,
		SegmentLength:      segLen,
		SegmentLengthMask:  segLenMask,
		SegmentCount:       segCount,
		SegmentCountLength: segCountLen,
		Fingerprints:       fp,
	}
	return &Filter16{f: f, borrowed: false}, nil
}

// Borrowed reports whether this filter's fingerprint bytes alias external
// memory. Filter16 always copies on deserialize, so this is always false.
func (f *Filter16) Borrowed() bool { return f.borrowed }

// Verify checks every key reports as contained.
func (f *Filter16) Verify(keys []uint64) (ok bool, falseNegative uint64) {
	for _, k := range keys {
		if !f.Contains(k) {
			return false, k
		}
	}
	return true, 0
}

// EstimateFalsePositiveRate samples random keys, as Filter8's does.
func (f *Filter16) EstimateFalsePositiveRate() float64 {
	return estimateFPR(f.Contains, f.size)
}

func estimateFPR(contains func(uint64) bool, size int) float64 {
	const sampleSize = 1_000_000
	var matches int
	for i := 0; i < sampleSize; i++ {
		if contains(rand.Uint64()) {
			matches++
		}
	}
	return float64(matches)/float64(sampleSize) - float64(size)/float64(^uint64(0))
}

func putHeader(buf []byte, seed uint64, segLen, segLenMask, segCount, segCountLen uint32) {
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint32(buf[8:12], segLen)
	binary.LittleEndian.PutUint32(buf[12:16], segLenMask)
	binary.LittleEndian.PutUint32(buf[16:20], segCount)
	binary.LittleEndian.PutUint32(buf[20:24], segCountLen)
}

func getHeader(buf []byte) (seed uint64, segLen, segLenMask, segCount, segCountLen uint32) {
	seed = binary.LittleEndian.Uint64(buf[0:8])
	segLen = binary.LittleEndian.Uint32(buf[8:12])
	segLenMask = binary.LittleEndian.Uint32(buf[12:16])
	segCount = binary.LittleEndian.Uint32(buf[16:20])
	segCountLen = binary.LittleEndian.Uint32(buf[20:24])
	return
}
