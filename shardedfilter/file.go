// file.go -- an mmap-backed container of 2^k binary-fuse filters, one per
// top-k-bit prefix of a 64-bit key. Grounded on
// include/binfuse/sharded_filter.hpp's documented file layout: a 16-byte
// ASCII type tag, an index of little-endian uint64 offsets, and the
// filter bodies appended in ascending prefix order.
package shardedfilter

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/opencoff/go-hibp/binfuse"
)

const (
	headerLen   = 16
	emptyOffset = ^uint64(0)
)

// Width selects 8-bit or 16-bit fingerprints for every shard in a file.
type Width int

const (
	Width8  Width = 8
	Width16 Width = 16
)

// Errors returned while building or querying a sharded filter file.
var (
	// ErrShardOrder is fatal: shards must be added starting at 0, strictly ascending.
	ErrShardOrder = fmt.Errorf("shardedfilter: shard added out of order")
	// ErrShardDuplicate is fatal: a shard slot was already populated.
	ErrShardDuplicate = fmt.Errorf("shardedfilter: shard slot already populated")
	// ErrCapacity is fatal: attempted to add a shard beyond 2^k capacity.
	ErrCapacity = fmt.Errorf("shardedfilter: capacity exhausted")
	// ErrMissingShard is returned by Contains when the queried prefix has no filter.
	ErrMissingShard = fmt.Errorf("shardedfilter: no filter for this prefix")
	// ErrBadTag is returned when an existing file's header doesn't match the expected type tag.
	ErrBadTag = fmt.Errorf("shardedfilter: file header does not match expected type/capacity")
	// ErrCorrupt is returned when a file is neither empty nor fully header+index written.
	ErrCorrupt = fmt.Errorf("shardedfilter: partially written header/index")
)

func tag(width Width, capacity uint32) string {
	return fmt.Sprintf("sbinfuse%02d-%04d", int(width), capacity)
}

// Writer builds a sharded filter file, one shard at a time, in strictly
// ascending prefix order.
type Writer struct {
	path     string
	width    Width
	kbits    uint
	capacity uint32
	next     uint32

	f *os.File
	m *mappedFile
}

// Create opens (or creates) path as a sharded filter file with 2^kbits
// shard slots and the given fingerprint width. If the file already exists
// with a matching header, appends continue from the first empty slot.
func Create(path string, kbits uint, width Width) (*Writer, error) {
	capacity := uint32(1) << kbits

	st, err := os.Stat(path)
	existed := err == nil
	var existingSize int64
	if existed {
		existingSize = st.Size()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shardedfilter: %w", err)
	}

	w := &Writer{path: path, width: width, kbits: kbits, capacity: capacity, f: f}

	indexLen := int64(capacity) * 8
	headerAndIndex := int64(headerLen) + indexLen

	switch {
	case existingSize == 0:
		if err := f.Truncate(headerAndIndex); err != nil {
			f.Close()
			return nil, err
		}
		m, err := mapFile(f, true)
		if err != nil {
			f.Close()
			return nil, err
		}
		w.m = m
		copy(m.data[0:headerLen], tag(width, capacity))
		for i := uint32(0); i < capacity; i++ {
			binary.LittleEndian.PutUint64(m.data[indexOffset(i):indexOffset(i)+8], emptyOffset)
		}
		if err := m.sync(); err != nil {
			f.Close()
			return nil, err
		}
		w.next = 0

	case existingSize < headerAndIndex:
		f.Close()
		return nil, ErrCorrupt

	default:
		m, err := mapFile(f, true)
		if err != nil {
			f.Close()
			return nil, err
		}
		w.m = m
		if got := string(m.data[0:headerLen]); trimTag(got) != tag(width, capacity) {
			f.Close()
			return nil, fmt.Errorf("%w: expected %q, found %q", ErrBadTag, tag(width, capacity), trimTag(got))
		}
		w.next = firstEmptySlot(m.data, capacity)
	}

	return w, nil
}

func trimTag(b string) string {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func firstEmptySlot(data []byte, capacity uint32) uint32 {
	for p := uint32(0); p < capacity; p++ {
		off := indexOffset(p)
		if binary.LittleEndian.Uint64(data[off:off+8]) == emptyOffset {
			return p
		}
	}
	return capacity
}

func indexOffset(prefix uint32) int64 {
	return headerLen + int64(prefix)*8
}

// AddKeys populates a new binary-fuse filter over keys and appends it as
// the shard for prefix. prefix must equal the next expected prefix (0,
// then 1, then 2, ...).
func (w *Writer) AddKeys(prefix uint32, keys []uint64) error {
	if prefix >= w.capacity {
		return ErrCapacity
	}

	off := indexOffset(prefix)
	if binary.LittleEndian.Uint64(w.m.data[off:off+8]) != emptyOffset {
		return fmt.Errorf("%w: prefix %d", ErrShardDuplicate, prefix)
	}
	if prefix != w.next {
		return fmt.Errorf("%w: expected prefix %d, got %d", ErrShardOrder, w.next, prefix)
	}

	var body []byte
	switch w.width {
	case Width8:
		f, err := binfuse.PopulateFilter8(keys)
		if err != nil {
			return err
		}
		body = make([]byte, f.SerializationBytes())
		f.Serialize(body)
	case Width16:
		f, err := binfuse.PopulateFilter16(keys)
		if err != nil {
			return err
		}
		body = make([]byte, f.SerializationBytes())
		f.Serialize(body)
	default:
		return fmt.Errorf("shardedfilter: unsupported width %d", w.width)
	}

	oldSize := int64(len(w.m.data))
	newSize := oldSize + int64(len(body))

	if err := w.m.sync(); err != nil {
		return err
	}
	if err := w.f.Truncate(newSize); err != nil {
		return err
	}
	if err := w.m.remap(); err != nil {
		return err
	}

	copy(w.m.data[oldSize:newSize], body)
	binary.LittleEndian.PutUint64(w.m.data[off:off+8], uint64(oldSize))
	if err := w.m.sync(); err != nil {
		return err
	}

	w.next++
	return nil
}

// Close flushes and releases the writer's mapped file.
func (w *Writer) Close() error {
	if w.m != nil {
		if err := w.m.sync(); err != nil {
			w.f.Close()
			return err
		}
		return w.m.close()
	}
	return w.f.Close()
}

// Reader queries a sharded filter file via mmap. Filter bodies are
// deserialized lazily and cached on first use.
type Reader struct {
	width    Width
	kbits    uint
	capacity uint32

	m       *mappedFile
	shard8  []*binfuse.Filter8
	shard16 []*binfuse.Filter16
}

// Open maps path read-only and validates its header against the expected
// width and shard-bit count.
func Open(path string, kbits uint, width Width) (*Reader, error) {
	capacity := uint32(1) << kbits

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shardedfilter: %w", err)
	}

	m, err := mapFile(f, false)
	if err != nil {
		f.Close()
		return nil, err
	}

	if got := string(m.data[0:headerLen]); trimTag(got) != tag(width, capacity) {
		m.close()
		return nil, fmt.Errorf("%w: expected %q, found %q", ErrBadTag, tag(width, capacity), trimTag(got))
	}

	r := &Reader{width: width, kbits: kbits, capacity: capacity, m: m}
	if width == Width8 {
		r.shard8 = make([]*binfuse.Filter8, capacity)
	} else {
		r.shard16 = make([]*binfuse.Filter16, capacity)
	}
	return r, nil
}

// Close unmaps the underlying file.
func (r *Reader) Close() error {
	return r.m.close()
}

// Prefix extracts the top-k-bit shard index from a 64-bit key.
func (r *Reader) Prefix(key uint64) uint32 {
	return uint32(key >> (64 - r.kbits))
}

// Contains reports whether key is (probably) a member of its shard's
// filter. Returns ErrMissingShard if that shard was never populated.
func (r *Reader) Contains(key uint64) (bool, error) {
	prefix := r.Prefix(key)
	off, err := r.shardOffset(prefix)
	if err != nil {
		return false, err
	}

	switch r.width {
	case Width8:
		f := r.shard8[prefix]
		if f == nil {
			var err error
			f, err = binfuse.DeserializeFilter8(r.m.data[off:])
			if err != nil {
				return false, err
			}
			r.shard8[prefix] = f
		}
		return f.Contains(key), nil
	default:
		f := r.shard16[prefix]
		if f == nil {
			var err error
			f, err = binfuse.DeserializeFilter16(r.m.data[off:])
			if err != nil {
				return false, err
			}
			r.shard16[prefix] = f
		}
		return f.Contains(key), nil
	}
}

func (r *Reader) shardOffset(prefix uint32) (uint64, error) {
	if prefix >= r.capacity {
		return 0, fmt.Errorf("%w: prefix %d", ErrMissingShard, prefix)
	}
	off := indexOffset(prefix)
	v := binary.LittleEndian.Uint64(r.m.data[off : off+8])
	if v == emptyOffset {
		return 0, fmt.Errorf("%w: prefix %d", ErrMissingShard, prefix)
	}
	return v, nil
}
