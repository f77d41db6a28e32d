// store.go -- a flat, fixed-width-record binary file read through a small
// sliding window instead of slurped into memory. Records are addressed by
// position (0-based record index), not byte offset.
//
// Grounded on the windowed-buffer strategy in opencoff/go-bbhash's
// dbreader.go (mmap'd offset tables read in bulk, never per-record syscalls)
// generalised to non-mmap'd random access, matching flat_file.hpp's
// get_record(): re-fill the window only when the requested position falls
// outside [bufStart, bufEnd).
package flatfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opencoff/go-hibp/record"
)

// Errors returned by Reader/Writer. Callers should use errors.Is.
var (
	ErrNotFound    = errors.New("record not found")
	ErrFormat      = errors.New("corpus file size is not a multiple of the record size")
	ErrOutOfRange  = errors.New("record position out of range")
)

// defaultWindow is the number of records kept in the read-ahead buffer.
// Matches the spirit of flat_file.hpp's buf_size default, scaled up
// because Go's syscall overhead per read favours a larger window.
const defaultWindow = 4096

// Reader provides random access over a sorted, fixed-width record file
// without loading it into memory. It is not safe for concurrent use by
// multiple goroutines; callers needing concurrent readers should open
// independent Readers against the same path.
type Reader[T any] struct {
	codec record.Codec[T]
	f     *os.File
	size  int64 // file size in bytes
	n     int64 // number of records

	buf      []byte
	bufStart int64 // first record index held in buf
	bufEnd   int64 // one past the last record index held in buf
}

// Open opens dbfile for random-access reading using the given codec.
func Open[T any](dbfile string, codec record.Codec[T]) (*Reader[T], error) {
	f, err := os.Open(dbfile)
	if err != nil {
		return nil, fmt.Errorf("flatfile: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flatfile: %w", err)
	}

	size := st.Size()
	if size%int64(codec.Size) != 0 {
		f.Close()
		return nil, fmt.Errorf("flatfile: %s: %w", dbfile, ErrFormat)
	}

	return &Reader[T]{
		codec: codec,
		f:     f,
		size:  size,
		n:     size / int64(codec.Size),
		buf:   make([]byte, defaultWindow*codec.Size),
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader[T]) Close() error {
	return r.f.Close()
}

// Len returns the number of records in the file.
func (r *Reader[T]) Len() int64 { return r.n }

// FileSize returns the size of the underlying file in bytes.
func (r *Reader[T]) FileSize() int64 { return r.size }

// At returns the record at position pos, refilling the read-ahead window
// from disk only when pos falls outside the currently buffered range.
func (r *Reader[T]) At(pos int64) (T, error) {
	var zero T
	if pos < 0 || pos >= r.n {
		return zero, fmt.Errorf("flatfile: position %d: %w", pos, ErrOutOfRange)
	}

	if pos < r.bufStart || pos >= r.bufEnd {
		if err := r.fill(pos); err != nil {
			return zero, err
		}
	}

	off := (pos - r.bufStart) * int64(r.codec.Size)
	return r.codec.Decode(r.buf[off : off+int64(r.codec.Size)]), nil
}

func (r *Reader[T]) fill(pos int64) error {
	nrecs := int64(len(r.buf) / r.codec.Size)
	if remaining := r.n - pos; remaining < nrecs {
		nrecs = remaining
	}

	byteOff := pos * int64(r.codec.Size)
	if _, err := r.f.Seek(byteOff, io.SeekStart); err != nil {
		return fmt.Errorf("flatfile: seek: %w", err)
	}

	nbytes := nrecs * int64(r.codec.Size)
	if _, err := io.ReadFull(r.f, r.buf[:nbytes]); err != nil {
		return fmt.Errorf("flatfile: read: %w", err)
	}

	r.bufStart = pos
	r.bufEnd = pos + nrecs
	return nil
}

// Search performs binary search for a record whose digest matches key, via
// cmp (typically codec.Compare bound against a probe record holding just
// the digest). Returns the position and true on an exact match.
func (r *Reader[T]) Search(cmp func(T) int) (int64, bool, error) {
	return r.SearchRange(0, r.n, cmp)
}

// SearchRange is Search confined to [lo, hi), the ToC-narrowed span a
// hibp-search --toc lookup binary searches within (spec 4.7).
func (r *Reader[T]) SearchRange(lo, hi int64, cmp func(T) int) (int64, bool, error) {
	for lo < hi {
		mid := lo + (hi-lo)/2
		v, err := r.At(mid)
		if err != nil {
			return 0, false, err
		}
		c := cmp(v)
		switch {
		case c == 0:
			return mid, true, nil
		case c < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false, nil
}

// Writer appends fixed-width records to a flat file through a buffered
// writer, flushed explicitly or on Close. Grounded on flat_file_writer in
// flat_file.hpp: accumulate records in a slice, write them out in one
// syscall when the buffer fills.
type Writer[T any] struct {
	codec record.Codec[T]
	f     *os.File
	w     *bufferedWriter
}

// Create opens dbfile for writing, truncating any existing content.
func Create[T any](dbfile string, codec record.Codec[T]) (*Writer[T], error) {
	f, err := os.Create(dbfile)
	if err != nil {
		return nil, fmt.Errorf("flatfile: %w", err)
	}
	return &Writer[T]{
		codec: codec,
		f:     f,
		w:     newBufferedWriter(f, 64*1024),
	}, nil
}

// OpenAppend opens an existing dbfile for appending further records after
// its current tail, used by the downloader's resume path: the file already
// holds a validated prefix of the corpus and new records extend it.
func OpenAppend[T any](dbfile string, codec record.Codec[T]) (*Writer[T], error) {
	f, err := os.OpenFile(dbfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flatfile: %w", err)
	}
	return &Writer[T]{
		codec: codec,
		f:     f,
		w:     newBufferedWriter(f, 64*1024),
	}, nil
}

// Append writes one record to the file's buffered tail.
func (w *Writer[T]) Append(v T) error {
	buf := make([]byte, w.codec.Size)
	w.codec.Encode(v, buf)
	_, err := w.w.Write(buf)
	if err != nil {
		return fmt.Errorf("flatfile: write: %w", err)
	}
	return nil
}

// Flush forces any buffered records to disk.
func (w *Writer[T]) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer[T]) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// bufferedWriter is a thin wrapper so Writer doesn't need bufio directly;
// kept separate to make the flush-on-full behaviour explicit and testable.
type bufferedWriter struct {
	w   io.Writer
	buf []byte
	pos int
}

func newBufferedWriter(w io.Writer, size int) *bufferedWriter {
	return &bufferedWriter{w: w, buf: make([]byte, size)}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := copy(b.buf[b.pos:], p)
		b.pos += n
		written += n
		p = p[n:]
		if b.pos == len(b.buf) {
			if err := b.Flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (b *bufferedWriter) Flush() error {
	if b.pos == 0 {
		return nil
	}
	_, err := b.w.Write(b.buf[:b.pos])
	b.pos = 0
	return err
}
