// mmap.go -- map a whole file into memory for zero-copy reads.
//
// Adapted from opencoff/go-bbhash's mmap.go, which maps a raw file
// descriptor into a reinterpreted []uint64 via reflect.SliceHeader. This
// filter store only ever needs raw bytes, so the reinterpret step is
// dropped: syscall.Mmap already hands back the []byte this package wants.
package shardedfilter

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// mappedFile is a whole file mapped into memory read-only or read-write.
type mappedFile struct {
	f    *os.File
	data []byte
}

func mapFile(f *os.File, writable bool) (*mappedFile, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("shardedfilter: cannot mmap empty file %s", f.Name())
	}

	prot := syscall.PROT_READ
	if writable {
		prot |= syscall.PROT_WRITE
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(st.Size()), prot, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shardedfilter: mmap: %w", err)
	}
	return &mappedFile{f: f, data: data}, nil
}

// remap unmaps and re-maps after the backing file has grown, used when
// appending a new filter shard requires the file to be resized.
func (m *mappedFile) remap() error {
	if err := syscall.Munmap(m.data); err != nil {
		return fmt.Errorf("shardedfilter: munmap: %w", err)
	}
	st, err := m.f.Stat()
	if err != nil {
		return err
	}
	data, err := syscall.Mmap(int(m.f.Fd()), 0, int(st.Size()), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("shardedfilter: mmap: %w", err)
	}
	m.data = data
	return nil
}

func (m *mappedFile) sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mappedFile) close() error {
	if err := syscall.Munmap(m.data); err != nil {
		return err
	}
	return m.f.Close()
}
