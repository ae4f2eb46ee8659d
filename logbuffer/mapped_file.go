package logbuffer

import (
	"fmt"
	"os"
	"syscall"

	"github.com/edsrzf/mmap-go"
)

// MappedFile owns one memory-mapped log file on disk: the backing
// *os.File plus the mmap.MMap view over it. Grounded on mmap-go, the
// library referenced by the aeron-adjacent examples in the retrieval
// pack (the DarrylGamroth-telegraf aeron_subscriber plugin and the
// arcentrix-arcentra ring buffer both carry it as a direct dependency
// for exactly this kind of shared-memory region).
type MappedFile struct {
	file *os.File
	mm   mmap.MMap
}

// CreateFile creates (or truncates) a file at path, sizes it to length
// bytes and maps it read/write. length should already be page-aligned
// by the caller (spec.md §6: "page-aligned" metadata region).
func CreateFile(path string, length int64) (*MappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aeron: create log file %s: %w", path, err)
	}

	if err := f.Truncate(length); err != nil {
		f.Close()
		os.Remove(path)
		if isNoSpace(err) {
			return nil, fmt.Errorf("aeron: %s: %w", path, ErrInsufficientDiskSpace)
		}
		return nil, fmt.Errorf("aeron: truncate log file %s: %w", path, err)
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("aeron: mmap log file %s: %w", path, ErrAllocationFailed)
	}

	return &MappedFile{file: f, mm: mm}, nil
}

// OpenFile maps an existing log file read/write.
func OpenFile(path string) (*MappedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aeron: open log file %s: %w", path, err)
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("aeron: mmap log file %s: %w", path, err)
	}

	return &MappedFile{file: f, mm: mm}, nil
}

// Buffer returns a Buffer view over the full mapped region.
func (m *MappedFile) Buffer() *Buffer { return Wrap([]byte(m.mm)) }

// Slice returns a Buffer view over [offset, offset+length) of the
// mapped region, used to carve the term partitions and metadata region
// out of one contiguous mapping.
func (m *MappedFile) Slice(offset, length int64) *Buffer {
	return Wrap([]byte(m.mm)[offset : offset+length])
}

// Flush persists dirty pages back to disk.
func (m *MappedFile) Flush() error { return m.mm.Flush() }

// Close unmaps and closes the underlying file.
func (m *MappedFile) Close() error {
	if err := m.mm.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}

func isNoSpace(err error) bool {
	return unwrapErrno(err) == syscall.ENOSPC
}

func unwrapErrno(err error) syscall.Errno {
	var errno syscall.Errno
	for err != nil {
		if e, ok := err.(syscall.Errno); ok {
			return e
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return errno
		}
		err = unwrapper.Unwrap()
	}
	return errno
}
