package pager

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// AsyncFile is the block I/O abstraction of spec.md §4.1: block-aligned
// read/write/sync/size over a single file, opened with an exclusive lock.
// "Async" describes the caller's programming model (every call is a
// suspension point the pager yields at, per spec.md §5) rather than the
// implementation, which is a synchronous *os.File — the idiomatic Go
// realization, matching the teacher's DiskManager in
// core/indexing/btree/diskmanager.go.
type AsyncFile struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenAsyncFile opens (or creates, if create is true) path and takes an
// exclusive advisory lock on it for the lifetime of the handle.
func OpenAsyncFile(path string, create bool) (*AsyncFile, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: exclusive lock on %s held by another process: %v", ErrIO, path, err)
	}
	return &AsyncFile{file: f, path: path}, nil
}

// ReadAt reads exactly len(buf) bytes at offset. Both must be multiples of
// SmallestPhysicalBlock.
func (a *AsyncFile) ReadAt(buf []byte, offset int64) error {
	if err := checkAligned(len(buf), offset); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.file.ReadAt(buf, offset)
	if err != nil && n != len(buf) {
		return fmt.Errorf("%w: read %d bytes at offset %d: %v", ErrIO, len(buf), offset, err)
	}
	return nil
}

// WriteAt writes buf at offset. Both must be multiples of
// SmallestPhysicalBlock. Per-offset write order is preserved because the
// handle serializes all I/O through a. mu; callers that need writes to
// different offsets to be reordered for throughput should batch through
// the Object Cache instead, which already sequences per-LPID I/O
// (spec.md §4.3).
func (a *AsyncFile) WriteAt(buf []byte, offset int64) error {
	if err := checkAligned(len(buf), offset); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: write %d bytes at offset %d: %v", ErrIO, len(buf), offset, err)
	}
	return nil
}

// Sync establishes a durability barrier: every write issued before it is
// durable once it returns.
func (a *AsyncFile) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("%w: fsync %s: %v", ErrIO, a.path, err)
	}
	return nil
}

// Size returns the current file size in bytes.
func (a *AsyncFile) Size() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fi, err := a.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, a.path, err)
	}
	return fi.Size(), nil
}

// Truncate extends or shrinks the file to exactly size bytes, used when
// appending fresh pages past the current end of file.
func (a *AsyncFile) Truncate(size int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.file.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate %s to %d: %v", ErrIO, a.path, size, err)
	}
	return nil
}

// Close releases the lock and closes the file.
func (a *AsyncFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

func checkAligned(length int, offset int64) error {
	if length%SmallestPhysicalBlock != 0 || offset%SmallestPhysicalBlock != 0 {
		return fmt.Errorf("%w: unaligned I/O (len=%d offset=%d, block=%d)", ErrIO, length, offset, SmallestPhysicalBlock)
	}
	return nil
}
