// Package mmapfile is the shared mmap primitive used by every on-disk store
// in the core (graph links, dense vectors, point-to-values, text index,
// sparse index). It replaces the teacher's raw syscall.Mmap
// (internal/memory/mmap.go in the original libravdb) with
// github.com/edsrzf/mmap-go, which is cross-platform the way saferwall-pe's
// File.New uses it for zero-copy header parsing of untrusted binaries —
// exactly the access pattern this core needs for untrusted/legacy on-disk
// state.
package mmapfile

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// Mode selects the mapping's access rights, mirroring the teacher's
// MemoryMap readOnly flag but named after mmap-go's own Mode constants.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// File is a reference-counted memory mapping over a single path. The last
// dropper (refs reaching zero) unmaps, matching the resource policy in
// spec.md §5 ("Mmap handles are reference-counted; the last dropper
// unmaps").
type File struct {
	mu   sync.RWMutex
	f    *os.File
	data mmap.MMap
	path string
	mode Mode
	refs int32
}

// Open maps the file at path. For ReadWrite mode the file is created (or
// truncated to size, if size > 0) before mapping.
func Open(path string, mode Mode, size int64) (*File, error) {
	var (
		file *os.File
		err  error
	)

	switch mode {
	case ReadOnly:
		file, err = os.OpenFile(path, os.O_RDONLY, 0o644)
	case ReadWrite:
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err == nil && size > 0 {
			if terr := file.Truncate(size); terr != nil {
				file.Close()

				return nil, fmt.Errorf("mmapfile: truncate %s: %w", path, terr)
			}
		}
	default:
		return nil, fmt.Errorf("mmapfile: unknown mode %d", mode)
	}

	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", path, err)
	}

	if size == 0 {
		stat, serr := file.Stat()
		if serr != nil {
			file.Close()

			return nil, fmt.Errorf("mmapfile: stat %s: %w", path, serr)
		}
		size = stat.Size()
	}

	if size == 0 {
		file.Close()

		return nil, fmt.Errorf("mmapfile: cannot map empty file %s", path)
	}

	mmapMode := mmap.RDONLY
	if mode == ReadWrite {
		mmapMode = mmap.RDWR
	}

	data, err := mmap.MapRegion(file, int(size), mmapMode, 0, 0)
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("mmapfile: map %s: %w", path, err)
	}

	return &File{f: file, data: data, path: path, mode: mode, refs: 1}, nil
}

// Bytes returns the mapped region. Callers must not retain it past Close.
func (m *File) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.data
}

// Len returns the mapped length in bytes.
func (m *File) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Acquire increments the reference count, matching spec.md §5's
// reference-counted mapping handles.
func (m *File) Acquire() { atomic.AddInt32(&m.refs, 1) }

// Close decrements the reference count; the underlying mapping and file
// descriptor are released only when the count reaches zero.
func (m *File) Close() error {
	if atomic.AddInt32(&m.refs, -1) > 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.data != nil {
		err = m.data.Unmap()
		m.data = nil
	}

	if cerr := m.f.Close(); cerr != nil && err == nil {
		err = cerr
	}

	return err
}

// Flush writes modified pages back to disk. It is a no-op error source on
// read-only mappings.
func (m *File) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil
	}

	return m.data.Flush()
}

// Populate touches every page of the mapping to force it resident,
// matching the populate() contract in spec.md §5/§6. It blocks by design.
func (m *File) Populate() error {
	m.mu.RLock()
	data := m.data
	m.mu.RUnlock()

	const pageSize = 4096

	var sum byte
	for i := 0; i < len(data); i += pageSize {
		sum ^= data[i]
	}

	populateSink.Store(sum)

	return nil
}

// populateSink keeps the compiler from eliding Populate's touch loop as a
// dead store; its value is never read back by callers.
var populateSink atomic.Value

// AdviseSequential hints to the kernel that this mapping will be read
// sequentially, per spec.md §4.3 ("advising the kernel it will be read
// sequentially"). It is a best-effort call: on platforms without madvise
// support it silently degrades to a no-op, preserving identical observable
// semantics (spec.md §4.3 step 5 / §9 "async shape").
func (m *File) AdviseSequential() error {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "freebsd" {
		return nil
	}

	m.mu.RLock()
	data := m.data
	m.mu.RUnlock()

	if len(data) == 0 {
		return nil
	}

	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		return fmt.Errorf("mmapfile: madvise sequential %s: %w", m.path, err)
	}

	return nil
}

// DropCache advises the kernel to release cached pages backing this
// mapping, per spec.md §6's clear_cache() contract. Best-effort: platforms
// without madvise support silently no-op, preserving identical observable
// semantics.
func (m *File) DropCache() error {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "freebsd" {
		return nil
	}

	m.mu.RLock()
	data := m.data
	m.mu.RUnlock()

	if len(data) == 0 {
		return nil
	}

	if err := unix.Madvise(data, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("mmapfile: madvise dontneed %s: %w", m.path, err)
	}

	return nil
}

// AtomicWrite writes a file transactionally: it writes to a temp file,
// fsyncs, closes, then renames into place, exactly mirroring the teacher's
// atomicWrite helper in internal/index/hnsw/persistence.go. create/encode
// operations across every store use this so a reader always sees either the
// fully-old or fully-new file, never a partial one (spec.md §3 "Ownership
// and lifecycle").
func AtomicWrite(finalPath string, writeFunc func(*os.File) error) error {
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("mmapfile: create temp %s: %w", tempPath, err)
	}

	writeErr := writeFunc(file)

	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if closeErr := file.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		slog.Warn("mmapfile: fsync/write failed", "path", finalPath, "error", writeErr)
		os.Remove(tempPath)

		return fmt.Errorf("mmapfile: write %s: %w", finalPath, writeErr)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		slog.Warn("mmapfile: rename failed", "from", tempPath, "to", finalPath, "error", err)
		os.Remove(tempPath)

		return fmt.Errorf("mmapfile: rename %s -> %s: %w", tempPath, finalPath, err)
	}

	return nil
}
