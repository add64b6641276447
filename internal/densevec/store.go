// Package densevec implements C3 DenseVectorStore from spec.md §4.3: an
// mmap-backed, fixed-dimension dense vector table with a deletion bitmap.
// It is grounded on the teacher's internal/memory/mmap.go (the raw
// syscall.Mmap wrapper, here replaced by internal/mmapfile) and on the
// original Rust mmap_dense_vectors.rs for exact layout and fallback
// semantics.
package densevec

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"

	"github.com/xDarkicex/libravdb-core/corerrs"
	"github.com/xDarkicex/libravdb-core/internal/mmapfile"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

const (
	headerSize         = 4
	vectorsMagic       = "data"
	deletedMagic       = "drop"
	deletedLayoutBlock = 8 // size_of::<u64>(), the alignment unit for the bitslice start

	// VectorReadBatchSize is an internal batch-size constant (>= 64). Its
	// value is not part of the external contract (spec.md §4.3); no code in
	// this package reads it, ForEachInBatch included.
	VectorReadBatchSize = 128
)

// AccessPattern selects which mapping get_vector reads through.
type AccessPattern int

const (
	Random AccessPattern = iota
	Sequential
)

// Store is the mmap-backed dense vector table for element type T.
type Store[T Element] struct {
	mu sync.RWMutex

	dim        int
	numVectors int
	codec      Codec[T]

	vectorsPath string
	deletedPath string

	vectorsMap *mmapfile.File
	seqMap     *mmapfile.File // nil on platforms without multi-mmap support, or not requested
	deletedMap *mmapfile.File

	deletedDataStart int
	deleted          *bitset.BitSet // in-memory working copy, buffered per spec.md §3
	deletedCount     atomic.Uint64

	decoded []T // populated only on a big-endian host; nil otherwise

	asyncIO bool

	compat *telemetry.Compat
}

// deletedDataStart returns the byte offset where the deletion bitslice
// begins within the deleted-file mmap: the header rounded up to an 8-byte
// boundary, mirroring deleted_mmap_data_start() in the original source.
func deletedDataStart() int {
	return ((headerSize + deletedLayoutBlock - 1) / deletedLayoutBlock) * deletedLayoutBlock
}

// deletedFileSize returns the total size of the deleted-flags file needed
// to hold num vectors' worth of deletion bits, at the fixed alignment.
func deletedFileSize(num int) int64 {
	numBytes := (num + 7) / 8
	aligned := ((numBytes + deletedLayoutBlock - 1) / deletedLayoutBlock) * deletedLayoutBlock

	return int64(deletedDataStart() + aligned)
}

// Options configures Create/Open for a dense vector store, matching the
// teacher's typed-options pattern (HNSWConfig/IVFPQConfig in
// internal/index/interfaces.go).
type Options[T Element] struct {
	Dim         int
	Codec       Codec[T]
	WithAsyncIO bool
	Compat      *telemetry.Compat
}

// Validate eagerly checks Options, mirroring the teacher's
// QuantizationConfig.Validate() pattern.
func (o Options[T]) Validate() error {
	if o.Dim <= 0 {
		return corerrs.NewStructuralError("densevec", "dim", o.Dim, "dim must be positive")
	}
	if o.Codec.Size <= 0 {
		return corerrs.NewStructuralError("densevec", "codec.Size", o.Codec.Size, "codec element size must be positive")
	}

	return nil
}

// Create writes a brand-new vectors file (header + encoded values) and a
// matching deleted-flags file, both via atomic rename, then opens them.
func Create[T Element](vectorsPath, deletedPath string, values [][]T, opts Options[T]) (*Store[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dim, codec := opts.Dim, opts.Codec

	err := mmapfile.AtomicWrite(vectorsPath, func(f *os.File) error {
		if _, werr := f.WriteString(vectorsMagic); werr != nil {
			return werr
		}

		buf := make([]byte, codec.Size)
		for _, vec := range values {
			if len(vec) != dim {
				return corerrs.NewStructuralError("densevec", "vector length", len(vec), fmt.Sprintf("expected dim=%d", dim))
			}

			for _, v := range vec {
				codec.Encode(buf, v)
				if _, werr := f.Write(buf); werr != nil {
					return werr
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("densevec: create vectors file: %w", err)
	}

	size := deletedFileSize(len(values))
	err = mmapfile.AtomicWrite(deletedPath, func(f *os.File) error {
		if _, werr := f.WriteString(deletedMagic); werr != nil {
			return werr
		}

		return f.Truncate(size)
	})
	if err != nil {
		return nil, fmt.Errorf("densevec: create deleted file: %w", err)
	}

	return Open(vectorsPath, deletedPath, Options[T]{Dim: dim, Codec: codec, Compat: opts.Compat})
}

// Open maps an existing store. On a big-endian host the vector payload is
// decoded once into an in-memory cache (spec.md §4.3 step 4); the mmap
// remains authoritative for byte counts and deletion state.
func Open[T Element](vectorsPath, deletedPath string, opts Options[T]) (*Store[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dim, codec, withAsyncIO, compat := opts.Dim, opts.Codec, opts.WithAsyncIO, opts.Compat

	vectorsMap, err := mmapfile.Open(vectorsPath, mmapfile.ReadOnly, 0)
	if err != nil {
		return nil, fmt.Errorf("densevec: open vectors mmap: %w", err)
	}

	if vectorsMap.Len() < headerSize {
		vectorsMap.Close()

		return nil, corerrs.NewStructuralError("densevec", "vectors file size", vectorsMap.Len(), fmt.Sprintf("expected at least %d", headerSize))
	}

	data := vectorsMap.Bytes()
	if string(data[:headerSize]) != vectorsMagic {
		vectorsMap.Close()

		return nil, corerrs.NewHeaderError("densevec", "vectors magic", string(data[:headerSize]), vectorsMagic)
	}

	vectorBytes := dim * codec.Size
	if vectorBytes == 0 {
		vectorsMap.Close()

		return nil, corerrs.NewStructuralError("densevec", "vector byte size", vectorBytes, "vector byte size must be nonzero")
	}

	payloadLen := vectorsMap.Len() - headerSize
	if payloadLen%vectorBytes != 0 {
		vectorsMap.Close()

		return nil, corerrs.NewStructuralError("densevec", "payload length", payloadLen, fmt.Sprintf("expected header + N * %d", vectorBytes))
	}

	numVectors := payloadLen / vectorBytes

	var decoded []T
	if isBigEndianHost() {
		decoded = decodeAll(data[headerSize:], dim, numVectors, codec)
		slog.Info("densevec: decoded big-endian host fallback", "path", vectorsPath, "num_vectors", numVectors)
		if compat != nil {
			compat.DenseVectorsBEFallbackLoads.Inc()
		}
	}

	var seqMap *mmapfile.File
	if multiMmapSupported() {
		seqMap, err = mmapfile.Open(vectorsPath, mmapfile.ReadOnly, 0)
		if err != nil {
			vectorsMap.Close()

			return nil, fmt.Errorf("densevec: open sequential mmap: %w", err)
		}

		if aerr := seqMap.AdviseSequential(); aerr != nil {
			// Best-effort: some platforms/filesystems reject madvise on
			// certain mappings; the store still works without the hint.
			_ = aerr
		}
	}

	// A missing deletion file is created with its magic header; the mapping
	// below then extends it to the size numVectors needs.
	if _, serr := os.Stat(deletedPath); os.IsNotExist(serr) {
		if werr := os.WriteFile(deletedPath, []byte(deletedMagic), 0o644); werr != nil {
			vectorsMap.Close()
			if seqMap != nil {
				seqMap.Close()
			}

			return nil, fmt.Errorf("densevec: create deleted file: %w", werr)
		}
	}

	dataStart := deletedDataStart()
	size := deletedFileSize(numVectors)
	deletedMap, err := mmapfile.Open(deletedPath, mmapfile.ReadWrite, size)
	if err != nil {
		vectorsMap.Close()
		if seqMap != nil {
			seqMap.Close()
		}

		return nil, fmt.Errorf("densevec: open deleted mmap: %w", err)
	}

	ddata := deletedMap.Bytes()
	if len(ddata) < dataStart {
		vectorsMap.Close()
		deletedMap.Close()
		if seqMap != nil {
			seqMap.Close()
		}

		return nil, corerrs.NewStructuralError("densevec", "deleted file size", len(ddata), fmt.Sprintf("expected at least %d", dataStart))
	}

	if string(ddata[:headerSize]) != deletedMagic {
		vectorsMap.Close()
		deletedMap.Close()
		if seqMap != nil {
			seqMap.Close()
		}

		return nil, corerrs.NewHeaderError("densevec", "deleted magic", string(ddata[:headerSize]), deletedMagic)
	}

	bits := bitsetFromBytes(ddata[dataStart:])

	s := &Store[T]{
		dim:              dim,
		numVectors:       numVectors,
		codec:            codec,
		vectorsPath:      vectorsPath,
		deletedPath:      deletedPath,
		vectorsMap:       vectorsMap,
		seqMap:           seqMap,
		deletedMap:       deletedMap,
		deletedDataStart: dataStart,
		deleted:          bits,
		decoded:          decoded,
		asyncIO:          withAsyncIO && asyncIOAvailable(),
		compat:           compat,
	}
	s.deletedCount.Store(uint64(bits.Count()))

	return s, nil
}

func decodeAll[T Element](payload []byte, dim, numVectors int, codec Codec[T]) []T {
	out := make([]T, dim*numVectors)
	for i := range out {
		out[i] = codec.Decode(payload[i*codec.Size : (i+1)*codec.Size])
	}

	return out
}

func bitsetFromBytes(b []byte) *bitset.BitSet {
	words := make([]uint64, (len(b)+7)/8)
	for i := range words {
		for j := 0; j < 8 && i*8+j < len(b); j++ {
			words[i] |= uint64(b[i*8+j]) << (8 * j)
		}
	}

	return bitset.From(words)
}

// Dim returns the configured vector dimension.
func (s *Store[T]) Dim() int { return s.dim }

// NumVectors returns the number of vectors stored.
func (s *Store[T]) NumVectors() int { return s.numVectors }

// DeletedCount returns the current count of deleted points, maintained as
// popcount(deleted_bitslice[..num_vectors]) (spec.md §4.3 invariant).
func (s *Store[T]) DeletedCount() uint64 { return s.deletedCount.Load() }

// GetVector returns the vector at id using the given access pattern,
// reading from the in-memory BE decode cache when present or directly from
// the selected mmap otherwise.
func (s *Store[T]) GetVector(id uint32, pattern AccessPattern) ([]T, error) {
	if int(id) >= s.numVectors {
		return nil, corerrs.NewStructuralError("densevec", "id", id, "id out of range")
	}

	if s.decoded != nil {
		start := int(id) * s.dim

		return s.decoded[start : start+s.dim], nil
	}

	m := s.vectorsMap
	if pattern == Sequential && s.seqMap != nil {
		m = s.seqMap
	}

	vectorBytes := s.dim * s.codec.Size
	offset := headerSize + int(id)*vectorBytes
	raw := m.Bytes()[offset : offset+vectorBytes]

	out := make([]T, s.dim)
	for i := range out {
		out[i] = s.codec.Decode(raw[i*s.codec.Size : (i+1)*s.codec.Size])
	}

	return out, nil
}

// ForEachInBatch reads keys in order through the sequential mapping when
// keys are strictly increasing and dense (spec.md §4.3), and through the
// random mapping otherwise. Each vector is read when f is called for it;
// there is no batched prefetch, and VectorReadBatchSize is not consulted.
func (s *Store[T]) ForEachInBatch(keys []uint32, f func(idx int, id uint32, vec []T)) error {
	pattern := Random
	if isSequentialDense(keys) {
		pattern = Sequential
	}

	for i, k := range keys {
		vec, err := s.GetVector(k, pattern)
		if err != nil {
			return err
		}

		f(i, k, vec)
	}

	return nil
}

func isSequentialDense(keys []uint32) bool {
	for i := 1; i < len(keys); i++ {
		if keys[i] != keys[i-1]+1 {
			return false
		}
	}

	return true
}

// Delete flips the deletion bit for id. It returns true iff the state
// transitioned from not-deleted to deleted, matching spec.md §4.3.
func (s *Store[T]) Delete(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := uint(id)
	if s.deleted.Test(idx) {
		return false
	}

	s.deleted.Set(idx)
	s.deletedCount.Add(1)

	return true
}

// IsDeleted reports whether id is marked deleted.
func (s *Store[T]) IsDeleted(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.deleted.Test(uint(id))
}

// Flush coalesces the in-memory deletion bitmap back into the deleted-file
// mmap and flushes it to disk, per the "buffered wrapper that coalesces
// writes and flushes on demand" contract in spec.md §3.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ddata := s.deletedMap.Bytes()
	words := s.deleted.Bytes()
	dst := ddata[s.deletedDataStart:]

	for i, w := range words {
		for j := 0; j < 8 && i*8+j < len(dst); j++ {
			dst[i*8+j] = byte(w >> (8 * j))
		}
	}

	return s.deletedMap.Flush()
}

// Populate touches every page of the vector mapping(s), per spec.md §6.
func (s *Store[T]) Populate() error {
	if err := s.vectorsMap.Populate(); err != nil {
		return err
	}

	if s.seqMap != nil {
		return s.seqMap.Populate()
	}

	return nil
}

// HasAsyncReader reports whether the async (io_uring-backed) read path is
// active for this store. This core has no io_uring path wired up yet, so
// this always reports false; see asyncIOAvailable and DESIGN.md.
func (s *Store[T]) HasAsyncReader() bool { return s.asyncIO }

// Files returns every on-disk path owned by this store (spec.md §6
// files()), including the mutable deletion-bitmap file.
func (s *Store[T]) Files() []string { return []string{s.vectorsPath, s.deletedPath} }

// ImmutableFiles returns the subset of Files that is never rewritten after
// Create (spec.md §6 immutable_files()): the vectors file. The deletion
// file is excluded because Delete/Flush mutate it in place.
func (s *Store[T]) ImmutableFiles() []string { return []string{s.vectorsPath} }

// ClearCache advises the kernel to drop cached pages for every mapping this
// store holds (spec.md §6 clear_cache()).
func (s *Store[T]) ClearCache() error {
	if err := s.vectorsMap.DropCache(); err != nil {
		return err
	}

	if s.seqMap != nil {
		if err := s.seqMap.DropCache(); err != nil {
			return err
		}
	}

	return s.deletedMap.DropCache()
}

// Flusher returns the callable that persists this store's buffered
// mutations (spec.md §6 flusher()): the deletion-bitmap flush.
func (s *Store[T]) Flusher() func() error { return s.Flush }

// Close releases all mappings held by the store.
func (s *Store[T]) Close() error {
	var errs []error
	if err := s.vectorsMap.Close(); err != nil {
		errs = append(errs, err)
	}

	if s.seqMap != nil {
		if err := s.seqMap.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.deletedMap.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("densevec: close: %v", errs)
	}

	return nil
}
