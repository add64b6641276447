package sparseindex

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/xDarkicex/libravdb-core/codec"
	"github.com/xDarkicex/libravdb-core/corerrs"
	"github.com/xDarkicex/libravdb-core/internal/mmapfile"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

// Posting is the writer-side input: one dimension's (record id, weight)
// pairs, unsorted. Write sorts by record id before encoding.
type Posting struct {
	DimensionID uint32
	RecordIDs   []uint32
	Weights     []float64
	Params      Params // only meaningful for WeightQuantizedU8
}

// Store is an immutable, mmap-backed SparseInvertedIndex (spec.md §4.6).
type Store struct {
	kind    WeightKind
	headers []PostingHeader
	payload []byte // zero-copy slice of the mmap on LE hosts, an owned
	                // copy on BE hosts (spec.md §4.6 "Load")
	path string
	m    *mmapfile.File
}

// Options configures Write/Open, matching the teacher's typed-options
// pattern (HNSWConfig/IVFPQConfig in internal/index/interfaces.go).
type Options struct {
	Kind         WeightKind
	PostingCount int
	Compat       *telemetry.Compat
}

// Validate eagerly checks Options, mirroring the teacher's
// QuantizationConfig.Validate() pattern.
func (o Options) Validate() error {
	if o.PostingCount < 0 {
		return corerrs.NewStructuralError("sparseindex", "posting_count", o.PostingCount, "posting count must be non-negative")
	}

	return nil
}

// legacySuffix names the pre-header-table sparse file layout this core
// migrates away from on first open (spec.md §4.7's "sparse legacy filename
// migration" counter). No wire format for that legacy layout is specified,
// so this core treats "a sibling file at path+legacySuffix exists and the
// canonical path does not" as the migration trigger: the legacy bytes are
// copied verbatim into the canonical path and the original posting data is
// assumed already canonical LE (only the file's location, not its layout,
// changed historically).
const legacySuffix = ".legacy"

// Write encodes postings (keyed by DimensionID, 0..len(postings)-1 assumed
// dense — callers needing sparse dimension ids should pad with empty
// Postings) into the canonical LE on-disk format and atomically installs
// the result at path.
func Write(path string, postings []Posting, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	kind := opts.Kind

	hdrEntrySize := headerEntrySize(kind)
	headers := make([]PostingHeader, len(postings))
	payloads := make([][]byte, len(postings))

	var cursor uint64
	for i, p := range postings {
		idsLenBytes, chunksCount, body := encodePosting(kind, p)
		headers[i] = PostingHeader{
			IDsStart:    cursor,
			LastID:      lastRecordID(p.RecordIDs),
			IDsLen:      uint32(idsLenBytes),
			ChunksCount: uint32(chunksCount),
			Params:      p.Params,
		}
		payloads[i] = body
		cursor += uint64(len(body))
	}

	return mmapfile.AtomicWrite(path, func(f *os.File) error {
		hdr := make([]byte, hdrEntrySize)
		for _, h := range headers {
			encodeHeaderEntry(hdr, h, kind)
			if _, err := f.Write(hdr); err != nil {
				return err
			}
		}
		for _, body := range payloads {
			if _, err := f.Write(body); err != nil {
				return err
			}
		}

		return nil
	})
}

func lastRecordID(ids []uint32) uint32 {
	if len(ids) == 0 {
		return 0
	}
	sorted := append([]uint32(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[len(sorted)-1]
}

// encodePosting builds one posting's payload bytes: a bit-packed id block
// covering the full-chunk ids, chunksCount fixed-size chunks holding the
// per-chunk weights, and a (record_id, weight) tail for ids that don't fill
// a complete BlockLen-sized chunk.
func encodePosting(kind WeightKind, p Posting) (idsLenBytes, chunksCount int, body []byte) {
	order := sortedIndices(p.RecordIDs)
	ids := make([]uint32, len(order))
	weights := make([]float64, len(order))
	for i, idx := range order {
		ids[i] = p.RecordIDs[idx]
		weights[i] = p.Weights[idx]
	}

	chunksCount = len(ids) / BlockLen
	tailCount := len(ids) - chunksCount*BlockLen

	fullIDs := ids[:chunksCount*BlockLen]
	bitWidth := 1
	if chunksCount > 0 {
		deltas := make([]uint32, len(fullIDs))
		for c := 0; c < chunksCount; c++ {
			initial := fullIDs[c*BlockLen]
			for j := 0; j < BlockLen; j++ {
				deltas[c*BlockLen+j] = fullIDs[c*BlockLen+j] - initial
			}
		}
		bitWidth = bitWidthFor(deltas)
	}

	packedPerChunk := packedChunkBytes(bitWidth)
	idBlock := make([]byte, chunksCount*packedPerChunk)

	wsize := weightSize(kind)
	chunkBuf := make([]byte, chunkSize(kind))
	var chunks []byte

	for c := 0; c < chunksCount; c++ {
		initial := fullIDs[c*BlockLen]
		deltas := make([]uint32, BlockLen)
		for j := 0; j < BlockLen; j++ {
			deltas[j] = fullIDs[c*BlockLen+j] - initial
		}
		offset := c * packedPerChunk
		packChunk(idBlock[offset:offset+packedPerChunk], deltas, bitWidth)

		for i := range chunkBuf {
			chunkBuf[i] = 0
		}
		codec.LE.PutUint32(chunkBuf[0:4], initial)
		codec.LE.PutUint32(chunkBuf[4:8], uint32(offset))
		for j := 0; j < BlockLen; j++ {
			w := weights[c*BlockLen+j]
			weightHandlers[kind].encode(chunkBuf[8+j*wsize:8+(j+1)*wsize], w, p.Params)
		}
		chunks = append(chunks, chunkBuf...)
	}

	tailBuf := make([]byte, tailCount*elementSize(kind))
	for i := 0; i < tailCount; i++ {
		idx := chunksCount*BlockLen + i
		off := i * elementSize(kind)
		codec.LE.PutUint32(tailBuf[off:off+4], ids[idx])
		weightHandlers[kind].encode(tailBuf[off+4:off+4+wsize], weights[idx], p.Params)
	}

	body = append(body, idBlock...)
	body = append(body, chunks...)
	body = append(body, tailBuf...)

	return len(idBlock), chunksCount, body
}

func sortedIndices(ids []uint32) []int {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return ids[idx[i]] < ids[idx[j]] })

	return idx
}

// Open maps path read-only, migrating a legacy-filename sibling into place
// first if the canonical path is missing (spec.md §4.7).
func Open(path string, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	kind, postingCount, compat := opts.Kind, opts.PostingCount, opts.Compat

	if _, err := os.Stat(path); os.IsNotExist(err) {
		legacyPath := path + legacySuffix
		if _, lerr := os.Stat(legacyPath); lerr == nil {
			if merr := migrateLegacyFilename(legacyPath, path, compat); merr != nil {
				return nil, merr
			}
		}
	}

	m, err := mmapfile.Open(path, mmapfile.ReadOnly, 0)
	if err != nil {
		return nil, err
	}

	data := m.Bytes()
	hdrEntrySize := headerEntrySize(kind)
	hdrRegionLen := postingCount * hdrEntrySize

	if len(data) < hdrRegionLen {
		m.Close()

		return nil, corerrs.NewStructuralError("sparseindex", "file_len", len(data), "shorter than header table")
	}

	headers := make([]PostingHeader, postingCount)
	for i := 0; i < postingCount; i++ {
		headers[i] = decodeHeaderEntry(data[i*hdrEntrySize:(i+1)*hdrEntrySize], kind)
	}

	payloadRegion := data[hdrRegionLen:]
	if err := validateBoundaries(headers, kind, uint64(len(payloadRegion))); err != nil {
		m.Close()

		return nil, err
	}

	var payload []byte
	if codec.HostIsLittleEndian() {
		payload = payloadRegion
	} else {
		payload = append([]byte(nil), payloadRegion...)
	}

	return &Store{kind: kind, headers: headers, payload: payload, path: path, m: m}, nil
}

func migrateLegacyFilename(legacyPath, canonicalPath string, compat *telemetry.Compat) error {
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return err
	}

	if err := mmapfile.AtomicWrite(canonicalPath, func(f *os.File) error {
		_, werr := f.Write(data)

		return werr
	}); err != nil {
		return err
	}

	if compat != nil {
		compat.SparseLegacyFilenameMigrations.Inc()
	}
	slog.Info("sparseindex: migrated legacy filename", "from", legacyPath, "to", canonicalPath)

	return nil
}

// validateBoundaries implements spec.md §4.6's boundary-check chain.
func validateBoundaries(headers []PostingHeader, kind WeightKind, payloadLen uint64) error {
	cs := uint64(chunkSize(kind))
	es := uint64(elementSize(kind))

	for i, h := range headers {
		next := payloadLen
		if i+1 < len(headers) {
			next = headers[i+1].IDsStart
		}

		idsEnd := h.IDsStart + uint64(h.IDsLen)
		if idsEnd < h.IDsStart {
			return corerrs.NewStructuralError("sparseindex", "ids_len", h.IDsLen, fmt.Sprintf("posting %d: ids_start+ids_len overflows", i))
		}

		chunksEnd := idsEnd + uint64(h.ChunksCount)*cs
		if chunksEnd < idsEnd {
			return corerrs.NewStructuralError("sparseindex", "chunks_count", h.ChunksCount, fmt.Sprintf("posting %d: chunks region overflows", i))
		}

		if !(h.IDsStart <= idsEnd && idsEnd <= chunksEnd && chunksEnd <= next) {
			return corerrs.NewStructuralError("sparseindex", "ids_start", h.IDsStart,
				fmt.Sprintf("posting %d: violates ids_start <= ids_start+ids_len <= chunks_end <= next_ids_start (%d <= %d <= %d <= %d)", i, h.IDsStart, idsEnd, chunksEnd, next))
		}

		remainder := next - chunksEnd
		if remainder%es != 0 {
			return corerrs.NewStructuralError("sparseindex", "remainder_len", remainder, fmt.Sprintf("posting %d: remainder region not a multiple of element size %d", i, es))
		}
	}

	return nil
}

// PostingCount returns the number of dimensions (header-table entries).
func (s *Store) PostingCount() int { return len(s.headers) }

// Posting decodes dimension i's full (record id, weight) sequence in
// ascending record-id order.
func (s *Store) Posting(i int) ([]uint32, []float64, error) {
	if i < 0 || i >= len(s.headers) {
		return nil, nil, fmt.Errorf("sparseindex: posting %d out of range [0,%d)", i, len(s.headers))
	}

	h := s.headers[i]
	wsize := weightSize(s.kind)
	cs := chunkSize(s.kind)
	es := elementSize(s.kind)

	idBlock := s.payload[h.IDsStart : h.IDsStart+uint64(h.IDsLen)]
	chunksStart := h.IDsStart + uint64(h.IDsLen)

	var ids []uint32
	var weights []float64

	if h.ChunksCount > 0 {
		packedPerChunk := len(idBlock) / int(h.ChunksCount)
		bitWidth := bitWidthFromPackedSize(packedPerChunk)

		for c := uint32(0); c < h.ChunksCount; c++ {
			chunk := s.payload[chunksStart+uint64(c)*uint64(cs) : chunksStart+uint64(c+1)*uint64(cs)]
			initial := codec.LE.Uint32(chunk[0:4])
			offset := codec.LE.Uint32(chunk[4:8])

			deltas := unpackChunk(idBlock[offset:offset+uint32(packedPerChunk)], bitWidth)
			for j, d := range deltas {
				ids = append(ids, initial+d)
				w := weightHandlers[s.kind].decode(chunk[8+j*wsize:8+(j+1)*wsize], h.Params)
				weights = append(weights, w)
			}
		}
	}

	tailStart := chunksStart + uint64(h.ChunksCount)*uint64(cs)
	tailEnd := tailStart
	if i+1 < len(s.headers) {
		tailEnd = s.headers[i+1].IDsStart
	} else {
		tailEnd = uint64(len(s.payload))
	}
	tail := s.payload[tailStart:tailEnd]

	for off := 0; off+es <= len(tail); off += es {
		ids = append(ids, codec.LE.Uint32(tail[off:off+4]))
		w := weightHandlers[s.kind].decode(tail[off+4:off+4+wsize], h.Params)
		weights = append(weights, w)
	}

	return ids, weights, nil
}

func bitWidthFromPackedSize(packedBytes int) int {
	bits := packedBytes * 8
	w := bits / BlockLen
	if w == 0 {
		w = 1
	}

	return w
}

// Upsert always fails: the persisted form is read-only (spec.md §4.6
// "Mutability").
func (s *Store) Upsert(Posting) error { return corerrs.NewImmutableError("sparseindex", "upsert") }

// Remove always fails: the persisted form is read-only (spec.md §4.6
// "Mutability").
func (s *Store) Remove(uint32) error { return corerrs.NewImmutableError("sparseindex", "remove") }

// Close releases the mapping.
func (s *Store) Close() error { return s.m.Close() }

// Kind returns the store's weight kind.
func (s *Store) Kind() WeightKind { return s.kind }

// Files returns the on-disk paths owned by this store (spec.md §6 files()).
func (s *Store) Files() []string { return []string{s.path} }

// ImmutableFiles returns the subset of Files never rewritten after Write
// (spec.md §6 immutable_files()). This store has no post-open in-place
// mutation, so it equals Files.
func (s *Store) ImmutableFiles() []string { return []string{s.path} }

// Populate touches every page of the mapping (spec.md §6 populate()).
func (s *Store) Populate() error { return s.m.Populate() }

// ClearCache advises the kernel to drop cached pages for this mapping
// (spec.md §6 clear_cache()).
func (s *Store) ClearCache() error { return s.m.DropCache() }

// Flusher returns the callable that persists this store's buffered
// mutations (spec.md §6 flusher()). This store is read-only once opened,
// so the callable is a no-op.
func (s *Store) Flusher() func() error { return s.m.Flush }
