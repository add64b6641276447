package graphlinks

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

// compressedParamsSize is the fixed 8-byte block (chunkSize u32, bitWidth
// u32) that follows the header in Compressed/CompressedWithVectors files.
const compressedParamsSize = 8

// Store is an opened GraphLinksStore: the per-point, per-level neighbor
// lists, decoded once at Open time, plus (for CompressedWithVectors) the
// interleaved vector regions.
type Store struct {
	header Header
	format Format

	pointLevelStart []uint64   // len PointsCount+1
	neighborLists   [][]uint32 // len LevelsCount, point-major/level-major

	baseVectors [][]byte // len PointsCount, only for CompressedWithVectors
	linkVectors [][]byte // len TotalNeighborsCount, parallel to the flattened neighbor id stream

	path string
	m    *mmapfile.File
}

// WriteOptions configures Write, matching the teacher's typed-options
// pattern (HNSWConfig/IVFPQConfig in internal/index/interfaces.go). Reindex
// may be nil, meaning identity (point i stored at index i); when Format is
// CompressedWithVectors, VecSrc must be non-nil.
type WriteOptions struct {
	Format         Format
	MLevel         int
	Reindex        []uint32
	OffsetsPadding uint32
	VecSrc         VectorSource
	Compat         *telemetry.Compat
}

// Validate eagerly checks WriteOptions, mirroring the teacher's
// QuantizationConfig.Validate() pattern.
func (o WriteOptions) Validate() error {
	if o.Format == CompressedWithVectors && o.VecSrc == nil {
		return corerrs.NewStructuralError("graphlinks", "vec_src", nil, "CompressedWithVectors requires a non-nil VectorSource")
	}

	return nil
}

// OpenOptions configures Open.
type OpenOptions struct {
	VecSrc VectorSource
	Compat *telemetry.Compat
}

// Write serializes edges (point-major, then level-major neighbor lists) to
// path in the given format. It sorts the first mLevel neighbors of each
// level (tie order otherwise preserved), matching spec.md §4.2's write
// algorithm.
func Write(path string, edges Edges, opts WriteOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	format, mLevel, reindex, offsetsPadding, vecSrc := opts.Format, opts.MLevel, opts.Reindex, opts.OffsetsPadding, opts.VecSrc

	pointsCount := uint64(len(edges))

	if reindex == nil {
		reindex = make([]uint32, pointsCount)
		for i := range reindex {
			reindex[i] = uint32(i)
		}
	}

	perPointLevelStart := make([]uint64, pointsCount+1)
	var neighborLists [][]uint32

	for i, levels := range edges {
		perPointLevelStart[i] = uint64(len(neighborLists))
		for _, ids := range levels {
			sortPrefix(ids, mLevel)
			neighborLists = append(neighborLists, ids)
		}
	}
	perPointLevelStart[pointsCount] = uint64(len(neighborLists))

	levelsCount := uint64(len(neighborLists))
	levelOffsets := make([]uint64, levelsCount+1)
	var totalNeighbors uint64
	for i, ids := range neighborLists {
		levelOffsets[i] = totalNeighbors
		totalNeighbors += uint64(len(ids))
	}
	levelOffsets[levelsCount] = totalNeighbors

	version := versionForFormat(format)

	header := Header{
		PointsCount:         pointsCount,
		LevelsCount:         levelsCount,
		TotalNeighborsCount: totalNeighbors,
		TotalOffsetsCount:   levelsCount + 1,
		OffsetsPadding:      offsetsPadding,
		Version:             version,
	}

	return mmapfile.AtomicWrite(path, func(f *os.File) error {
		return writeBody(f, header, format, reindex, perPointLevelStart, levelOffsets, neighborLists, vecSrc)
	})
}

func versionForFormat(f Format) uint32 {
	switch f {
	case Plain:
		return versionPlain
	case Compressed:
		return versionCompressed
	case CompressedWithVectors:
		return versionCompressedWithVectors
	default:
		return versionPlain
	}
}

// sortPrefix sorts the first min(mLevel, len(ids)) elements of ids
// ascending in place, leaving any remainder in its original relative
// order, per spec.md §4.2's write algorithm.
func sortPrefix(ids []uint32, mLevel int) {
	n := mLevel
	if n > len(ids) {
		n = len(ids)
	}
	if n <= 1 {
		return
	}

	prefix := ids[:n]
	sort.Slice(prefix, func(i, j int) bool { return prefix[i] < prefix[j] })
}

func writeBody(f *os.File, h Header, format Format, reindex []uint32, pointLevelStart, levelOffsets []uint64, neighborLists [][]uint32, vecSrc VectorSource) error {
	headerBuf := make([]byte, headerSize)
	encodeHeader(headerBuf, h, codec.LE)
	if _, err := f.Write(headerBuf); err != nil {
		return err
	}

	var chunkSize, bitWidth int
	if format != Plain {
		chunkSize = defaultChunkSize
		bitWidth = bitWidthFor(flattenAll(neighborLists))

		params := make([]byte, compressedParamsSize)
		codec.LE.PutUint32(params[0:4], uint32(chunkSize))
		codec.LE.PutUint32(params[4:8], uint32(bitWidth))
		if _, err := f.Write(params); err != nil {
			return err
		}
	}

	reindexBuf := make([]byte, len(reindex)*4)
	for i, v := range reindex {
		codec.LE.PutUint32(reindexBuf[i*4:i*4+4], v)
	}
	if _, err := f.Write(reindexBuf); err != nil {
		return err
	}

	plsBuf := make([]byte, len(pointLevelStart)*8)
	for i, v := range pointLevelStart {
		codec.LE.PutUint64(plsBuf[i*8:i*8+8], v)
	}
	if _, err := f.Write(plsBuf); err != nil {
		return err
	}

	if h.OffsetsPadding > 0 {
		if _, err := f.Write(make([]byte, h.OffsetsPadding)); err != nil {
			return err
		}
	}

	loBuf := make([]byte, len(levelOffsets)*8)
	for i, v := range levelOffsets {
		codec.LE.PutUint64(loBuf[i*8:i*8+8], v)
	}
	if _, err := f.Write(loBuf); err != nil {
		return err
	}

	if format == Plain {
		ids := flattenAll(neighborLists)
		idBuf := make([]byte, len(ids)*4)
		for i, id := range ids {
			codec.LE.PutUint32(idBuf[i*4:i*4+4], id)
		}
		_, err := f.Write(idBuf)

		return wrapVectorsIfNeeded(f, err, format, neighborLists, vecSrc, h)
	}

	// Compressed / CompressedWithVectors: byte-offset table, then packed payload.
	byteOffsets := make([]uint64, len(levelOffsets))
	var cursor uint64
	for i, ids := range neighborLists {
		byteOffsets[i] = cursor
		cursor += uint64(chunkedPackedSize(len(ids), chunkSize, bitWidth))
	}
	byteOffsets[len(byteOffsets)-1] = cursor

	boBuf := make([]byte, len(byteOffsets)*8)
	for i, v := range byteOffsets {
		codec.LE.PutUint64(boBuf[i*8:i*8+8], v)
	}
	if _, err := f.Write(boBuf); err != nil {
		return err
	}

	packed := make([]byte, cursor)
	var off int
	for _, ids := range neighborLists {
		n := encodeChunked(packed[off:], ids, chunkSize, bitWidth, codec.LE)
		off += n
	}
	if _, err := f.Write(packed); err != nil {
		return err
	}

	return wrapVectorsIfNeeded(f, nil, format, neighborLists, vecSrc, h)
}

func wrapVectorsIfNeeded(f *os.File, priorErr error, format Format, neighborLists [][]uint32, vecSrc VectorSource, h Header) error {
	if priorErr != nil {
		return priorErr
	}
	if format != CompressedWithVectors {
		return nil
	}

	for p := uint64(0); p < h.PointsCount; p++ {
		if _, err := f.Write(vecSrc.BaseVector(uint32(p))); err != nil {
			return err
		}
	}

	for _, ids := range neighborLists {
		for _, id := range ids {
			if _, err := f.Write(vecSrc.LinkVector(id)); err != nil {
				return err
			}
		}
	}

	return nil
}

func flattenAll(lists [][]uint32) []uint32 {
	var total int
	for _, l := range lists {
		total += len(l)
	}

	out := make([]uint32, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}

	return out
}

// Open loads a GraphLinksStore, trying the LE interpretation first and
// falling back to a big-endian legacy decode if the LE header fails
// structural validation, per spec.md §4.2's load algorithm.
func Open(path string, opts OpenOptions) (*Store, error) {
	vecSrc, compat := opts.VecSrc, opts.Compat

	m, err := mmapfile.Open(path, mmapfile.ReadOnly, 0)
	if err != nil {
		return nil, fmt.Errorf("graphlinks: open %s: %w", path, err)
	}

	data := m.Bytes()
	if len(data) < headerSize {
		m.Close()

		return nil, corerrs.NewStructuralError("graphlinks", "file_size", len(data), "shorter than header")
	}

	leHeader := decodeHeader(data, codec.LE)
	if leErr := validateHeader(leHeader); leErr == nil {
		s, err := decodeBody(data, leHeader, codec.LE, vecSrc)
		if err != nil {
			m.Close()

			return nil, err
		}
		s.m = m
		s.path = path
		recordFormatCounter(compat, s.format, isLegacyVersion(leHeader.Version), false)

		return s, nil
	}

	beHeader := decodeHeader(data, codec.BE)
	if beErr := validateHeader(beHeader); beErr != nil {
		m.Close()

		return nil, corerrs.NewHeaderError("graphlinks", "header", "invalid under LE and BE", "valid V_P/V_C/V_C_L/V_CV/V_CV_L header")
	}

	s, err := decodeBody(data, beHeader, codec.BE, vecSrc)
	if err != nil {
		m.Close()

		return nil, err
	}
	s.m = m
	s.path = path
	slog.Info("graphlinks: decoded big-endian legacy fallback", "path", path, "format", s.format)
	recordFormatCounter(compat, s.format, isLegacyVersion(beHeader.Version), true)

	return s, nil
}

func recordFormatCounter(compat *telemetry.Compat, format Format, legacy, beFallback bool) {
	if compat == nil {
		return
	}

	switch format {
	case Plain:
		compat.HNSWGraphLinksPlain.Inc()
		if beFallback {
			compat.GraphLinksPlainBEFallbackLoads.Inc()
		}
	case Compressed:
		if legacy {
			compat.HNSWGraphLinksCompressedLegacy.Inc()
		} else {
			compat.HNSWGraphLinksCompressed.Inc()
		}
		if beFallback {
			compat.GraphLinksCompressedBEFallbackLoads.Inc()
		}
	case CompressedWithVectors:
		if legacy {
			compat.HNSWGraphLinksCompressedWithVectorsLegacy.Inc()
		} else {
			compat.HNSWGraphLinksCompressedWithVectors.Inc()
		}
		if beFallback {
			compat.GraphLinksCompressedWithVectorsBEFallbackLoads.Inc()
		}
	}
}

func decodeBody(data []byte, h Header, eng codec.Engine, vecSrc VectorSource) (*Store, error) {
	format := formatForVersion(h.Version)

	off := headerSize

	var chunkSize, bitWidth int
	if format != Plain {
		if len(data) < off+compressedParamsSize {
			return nil, corerrs.NewStructuralError("graphlinks", "compressed_params", nil, "file too short for chunk/bitWidth params")
		}
		chunkSize = int(eng.Uint32(data[off : off+4]))
		bitWidth = int(eng.Uint32(data[off+4 : off+8]))
		off += compressedParamsSize
	}

	reindexLen := int(h.PointsCount) * 4
	if len(data) < off+reindexLen {
		return nil, corerrs.NewStructuralError("graphlinks", "reindex", nil, "file too short for reindex table")
	}
	off += reindexLen // reindex table itself is not needed by the read-side accessors

	plsLen := int(h.PointsCount+1) * 8
	if len(data) < off+plsLen {
		return nil, corerrs.NewStructuralError("graphlinks", "point_level_start", nil, "file too short for per-point level starts")
	}
	pointLevelStart := make([]uint64, h.PointsCount+1)
	for i := range pointLevelStart {
		pointLevelStart[i] = eng.Uint64(data[off+i*8 : off+i*8+8])
	}
	off += plsLen

	off += int(h.OffsetsPadding)

	loLen := int(h.TotalOffsetsCount) * 8
	if len(data) < off+loLen {
		return nil, corerrs.NewStructuralError("graphlinks", "level_offsets", nil, "file too short for level offsets")
	}
	levelOffsets := make([]uint64, h.TotalOffsetsCount)
	for i := range levelOffsets {
		levelOffsets[i] = eng.Uint64(data[off+i*8 : off+i*8+8])
	}
	off += loLen

	neighborLists := make([][]uint32, h.LevelsCount)

	if format == Plain {
		idsLen := int(h.TotalNeighborsCount) * 4
		if len(data) < off+idsLen {
			return nil, corerrs.NewStructuralError("graphlinks", "neighbor_ids", nil, "file too short for neighbor id payload")
		}
		for i := uint64(0); i < h.LevelsCount; i++ {
			start, end := levelOffsets[i], levelOffsets[i+1]
			ids := make([]uint32, end-start)
			for j := range ids {
				p := off + int(start+uint64(j))*4
				ids[j] = eng.Uint32(data[p : p+4])
			}
			neighborLists[i] = ids
		}
		off += idsLen

		s := &Store{header: h, format: format, pointLevelStart: pointLevelStart, neighborLists: neighborLists}

		return s, nil
	}

	boLen := int(h.TotalOffsetsCount) * 8
	if len(data) < off+boLen {
		return nil, corerrs.NewStructuralError("graphlinks", "byte_offsets", nil, "file too short for byte offsets")
	}
	byteOffsets := make([]uint64, h.TotalOffsetsCount)
	for i := range byteOffsets {
		byteOffsets[i] = eng.Uint64(data[off+i*8 : off+i*8+8])
	}
	off += boLen

	packedLen := int(byteOffsets[len(byteOffsets)-1])
	if len(data) < off+packedLen {
		return nil, corerrs.NewStructuralError("graphlinks", "packed_payload", nil, "file too short for packed neighbor payload")
	}
	packed := data[off : off+packedLen]
	off += packedLen

	for i := uint64(0); i < h.LevelsCount; i++ {
		n := int(levelOffsets[i+1] - levelOffsets[i])
		bs, be := byteOffsets[i], byteOffsets[i+1]
		neighborLists[i] = decodeChunked(packed[bs:be], n, chunkSize, bitWidth, eng)
	}

	s := &Store{header: h, format: format, pointLevelStart: pointLevelStart, neighborLists: neighborLists}

	if format == CompressedWithVectors {
		if vecSrc == nil {
			return nil, fmt.Errorf("graphlinks: CompressedWithVectors requires a non-nil VectorSource to size vector regions")
		}
		layout := vecSrc.Layout()

		baseLen := int(h.PointsCount) * layout.BaseVectorBytes
		if len(data) < off+baseLen {
			return nil, corerrs.NewStructuralError("graphlinks", "base_vectors", nil, "file too short for base vector region")
		}
		s.baseVectors = make([][]byte, h.PointsCount)
		for p := uint64(0); p < h.PointsCount; p++ {
			start := off + int(p)*layout.BaseVectorBytes
			s.baseVectors[p] = data[start : start+layout.BaseVectorBytes]
		}
		off += baseLen

		linkLen := int(h.TotalNeighborsCount) * layout.LinkVectorBytes
		if len(data) < off+linkLen {
			return nil, corerrs.NewStructuralError("graphlinks", "link_vectors", nil, "file too short for link vector region")
		}
		s.linkVectors = make([][]byte, h.TotalNeighborsCount)
		idx := 0
		for i := uint64(0); i < h.LevelsCount; i++ {
			n := int(levelOffsets[i+1] - levelOffsets[i])
			for j := 0; j < n; j++ {
				start := off + idx*layout.LinkVectorBytes
				s.linkVectors[idx] = data[start : start+layout.LinkVectorBytes]
				idx++
			}
		}
	}

	return s, nil
}

// PointsCount returns the number of points the store has level entries for.
func (s *Store) PointsCount() int { return int(s.header.PointsCount) }

// Format reports which of the three on-disk layouts this store was opened as.
func (s *Store) Format() Format { return s.format }

// NeighborsAt returns the neighbor id list for pointID at level. It
// returns an error if pointID or level is out of range.
func (s *Store) NeighborsAt(pointID uint32, level int) ([]uint32, error) {
	if uint64(pointID) >= s.header.PointsCount {
		return nil, fmt.Errorf("graphlinks: point id %d out of range (have %d)", pointID, s.header.PointsCount)
	}

	start := s.pointLevelStart[pointID]
	end := s.pointLevelStart[pointID+1]
	levelsForPoint := int(end - start)

	if level < 0 || level >= levelsForPoint {
		return nil, fmt.Errorf("graphlinks: point %d has no level %d (has %d levels)", pointID, level, levelsForPoint)
	}

	return s.neighborLists[start+uint64(level)], nil
}

// BaseVector returns pointID's base vector bytes; only valid for a store
// opened in CompressedWithVectors format.
func (s *Store) BaseVector(pointID uint32) ([]byte, error) {
	if s.format != CompressedWithVectors {
		return nil, fmt.Errorf("graphlinks: BaseVector requires CompressedWithVectors, store is %v", s.format)
	}
	if uint64(pointID) >= s.header.PointsCount {
		return nil, fmt.Errorf("graphlinks: point id %d out of range", pointID)
	}

	return s.baseVectors[pointID], nil
}

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

// Close releases the underlying mapping.
func (s *Store) Close() error { return s.m.Close() }
