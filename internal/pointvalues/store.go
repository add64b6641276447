// Package pointvalues implements the PointToValuesStore format (spec.md
// §4.4): a flattened ragged array mapping point_id -> a variable-length
// sequence of values, with a one-shot in-place migration path for files
// written by a legacy big-endian host.
package pointvalues

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/xDarkicex/libravdb-core/codec"
	"github.com/xDarkicex/libravdb-core/corerrs"
	"github.com/xDarkicex/libravdb-core/internal/mmapfile"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

const (
	rangesStart  = 4096 // padded header region, matches C4's fixed ranges_start
	headerSize   = 16   // ranges_start u64 LE + points_count u64 LE
	rangeRecSize = 16   // start u64 LE + count u64 LE
)

// Store is a PointToValuesStore: point_id -> []Value, backed by a single
// mmapped file laid out as [header][range table][value payload].
type Store struct {
	kind   ValueKind
	ranges []rangeRecord // one per point_id, length == points_count
	m      *mmapfile.File
	path   string
	compat *telemetry.Compat
}

type rangeRecord struct {
	start uint64
	count uint64
}

// Options configures Create/Open for a point-to-values store, matching the
// teacher's typed-options pattern (HNSWConfig/IVFPQConfig in
// internal/index/interfaces.go).
type Options struct {
	Kind   ValueKind
	Compat *telemetry.Compat
}

// Validate eagerly checks Options, mirroring the teacher's
// QuantizationConfig.Validate() pattern.
func (o Options) Validate() error {
	if o.Kind < KindInt || o.Kind > KindString {
		return corerrs.NewStructuralError("pointvalues", "kind", o.Kind, "unknown value kind")
	}

	return nil
}

// Create builds a new store file for the given per-point value sequences
// and opens it, mirroring the Rust from_iter algorithm: header, then one
// range record per point, then the concatenated encoded values.
func Create(path string, perPoint [][]Value, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	kind, compat := opts.Kind, opts.Compat

	pointsCount := uint64(len(perPoint))

	rangesSize := pointsCount * rangeRecSize
	valuesBase := uint64(rangesStart) + rangesSize

	ranges := make([]rangeRecord, pointsCount)
	var valuesSize uint64
	for i, vals := range perPoint {
		// start is an absolute file offset, matching how GetValues and
		// migrateLegacyBEInPlace index directly into the mmap.
		ranges[i] = rangeRecord{start: valuesBase + valuesSize, count: uint64(len(vals))}
		for _, v := range vals {
			valuesSize += uint64(v.EncodedSize())
		}
	}

	err := mmapfile.AtomicWrite(path, func(f *os.File) error {
		header := make([]byte, rangesStart)
		codec.LE.PutUint64(header[0:8], uint64(rangesStart))
		codec.LE.PutUint64(header[8:16], pointsCount)
		if _, err := f.Write(header); err != nil {
			return err
		}

		rangeBuf := make([]byte, rangesSize)
		for i, r := range ranges {
			off := i * rangeRecSize
			codec.LE.PutUint64(rangeBuf[off:off+8], r.start)
			codec.LE.PutUint64(rangeBuf[off+8:off+16], r.count)
		}
		if _, err := f.Write(rangeBuf); err != nil {
			return err
		}

		valBuf := make([]byte, 0, valuesSize)
		for _, vals := range perPoint {
			for _, v := range vals {
				valBuf = v.Encode(valBuf)
			}
		}

		_, err := f.Write(valBuf)

		return err
	})
	if err != nil {
		return nil, err
	}

	return Open(path, Options{Kind: kind, Compat: compat})
}

// Open loads an existing store file. It tries the canonical LE header
// first; if that fails structural validation it retries under BE, and if
// the BE interpretation validates, migrates the file in place before
// proceeding — mirroring the Rust open/migrate_legacy_be_in_place pair.
func Open(path string, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	kind, compat := opts.Kind, opts.Compat

	m, err := mmapfile.Open(path, mmapfile.ReadWrite, 0)
	if err != nil {
		return nil, fmt.Errorf("pointvalues: open %s: %w", path, err)
	}

	data := m.Bytes()
	if len(data) < headerSize {
		m.Close()

		return nil, corerrs.NewStructuralError("pointvalues", "file_size", len(data), "shorter than header")
	}

	if ok, ranges := tryParse(data, codec.LE); ok {
		return finishOpen(m, path, kind, ranges, compat)
	}

	if ok, _ := tryParse(data, codec.BE); ok {
		if err := migrateLegacyBEInPlace(data, kind); err != nil {
			m.Close()

			return nil, err
		}
		if err := m.Flush(); err != nil {
			m.Close()

			return nil, err
		}
		if compat != nil {
			compat.PointToValuesMigrations.Inc()
		}
		slog.Info("pointvalues: migrated big-endian legacy file in place", "path", path)

		ok, ranges := tryParse(data, codec.LE)
		if !ok {
			m.Close()

			return nil, corerrs.NewStructuralError("pointvalues", "ranges_start", rangesStart, "still invalid after BE migration")
		}

		return finishOpen(m, path, kind, ranges, compat)
	}

	m.Close()

	return nil, corerrs.NewHeaderError("pointvalues", "ranges_start", "neither", rangesStart)
}

// tryParse validates the header under the given engine and, if it checks
// out, decodes the range table. It never touches the value payload.
func tryParse(data []byte, eng codec.Engine) (bool, []rangeRecord) {
	if len(data) < headerSize {
		return false, nil
	}

	gotRangesStart := eng.Uint64(data[0:8])
	if gotRangesStart != rangesStart {
		return false, nil
	}

	pointsCount := eng.Uint64(data[8:16])
	tableEnd := rangesStart + pointsCount*rangeRecSize
	if uint64(len(data)) < tableEnd {
		return false, nil
	}

	ranges := make([]rangeRecord, pointsCount)
	for i := uint64(0); i < pointsCount; i++ {
		off := rangesStart + i*rangeRecSize
		ranges[i] = rangeRecord{
			start: eng.Uint64(data[off : off+8]),
			count: eng.Uint64(data[off+8 : off+16]),
		}
	}

	return true, ranges
}

func finishOpen(m *mmapfile.File, path string, kind ValueKind, ranges []rangeRecord, compat *telemetry.Compat) (*Store, error) {
	return &Store{kind: kind, ranges: ranges, m: m, path: path, compat: compat}, nil
}

// migrateLegacyBEInPlace reverses the header's two u64 fields, then for
// each point's range record reverses that record's two u64 fields and
// byte-swaps every value in its span, exactly mirroring the Rust
// migrate_legacy_be_in_place cursor walk.
func migrateLegacyBEInPlace(data []byte, kind ValueKind) error {
	reverse(data[0:8])
	reverse(data[8:16])

	pointsCount := codec.LE.Uint64(data[8:16])

	for i := uint64(0); i < pointsCount; i++ {
		recOff := rangesStart + i*rangeRecSize

		start := codec.BE.Uint64(data[recOff : recOff+8])
		count := codec.BE.Uint64(data[recOff+8 : recOff+16])

		reverse(data[recOff : recOff+8])
		reverse(data[recOff+8 : recOff+16])

		cursor := start
		for v := uint64(0); v < count; v++ {
			if cursor >= uint64(len(data)) {
				return corerrs.NewStructuralError("pointvalues", "value_cursor", cursor, "value span runs past end of file during migration")
			}
			n := swapLegacyBEValueInPlace(kind, data[cursor:])
			cursor += uint64(n)
		}
	}

	return nil
}

// PointsCount returns the number of points the store has range records
// for.
func (s *Store) PointsCount() int { return len(s.ranges) }

// GetValues decodes and returns the value sequence for pointID. The
// returned slice is freshly decoded on every call; callers doing this in
// a hot loop should cache the result.
func (s *Store) GetValues(pointID uint64) ([]Value, error) {
	if pointID >= uint64(len(s.ranges)) {
		return nil, fmt.Errorf("pointvalues: point id %d out of range (have %d)", pointID, len(s.ranges))
	}

	r := s.ranges[pointID]
	data := s.m.Bytes()

	out := make([]Value, 0, r.count)
	cursor := r.start
	for i := uint64(0); i < r.count; i++ {
		if cursor >= uint64(len(data)) {
			return nil, corerrs.NewStructuralError("pointvalues", "value_cursor", cursor, "value span runs past end of file")
		}
		v, n := DecodeValue(s.kind, data[cursor:])
		out = append(out, v)
		cursor += uint64(n)
	}

	return out, nil
}

// Files returns the on-disk paths owned by this store (spec.md §6 files()).
func (s *Store) Files() []string { return []string{s.path} }

// ImmutableFiles returns the subset of Files never rewritten after the
// one-shot BE migration completes (spec.md §6 immutable_files()). This
// store has no further post-open in-place mutation, so it equals Files.
func (s *Store) ImmutableFiles() []string { return []string{s.path} }

// Populate touches every page of the mapping (spec.md §6 populate()).
func (s *Store) Populate() error { return s.m.Populate() }

// ClearCache advises the kernel to drop cached pages for this mapping
// (spec.md §6 clear_cache()).
func (s *Store) ClearCache() error { return s.m.DropCache() }

// Flusher returns the callable that persists this store's buffered
// mutations (spec.md §6 flusher()).
func (s *Store) Flusher() func() error { return s.m.Flush }

// Close releases the underlying mapping.
func (s *Store) Close() error { return s.m.Close() }
