// Package textindex implements the TextInvertedIndex format (spec.md
// §4.5): a postings file, a string->token-id vocabulary, a per-point token
// count array, and a per-point deletion bitmap.
package textindex

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
	countsMagic      = telemetry.CountsMagic // "pttc"
	countsHeaderSize = 4 + 4 + 8             // magic + version + len
)

// legacyWordSize is sizeof(usize) on the 64-bit hosts this core targets;
// spec.md §4.5 defines the legacy layout in terms of the host's native
// word width, which on every platform this module ships for is 8 bytes.
const legacyWordSize = 8

// Counts is the per-point token count array (spec.md §4.5 "counts file").
type Counts struct {
	m      *mmapfile.File
	values []uint32
	path   string
}

// Options configures CreateCounts/OpenCounts, matching the teacher's
// typed-options pattern (HNSWConfig/IVFPQConfig in
// internal/index/interfaces.go).
type Options struct {
	Compat *telemetry.Compat
}

// Validate eagerly checks Options. Counts has no required fields beyond
// the zero-value-safe Compat pointer, so this always succeeds; it exists
// for shape parity with the other stores' Options.Validate().
func (o Options) Validate() error { return nil }

// CreateCounts writes a fresh counts file in the current ("pttc") format.
func CreateCounts(path string, values []uint32, opts Options) (*Counts, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	err := mmapfile.AtomicWrite(path, func(f *os.File) error {
		buf := make([]byte, countsHeaderSize+len(values)*4)
		copy(buf[0:4], countsMagic)
		codec.LE.PutUint32(buf[4:8], telemetry.CountsFileVersion)
		codec.LE.PutUint64(buf[8:16], uint64(len(values)))
		for i, v := range values {
			codec.LE.PutUint32(buf[16+i*4:20+i*4], v)
		}

		_, werr := f.Write(buf)

		return werr
	})
	if err != nil {
		return nil, err
	}

	return OpenCounts(path, Options{Compat: opts.Compat})
}

// OpenCounts opens an existing counts file, migrating it in place first if
// it is in the legacy (magic-less, host-native usize) format.
func OpenCounts(path string, opts Options) (*Counts, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	compat := opts.Compat

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("textindex: read counts %s: %w", path, err)
	}

	if len(raw) < 4 || string(raw[0:4]) != countsMagic {
		if err := migrateLegacyCounts(path, raw, compat); err != nil {
			return nil, err
		}
	}

	m, err := mmapfile.Open(path, mmapfile.ReadWrite, 0)
	if err != nil {
		return nil, fmt.Errorf("textindex: open counts %s: %w", path, err)
	}

	values, err := parseCounts(m.Bytes())
	if err != nil {
		m.Close()

		return nil, err
	}

	return &Counts{m: m, values: values, path: path}, nil
}

func parseCounts(data []byte) ([]uint32, error) {
	if len(data) < countsHeaderSize {
		return nil, corerrs.NewStructuralError("textindex.counts", "file_size", len(data), "shorter than header")
	}
	if string(data[0:4]) != countsMagic {
		return nil, corerrs.NewHeaderError("textindex.counts", "magic", string(data[0:4]), countsMagic)
	}

	version := codec.LE.Uint32(data[4:8])
	if version != telemetry.CountsFileVersion {
		return nil, corerrs.NewHeaderError("textindex.counts", "version", version, telemetry.CountsFileVersion)
	}

	length := codec.LE.Uint64(data[8:16])
	want := countsHeaderSize + int(length)*4
	if len(data) < want {
		return nil, corerrs.NewStructuralError("textindex.counts", "len", length, "payload shorter than declared count")
	}

	values := make([]uint32, length)
	for i := range values {
		off := 16 + i*4
		values[i] = codec.LE.Uint32(data[off : off+4])
	}

	return values, nil
}

// migrateLegacyCounts implements spec.md §4.5's legacy migration, with the
// §9 REDESIGN FLAG size-check guard applied before the endianness-sampling
// heuristic: a file whose length is divisible by sizeof(u32) but not by
// sizeof(usize) is structurally ambiguous and rejected outright rather
// than guessed at.
func migrateLegacyCounts(path string, data []byte, compat *telemetry.Compat) error {
	if len(data)%legacyWordSize != 0 {
		if len(data)%4 == 0 {
			return corerrs.NewStructuralError("textindex.counts", "file_size", len(data),
				"divides evenly by sizeof(u32) but not sizeof(usize): ambiguous legacy framing, refusing to guess")
		}

		return corerrs.NewStructuralError("textindex.counts", "file_size", len(data), "not a multiple of sizeof(usize)")
	}

	wordCount := len(data) / legacyWordSize
	eng := detectLegacyEndianness(data, wordCount)

	values := make([]uint32, wordCount)
	for i := 0; i < wordCount; i++ {
		off := i * legacyWordSize
		v := eng.Uint64(data[off : off+legacyWordSize])
		if v > ^uint32(0) {
			return corerrs.NewCapacityError("textindex.counts", fmt.Sprintf("count[%d]", i), v, ^uint32(0))
		}
		values[i] = uint32(v)
	}

	err := mmapfile.AtomicWrite(path, func(f *os.File) error {
		buf := make([]byte, countsHeaderSize+len(values)*4)
		copy(buf[0:4], countsMagic)
		codec.LE.PutUint32(buf[4:8], telemetry.CountsFileVersion)
		codec.LE.PutUint64(buf[8:16], uint64(len(values)))
		for i, v := range values {
			codec.LE.PutUint32(buf[16+i*4:20+i*4], v)
		}

		_, werr := f.Write(buf)

		return werr
	})
	if err != nil {
		return err
	}

	if compat != nil {
		compat.TextCountsLegacyMigrations.Inc()
	}
	slog.Info("textindex: migrated legacy counts file in place", "path", path, "word_count", wordCount)

	return nil
}

// detectLegacyEndianness samples up to 256 words and picks the
// interpretation (LE vs BE) with fewer values exceeding u32::MAX,
// breaking ties with the smaller maximum and falling back to native
// encoding on perfect ambiguity (spec.md §4.5 step 2 and its known
// limitation noted in spec.md §9: an all-zero/ambiguous legacy file
// yields whatever the host's native order is, which can misinterpret
// the file when migrating across hosts of opposite endianness).
func detectLegacyEndianness(data []byte, wordCount int) codec.Engine {
	sample := wordCount
	if sample > 256 {
		sample = 256
	}

	var leOverflow, beOverflow int
	var leMax, beMax uint64

	for i := 0; i < sample; i++ {
		off := i * legacyWordSize
		le := codec.LE.Uint64(data[off : off+legacyWordSize])
		be := codec.BE.Uint64(data[off : off+legacyWordSize])

		if le > uint64(^uint32(0)) {
			leOverflow++
		}
		if be > uint64(^uint32(0)) {
			beOverflow++
		}
		if le > leMax {
			leMax = le
		}
		if be > beMax {
			beMax = be
		}
	}

	switch {
	case leOverflow < beOverflow:
		return codec.LE
	case beOverflow < leOverflow:
		return codec.BE
	case leMax < beMax:
		return codec.LE
	case beMax < leMax:
		return codec.BE
	default:
		if codec.HostIsBigEndian() {
			return codec.BE
		}

		return codec.LE
	}
}

// Len returns the number of points the counts array covers.
func (c *Counts) Len() int { return len(c.values) }

// Get returns the token count for pointID.
func (c *Counts) Get(pointID uint32) uint32 { return c.values[pointID] }

// Zero sets pointID's count slot to zero, used by remove() (spec.md
// §4.5 "zeroes the count slot if within bounds"). The zero is written
// through to the backing mmap region so it survives a Flush/Close.
func (c *Counts) Zero(pointID uint32) {
	if int(pointID) >= len(c.values) {
		return
	}

	c.values[pointID] = 0

	data := c.m.Bytes()
	off := countsHeaderSize + int(pointID)*4
	codec.LE.PutUint32(data[off:off+4], 0)
}

// Flush writes the counts array's modified pages back to disk.
func (c *Counts) Flush() error { return c.m.Flush() }

// Files returns the on-disk paths owned by this store (spec.md §6 files()).
func (c *Counts) Files() []string { return []string{c.path} }

// ImmutableFiles returns the subset of Files never rewritten in place
// after open (spec.md §6 immutable_files()); the counts file itself is
// excluded because Zero mutates it in place.
func (c *Counts) ImmutableFiles() []string { return nil }

// Populate touches every page of the mapping (spec.md §6 populate()).
func (c *Counts) Populate() error { return c.m.Populate() }

// ClearCache advises the kernel to drop cached pages for this mapping
// (spec.md §6 clear_cache()).
func (c *Counts) ClearCache() error { return c.m.DropCache() }

// Flusher returns the callable that persists this store's buffered
// mutations (spec.md §6 flusher()).
func (c *Counts) Flusher() func() error { return c.Flush }

// Close releases the underlying mapping.
func (c *Counts) Close() error { return c.m.Close() }
