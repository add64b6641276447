// Package fixtures is the golden fixture matrix named in spec.md §1
// ("stable external contracts (fixture matrices...)") and supplied by
// original_source/'s s390x_snapshot_fixture_matrix.rs: a table of
// {component, format-version, source-endianness} cells this core commits
// to keep loadable. Matrix() builds each cell's file under a caller-given
// directory and returns a case the caller can Open and Verify.
package fixtures

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/xDarkicex/libravdb-core/internal/densevec"
	"github.com/xDarkicex/libravdb-core/internal/graphlinks"
	"github.com/xDarkicex/libravdb-core/internal/pointvalues"
	"github.com/xDarkicex/libravdb-core/internal/sparseindex"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
	"github.com/xDarkicex/libravdb-core/internal/textindex"
)

// FixtureCase is one cell of the matrix: a named, buildable golden file
// plus the metadata spec.md §1 says the matrix must expose (component,
// format version, source endianness).
type FixtureCase struct {
	Name             string
	Component        string // "densevec" | "graphlinks" | "pointvalues" | "textindex" | "sparseindex"
	FormatVersion    string
	SourceEndianness string // "le" | "be-legacy" ("be-legacy" marks every cell that exercises a legacy-migration path)

	// Build writes the fixture's file(s) under dir and returns the path to
	// pass to the component's Open. It uses the real Create/Write path for
	// "le" cases and for the sparse legacy-filename case (canonical bytes
	// under a legacy name; nothing exists at the returned path until Open
	// migrates path+".legacy"), and hand-crafted bytes (mirroring a foreign
	// legacy writer) for the other "be-legacy" cases — the same shape each
	// component's own _test.go legacy-fixture writer already uses. The
	// counts case is written in the host's native byte order.
	Build func(dir string, compat *telemetry.Compat) (path string, err error)
}

// Matrix enumerates spec.md §8's scenarios 1-6 plus the legacy-BE variants
// of C2 (graph links), C5 (counts), and C6 (sparse index filename
// migration) that those components' Open paths accept.
func Matrix() []FixtureCase {
	return []FixtureCase{
		{
			Name: "densevec-f32-smoke", Component: "densevec",
			FormatVersion: "data-v1", SourceEndianness: "le",
			Build: buildDenseVecSmoke,
		},
		{
			Name: "graphlinks-plain-header-versioning", Component: "graphlinks",
			FormatVersion: "V_P", SourceEndianness: "le",
			Build: buildGraphLinksPlain,
		},
		{
			Name: "graphlinks-legacy-be-fallback", Component: "graphlinks",
			FormatVersion: "V_P", SourceEndianness: "be-legacy",
			Build: buildGraphLinksLegacyBE,
		},
		{
			Name: "pointvalues-string-legacy-be-migration", Component: "pointvalues",
			FormatVersion: "ranges-v1", SourceEndianness: "be-legacy",
			Build: buildPointValuesLegacyBE,
		},
		{
			Name: "textindex-counts-legacy-migration", Component: "textindex",
			FormatVersion: "pttc-v1", SourceEndianness: "be-legacy",
			Build: buildCountsLegacy,
		},
		{
			Name: "sparseindex-legacy-filename-migration", Component: "sparseindex",
			FormatVersion: "header-table-v1", SourceEndianness: "be-legacy",
			Build: buildSparseIndexLegacyFilename,
		},
	}
}

// buildDenseVecSmoke mirrors spec.md §8 scenario 1.
func buildDenseVecSmoke(dir string, compat *telemetry.Compat) (string, error) {
	vecPath := filepath.Join(dir, "vectors.data")
	delPath := filepath.Join(dir, "vectors.drop")

	_, err := densevec.Create(vecPath, delPath, [][]float32{{1.0, 2.0}, {3.0, 4.0}},
		densevec.Options[float32]{Dim: 2, Codec: densevec.Float32Codec(), Compat: compat})

	return vecPath, err
}

// buildGraphLinksPlain mirrors spec.md §8 scenario 2: edges = [[[1]],
// [[0]]] in plain format.
func buildGraphLinksPlain(dir string, compat *telemetry.Compat) (string, error) {
	path := filepath.Join(dir, "graph.plain")
	edges := graphlinks.Edges{{{1}}, {{0}}}

	err := graphlinks.Write(path, edges, graphlinks.WriteOptions{Format: graphlinks.Plain, MLevel: 16, Compat: compat})

	return path, err
}

// buildGraphLinksLegacyBE mirrors spec.md §8 scenario 3: a crafted plain
// file with header fields and payload u32s in big-endian, encoding
// edges = [[[1]], [[0]]] (point 0 -> neighbor 1, point 1 -> neighbor 0).
func buildGraphLinksLegacyBE(dir string, _ *telemetry.Compat) (string, error) {
	path := filepath.Join(dir, "graph.legacy-be")

	// header: points_count=2, levels_count=2 (one level list per point),
	// total_neighbors_count=2, total_offsets_count=levels_count+1=3,
	// offsets_padding=0, version=V_P (0), all BE.
	header := make([]byte, 40)
	binary.BigEndian.PutUint64(header[0:8], 2)
	binary.BigEndian.PutUint64(header[8:16], 2)
	binary.BigEndian.PutUint64(header[16:24], 2)
	binary.BigEndian.PutUint64(header[24:32], 3)
	binary.BigEndian.PutUint32(header[32:36], 0)
	binary.BigEndian.PutUint32(header[36:40], uint32(telemetry.GraphLinksVersionPlain))

	// reindex[2] u32 BE: identity.
	reindex := make([]byte, 8)
	binary.BigEndian.PutUint32(reindex[0:4], 0)
	binary.BigEndian.PutUint32(reindex[4:8], 1)

	// pointLevelStart[3] u64 BE: point 0's level list starts at
	// neighborLists index 0, point 1's at index 1, sentinel 2.
	pls := make([]byte, 24)
	binary.BigEndian.PutUint64(pls[0:8], 0)
	binary.BigEndian.PutUint64(pls[8:16], 1)
	binary.BigEndian.PutUint64(pls[16:24], 2)

	// levelOffsets[3] u64 BE: neighbor list 0 (point 0, level 0) starts at
	// payload offset 0, list 1 (point 1, level 0) at offset 1, sentinel end
	// at 2.
	lo := make([]byte, 24)
	binary.BigEndian.PutUint64(lo[0:8], 0)
	binary.BigEndian.PutUint64(lo[8:16], 1)
	binary.BigEndian.PutUint64(lo[16:24], 2)

	// Neighbor payload: list 0 -> [1], list 1 -> [0], raw u32 BE.
	neighbors := make([]byte, 8)
	binary.BigEndian.PutUint32(neighbors[0:4], 1)
	binary.BigEndian.PutUint32(neighbors[4:8], 0)

	var body []byte
	body = append(body, header...)
	body = append(body, reindex...)
	body = append(body, pls...)
	body = append(body, lo...)
	body = append(body, neighbors...)

	return path, os.WriteFile(path, body, 0o644)
}

// buildPointValuesLegacyBE mirrors spec.md §8 scenario 4.
func buildPointValuesLegacyBE(dir string, _ *telemetry.Compat) (string, error) {
	path := filepath.Join(dir, "values.legacy-be")

	p0 := []pointvalues.Value{
		{Kind: pointvalues.KindString, Str: "ab"},
		{Kind: pointvalues.KindString, Str: "c"},
	}
	p1 := []pointvalues.Value{{Kind: pointvalues.KindString, Str: "xyz"}}

	const valuesBase = 4096 + 2*16 // rangesStart + pointsCount*rangeRecSize

	var valuesBuf []byte
	ranges := make([][2]uint64, 2)
	cursor := uint64(valuesBase)

	for i, pts := range [][]pointvalues.Value{p0, p1} {
		start := cursor
		for _, v := range pts {
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, uint32(len(v.Str)))
			valuesBuf = append(valuesBuf, lenBuf...)
			valuesBuf = append(valuesBuf, v.Str...)
			cursor += uint64(4 + len(v.Str))
		}
		ranges[i] = [2]uint64{start, uint64(len(pts))}
	}

	header := make([]byte, 16)
	binary.BigEndian.PutUint64(header[0:8], 4096)
	binary.BigEndian.PutUint64(header[8:16], 2)

	rangeTable := make([]byte, 32)
	for i, r := range ranges {
		binary.BigEndian.PutUint64(rangeTable[i*16:i*16+8], r[0])
		binary.BigEndian.PutUint64(rangeTable[i*16+8:i*16+16], r[1])
	}

	body := make([]byte, 4096)
	copy(body, header)
	body = append(body, rangeTable...) // range table at ranges_start
	body = append(body, valuesBuf...)

	return path, os.WriteFile(path, body, 0o644)
}

// buildCountsLegacy mirrors spec.md §8 scenario 5.
func buildCountsLegacy(dir string, _ *telemetry.Compat) (string, error) {
	path := filepath.Join(dir, "counts.legacy")

	values := []uint64{0, 1, 5, 42, 255, 1024, 65535}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.NativeEndian.PutUint64(buf[i*8:i*8+8], v)
	}

	return path, os.WriteFile(path, buf, 0o644)
}

// buildSparseIndexLegacyFilename exercises C6's legacy-filename migration
// path: writes a canonical LE file at path+".legacy" with nothing at the
// canonical path.
func buildSparseIndexLegacyFilename(dir string, compat *telemetry.Compat) (string, error) {
	canonical := filepath.Join(dir, "sparse.index")
	legacy := canonical + ".legacy"

	postings := []sparseindex.Posting{
		{DimensionID: 0, RecordIDs: []uint32{0, 1}, Weights: []float64{1, 2}},
	}

	if err := sparseindex.Write(legacy, postings, sparseindex.Options{Kind: sparseindex.WeightU8, Compat: compat}); err != nil {
		return "", err
	}

	return canonical, nil
}
