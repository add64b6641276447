package sparseindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

func samplePostings() []Posting {
	ids := make([]uint32, 300)
	weights := make([]float64, 300)
	for i := range ids {
		ids[i] = uint32(i * 3)
		weights[i] = float64(i) * 0.5
	}

	return []Posting{
		{DimensionID: 0, RecordIDs: ids, Weights: weights},
		{DimensionID: 1, RecordIDs: []uint32{5, 1, 9}, Weights: []float64{1.5, 2.5, 3.5}},
	}
}

func TestWriteOpenF32RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.f32")

	postings := samplePostings()
	require.NoError(t, Write(path, postings, Options{Kind: WeightF32}))

	s, err := Open(path, Options{Kind: WeightF32, PostingCount: len(postings)})
	require.NoError(t, err)
	defer s.Close()

	ids, weights, err := s.Posting(0)
	require.NoError(t, err)
	require.Len(t, ids, 300)
	require.Equal(t, uint32(0), ids[0])
	require.Equal(t, uint32(897), ids[299])
	require.InDelta(t, 0.0, weights[0], 1e-6)
	require.InDelta(t, 149.5, weights[299], 1e-6)

	ids1, weights1, err := s.Posting(1)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 5, 9}, ids1)
	require.InDeltaSlice(t, []float64{2.5, 1.5, 3.5}, weights1, 1e-6)
}

func TestWriteOpenQuantizedU8RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.qu8")

	params := Params{Min: 0, Diff256: 10}
	postings := []Posting{
		{DimensionID: 0, RecordIDs: []uint32{0, 1, 2}, Weights: []float64{0, 5, 10}, Params: params},
	}
	require.NoError(t, Write(path, postings, Options{Kind: WeightQuantizedU8}))

	s, err := Open(path, Options{Kind: WeightQuantizedU8, PostingCount: len(postings)})
	require.NoError(t, err)
	defer s.Close()

	ids, weights, err := s.Posting(0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 2}, ids)
	require.InDeltaSlice(t, []float64{0, 5, 10}, weights, 0.05)
}

func TestWriteOpenF16RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.f16")

	postings := []Posting{
		{DimensionID: 0, RecordIDs: []uint32{3, 1, 2}, Weights: []float64{-2.5, 0.25, 1.0}},
	}
	require.NoError(t, Write(path, postings, Options{Kind: WeightF16}))

	s, err := Open(path, Options{Kind: WeightF16, PostingCount: len(postings)})
	require.NoError(t, err)
	defer s.Close()

	ids, weights, err := s.Posting(0)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, ids)
	require.InDeltaSlice(t, []float64{0.25, 1.0, -2.5}, weights, 1e-3)
}

func TestOpenRejectsBoundaryViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.sparse")

	hdrEntrySize := headerEntrySize(WeightU8)
	buf := make([]byte, hdrEntrySize*1)
	h := PostingHeader{IDsStart: 0, LastID: 5, IDsLen: 1000, ChunksCount: 0}
	encodeHeaderEntry(buf, h, WeightU8)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := Open(path, Options{Kind: WeightU8, PostingCount: 1})
	require.Error(t, err)
}

func TestOpenMigratesLegacyFilename(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "sparse.u8")
	legacy := canonical + legacySuffix

	postings := []Posting{{DimensionID: 0, RecordIDs: []uint32{0, 1}, Weights: []float64{3, 4}}}
	require.NoError(t, Write(legacy, postings, Options{Kind: WeightU8}))

	compat := telemetry.New(nil)
	s, err := Open(canonical, Options{Kind: WeightU8, PostingCount: len(postings), Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(1), compat.SparseLegacyFilenameMigrations.Load())

	ids, weights, err := s.Posting(0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, ids)
	require.InDeltaSlice(t, []float64{3, 4}, weights, 1e-6)
}

func TestImmutableStoreRejectsMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.u8")

	postings := []Posting{{DimensionID: 0, RecordIDs: []uint32{0}, Weights: []float64{1}}}
	require.NoError(t, Write(path, postings, Options{Kind: WeightU8}))

	s, err := Open(path, Options{Kind: WeightU8, PostingCount: len(postings)})
	require.NoError(t, err)
	defer s.Close()

	require.Error(t, s.Upsert(Posting{}))
	require.Error(t, s.Remove(0))
}
