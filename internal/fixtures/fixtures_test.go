package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/libravdb-core/internal/densevec"
	"github.com/xDarkicex/libravdb-core/internal/graphlinks"
	"github.com/xDarkicex/libravdb-core/internal/pointvalues"
	"github.com/xDarkicex/libravdb-core/internal/sparseindex"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
	"github.com/xDarkicex/libravdb-core/internal/textindex"
)

// TestMatrixBuildsEveryCase verifies every fixture case builds without
// error, names a non-empty component/format, and leaves its file on disk.
func TestMatrixBuildsEveryCase(t *testing.T) {
	for _, c := range Matrix() {
		c := c
		t.Run(c.Name, func(t *testing.T) {
			dir := t.TempDir()
			compat := telemetry.New(prometheus.NewRegistry())

			path, err := c.Build(dir, compat)
			require.NoError(t, err)
			require.NotEmpty(t, c.Component)
			require.NotEmpty(t, c.FormatVersion)

			statPath := path
			if c.Name == "sparseindex-legacy-filename-migration" {
				// This case leaves the canonical path empty; its file sits
				// at path+".legacy" until sparseindex.Open migrates it.
				_, canonErr := os.Stat(path)
				require.True(t, os.IsNotExist(canonErr))
				statPath = path + ".legacy"
			}

			_, statErr := os.Stat(statPath)
			require.NoError(t, statErr)
		})
	}
}

func TestDenseVecSmokeFixtureLoads(t *testing.T) {
	dir := t.TempDir()
	path, err := buildDenseVecSmoke(dir, telemetry.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "data", string(raw[0:4]))

	delPath := filepath.Join(dir, "vectors.drop")
	s, err := densevec.Open(path, delPath, densevec.Options[float32]{Dim: 2, Codec: densevec.Float32Codec()})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.GetVector(1, densevec.Random)
	require.NoError(t, err)
	require.Equal(t, []float32{3.0, 4.0}, v)
}

func TestGraphLinksPlainFixtureLoads(t *testing.T) {
	dir := t.TempDir()
	compat := telemetry.New(prometheus.NewRegistry())
	path, err := buildGraphLinksPlain(dir, compat)
	require.NoError(t, err)

	s, err := graphlinks.Open(path, graphlinks.OpenOptions{Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, graphlinks.Plain, s.Format())
}

func TestGraphLinksLegacyBEFixtureMigrates(t *testing.T) {
	dir := t.TempDir()
	compat := telemetry.New(prometheus.NewRegistry())
	path, err := buildGraphLinksLegacyBE(dir, compat)
	require.NoError(t, err)

	s, err := graphlinks.Open(path, graphlinks.OpenOptions{Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(1), compat.GraphLinksPlainBEFallbackLoads.Load())

	ids, err := s.NeighborsAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, ids)

	ids, err = s.NeighborsAt(1, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, ids)
}

func TestPointValuesLegacyBEFixtureMigrates(t *testing.T) {
	dir := t.TempDir()
	path, err := buildPointValuesLegacyBE(dir, nil)
	require.NoError(t, err)

	compat := telemetry.New(prometheus.NewRegistry())
	s, err := pointvalues.Open(path, pointvalues.Options{Kind: pointvalues.KindString, Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(1), compat.PointToValuesMigrations.Load())

	vals, err := s.GetValues(0)
	require.NoError(t, err)
	require.Equal(t, []pointvalues.Value{
		{Kind: pointvalues.KindString, Str: "ab"},
		{Kind: pointvalues.KindString, Str: "c"},
	}, vals)

	vals, err = s.GetValues(1)
	require.NoError(t, err)
	require.Equal(t, []pointvalues.Value{{Kind: pointvalues.KindString, Str: "xyz"}}, vals)
}

func TestCountsLegacyFixtureMigrates(t *testing.T) {
	dir := t.TempDir()
	path, err := buildCountsLegacy(dir, nil)
	require.NoError(t, err)

	compat := telemetry.New(prometheus.NewRegistry())
	c, err := textindex.OpenCounts(path, textindex.Options{Compat: compat})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, uint64(1), compat.TextCountsLegacyMigrations.Load())
	require.Equal(t, uint32(65535), c.Get(6))
}

func TestSparseIndexLegacyFilenameFixtureMigrates(t *testing.T) {
	dir := t.TempDir()
	compat := telemetry.New(prometheus.NewRegistry())
	path, err := buildSparseIndexLegacyFilename(dir, compat)
	require.NoError(t, err)

	s, err := sparseindex.Open(path, sparseindex.Options{Kind: sparseindex.WeightU8, PostingCount: 1, Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint64(1), compat.SparseLegacyFilenameMigrations.Load())

	ids, weights, err := s.Posting(0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, ids)
	require.InDeltaSlice(t, []float64{1, 2}, weights, 1e-6)
}
