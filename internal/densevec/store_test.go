package densevec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndReopenSmoke(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	s, err := Create(vectorsPath, deletedPath, [][]float32{{1.0, 2.0}, {3.0, 4.0}}, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(vectorsPath)
	require.NoError(t, err)
	require.Equal(t, "data", string(raw[:4]))
	require.Equal(t, float32(1.0), Float32Codec().Decode(raw[4:8]))

	reopened, err := Open(vectorsPath, deletedPath, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.NoError(t, err)
	defer reopened.Close()

	vec, err := reopened.GetVector(1, Random)
	require.NoError(t, err)
	require.Equal(t, []float32{3.0, 4.0}, vec)
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	require.NoError(t, os.WriteFile(vectorsPath, []byte("da"), 0o644))

	_, err := Open(vectorsPath, deletedPath, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.Error(t, err)
}

func TestOpenRejectsMagicMismatch(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	require.NoError(t, os.WriteFile(vectorsPath, []byte("nope"), 0o644))

	_, err := Open(vectorsPath, deletedPath, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.Error(t, err)
}

func TestOpenRejectsTruncatedPayload(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	buf := []byte("data")
	enc := make([]byte, 4)
	Float32Codec().Encode(enc, 1.0)
	buf = append(buf, enc...) // half a 2-dim vector

	require.NoError(t, os.WriteFile(vectorsPath, buf, 0o644))

	_, err := Open(vectorsPath, deletedPath, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.Error(t, err)
}

func TestOpenAcceptsHeaderOnlyFile(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	require.NoError(t, os.WriteFile(vectorsPath, []byte("data"), 0o644))

	s, err := Open(vectorsPath, deletedPath, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 0, s.NumVectors())
	require.Equal(t, uint64(0), s.DeletedCount())
}

func TestDeleteTransitionsOnce(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	s, err := Create(vectorsPath, deletedPath, [][]float32{{1, 2}, {3, 4}}, Options[float32]{Dim: 2, Codec: Float32Codec()})
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Delete(0))
	require.False(t, s.Delete(0))
	require.Equal(t, uint64(1), s.DeletedCount())
	require.True(t, s.IsDeleted(0))
	require.False(t, s.IsDeleted(1))

	require.NoError(t, s.Flush())
}

func TestForEachInBatchPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	vectorsPath := filepath.Join(dir, "vectors.mmap")
	deletedPath := filepath.Join(dir, "deleted.mmap")

	s, err := Create(vectorsPath, deletedPath, [][]float32{{1}, {2}, {3}, {4}}, Options[float32]{Dim: 1, Codec: Float32Codec()})
	require.NoError(t, err)
	defer s.Close()

	var got []float32
	err = s.ForEachInBatch([]uint32{0, 1, 2, 3}, func(idx int, id uint32, vec []float32) {
		got = append(got, vec[0])
	})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, got)
}
