package textindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, n int) *Index {
	t.Helper()

	dir := t.TempDir()
	counts, err := CreateCounts(filepath.Join(dir, "counts.pttc"), make([]uint32, n), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { counts.Close() })

	return New(counts)
}

func TestAllTokensIntersection(t *testing.T) {
	ix := newTestIndex(t, 5)
	ix.AddToken("quick", []uint32{0, 1, 2}, nil)
	ix.AddToken("fox", []uint32{1, 2, 3}, nil)

	got, err := ix.Query(AllTokens, []string{"quick", "fox"})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, got)
}

func TestAnyTokensUnion(t *testing.T) {
	ix := newTestIndex(t, 5)
	ix.AddToken("quick", []uint32{0, 1}, nil)
	ix.AddToken("lazy", []uint32{3, 4}, nil)

	got, err := ix.Query(AnyTokens, []string{"quick", "lazy"})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 3, 4}, got)
}

func TestQuerySkipsDeletedPoints(t *testing.T) {
	ix := newTestIndex(t, 5)
	ix.AddToken("quick", []uint32{0, 1, 2}, nil)

	require.True(t, ix.Remove(1))
	require.False(t, ix.Remove(1)) // already removed: no transition

	got, err := ix.Query(AllTokens, []string{"quick"})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 2}, got)
	require.Equal(t, uint64(4), ix.ActiveCount())
}

func TestPhraseMatchRequiresPositionalPostings(t *testing.T) {
	ix := newTestIndex(t, 3)
	ix.AddToken("quick", []uint32{0}, nil) // non-positional

	got, err := ix.Query(Phrase, []string{"quick"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPhraseMatchFindsConsecutivePositions(t *testing.T) {
	ix := newTestIndex(t, 3)
	ix.AddToken("quick", []uint32{0, 1}, map[uint32][]uint32{0: {0}, 1: {5}})
	ix.AddToken("brown", []uint32{0, 1}, map[uint32][]uint32{0: {1}, 1: {9}})

	got, err := ix.Query(Phrase, []string{"quick", "brown"})
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, got)
}
