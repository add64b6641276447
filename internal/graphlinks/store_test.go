package graphlinks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/libravdb-core/codec"
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

func sampleEdges() Edges {
	return Edges{
		{{1, 2, 3}, {2}},
		{{0, 2}},
		{{0, 1, 5, 4}},
	}
}

func TestWriteOpenPlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.plain")

	compat := telemetry.New(nil)
	err := Write(path, sampleEdges(), WriteOptions{Format: Plain, MLevel: 2, Compat: compat})
	require.NoError(t, err)

	s, err := Open(path, OpenOptions{Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, Plain, s.Format())
	require.Equal(t, uint64(1), compat.HNSWGraphLinksPlain.Load())

	ids, err := s.NeighborsAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, ids) // mLevel=2 sorts only the first 2

	ids, err = s.NeighborsAt(2, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 5, 4}, ids) // sorted prefix, unsorted tail preserved

	_, err = s.NeighborsAt(0, 5)
	require.Error(t, err)
}

func TestWriteOpenCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.compressed")

	compat := telemetry.New(nil)
	err := Write(path, sampleEdges(), WriteOptions{Format: Compressed, MLevel: 4, Compat: compat})
	require.NoError(t, err)

	s, err := Open(path, OpenOptions{Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, Compressed, s.Format())
	require.Equal(t, uint64(1), compat.HNSWGraphLinksCompressed.Load())

	ids, err := s.NeighborsAt(1, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 2}, ids)
}

type fakeVectorSource struct {
	layout VectorLayout
	base   map[uint32][]byte
	link   map[uint32][]byte
}

func (f *fakeVectorSource) Layout() VectorLayout           { return f.layout }
func (f *fakeVectorSource) BaseVector(id uint32) []byte    { return f.base[id] }
func (f *fakeVectorSource) LinkVector(id uint32) []byte    { return f.link[id] }

func TestWriteOpenCompressedWithVectorsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.cv")

	edges := sampleEdges()

	src := &fakeVectorSource{
		layout: VectorLayout{BaseVectorBytes: 4, LinkVectorBytes: 4, Alignment: 4},
		base:   map[uint32][]byte{0: {1, 1, 1, 1}, 1: {2, 2, 2, 2}, 2: {3, 3, 3, 3}},
		link:   map[uint32][]byte{0: {9, 9, 9, 9}, 1: {8, 8, 8, 8}, 2: {7, 7, 7, 7}, 3: {6, 6, 6, 6}, 4: {5, 5, 5, 5}, 5: {4, 4, 4, 4}},
	}

	compat := telemetry.New(nil)
	err := Write(path, edges, WriteOptions{Format: CompressedWithVectors, MLevel: 4, VecSrc: src, Compat: compat})
	require.NoError(t, err)

	s, err := Open(path, OpenOptions{VecSrc: src, Compat: compat})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, CompressedWithVectors, s.Format())

	bv, err := s.BaseVector(1)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 2, 2, 2}, bv)

	ids, err := s.NeighborsAt(2, 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 4, 5}, ids)
}

func TestOpenRejectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.links")

	buf := make([]byte, headerSize)
	codec.LE.PutUint64(buf[0:8], 3)
	codec.LE.PutUint64(buf[8:16], 0) // levels_count=0 but points_count>0: invalid under both LE and BE
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := Open(path, OpenOptions{})
	require.Error(t, err)
}
