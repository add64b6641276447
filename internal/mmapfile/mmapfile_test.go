package mmapfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	f, err := Open(path, ReadWrite, 4096)
	require.NoError(t, err)

	copy(f.Bytes(), []byte("hello"))
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), raw[:5])
}

func TestOpenReadOnlyRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bin"), ReadOnly, 0)
	require.Error(t, err)
}

func TestRefcountedClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	f, err := Open(path, ReadWrite, 4096)
	require.NoError(t, err)

	f.Acquire()
	require.NoError(t, f.Close()) // refs: 2 -> 1, still mapped
	require.Equal(t, 4096, f.Len())
	require.NoError(t, f.Close()) // refs: 1 -> 0, unmapped
}

func TestAtomicWriteLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	err := AtomicWrite(path, func(f *os.File) error {
		_, werr := f.Write([]byte("payload"))

		return werr
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(raw))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestAtomicWriteCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	boom := require.New(t)
	err := AtomicWrite(path, func(f *os.File) error {
		return os.ErrInvalid
	})
	boom.Error(err)

	_, statErr := os.Stat(path)
	boom.True(os.IsNotExist(statErr))

	_, statErr = os.Stat(path + ".tmp")
	boom.True(os.IsNotExist(statErr))
}

func TestPopulateDoesNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	f, err := Open(path, ReadWrite, 8192)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Populate())
}
