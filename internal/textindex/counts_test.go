package textindex

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

func TestCreateAndReopenCounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.pttc")

	c, err := CreateCounts(path, []uint32{1, 2, 3}, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	require.NoError(t, c.Close())

	reopened, err := OpenCounts(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint32(2), reopened.Get(1))
}

// TestLegacyCountsMigration mirrors spec.md §8 scenario 5: a counts file
// written as native-endian usize values migrates to the "pttc" format with
// the exact values and file size the spec names.
func TestLegacyCountsMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.counts")

	values := []uint64{0, 1, 5, 42, 255, 1024, 65535}
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.NativeEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	compat := telemetry.New(nil)

	c, err := OpenCounts(path, Options{Compat: compat})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, uint64(1), compat.TextCountsLegacyMigrations.Load())
	require.Equal(t, 7, c.Len())
	for i, v := range values {
		require.Equal(t, uint32(v), c.Get(uint32(i)))
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "pttc", string(raw[0:4]))
	require.Equal(t, int64(16+7*4), int64(len(raw)))
}

func TestLegacyCountsRejectsAmbiguousSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ambiguous.counts")

	// 12 bytes: divides by sizeof(u32) but not by sizeof(usize) == 8.
	require.NoError(t, os.WriteFile(path, make([]byte, 12), 0o644))

	_, err := OpenCounts(path, Options{})
	require.Error(t, err)
}

func TestLegacyCountsRejectsOverflow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overflow.counts")

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(1)<<40|1) // exceeds u32::MAX under both byte orders
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := OpenCounts(path, Options{})
	require.Error(t, err)
}

func TestZeroWritesThroughToMmap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.pttc")

	c, err := CreateCounts(path, []uint32{7, 8, 9}, Options{})
	require.NoError(t, err)
	defer c.Close()

	c.Zero(1)
	require.Equal(t, uint32(0), c.Get(1))
	require.NoError(t, c.Flush())

	reopened, err := OpenCounts(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint32(0), reopened.Get(1))
}
