package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripIntegers(t *testing.T) {
	require.Equal(t, uint16(0x1234), FromLEU16(ToLEU16(0x1234)))
	require.Equal(t, uint32(0xDEADBEEF), FromLEU32(ToLEU32(0xDEADBEEF)))
	require.Equal(t, uint64(0x0102030405060708), FromLEU64(ToLEU64(0x0102030405060708)))
	require.Equal(t, int32(-12345), FromLEI32(ToLEI32(-12345)))
	require.Equal(t, int64(-123456789012), FromLEI64(ToLEI64(-123456789012)))
}

func TestRoundTripFloats(t *testing.T) {
	for _, v := range []float32{0, 1.5, -3.25, 3.14159265} {
		require.Equal(t, v, FromLEF32(ToLEF32(v)))
	}

	for _, v := range []float64{0, 1.5, -3.25, 2.718281828459045} {
		require.Equal(t, v, FromLEF64(ToLEF64(v)))
	}
}

func TestRoundTripF16Bits(t *testing.T) {
	for _, bits := range []uint16{0x0000, 0x3C00, 0xC000, 0x7BFF} {
		require.Equal(t, bits, FromLEF16(ToLEF16(bits)))
	}
}

func TestHostEndiannessIsExclusive(t *testing.T) {
	require.NotEqual(t, HostIsLittleEndian(), HostIsBigEndian())
}

func TestSwapIsIdentityOnLittleEndianHost(t *testing.T) {
	if !HostIsLittleEndian() {
		t.Skip("host is big-endian; swap functions intentionally differ from identity here")
	}

	require.Equal(t, uint32(0xDEADBEEF), ToLEU32(0xDEADBEEF))
	require.Equal(t, uint64(0x0102030405060708), ToLEU64(0x0102030405060708))
}

func TestStableHashU32WritesLittleEndianBytes(t *testing.T) {
	var out []byte
	StableU32(0x01020304).StableHash(func(b []byte) { out = append(out, b...) })
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, out)
}

func TestStableHashI32WritesLittleEndianBytes(t *testing.T) {
	var out []byte
	StableI32(0x11223344).StableHash(func(b []byte) { out = append(out, b...) })
	require.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, out)
}

func TestStableHashU64WritesLittleEndianBytes(t *testing.T) {
	var out []byte
	StableU64(0x0102030405060708).StableHash(func(b []byte) { out = append(out, b...) })
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, out)
}

func TestStablePairHashesInOrder(t *testing.T) {
	var out []byte
	StablePair{A: StableU32(1), B: StableU32(2)}.StableHash(func(b []byte) { out = append(out, b...) })
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, out)
}

func TestSum64IsDeterministic(t *testing.T) {
	a := Sum64(StableU32(42))
	b := Sum64(StableU32(42))
	require.Equal(t, a, b)

	c := Sum64(StableU32(43))
	require.NotEqual(t, a, c)
}

func TestStableHashWritesExactlySizeofBytes(t *testing.T) {
	// Exercise the invariant from spec.md §8: stable_hash writes exactly
	// sizeof(v) bytes in LE order, by checking the sink byte count directly.
	var n int
	StableU32(7).StableHash(func(b []byte) { n += len(b) })
	require.Equal(t, 4, n)

	n = 0
	StableU64(7).StableHash(func(b []byte) { n += len(b) })
	require.Equal(t, 8, n)

	n = 0
	StableI32(7).StableHash(func(b []byte) { n += len(b) })
	require.Equal(t, 4, n)
}
