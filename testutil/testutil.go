// Package testutil holds small generators and byte-level helpers shared by
// the core's package test files, grounded on the same plain-function
// (no *testing.T parameter) shape as the teacher pack's own
// store/testutil packages.
package testutil

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

// NewCompat builds a telemetry.Compat against an isolated registry, so
// concurrent package tests never collide on prometheus's default
// registerer.
func NewCompat() *telemetry.Compat {
	return telemetry.New(prometheus.NewRegistry())
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}

	return b
}

// U128 is a 128-bit value held as two 64-bit words, used by the sparse
// index's XOR-popcount fuzz oracle (spec.md §8 scenario 6).
type U128 [2]uint64

// RandomU128Pairs generates n random (U128, U128) pairs for the
// XOR-popcount byte-swap invariance property.
func RandomU128Pairs(n int) [][2]U128 {
	out := make([][2]U128, n)
	for i := range out {
		buf := RandomBytes(32)
		out[i][0] = U128{binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])}
		out[i][1] = U128{binary.LittleEndian.Uint64(buf[16:24]), binary.LittleEndian.Uint64(buf[24:32])}
	}

	return out
}

// XORPopcount computes the Hamming weight of a XOR b across both words.
func XORPopcount(a, b U128) int {
	var n int
	n += popcount64(a[0] ^ b[0])
	n += popcount64(a[1] ^ b[1])

	return n
}

func popcount64(v uint64) int {
	var n int
	for v != 0 {
		v &= v - 1
		n++
	}

	return n
}

// ByteSwapWord reverses every byte of an 8-byte word in place, used to
// flip a U128's words between LE and BE interpretation.
func ByteSwapWord(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}

	return binary.LittleEndian.Uint64(b[:])
}

// ByteSwapU128 byte-swaps every word of v, the operation spec.md §8
// scenario 6 applies to "both sides" before reasserting XOR-popcount
// equality.
func ByteSwapU128(v U128) U128 {
	return U128{ByteSwapWord(v[0]), ByteSwapWord(v[1])}
}

// ReverseBytes reverses b in place and returns it: a generic byte-swap
// helper. The core's legacy-BE fixture writers do not call it; they encode
// with binary.BigEndian / codec.BE directly.
func ReverseBytes(b []byte) []byte {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}

	return b
}
