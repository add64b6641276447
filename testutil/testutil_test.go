package testutil

import "testing"

// TestXORPopcountInvariantUnderByteSwap covers spec.md §8 scenario 6: XOR
// popcount of two u128 words is invariant under simultaneous byte-swap of
// both sides, the fuzz oracle the sparse index's SIMD scoring path relies
// on.
func TestXORPopcountInvariantUnderByteSwap(t *testing.T) {
	for _, pair := range RandomU128Pairs(1024) {
		want := XORPopcount(pair[0], pair[1])
		got := XORPopcount(ByteSwapU128(pair[0]), ByteSwapU128(pair[1]))
		if got != want {
			t.Fatalf("popcount changed under byte-swap: want %d got %d", want, got)
		}
	}
}
