package densevec

import (
	"math"

	"github.com/xDarkicex/libravdb-core/codec"
)

// Element is the set of scalar types a DenseVectorStore can hold. u8 is
// included for scalar-quantized vector blobs; float32 is the common case.
type Element interface {
	~float32 | ~uint8
}

// Codec bundles the per-type canonical-LE encode/decode pair (spec.md
// §4.1) and the on-disk width of the element, so Store[T] never branches
// on T's concrete type at the call site — the same "dynamic dispatch over
// element/weight types via a small handler table instead of runtime
// polymorphism" shape spec.md §9 recommends for the sparse index.
type Codec[T Element] struct {
	Size   int
	Encode func(dst []byte, v T)
	Decode func(src []byte) T
}

// Float32Codec is the Codec for plain float32 dense vectors.
func Float32Codec() Codec[float32] {
	return Codec[float32]{
		Size: 4,
		Encode: func(dst []byte, v float32) {
			codec.LE.PutUint32(dst, math.Float32bits(v))
		},
		Decode: func(src []byte) float32 {
			return math.Float32frombits(codec.LE.Uint32(src))
		},
	}
}

// Uint8Codec is the Codec for scalar-quantized (u8) dense vectors. Both
// directions are identity, matching spec.md §4.1's "for u8, both are
// identity" rule.
func Uint8Codec() Codec[uint8] {
	return Codec[uint8]{
		Size: 1,
		Encode: func(dst []byte, v uint8) {
			dst[0] = v
		},
		Decode: func(src []byte) uint8 {
			return src[0]
		},
	}
}
