package sparseindex

import (
	"math"

	"github.com/xDarkicex/libravdb-core/codec"
)

// weightHandler is the per-WeightKind encode/decode pair: the "tagged-
// variant handler table" named in spec.md §9, operating on a canonical
// float64 so the Store's chunk/tail logic never branches on kind.
type weightHandler struct {
	encode func(dst []byte, v float64, p Params)
	decode func(src []byte, p Params) float64
}

var weightHandlers = map[WeightKind]weightHandler{
	WeightF32: {
		encode: func(dst []byte, v float64, _ Params) {
			codec.LE.PutUint32(dst, math.Float32bits(float32(v)))
		},
		decode: func(src []byte, _ Params) float64 {
			return float64(math.Float32frombits(codec.LE.Uint32(src)))
		},
	},
	WeightF16: {
		encode: func(dst []byte, v float64, _ Params) {
			codec.LE.PutUint16(dst, float64ToFloat16(v))
		},
		decode: func(src []byte, _ Params) float64 {
			return float16ToFloat64(codec.LE.Uint16(src))
		},
	},
	WeightU8: {
		encode: func(dst []byte, v float64, _ Params) { dst[0] = byte(v) },
		decode: func(src []byte, _ Params) float64 { return float64(src[0]) },
	},
	WeightQuantizedU8: {
		// Scalar dequantization: value = min + byte/255 * diff256, the
		// standard u8 scalar-quantization scheme used throughout the
		// teacher's internal/quant package.
		encode: func(dst []byte, v float64, p Params) {
			if p.Diff256 == 0 {
				dst[0] = 0

				return
			}
			frac := (v - float64(p.Min)) / float64(p.Diff256)
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			dst[0] = byte(frac*255 + 0.5)
		},
		decode: func(src []byte, p Params) float64 {
			return float64(p.Min) + float64(src[0])/255*float64(p.Diff256)
		},
	},
}

// float64ToFloat16 performs an IEEE-754 binary16 round-to-nearest
// conversion, sufficient for the exact/near-exact weight values sparse
// indexes typically store (similarity scores, TF-IDF-like weights).
func float64ToFloat16(v float64) uint16 {
	f32 := float32(v)
	bits := math.Float32bits(f32)

	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case (bits>>23)&0xff == 0xff: // inf/nan
		if mant != 0 {
			return sign | 0x7e00
		}

		return sign | 0x7c00
	case exp >= 0x1f: // overflow to inf
		return sign | 0x7c00
	case exp <= 0: // subnormal or zero, flush to zero
		return sign
	default:
		h := sign | uint16(exp)<<10 | uint16(mant>>13)
		// Round to nearest, ties to even; a carry out of the mantissa
		// bumps the exponent, reaching inf at the top of the range.
		if rest := mant & 0x1fff; rest > 0x1000 || (rest == 0x1000 && h&1 == 1) {
			h++
		}

		return h
	}
}

func float16ToFloat64(h uint16) float64 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0x1f:
		if mant != 0 {
			return float64(math.Float32frombits(sign | 0x7f800000 | mant<<13))
		}

		return float64(math.Float32frombits(sign | 0x7f800000))
	case exp == 0:
		// subnormal half -> normalize into float32 space
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x3ff
		bits := sign | (exp+112)<<23 | mant<<13

		return float64(math.Float32frombits(bits))
	default:
		bits := sign | (exp+112)<<23 | mant<<13

		return float64(math.Float32frombits(bits))
	}
}
