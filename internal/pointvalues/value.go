package pointvalues

import (
	"math"

	"github.com/google/uuid"

	"github.com/xDarkicex/libravdb-core/codec"
)

// ValueKind tags the variant stored in one point's value sequence,
// matching spec.md §4.4's `{i64, f64, u128 (uuid), (f64, f64) (geo), string}`.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindUUID
	KindGeo
	KindString
)

// Value is one element of a point's value sequence.
type Value struct {
	Kind   ValueKind
	Int    int64
	Float  float64
	UUID   uuid.UUID
	GeoLat float64
	GeoLon float64
	Str    string
}

// EncodedSize returns the number of bytes this value occupies on disk.
func (v Value) EncodedSize() int {
	switch v.Kind {
	case KindInt, KindFloat:
		return 8
	case KindUUID:
		return 16
	case KindGeo:
		return 16
	case KindString:
		return 4 + len(v.Str)
	default:
		return 0
	}
}

// Encode appends the canonical LE encoding of v to dst.
func (v Value) Encode(dst []byte) []byte {
	switch v.Kind {
	case KindInt:
		return codec.LE.AppendUint64(dst, uint64(v.Int))
	case KindFloat:
		return codec.LE.AppendUint64(dst, math.Float64bits(v.Float))
	case KindUUID:
		b := v.UUID // [16]byte, RFC 4122 order
		dst = append(dst, b[:]...)

		return dst
	case KindGeo:
		dst = codec.LE.AppendUint64(dst, math.Float64bits(v.GeoLat))
		dst = codec.LE.AppendUint64(dst, math.Float64bits(v.GeoLon))

		return dst
	case KindString:
		dst = codec.LE.AppendUint32(dst, uint32(len(v.Str)))
		dst = append(dst, v.Str...)

		return dst
	default:
		return dst
	}
}

// DecodeValue reads one value of the given kind from src, returning the
// value and the number of bytes consumed.
func DecodeValue(kind ValueKind, src []byte) (Value, int) {
	switch kind {
	case KindInt:
		return Value{Kind: KindInt, Int: int64(codec.LE.Uint64(src[:8]))}, 8
	case KindFloat:
		return Value{Kind: KindFloat, Float: math.Float64frombits(codec.LE.Uint64(src[:8]))}, 8
	case KindUUID:
		u, _ := uuid.FromBytes(src[0:16])

		return Value{Kind: KindUUID, UUID: u}, 16
	case KindGeo:
		lat := math.Float64frombits(codec.LE.Uint64(src[0:8]))
		lon := math.Float64frombits(codec.LE.Uint64(src[8:16]))

		return Value{Kind: KindGeo, GeoLat: lat, GeoLon: lon}, 16
	case KindString:
		n := codec.LE.Uint32(src[0:4])
		s := string(src[4 : 4+n])

		return Value{Kind: KindString, Str: s}, 4 + int(n)
	default:
		return Value{}, 0
	}
}

// swapLegacyBEValueInPlace is the per-type
// swap_legacy_be_value_in_place helper from spec.md §4.4: it reverses a
// fixed-width value's bytes in place (turning a BE encoding into LE, since
// byte-reversal is its own inverse) and returns the encoded size so the
// migration cursor can advance. The string variant reverses only the
// length prefix — string body bytes are UTF-8 and endianness-agnostic.
func swapLegacyBEValueInPlace(kind ValueKind, b []byte) int {
	switch kind {
	case KindInt, KindFloat:
		reverse(b[:8])

		return 8
	case KindUUID:
		reverse(b[0:16])

		return 16
	case KindGeo:
		reverse(b[0:8])
		reverse(b[8:16])

		return 16
	case KindString:
		reverse(b[0:4])
		n := codec.LE.Uint32(b[0:4])

		return 4 + int(n)
	default:
		return 0
	}
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
