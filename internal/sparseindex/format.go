// Package sparseindex implements the SparseInvertedIndex format (spec.md
// §4.6): a per-dimension header table plus bit-packed posting payloads
// with optional quantized weights. The persisted form is immutable;
// upsert/remove fail loudly (spec.md §4.6 "Mutability").
package sparseindex

import (
	"math"

	"github.com/xDarkicex/libravdb-core/codec"
)

// WeightKind selects the weight encoding, matching spec.md §9's "tagged-
// variant handler table with one path per concrete weight" guidance:
// rather than a Go generic type parameter per weight (which would need a
// fake float16 numeric type to unify with float32/uint8), each kind gets
// an encode/decode pair operating on a canonical float64 plus an optional
// per-dimension Params block.
type WeightKind int

const (
	WeightF32 WeightKind = iota
	WeightF16
	WeightU8
	WeightQuantizedU8
)

// BlockLen is the fixed chunk size named in spec.md §4.6 ("BLOCK_LEN is a
// fixed bit-packing constant (typically 128)").
const BlockLen = 128

func weightSize(kind WeightKind) int {
	switch kind {
	case WeightF32:
		return 4
	case WeightF16:
		return 2
	case WeightU8, WeightQuantizedU8:
		return 1
	default:
		return 0
	}
}

func paramsSize(kind WeightKind) int {
	if kind == WeightQuantizedU8 {
		return 8
	}

	return 0
}

// Params is W::Params: the empty unit for f32/f16/u8 weights, and
// (min, diff256) for quantized-u8 (spec.md §4.6).
type Params struct {
	Min     float32
	Diff256 float32
}

func encodeParams(dst []byte, kind WeightKind, p Params) {
	if kind != WeightQuantizedU8 {
		return
	}

	codec.LE.PutUint32(dst[0:4], math.Float32bits(p.Min))
	codec.LE.PutUint32(dst[4:8], math.Float32bits(p.Diff256))
}

func decodeParams(src []byte, kind WeightKind) Params {
	if kind != WeightQuantizedU8 {
		return Params{}
	}

	return Params{
		Min:     math.Float32frombits(codec.LE.Uint32(src[0:4])),
		Diff256: math.Float32frombits(codec.LE.Uint32(src[4:8])),
	}
}

// PostingHeader is one dimension's header-table entry (spec.md §4.6).
type PostingHeader struct {
	IDsStart    uint64
	LastID      uint32
	IDsLen      uint32
	ChunksCount uint32
	Params      Params
}

func headerEntrySize(kind WeightKind) int { return 20 + paramsSize(kind) }

func encodeHeaderEntry(dst []byte, h PostingHeader, kind WeightKind) {
	codec.LE.PutUint64(dst[0:8], h.IDsStart)
	codec.LE.PutUint32(dst[8:12], h.LastID)
	codec.LE.PutUint32(dst[12:16], h.IDsLen)
	codec.LE.PutUint32(dst[16:20], h.ChunksCount)
	encodeParams(dst[20:], kind, h.Params)
}

func decodeHeaderEntry(src []byte, kind WeightKind) PostingHeader {
	return PostingHeader{
		IDsStart:    codec.LE.Uint64(src[0:8]),
		LastID:      codec.LE.Uint32(src[8:12]),
		IDsLen:      codec.LE.Uint32(src[12:16]),
		ChunksCount: codec.LE.Uint32(src[16:20]),
		Params:      decodeParams(src[20:], kind),
	}
}

// chunkSize is sizeof(initial u32 + offset u32 + weights[BlockLen]).
func chunkSize(kind WeightKind) int { return 8 + BlockLen*weightSize(kind) }

// elementSize is sizeof(GenericPostingElement<W>) = record_id u32 + weight.
func elementSize(kind WeightKind) int { return 4 + weightSize(kind) }
