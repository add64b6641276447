// Package graphlinks implements the GraphLinksStore format (spec.md §4.2):
// HNSW graph topology persisted as Plain, Compressed, or
// CompressedWithVectors, with header-versioned legacy big-endian fallback.
package graphlinks

import (
	"github.com/xDarkicex/libravdb-core/internal/telemetry"
)

// Format selects which of the three coexisting on-disk layouts a store
// uses, matching spec.md §4.2's "three formats coexist".
type Format int

const (
	Plain Format = iota
	Compressed
	CompressedWithVectors
)

// Version markers, reusing the constants already defined on the
// compatibility-telemetry descriptor so the header's version field and the
// counter that tracks it can never drift apart.
const (
	versionPlain                  = telemetry.GraphLinksVersionPlain
	versionCompressed             = telemetry.GraphLinksVersionCompressed
	versionCompressedLegacy       = telemetry.GraphLinksVersionCompressedLegacy
	versionCompressedWithVectors  = telemetry.GraphLinksVersionCompressedWithVectors
	versionCompressedWithVecsLeg  = telemetry.GraphLinksVersionCompressedWithVectorsLE
)

// headerSize is the fixed encoded size of Header: four u64 fields plus two
// u32 fields, matching spec.md §4.2's "fixed-size struct containing: point
// count, levels count, total neighbors count, total offsets count, offsets
// padding, and a version marker".
const headerSize = 8*4 + 4*2

// Header is the fixed-size GraphLinksStore header.
type Header struct {
	PointsCount         uint64
	LevelsCount         uint64 // sum over points of (max_level + 1)
	TotalNeighborsCount uint64
	TotalOffsetsCount   uint64 // LevelsCount + 1, a flat prefix-sum array
	OffsetsPadding      uint32
	Version             uint32
}

// VectorLayout is the capability an injected collaborator declares for
// CompressedWithVectors: the byte size and alignment of a single base or
// link vector, so the serializer/loader can size the interleaved regions
// without knowing the concrete element type (spec.md §4.2: "Base and link
// vector layouts (size and alignment) are declared by an injected
// capability").
type VectorLayout struct {
	BaseVectorBytes int
	LinkVectorBytes int
	Alignment       int
}

// VectorSource is the collaborator CompressedWithVectors queries for the
// raw bytes of a point's base vector and a neighbor's link vector. The
// write path queries base vectors sequentially (by point, in ascending
// order) and link vectors randomly (spec.md §4.2: "queries the vectors
// collaborator sequentially for base vectors and randomly for link
// vectors") — both are exposed here as plain random-access methods; the
// writer enforces the access order itself, the source need not care.
type VectorSource interface {
	Layout() VectorLayout
	BaseVector(pointID uint32) []byte
	LinkVector(neighborID uint32) []byte
}

// Edges is the writer's input shape: edges[point][level] is the neighbor
// id list for that point at that level, matching spec.md §4.2's
// `edges: Vec<Vec<Vec<PointOffset>>>`.
type Edges [][][]uint32
