package graphlinks

import (
	"github.com/xDarkicex/libravdb-core/codec"
	"github.com/xDarkicex/libravdb-core/corerrs"
)

func encodeHeader(dst []byte, h Header, eng codec.Engine) {
	eng.PutUint64(dst[0:8], h.PointsCount)
	eng.PutUint64(dst[8:16], h.LevelsCount)
	eng.PutUint64(dst[16:24], h.TotalNeighborsCount)
	eng.PutUint64(dst[24:32], h.TotalOffsetsCount)
	eng.PutUint32(dst[32:36], h.OffsetsPadding)
	eng.PutUint32(dst[36:40], h.Version)
}

func decodeHeader(src []byte, eng codec.Engine) Header {
	return Header{
		PointsCount:         eng.Uint64(src[0:8]),
		LevelsCount:         eng.Uint64(src[8:16]),
		TotalNeighborsCount: eng.Uint64(src[16:24]),
		TotalOffsetsCount:   eng.Uint64(src[24:32]),
		OffsetsPadding:      eng.Uint32(src[32:36]),
		Version:             eng.Uint32(src[36:40]),
	}
}

// validateHeader runs the structural checks spec.md §4.2 step 2 requires:
// levels_count > 0 whenever points_count > 0, total_neighbors_count and
// total_offsets_count consistent with the flat prefix-sum layout, and
// offsets_padding resolving to a sane (non-overflowing, word-aligned)
// boundary.
func validateHeader(h Header) error {
	if h.PointsCount > 0 && h.LevelsCount == 0 {
		return corerrs.NewStructuralError("graphlinks", "levels_count", h.LevelsCount, "must be > 0 when points_count > 0")
	}

	if h.TotalOffsetsCount != h.LevelsCount+1 {
		return corerrs.NewStructuralError("graphlinks", "total_offsets_count", h.TotalOffsetsCount, "must equal levels_count + 1")
	}

	if h.OffsetsPadding%8 != 0 {
		return corerrs.NewStructuralError("graphlinks", "offsets_padding", h.OffsetsPadding, "must be 8-byte aligned")
	}

	switch h.Version {
	case versionPlain, versionCompressed, versionCompressedLegacy, versionCompressedWithVectors, versionCompressedWithVecsLeg:
	default:
		return corerrs.NewHeaderError("graphlinks", "version", h.Version, "one of V_P/V_C/V_C_L/V_CV/V_CV_L")
	}

	return nil
}

func isLegacyVersion(v uint32) bool {
	return v == versionCompressedLegacy || v == versionCompressedWithVecsLeg
}

func formatForVersion(v uint32) Format {
	switch v {
	case versionPlain:
		return Plain
	case versionCompressed, versionCompressedLegacy:
		return Compressed
	case versionCompressedWithVectors, versionCompressedWithVecsLeg:
		return CompressedWithVectors
	default:
		return Plain
	}
}
