package sparseindex

// Per-chunk id bit-packing, grounded on the same LSB-first scheme as
// internal/graphlinks/bitpack.go. Kept as a local copy rather than an
// exported shared helper: the two packers serve different payload shapes
// (graphlinks packs a raw neighbor-id stream with a raw-u32 tail;
// sparseindex packs full BlockLen-sized chunks only, with a record's tail
// ids carried inside GenericPostingElement records instead).
func bitWidthFor(deltas []uint32) int {
	var maxV uint32
	for _, d := range deltas {
		if d > maxV {
			maxV = d
		}
	}

	width := 0
	for maxV > 0 {
		width++
		maxV >>= 1
	}
	if width == 0 {
		width = 1
	}

	return width
}

func packedChunkBytes(bitWidth int) int { return (BlockLen*bitWidth + 7) / 8 }

// packChunk bit-packs exactly BlockLen deltas (LSB-first) into dst, which
// must be packedChunkBytes(bitWidth) long.
func packChunk(dst []byte, deltas []uint32, bitWidth int) {
	var bitPos int
	for _, d := range deltas {
		v := uint64(d)
		remaining := bitWidth
		for remaining > 0 {
			byteIdx := bitPos / 8
			bitOff := bitPos % 8
			space := 8 - bitOff
			n := remaining
			if n > space {
				n = space
			}
			mask := byte((1 << n) - 1)
			dst[byteIdx] |= byte(v&uint64(mask)) << bitOff
			v >>= uint(n)
			remaining -= n
			bitPos += n
		}
	}
}

func unpackChunk(src []byte, bitWidth int) []uint32 {
	out := make([]uint32, BlockLen)
	var bitPos int
	for i := 0; i < BlockLen; i++ {
		var v uint64
		var got int
		remaining := bitWidth
		for remaining > 0 {
			byteIdx := bitPos / 8
			bitOff := bitPos % 8
			space := 8 - bitOff
			n := remaining
			if n > space {
				n = space
			}
			mask := byte((1 << n) - 1)
			bits := (src[byteIdx] >> bitOff) & mask
			v |= uint64(bits) << uint(got)
			got += n
			remaining -= n
			bitPos += n
		}
		out[i] = uint32(v)
	}

	return out
}
