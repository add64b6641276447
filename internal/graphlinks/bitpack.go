package graphlinks

// defaultChunkSize is the fixed block width used to bit-pack neighbor ids
// in the Compressed and CompressedWithVectors formats (spec.md §4.2: "a
// fixed block width"). Ids beyond the last full chunk are stored as raw
// u32 LE ids, matching "tail remainders as raw ids".
const defaultChunkSize = 32

// bitWidthFor returns the number of bits needed to represent every id in
// ids, at least 1 and at most 32.
func bitWidthFor(ids []uint32) int {
	var max uint32
	for _, id := range ids {
		if id > max {
			max = id
		}
	}

	width := 1
	for (uint64(1) << uint(width)) <= uint64(max) {
		width++
	}

	return width
}

// packChunk bit-packs exactly chunkSize ids (each < 2^bitWidth) into a
// byte slice, LSB-first within each id and byte.
func packChunk(ids []uint32, bitWidth int) []byte {
	totalBits := len(ids) * bitWidth
	out := make([]byte, (totalBits+7)/8)

	bitPos := 0
	for _, id := range ids {
		for b := 0; b < bitWidth; b++ {
			if id&(1<<uint(b)) != 0 {
				out[bitPos/8] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}

	return out
}

// unpackChunk decodes count ids of bitWidth bits each from a packed byte
// slice.
func unpackChunk(packed []byte, count, bitWidth int) []uint32 {
	out := make([]uint32, count)

	bitPos := 0
	for i := 0; i < count; i++ {
		var v uint32
		for b := 0; b < bitWidth; b++ {
			byteIdx := bitPos / 8
			if byteIdx < len(packed) && packed[byteIdx]&(1<<uint(bitPos%8)) != 0 {
				v |= 1 << uint(b)
			}
			bitPos++
		}
		out[i] = v
	}

	return out
}

// chunkedPackedSize returns the packed byte length for encoding n ids at
// the given chunk size and bit width: full chunks bit-packed, the tail
// stored as raw little-endian u32s.
func chunkedPackedSize(n, chunkSize, bitWidth int) int {
	fullChunks := n / chunkSize
	tail := n % chunkSize

	packedBytesPerChunk := (chunkSize*bitWidth + 7) / 8

	return fullChunks*packedBytesPerChunk + tail*4
}

// encodeChunked packs ids into dst using the chunk/tail scheme: full
// chunks bit-packed at bitWidth, the remainder appended as raw LE u32s.
func encodeChunked(dst []byte, ids []uint32, chunkSize, bitWidth int, eng interface {
	PutUint32([]byte, uint32)
}) int {
	off := 0
	fullChunks := len(ids) / chunkSize

	for c := 0; c < fullChunks; c++ {
		chunk := ids[c*chunkSize : (c+1)*chunkSize]
		packed := packChunk(chunk, bitWidth)
		off += copy(dst[off:], packed)
	}

	for _, id := range ids[fullChunks*chunkSize:] {
		eng.PutUint32(dst[off:off+4], id)
		off += 4
	}

	return off
}

// decodeChunked is encodeChunked's inverse.
func decodeChunked(src []byte, n, chunkSize, bitWidth int, eng interface {
	Uint32([]byte) uint32
}) []uint32 {
	out := make([]uint32, 0, n)
	fullChunks := n / chunkSize
	packedBytesPerChunk := (chunkSize*bitWidth + 7) / 8

	off := 0
	for c := 0; c < fullChunks; c++ {
		chunk := unpackChunk(src[off:off+packedBytesPerChunk], chunkSize, bitWidth)
		out = append(out, chunk...)
		off += packedBytesPerChunk
	}

	tail := n % chunkSize
	for i := 0; i < tail; i++ {
		out = append(out, eng.Uint32(src[off:off+4]))
		off += 4
	}

	return out
}
