// Package codec provides the primitive little-endian encode/decode helpers
// and the stable-hash abstraction shared by every on-disk store in the
// core. It is the single place that knows the host's native byte order;
// every store above it encodes and decodes through the LE (and, for legacy
// reads, BE) engines defined here, alongside the per-type ToLE*/FromLE*
// helpers, so the rest of the codebase never branches on runtime.GOARCH.
package codec

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Engine combines binary.ByteOrder and binary.AppendByteOrder, matching the
// teacher's endian.EndianEngine shape so call sites can swap LE/BE engines
// without touching surrounding code.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// LE is the canonical on-disk engine. Every store encodes with this value;
// nothing in the core ever encodes with BE — BE is read-only, reserved for
// decoding legacy files written by a big-endian host before canonicalization.
var LE Engine = binary.LittleEndian

// BE decodes legacy big-endian files during migration/fallback. It must
// never be used to write a new file.
var BE Engine = binary.BigEndian

// nativeEndian is resolved once via a runtime pointer probe, the same trick
// the teacher's endian.CheckEndianness uses, rather than a build-tag file:
// this lets a single binary run fixture tests against both interpretations
// without separate GOARCH builds.
var nativeEndian = func() binary.ByteOrder {
	var probe uint16 = 0x0100
	b := (*[2]byte)(unsafe.Pointer(&probe))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}()

// HostIsLittleEndian reports whether the running process is on a
// little-endian host.
func HostIsLittleEndian() bool { return nativeEndian == binary.LittleEndian }

// HostIsBigEndian reports whether the running process is on a big-endian
// host (s390x, ppc64, mips, ...).
func HostIsBigEndian() bool { return nativeEndian == binary.BigEndian }

// ToLEU16/FromLEU16 and friends below are the per-scalar-type pair from
// spec.md §4.1. For integers they are byte-swaps on a big-endian host and
// identity on a little-endian host; for floats they operate on the bit
// pattern. u8 has no function because both directions are identity.

func ToLEU16(v uint16) uint16 { return swap16(v) }
func FromLEU16(v uint16) uint16 { return swap16(v) }

func ToLEU32(v uint32) uint32 { return swap32(v) }
func FromLEU32(v uint32) uint32 { return swap32(v) }

func ToLEU64(v uint64) uint64 { return swap64(v) }
func FromLEU64(v uint64) uint64 { return swap64(v) }

func ToLEI32(v int32) int32 { return int32(swap32(uint32(v))) }
func FromLEI32(v int32) int32 { return int32(swap32(uint32(v))) }

func ToLEI64(v int64) int64 { return int64(swap64(uint64(v))) }
func FromLEI64(v int64) int64 { return int64(swap64(uint64(v))) }

func ToLEF32(v float32) float32 {
	return math.Float32frombits(swap32(math.Float32bits(v)))
}

func FromLEF32(v float32) float32 {
	return math.Float32frombits(swap32(math.Float32bits(v)))
}

func ToLEF64(v float64) float64 {
	return math.Float64frombits(swap64(math.Float64bits(v)))
}

func FromLEF64(v float64) float64 {
	return math.Float64frombits(swap64(math.Float64bits(v)))
}

// ToLEF16/FromLEF16 operate on the raw 16-bit IEEE-754 half-precision bit
// pattern; the core never decodes f16 to float32 at this layer, it only
// guarantees the stored 2 bytes are canonical LE.
func ToLEF16(bits uint16) uint16 { return swap16(bits) }
func FromLEF16(bits uint16) uint16 { return swap16(bits) }

func swap16(v uint16) uint16 {
	if HostIsLittleEndian() {
		return v
	}

	return v<<8 | v>>8
}

func swap32(v uint32) uint32 {
	if HostIsLittleEndian() {
		return v
	}

	return (v&0x000000FF)<<24 | (v&0x0000FF00)<<8 | (v&0x00FF0000)>>8 | (v&0xFF000000)>>24
}

func swap64(v uint64) uint64 {
	if HostIsLittleEndian() {
		return v
	}

	return (v&0x00000000000000FF)<<56 |
		(v&0x000000000000FF00)<<40 |
		(v&0x0000000000FF0000)<<24 |
		(v&0x00000000FF000000)<<8 |
		(v&0x000000FF00000000)>>8 |
		(v&0x0000FF0000000000)>>24 |
		(v&0x00FF000000000000)>>40 |
		(v&0xFF00000000000000)>>56
}
