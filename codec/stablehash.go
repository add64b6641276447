package codec

import "github.com/cespare/xxhash/v2"

// StableHash is implemented by any value whose hash must be byte-for-byte
// identical across hosts and compiler versions. It mirrors the original
// Rust StableHash trait: implementations must feed the sink only the LE
// byte representation of their value and must never delegate to a
// host-provided hash (maphash, Go's map iteration hash, etc).
type StableHash interface {
	StableHash(sink func([]byte))
}

type stableU32 uint32

func (v stableU32) StableHash(sink func([]byte)) {
	var b [4]byte
	LE.PutUint32(b[:], uint32(v))
	sink(b[:])
}

type stableI32 int32

func (v stableI32) StableHash(sink func([]byte)) {
	var b [4]byte
	LE.PutUint32(b[:], uint32(v))
	sink(b[:])
}

type stableU64 uint64

func (v stableU64) StableHash(sink func([]byte)) {
	var b [8]byte
	LE.PutUint64(b[:], uint64(v))
	sink(b[:])
}

type stableUsize uint64

func (v stableUsize) StableHash(sink func([]byte)) { stableU64(v).StableHash(sink) }

// StableU32, StableI32, StableU64 and StableUsize wrap the corresponding
// scalar types so they satisfy StableHash.
func StableU32(v uint32) StableHash { return stableU32(v) }
func StableI32(v int32) StableHash  { return stableI32(v) }
func StableU64(v uint64) StableHash { return stableU64(v) }
func StableUsize(v uint64) StableHash { return stableUsize(v) }

// StablePair composes two StableHash values the way the original (A, B)
// tuple impl does: hash a, then hash b, in order.
type StablePair struct {
	A, B StableHash
}

func (p StablePair) StableHash(sink func([]byte)) {
	p.A.StableHash(sink)
	p.B.StableHash(sink)
}

// xxhashSink bridges the StableHash sink into xxhash's Digest, guaranteeing
// that only the LE byte stream produced by StableHash implementations is
// ever fed into the platform hasher — never a host-native Hash/maphash
// path, per spec.md §4.1.
type xxhashSink struct {
	d *xxhash.Digest
}

// Write satisfies the sink signature used by StableHash implementations.
func (s xxhashSink) write(b []byte) { _, _ = s.d.Write(b) }

// Sum64 computes the stable xxHash64 of v by feeding only its LE byte
// stream into a fresh xxhash digest.
func Sum64(v StableHash) uint64 {
	d := xxhash.New()
	sink := xxhashSink{d: d}
	v.StableHash(sink.write)

	return d.Sum64()
}
