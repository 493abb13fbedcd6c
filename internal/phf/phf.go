// Package phf implements the keyed hash and table construction used by
// SBSON's perfect-hash maps.
//
// The hash is SipHash-1-3 with a 128-bit result, keyed as (0, seed), and
// split into the (g, f1, f2) triple consumed by the compress-hash-displace
// scheme. Documents written by other SBSON implementations use the same
// construction, so the bit layout here is part of the wire format and must
// not change.
package phf

import (
	"encoding/binary"
	"math/bits"
	"sort"
)

// Lambda is the target bucket size of the CHD construction.
const Lambda = 5

// Hashes holds the three values derived from one key hash. G selects the
// displacement bucket; F1 and F2 are perturbed by the bucket's displacement
// pair to produce the final table index.
type Hashes struct {
	G  uint32
	F1 uint32
	F2 uint32
}

// Hash hashes key under seed. G is the upper half of the first result word,
// F1 its lower half, and F2 the lower half of the second result word.
func Hash(key []byte, seed uint64) Hashes {
	h1, h2 := siphash13128(0, seed, key)
	return Hashes{
		G:  uint32(h1 >> 32),
		F1: uint32(h1),
		F2: uint32(h2),
	}
}

// Displace perturbs a key hash with a bucket's displacement pair. All
// arithmetic wraps.
func Displace(f1, f2, d1, d2 uint32) uint32 {
	return d2 + f1*d1 + f2
}

// BucketCount returns the number of displacement buckets for a table of n
// entries.
func BucketCount(n int) int {
	return (n + Lambda - 1) / Lambda
}

// HashState is a complete CHD table description for a fixed key set.
type HashState struct {
	Seed  uint32
	Disps [][2]uint32
	// Map[slot] is the index, into the key slice given to TryGenerateHash,
	// of the key that hashes to slot.
	Map []int
}

// TryGenerateHash attempts to build a CHD table over keys with the given
// seed. It reports false when some bucket admits no displacement pair, in
// which case the caller should retry with another seed.
func TryGenerateHash(keys []string, seed uint32) (HashState, bool) {
	n := len(keys)
	hashes := make([]Hashes, n)
	for i, key := range keys {
		hashes[i] = Hash([]byte(key), uint64(seed))
	}

	bucketCount := BucketCount(n)
	type bucket struct {
		idx  int
		keys []int
	}
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].idx = i
	}
	for i, h := range hashes {
		b := int(h.G % uint32(bucketCount))
		buckets[b].keys = append(buckets[b].keys, i)
	}

	// Place the fullest buckets first; they have the fewest workable
	// displacement pairs.
	sort.SliceStable(buckets, func(i, j int) bool {
		return len(buckets[i].keys) > len(buckets[j].keys)
	})

	slots := make([]int, n)
	for i := range slots {
		slots[i] = -1
	}
	disps := make([][2]uint32, bucketCount)

	// tryMap holds the generation at which a slot was last claimed by the
	// bucket currently being placed. Bumping the generation resets all
	// in-bucket claims without clearing the slice.
	tryMap := make([]uint64, n)
	var generation uint64
	type placement struct {
		slot, key int
	}
	var toAdd []placement

nextBucket:
	for _, b := range buckets {
		for d1 := uint32(0); d1 < uint32(n); d1++ {
		nextPair:
			for d2 := uint32(0); d2 < uint32(n); d2++ {
				toAdd = toAdd[:0]
				generation++

				for _, ki := range b.keys {
					h := hashes[ki]
					slot := int(Displace(h.F1, h.F2, d1, d2) % uint32(n))
					if slots[slot] >= 0 || tryMap[slot] == generation {
						continue nextPair
					}
					tryMap[slot] = generation
					toAdd = append(toAdd, placement{slot, ki})
				}

				disps[b.idx] = [2]uint32{d1, d2}
				for _, p := range toAdd {
					slots[p.slot] = p.key
				}
				continue nextBucket
			}
		}
		return HashState{}, false
	}

	return HashState{Seed: seed, Disps: disps, Map: slots}, true
}

// siphash13128 is SipHash-1-3 with the 128-bit finalization, as specified
// by Aumasson and Bernstein. k0 and k1 are the two key words; the return
// values are the low and high result words.
func siphash13128(k0, k1 uint64, p []byte) (uint64, uint64) {
	v0 := k0 ^ 0x736f6d6570736575
	v1 := k1 ^ 0x646f72616e646f6d
	v2 := k0 ^ 0x6c7967656e657261
	v3 := k1 ^ 0x7465646279746573
	v1 ^= 0xee

	round := func(m uint64) {
		v3 ^= m
		v0 += v1
		v1 = bits.RotateLeft64(v1, 13)
		v1 ^= v0
		v0 = bits.RotateLeft64(v0, 32)
		v2 += v3
		v3 = bits.RotateLeft64(v3, 16)
		v3 ^= v2
		v0 += v3
		v3 = bits.RotateLeft64(v3, 21)
		v3 ^= v0
		v2 += v1
		v1 = bits.RotateLeft64(v1, 17)
		v1 ^= v2
		v2 = bits.RotateLeft64(v2, 32)
		v0 ^= m
	}

	n := len(p)
	for len(p) >= 8 {
		round(binary.LittleEndian.Uint64(p))
		p = p[8:]
	}
	var tail [8]byte
	copy(tail[:], p)
	tail[7] = byte(n)
	round(binary.LittleEndian.Uint64(tail[:]))

	v2 ^= 0xee
	for i := 0; i < 3; i++ {
		round(0)
	}
	h1 := v0 ^ v1 ^ v2 ^ v3

	v1 ^= 0xdd
	for i := 0; i < 3; i++ {
		round(0)
	}
	h2 := v0 ^ v1 ^ v2 ^ v3
	return h1, h2
}
