package kv

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// bloomFilter is a small in-memory existence filter keyed by xxhash,
// sized by bits-per-key (spec "bloom_bits_per_key"). It never produces
// false negatives; Get still confirms against bbolt, so a false positive
// only costs an extra lookup.
type bloomFilter struct {
	mu        sync.RWMutex
	bits      []uint64
	nbits     uint64
	numHashes int
}

func newBloomFilter(expectedKeys int, bitsPerKey int) *bloomFilter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	if bitsPerKey < 1 {
		bitsPerKey = 10
	}
	nbits := uint64(expectedKeys * bitsPerKey)
	if nbits < 64 {
		nbits = 64
	}
	numHashes := int(math.Round(float64(bitsPerKey) * math.Ln2))
	if numHashes < 1 {
		numHashes = 1
	}
	if numHashes > 30 {
		numHashes = 30
	}
	words := (nbits + 63) / 64
	return &bloomFilter{
		bits:      make([]uint64, words),
		nbits:     words * 64,
		numHashes: numHashes,
	}
}

func (b *bloomFilter) hashes(key []byte) (h1, h2 uint64) {
	h1 = xxhash.Sum64(key)
	h2 = xxhash.Sum64String(string(key) + "\x00salt")
	return
}

func (b *bloomFilter) Add(key []byte) {
	h1, h2 := b.hashes(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.numHashes; i++ {
		pos := (h1 + uint64(i)*h2) % b.nbits
		b.bits[pos/64] |= 1 << (pos % 64)
	}
}

// MaybeContains returns false only when the key is definitely absent.
func (b *bloomFilter) MaybeContains(key []byte) bool {
	h1, h2 := b.hashes(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := 0; i < b.numHashes; i++ {
		pos := (h1 + uint64(i)*h2) % b.nbits
		if b.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func (b *bloomFilter) Remove(key []byte) {
	// Standard bloom filters don't support removal; warrendb's filter is
	// advisory only (a miss still falls through to bbolt), so a removed
	// key simply lingers as a potential false positive until rebuild.
	_ = key
}
