package sstable

import (
	"hash/fnv"
	"math"
)

// BloomFilter is a probabilistic membership filter over table keys. It is
// rebuilt from the row index when a table is opened, never persisted.
type BloomFilter struct {
	bits      []bool
	size      uint32
	hashCount int
}

func NewBloomFilter(expectedItems uint32, falsePositiveRate float64) *BloomFilter {
	size := optimalSize(expectedItems, falsePositiveRate)
	return &BloomFilter{
		bits:      make([]bool, size),
		size:      size,
		hashCount: optimalHashCount(expectedItems, size),
	}
}

// Add adds a key to the bloom filter.
func (bf *BloomFilter) Add(key []byte) {
	for i := 0; i < bf.hashCount; i++ {
		bf.bits[bf.index(key, i)] = true
	}
}

// MayContain reports whether key might be present. False means definitely
// absent.
func (bf *BloomFilter) MayContain(key []byte) bool {
	for i := 0; i < bf.hashCount; i++ {
		if !bf.bits[bf.index(key, i)] {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) index(key []byte, salt int) uint32 {
	h := fnv.New32a()
	h.Write(key)
	h.Write([]byte{byte(salt)})
	return h.Sum32() % bf.size
}

// optimalSize computes m = -n*ln(p) / ln(2)^2.
func optimalSize(expectedItems uint32, falsePositiveRate float64) uint32 {
	if expectedItems == 0 {
		return 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := -float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	if m < 1 {
		m = 1
	}
	return uint32(math.Ceil(m))
}

// optimalHashCount computes k = (m/n) * ln(2), clamped to [1, 10].
func optimalHashCount(expectedItems, size uint32) int {
	if expectedItems == 0 {
		return 1
	}

	k := int(float64(size) / float64(expectedItems) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}
	return k
}
