// Package bloomfilter implements a probabilistic set-membership filter
// backed by a bit array from github.com/bits-and-blooms/bitset.
//
// Filter never produces a false negative: if a key was inserted, MightContain
// always reports it as present. It may produce false positives at a rate
// controlled by the parameters passed to New.
package bloomfilter

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"

	"lsmkv/internal/errs"
)

const (
	// fnvOffsetBasisAlt seeds the second of the two FNV-1a passes double
	// hashing draws its hash positions from. Using a different offset basis
	// than the standard one (rather than deriving h2 from h1) keeps the two
	// hashes independent.
	fnvOffsetBasisAlt uint64 = 12345678901234567890
	fnvPrime64        uint64 = 1099511628211
	headerSizeBytes          = 12
	minBits                  = 1
	maxHashes                = 16
)

// Filter is a Bloom filter: a bit array of m bits tested/set by k
// independent-looking hash positions derived from two 64-bit seeded hashes
// via double hashing.
type Filter struct {
	bits   *bitset.BitSet
	m      uint32 // number of bits
	k      uint32 // number of hash functions
	c      uint32 // number of items inserted
}

// New creates a Filter sized for expectedItems entries at the target false
// positive probability fpp. expectedItems is clamped up to at least 1; fpp
// must lie in (0, 1).
func New(expectedItems int, fpp float64) *Filter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	n := float64(expectedItems)

	ln2 := math.Ln2
	m := uint32(math.Ceil(-n * math.Log(fpp) / (ln2 * ln2)))
	if m < minBits {
		m = minBits
	}

	k := uint32(math.Round((float64(m) / n) * ln2))
	if k < 1 {
		k = 1
	}
	if k > maxHashes {
		k = maxHashes
	}

	return &Filter{
		bits: bitset.New(uint(m)),
		m:    m,
		k:    k,
		c:    0,
	}
}

// WithParams creates an empty Filter with an explicit bit-array size and
// hash count, used when deserializing or rebuilding a filter whose
// parameters are already known.
func WithParams(numBits, numHashes uint32) *Filter {
	if numBits < minBits {
		numBits = minBits
	}
	if numHashes < 1 {
		numHashes = 1
	}
	if numHashes > maxHashes {
		numHashes = maxHashes
	}
	return &Filter{
		bits: bitset.New(uint(numBits)),
		m:    numBits,
		k:    numHashes,
	}
}

// hashPair computes the two independent 64-bit FNV-1a hashes double hashing
// draws its hash positions from. h1 is the standard FNV-1a-64 hash; h2 runs
// the same algorithm seeded from a different offset basis, forced odd so it
// can never be zero (which would collapse every hash position to h1). The
// hash identity is part of the on-disk contract: filter files are not
// portable across implementations that pick a different hash family.
func hashPair(key []byte) (h1, h2 uint64) {
	f1 := fnv.New64a()
	f1.Write(key)
	h1 = f1.Sum64()

	h2 = fnv1aVariant(key) | 1
	return h1, h2
}

// fnv1aVariant runs the FNV-1a algorithm with a non-standard offset basis,
// giving a hash independent of the standard-basis hash computed via
// hash/fnv for the same key.
func fnv1aVariant(key []byte) uint64 {
	hash := fnvOffsetBasisAlt
	for _, b := range key {
		hash ^= uint64(b)
		hash *= fnvPrime64
	}
	return hash
}

func (f *Filter) index(h1, h2 uint64, i uint32) uint {
	combined := h1 + uint64(i)*h2
	return uint(combined % uint64(f.m))
}

// Insert adds key to the filter, setting all k of its bit positions.
func (f *Filter) Insert(key []byte) {
	h1, h2 := hashPair(key)
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(f.index(h1, h2, i))
	}
	f.c++
}

// MightContain reports whether key is possibly in the set. A false answer
// is definitive; a true answer may be a false positive.
func (f *Filter) MightContain(key []byte) bool {
	h1, h2 := hashPair(key)
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Test(f.index(h1, h2, i)) {
			return false
		}
	}
	return true
}

// EstimatedFPP returns the filter's current estimated false positive
// probability: (1 - e^(-kc/m))^k.
func (f *Filter) EstimatedFPP() float64 {
	if f.c == 0 {
		return 0
	}
	k := float64(f.k)
	c := float64(f.c)
	m := float64(f.m)
	probBitZero := math.Exp(-k * c / m)
	return math.Pow(1-probBitZero, k)
}

// Len returns the number of items inserted.
func (f *Filter) Len() uint32 { return f.c }

// IsEmpty reports whether no items have been inserted.
func (f *Filter) IsEmpty() bool { return f.c == 0 }

// NumBits returns m, the size of the bit array.
func (f *Filter) NumBits() uint32 { return f.m }

// NumHashes returns k, the number of hash functions.
func (f *Filter) NumHashes() uint32 { return f.k }

// BitsSet returns how many of the m bits are currently set, used for
// fill-ratio statistics.
func (f *Filter) BitsSet() uint32 {
	count := uint32(0)
	for i := uint(0); i < uint(f.m); i++ {
		if f.bits.Test(i) {
			count++
		}
	}
	return count
}

// Stats summarizes a Filter's parameters and effectiveness for display or
// monitoring purposes.
type Stats struct {
	NumBits      uint32
	NumHashes    uint32
	NumItems     uint32
	SizeBytes    int
	BitsSet      uint32
	FillRatio    float64
	EstimatedFPP float64
}

// Stats computes a point-in-time statistics snapshot.
func (f *Filter) Stats() Stats {
	bitsSet := f.BitsSet()
	return Stats{
		NumBits:      f.m,
		NumHashes:    f.k,
		NumItems:     f.c,
		SizeBytes:    byteLen(f.m),
		BitsSet:      bitsSet,
		FillRatio:    float64(bitsSet) / float64(f.m),
		EstimatedFPP: f.EstimatedFPP(),
	}
}

func byteLen(numBits uint32) int {
	return int((numBits + 7) / 8)
}

// WriteTo serializes the filter per the on-disk format:
//
//	num_bits   u32 LE
//	num_hashes u32 LE
//	num_items  u32 LE
//	bit_array  ceil(m/8) bytes, bit i at byte i/8, bit i%8, LSB-first
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	header := make([]byte, headerSizeBytes)
	binary.LittleEndian.PutUint32(header[0:4], f.m)
	binary.LittleEndian.PutUint32(header[4:8], f.k)
	binary.LittleEndian.PutUint32(header[8:12], f.c)

	n, err := w.Write(header)
	if err != nil {
		return int64(n), fmt.Errorf("bloomfilter: write header: %w", err)
	}
	written := int64(n)

	body := make([]byte, byteLen(f.m))
	for i := uint(0); i < uint(f.m); i++ {
		if f.bits.Test(i) {
			body[i/8] |= 1 << (i % 8)
		}
	}
	bn, err := w.Write(body)
	if err != nil {
		return written + int64(bn), fmt.Errorf("bloomfilter: write bits: %w", err)
	}
	return written + int64(bn), nil
}

// ReadFrom deserializes a Filter previously written by WriteTo.
func ReadFrom(r io.Reader) (*Filter, error) {
	header := make([]byte, headerSizeBytes)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("bloomfilter: read header: %w: %w", errs.ErrCorruptedFile, err)
	}

	m := binary.LittleEndian.Uint32(header[0:4])
	k := binary.LittleEndian.Uint32(header[4:8])
	c := binary.LittleEndian.Uint32(header[8:12])

	body := make([]byte, byteLen(m))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("bloomfilter: read bits: %w: %w", errs.ErrCorruptedFile, err)
	}

	f := WithParams(m, k)
	f.c = c
	for i := uint(0); i < uint(m); i++ {
		if body[i/8]&(1<<(i%8)) != 0 {
			f.bits.Set(i)
		}
	}
	return f, nil
}
