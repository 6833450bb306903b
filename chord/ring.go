package chord

import (
	"encoding/binary"
	"hash"
)

// ID is a position on the ring, always in [0, 2^M).
type ID uint64

// Ring describes an identifier space of M bits and the hash used to place
// addresses on it. It holds no node state.
type Ring struct {
	bits     int
	mask     uint64
	hashFunc func() hash.Hash
}

// NewRing creates the identifier space described by the configuration.
func NewRing(conf *Config) (*Ring, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	mask := ^uint64(0)
	if conf.Bits < MaxBits {
		mask = uint64(1)<<uint(conf.Bits) - 1
	}
	return &Ring{bits: conf.Bits, mask: mask, hashFunc: conf.HashFunc}, nil
}

// Bits returns M.
func (r *Ring) Bits() int {
	return r.bits
}

// Size returns 2^M. It returns 0 when M is 64, since the value does not fit.
func (r *Ring) Size() uint64 {
	return r.mask + 1
}

// Valid reports whether id lies in [0, 2^M).
func (r *Ring) Valid(id ID) bool {
	return uint64(id)&^r.mask == 0
}

// IDOf hashes an address onto the ring. The digest is read as a big-endian
// integer and reduced mod 2^M, so only its low 64 bits matter.
func (r *Ring) IDOf(address string) ID {
	h := r.hashFunc()
	h.Write([]byte(address))
	sum := h.Sum(nil)

	var low [8]byte
	if len(sum) >= len(low) {
		copy(low[:], sum[len(sum)-len(low):])
	} else {
		copy(low[len(low)-len(sum):], sum)
	}
	return ID(binary.BigEndian.Uint64(low[:]) & r.mask)
}

// Offset computes (id + 2^exp) mod 2^M.
func (r *Ring) Offset(id ID, exp int) ID {
	return ID((uint64(id) + uint64(1)<<uint(exp)) & r.mask)
}

// Back computes (id - 2^exp) mod 2^M.
func (r *Ring) Back(id ID, exp int) ID {
	return ID((uint64(id) - uint64(1)<<uint(exp)) & r.mask)
}

// Add computes (id + delta) mod 2^M.
func (r *Ring) Add(id ID, delta uint64) ID {
	return ID((uint64(id) + delta) & r.mask)
}

// distance is the clockwise walk length from a to b.
func (r *Ring) distance(a, b ID) uint64 {
	return (uint64(b) - uint64(a)) & r.mask
}

// In reports whether walking clockwise from start to end passes through item,
// honoring the inclusivity of each endpoint. When start == end the interval
// is the whole ring and every item is in range.
func (r *Ring) In(item, start, end ID, startIncl, endIncl bool) bool {
	if start == end {
		return true
	}
	if item == start {
		return startIncl
	}
	if item == end {
		return endIncl
	}
	return r.distance(start, item) < r.distance(start, end)
}
