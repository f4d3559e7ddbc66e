// Package hashrand provides the two primitives nbmq uses for identifiers:
// an FNV-1a-64 byte hasher and an XORShift64 PRNG.
package hashrand

// FNV-1a-64 constants (offset basis and prime), per the Fowler-Noll-Vo spec.
const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// FNV1a64 is a running FNV-1a-64 hash. The zero value is not valid; use
// NewFNV1a64.
type FNV1a64 struct {
	hash uint64
}

// NewFNV1a64 returns a hasher seeded with the FNV offset basis.
func NewFNV1a64() *FNV1a64 {
	return &FNV1a64{hash: fnvOffsetBasis}
}

// Write folds bytes into the running hash. It never errors.
func (h *FNV1a64) Write(p []byte) {
	hash := h.hash
	for _, b := range p {
		hash ^= uint64(b)
		hash *= fnvPrime
	}
	h.hash = hash
}

// Sum64 returns the hash accumulated so far.
func (h *FNV1a64) Sum64() uint64 {
	return h.hash
}

// HashAll is a convenience one-shot hash over a sequence of byte slices.
func HashAll(parts ...[]byte) uint64 {
	h := NewFNV1a64()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum64()
}
