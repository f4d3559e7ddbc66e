package hashrand

import "time"

// XORShift is a minimal XORShift64 PRNG, seeded from wall clock by default.
// Session ids and message ids are not drawn from it: both are FNV-1a-64
// hashes. It is not suitable for anything security sensitive; nbmq carries
// no cryptographic requirements (see spec Non-goals).
type XORShift struct {
	state uint64
}

// NewXORShift returns a generator seeded with the given value. A zero seed
// is replaced with 1, since XORShift64 never leaves the all-zero state.
func NewXORShift(seed uint64) *XORShift {
	if seed == 0 {
		seed = 1
	}
	return &XORShift{state: seed}
}

// NewXORShiftFromClock seeds a generator from the current wall-clock
// nanosecond timestamp.
func NewXORShiftFromClock() *XORShift {
	return NewXORShift(uint64(time.Now().UnixNano()))
}

// Sample returns the next pseudo-random value in the sequence.
func (x *XORShift) Sample() uint64 {
	s := x.state
	s ^= s >> 12
	s ^= s << 25
	s ^= s >> 27
	x.state = s
	return s * 0x2545F4914F6CDD1D
}
