package seq

import "math/bits"

// MaxCapacity is the highest slot count the exchange supports.
const MaxCapacity = 1 << 30

// CeilingPowerOfTwo rounds the given value up to the next power of two.
// Values that are already a power of two are returned unchanged.
func CeilingPowerOfTwo(value int64) int64 {
	if value <= 1 {
		return 1
	}

	return 1 << (64 - bits.LeadingZeros64(uint64(value-1)))
}
