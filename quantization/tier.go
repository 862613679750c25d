package quantization

import "fmt"

// Tier is a discrete numeric precision level (bit-width) at which a cached
// vector is stored. Tiers are totally ordered by information content:
// Bits1 < Bits2 < Bits4 < Bits8 < Bits16 < Bits32.
type Tier uint8

const (
	// Bits1 stores one bit per element (two reconstruction levels).
	Bits1 Tier = iota
	// Bits2 stores two bits per element.
	Bits2
	// Bits4 stores four bits per element (two elements per byte).
	Bits4
	// Bits8 stores one byte per element.
	Bits8
	// Bits16 stores two bytes per element.
	Bits16
	// Bits32 stores four bytes per element.
	Bits32
)

// TierCount is the number of precision tiers in the ladder.
const TierCount = int(Bits32) + 1

var tierBits = [TierCount]int{1, 2, 4, 8, 16, 32}

var tierNames = [TierCount]string{"Bits1", "Bits2", "Bits4", "Bits8", "Bits16", "Bits32"}

// Bits returns the number of bits used per element at this tier.
func (t Tier) Bits() int {
	return tierBits[t]
}

// Valid reports whether t is a member of the precision ladder.
func (t Tier) Valid() bool {
	return int(t) < TierCount
}

// Lower returns the next smaller tier and true, or (t, false) if t is
// already Bits1.
func (t Tier) Lower() (Tier, bool) {
	if t == Bits1 {
		return t, false
	}
	return t - 1, true
}

// String returns the tier name, or a numeric fallback for invalid values.
func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", uint8(t))
	}
	return tierNames[t]
}

// maxCode returns the largest integer code representable at this tier,
// i.e. 2^bits - 1.
func (t Tier) maxCode() uint64 {
	return 1<<uint(t.Bits()) - 1
}

// PackedSize returns the number of bytes needed to bit-pack n element codes
// at tier t: ceil(n * bits / 8).
func PackedSize(n int, t Tier) int {
	if n <= 0 {
		return 0
	}
	return (n*t.Bits() + 7) / 8
}

// Groups returns the number of calibration groups for n elements split into
// groups of groupSize (the last group may be shorter).
func Groups(n, groupSize int) int {
	if n <= 0 || groupSize <= 0 {
		return 0
	}
	return (n + groupSize - 1) / groupSize
}
