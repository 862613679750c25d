package quantization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidGroupSize is returned when the calibration group size is not positive.
	ErrInvalidGroupSize = errors.New("quantization: group size must be positive")
	// ErrInvalidTier is returned when the tier is not a member of the precision ladder.
	ErrInvalidTier = errors.New("quantization: invalid tier")
)

// Block is a group-wise affine quantized representation of a float32 slice.
// Elements are split into groups of GroupSize (the last group may be
// shorter); each group carries its own scale and zero point. Packed holds
// the integer codes bit-packed MSB-first across byte boundaries.
//
// Invariant: len(Packed) == PackedSize(N, Tier). A Block violating this was
// constructed by hand; Dequantize treats it as a programming error.
type Block struct {
	Tier      Tier
	GroupSize int
	N         int
	Scales    []float32
	Zeros     []float32
	Packed    []byte
}

// Quantize compresses values into a Block at the given tier.
//
// Per group, scale = (max-min)/(2^bits-1) and the zero point is the group
// minimum; each value maps to the nearest code in [0, 2^bits-1]. A
// degenerate group (max == min) gets scale 0 and reconstructs exactly as
// the stored zero point. Empty input yields an empty Block, never a panic.
func Quantize(values []float32, tier Tier, groupSize int) (*Block, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, uint8(tier))
	}
	if groupSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupSize, groupSize)
	}

	n := len(values)
	b := &Block{
		Tier:      tier,
		GroupSize: groupSize,
		N:         n,
	}
	if n == 0 {
		b.Packed = []byte{}
		return b, nil
	}

	groups := Groups(n, groupSize)
	b.Scales = make([]float32, groups)
	b.Zeros = make([]float32, groups)
	b.Packed = make([]byte, PackedSize(n, tier))

	bits := tier.Bits()
	maxCode := tier.maxCode()
	bitPos := 0

	for g := 0; g < groups; g++ {
		lo := g * groupSize
		hi := lo + groupSize
		if hi > n {
			hi = n
		}
		group := values[lo:hi]

		minV, maxV := group[0], group[0]
		for _, v := range group[1:] {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}

		scale := (maxV - minV) / float32(maxCode)
		b.Scales[g] = scale
		b.Zeros[g] = minV

		for _, v := range group {
			var code uint64
			if scale > 0 {
				q := math.Round(float64(v-minV) / float64(scale))
				if q < 0 {
					q = 0
				} else if q > float64(maxCode) {
					q = float64(maxCode)
				}
				code = uint64(q)
			}
			bitPos = packCode(b.Packed, bitPos, code, bits)
		}
	}

	return b, nil
}

// Dequantize reconstructs the original values: value = code*scale + zero.
// It is pure and deterministic; the output slice is the only allocation.
func Dequantize(b *Block) []float32 {
	if b == nil {
		return nil
	}
	out := make([]float32, b.N)
	DequantizeInto(out, b)
	return out
}

// DequantizeInto reconstructs the block's values into dst, which must be
// exactly b.N long. It allocates nothing, so hot paths can reuse a
// scratch buffer across calls.
func DequantizeInto(dst []float32, b *Block) {
	if b.N == 0 {
		return
	}
	if len(dst) != b.N {
		panic("quantization: dst length inconsistent with block")
	}
	if len(b.Packed) != PackedSize(b.N, b.Tier) {
		panic("quantization: packed length inconsistent with (n, tier)")
	}

	bits := b.Tier.Bits()
	for i := 0; i < b.N; i++ {
		g := i / b.GroupSize
		code := unpackCode(b.Packed, i, bits)
		// float64 on purpose: Bits32 codes exceed float32's 24-bit mantissa.
		dst[i] = float32(float64(code)*float64(b.Scales[g]) + float64(b.Zeros[g]))
	}
}

// Requantize re-encodes a Block at a new tier by full reconstruction:
// quantize(dequantize(block)). Calibration is recomputed per group, so
// repeated demotion does not accumulate truncation bias beyond the target
// tier's own round-trip error.
func Requantize(b *Block, target Tier) (*Block, error) {
	return Quantize(Dequantize(b), target, b.GroupSize)
}

// packCode writes one code of the given width at the absolute bit position
// and returns the next position. Codes of 8/16/32 bits stay byte aligned
// because every code in a block has the same width, so those widths take
// the big-endian fast path; sub-byte widths pack MSB-first bit by bit.
func packCode(dst []byte, bitPos int, code uint64, bits int) int {
	switch bits {
	case 8:
		dst[bitPos>>3] = byte(code)
	case 16:
		binary.BigEndian.PutUint16(dst[bitPos>>3:], uint16(code))
	case 32:
		binary.BigEndian.PutUint32(dst[bitPos>>3:], uint32(code))
	default:
		for i := bits - 1; i >= 0; i-- {
			if code&(1<<uint(i)) != 0 {
				dst[bitPos>>3] |= 1 << uint(7-bitPos&7)
			}
			bitPos++
		}
		return bitPos
	}
	return bitPos + bits
}

// unpackCode reads the idx-th code of the given width from packed bytes.
func unpackCode(packed []byte, idx, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(packed[idx])
	case 16:
		return uint64(binary.BigEndian.Uint16(packed[idx*2:]))
	case 32:
		return uint64(binary.BigEndian.Uint32(packed[idx*4:]))
	default:
		var code uint64
		bitPos := idx * bits
		for i := 0; i < bits; i++ {
			code <<= 1
			if packed[bitPos>>3]&(1<<uint(7-bitPos&7)) != 0 {
				code |= 1
			}
			bitPos++
		}
		return code
	}
}
