package quantization

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvgo/testutil"
)

var allTiers = []Tier{Bits1, Bits2, Bits4, Bits8, Bits16, Bits32}

func TestQuantizeRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(1)
	vectors := rng.UniformRangeVectors(50, 64)

	for _, tier := range allTiers {
		t.Run(tier.String(), func(t *testing.T) {
			for _, vec := range vectors {
				block, err := Quantize(vec, tier, 32)
				require.NoError(t, err)
				assert.Equal(t, PackedSize(64, tier), len(block.Packed))
				assert.Len(t, block.Scales, 2)

				restored := Dequantize(block)
				require.Len(t, restored, 64)

				// Per-element error is bounded by half the group's step,
				// plus a little float32 arithmetic noise for the fine tiers.
				for i := range vec {
					scale := float64(block.Scales[i/32])
					tol := scale/2 + 1e-5
					assert.InDelta(t, vec[i], restored[i], tol)
				}
			}
		})
	}
}

func TestQuantizeWorkedExample(t *testing.T) {
	// scale = (4-1)/15 = 0.2, zero point = 1; every input lies exactly on
	// the code grid.
	block, err := Quantize([]float32{1, 2, 3, 4}, Bits4, 4)
	require.NoError(t, err)

	require.Len(t, block.Scales, 1)
	assert.InDelta(t, 0.2, block.Scales[0], 1e-6)
	assert.InDelta(t, 1.0, block.Zeros[0], 1e-6)

	restored := Dequantize(block)
	for i, want := range []float32{1, 2, 3, 4} {
		assert.InDelta(t, want, restored[i], 0.2)
		assert.InDelta(t, want, restored[i], 1e-5)
	}
}

func TestQuantizeEmpty(t *testing.T) {
	for _, tier := range allTiers {
		block, err := Quantize(nil, tier, 32)
		require.NoError(t, err)
		assert.Equal(t, 0, block.N)
		assert.Empty(t, block.Packed)
		assert.Empty(t, Dequantize(block))
	}
}

func TestQuantizeDegenerate(t *testing.T) {
	vec := []float32{0.75, 0.75, 0.75, 0.75, 0.75}

	for _, tier := range allTiers {
		block, err := Quantize(vec, tier, 4)
		require.NoError(t, err)
		assert.Zero(t, block.Scales[0])
		assert.Zero(t, block.Scales[1])

		restored := Dequantize(block)
		for _, v := range restored {
			assert.Equal(t, float32(0.75), v)
		}
	}
}

func TestQuantizeInvalidArgs(t *testing.T) {
	_, err := Quantize([]float32{1, 2}, Bits8, 0)
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	_, err = Quantize([]float32{1, 2}, Bits8, -3)
	assert.ErrorIs(t, err, ErrInvalidGroupSize)

	_, err = Quantize([]float32{1, 2}, Tier(42), 4)
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestPackingLayout(t *testing.T) {
	t.Run("Bits1", func(t *testing.T) {
		// Codes 0,1,0,1,... must appear MSB-first: 0b01010101.
		block, err := Quantize([]float32{0, 1, 0, 1, 0, 1, 0, 1}, Bits1, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x55}, block.Packed)
	})

	t.Run("Bits2", func(t *testing.T) {
		// Codes 0,1,2,3 -> 0b00_01_10_11.
		block, err := Quantize([]float32{0, 1, 2, 3}, Bits2, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x1B}, block.Packed)
	})

	t.Run("Bits4", func(t *testing.T) {
		// First code lands in the high nibble.
		block, err := Quantize([]float32{0, 15}, Bits4, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x0F}, block.Packed)
	})

	t.Run("Bits8", func(t *testing.T) {
		block, err := Quantize([]float32{0, 255}, Bits8, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0xFF}, block.Packed)
	})

	t.Run("Bits16", func(t *testing.T) {
		// Big-endian code layout.
		block, err := Quantize([]float32{0, 1}, Bits16, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0xFF}, block.Packed)
	})

	t.Run("Bits32", func(t *testing.T) {
		block, err := Quantize([]float32{0, 1}, Bits32, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}, block.Packed)
	})

	t.Run("CrossByteBoundary", func(t *testing.T) {
		// Three 4-bit codes use 1.5 bytes, rounded up to 2; the trailing
		// nibble stays zero.
		block, err := Quantize([]float32{0, 15, 15}, Bits4, 3)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x0F, 0xF0}, block.Packed)
	})
}

func TestQuantizeDeterministic(t *testing.T) {
	rng := testutil.NewRNG(7)
	vec := rng.UniformRangeVector(96)

	for _, tier := range allTiers {
		a, err := Quantize(vec, tier, 32)
		require.NoError(t, err)
		b, err := Quantize(vec, tier, 32)
		require.NoError(t, err)

		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("%s: blocks differ (-first +second):\n%s", tier, diff)
		}
	}
}

func TestQuantizeShortLastGroup(t *testing.T) {
	rng := testutil.NewRNG(2)
	vec := rng.UniformRangeVector(33)

	block, err := Quantize(vec, Bits8, 32)
	require.NoError(t, err)
	assert.Equal(t, 2, Groups(33, 32))
	assert.Len(t, block.Scales, 2)
	assert.Equal(t, 33, len(block.Packed))

	restored := Dequantize(block)
	require.Len(t, restored, 33)
	for i := range vec {
		tol := float64(block.Scales[i/32])/2 + 1e-5
		assert.InDelta(t, vec[i], restored[i], tol)
	}
}

func TestRequantize(t *testing.T) {
	rng := testutil.NewRNG(3)
	vec := rng.UniformRangeVector(64)

	orig, err := Quantize(vec, Bits16, 32)
	require.NoError(t, err)

	demoted, err := Requantize(orig, Bits4)
	require.NoError(t, err)
	assert.Equal(t, Bits4, demoted.Tier)
	assert.Equal(t, orig.GroupSize, demoted.GroupSize)
	assert.Equal(t, orig.N, demoted.N)

	// Requantize must match a fresh full-reconstruction encode exactly.
	want, err := Quantize(Dequantize(orig), Bits4, 32)
	require.NoError(t, err)
	assert.Equal(t, want, demoted)

	// And the demoted block still reconstructs within its own step bound.
	restored := Dequantize(demoted)
	assert.Less(t, testutil.MaxAbsDiff(vec, restored), 0.5)
	for i := range vec {
		tol := float64(orig.Scales[i/32])/2 + float64(demoted.Scales[i/32])/2 + 1e-5
		assert.InDelta(t, vec[i], restored[i], tol)
	}
}

func TestRequantizeErrorGrows(t *testing.T) {
	rng := testutil.NewRNG(4)
	vec := rng.UniformRangeVector(64)

	block, err := Quantize(vec, Bits32, 32)
	require.NoError(t, err)

	prevRMSE := testutil.RMSE(vec, Dequantize(block))
	for _, target := range []Tier{Bits16, Bits8, Bits4, Bits2, Bits1} {
		block, err = Requantize(block, target)
		require.NoError(t, err)
		rmse := testutil.RMSE(vec, Dequantize(block))
		assert.GreaterOrEqual(t, rmse+1e-7, prevRMSE, "tier %s", target)
		prevRMSE = rmse
	}
}

func TestDequantizePanicsOnCorruptBlock(t *testing.T) {
	block, err := Quantize([]float32{1, 2, 3, 4}, Bits8, 4)
	require.NoError(t, err)

	block.Packed = block.Packed[:2]
	assert.Panics(t, func() { Dequantize(block) })
}

func TestDequantizeNil(t *testing.T) {
	assert.Nil(t, Dequantize(nil))
}

func TestDequantizeInto(t *testing.T) {
	values := []float32{1.0, 2.0, 3.0, 4.0}
	b, err := Quantize(values, Bits8, 4)
	require.NoError(t, err)

	dst := make([]float32, 4)
	DequantizeInto(dst, b)
	assert.Equal(t, Dequantize(b), dst)

	// Reusing the buffer overwrites every element.
	b2, err := Quantize([]float32{9.0, 9.0, 9.0, 9.0}, Bits8, 4)
	require.NoError(t, err)
	DequantizeInto(dst, b2)
	assert.InDeltaSlice(t, []float32{9, 9, 9, 9}, dst, 1e-5)

	assert.Panics(t, func() { DequantizeInto(make([]float32, 3), b) })
}
