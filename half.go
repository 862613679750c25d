package kvgo

import (
	"context"

	"github.com/x448/float16"

	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/salience"
)

// PutHalf inserts a vector given as IEEE 754 half-precision bit patterns,
// the layout inference engines commonly hold KV tensors in. The values
// are widened to float32 before quantization.
func (c *Cache) PutHalf(ctx context.Context, key core.Key, values []uint16, usage salience.AttentionUsage) error {
	wide := make([]float32, len(values))
	for i, v := range values {
		wide[i] = float16.Frombits(v).Float32()
	}
	return c.Put(ctx, key, wide, usage)
}

// GetHalf reads a cached vector back as half-precision bit patterns.
// Values outside fp16 range saturate to ±Inf per IEEE 754 conversion.
func (c *Cache) GetHalf(ctx context.Context, key core.Key) ([]uint16, bool) {
	values, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	out := make([]uint16, len(values))
	for i, v := range values {
		out[i] = float16.Fromfloat32(v).Bits()
	}
	return out, true
}
