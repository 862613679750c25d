// Package quantization implements the group-wise affine codec behind kvgo's
// adaptive-precision storage.
//
// # Precision Ladder
//
// A cached vector is stored at one of six tiers: Bits1, Bits2, Bits4, Bits8,
// Bits16 or Bits32. Per 64-element vector the packed payload shrinks from
// 256 raw bytes to:
//
//	Bits32  256 bytes   Bits16  128 bytes   Bits8   64 bytes
//	Bits4    32 bytes   Bits2    16 bytes   Bits1    8 bytes
//
// plus one (scale, zero point) float32 pair per calibration group.
//
// # Group-Wise Affine Quantization
//
// Values are split into groups of GroupSize elements (the last group may be
// shorter). Each group is calibrated independently:
//
//	scale      = (max - min) / (2^bits - 1)
//	zero point = min
//	code       = round((value - zero point) / scale), clamped to [0, 2^bits-1]
//
// Reconstruction is value = code*scale + zero point, so the per-element
// round-trip error is bounded by scale/2. A degenerate group (max == min)
// gets scale 0 and reconstructs exactly.
//
// # Bit Packing
//
// Codes are packed MSB-first across byte boundaries: the first 4-bit code
// lands in the high nibble of byte zero, 16- and 32-bit codes are laid out
// big-endian. Packed size is always ceil(n*bits/8) bytes.
//
// # Usage
//
//	block, err := quantization.Quantize(values, quantization.Bits4, 32)
//	if err != nil { ... }
//	restored := quantization.Dequantize(block)
//
// Demotion to a smaller tier always passes through full reconstruction:
//
//	smaller, err := quantization.Requantize(block, quantization.Bits2)
//
// Requantize recomputes calibration from the reconstructed values instead of
// truncating codes, which would bias the error.
package quantization
