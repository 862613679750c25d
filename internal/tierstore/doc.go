// Package tierstore stores quantized attention state in per-tier slab
// arenas.
//
// # Layout
//
// Each precision tier owns one arena whose slot size is fixed by the
// vector dimension, the quantization group size, and the tier's bit
// width. A slot holds the per-group calibration header (scales, then
// zero-points, float32 little-endian) followed by the packed codes:
//
//	scales[groups] | zeros[groups] | packed
//
// Fixed slot sizes mean the store never fragments: freeing an entry makes
// room for exactly one future entry of the same tier.
//
// # Budget
//
// Put reserves the slot's bytes with the resource controller before
// allocating, and Free returns them. A failed reservation surfaces
// resource.ErrBudgetExceeded with nothing stored, which is the signal for
// the pressure policy to demote or evict.
//
// # Demotion
//
// Demote reconstructs the full vector from the source slot and re-encodes
// it at a lower tier into a fresh slot. The source is not freed here;
// callers commit the move in the entry table first and free the source
// after, so readers never observe a missing slot.
package tierstore
