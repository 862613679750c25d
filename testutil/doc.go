// Package testutil provides testing utilities for kvgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe random source for generating KV-like
// vectors and helpers for measuring quantization error.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(1)
//	vecs := rng.UniformRangeVectors(100, 64) // values in [-1, 1)
//
// # Error Measurement
//
//	maxErr := testutil.MaxAbsDiff(original, restored)
//	rmse := testutil.RMSE(original, restored)
package testutil
