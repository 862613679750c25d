// Package pool provides object pools for zero-allocation demotion passes.
// Demoting an entry dequantizes it into a scratch vector before re-encoding
// at the lower tier; pooling that vector keeps steady-state demotion free of
// per-entry allocations.
package pool

import (
	"sync"
)

const (
	// DefaultDimensions is the initial scratch capacity, sized to cover
	// common attention head dimensions without growth.
	DefaultDimensions = 2048

	// maxRetainedDimensions drops oversized scratch on Put so a rare huge
	// vector does not pin memory in the pool forever.
	maxRetainedDimensions = 1 << 20
)

// Scratch holds a reusable float32 buffer for dequantize/requantize work.
type Scratch struct {
	values []float32
}

var scratchPool = sync.Pool{
	New: func() interface{} {
		return &Scratch{
			values: make([]float32, 0, DefaultDimensions),
		}
	},
}

// Get retrieves a Scratch from the pool.
func Get() *Scratch {
	s := scratchPool.Get().(*Scratch)
	s.Reset()
	return s
}

// Put returns a Scratch to the pool for reuse.
func Put(s *Scratch) {
	if s == nil {
		return
	}
	if cap(s.values) > maxRetainedDimensions {
		s.values = make([]float32, 0, DefaultDimensions)
	}
	scratchPool.Put(s)
}

// Reset clears the Scratch for reuse.
func (s *Scratch) Reset() {
	s.values = s.values[:0]
}

// Floats returns a length-n float32 buffer, growing the scratch if needed.
// Contents are unspecified; callers overwrite every element.
func (s *Scratch) Floats(n int) []float32 {
	if cap(s.values) < n {
		s.values = make([]float32, n)
	}
	s.values = s.values[:n]
	return s.values
}
