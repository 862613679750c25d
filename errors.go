package kvgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kvgo/internal/tierstore"
	"github.com/hupe1980/kvgo/quantization"
)

var (
	// ErrClosed is returned when operating on a closed cache.
	ErrClosed = errors.New("kvgo: cache is closed")

	// ErrInvalidBudget is returned when the byte budget is not positive.
	ErrInvalidBudget = errors.New("kvgo: byte budget must be positive")

	// ErrBudgetInfeasible is returned when the working set cannot fit the
	// budget even after a full eviction pass. The cache stays usable.
	ErrBudgetInfeasible = errors.New("kvgo: budget infeasible")
)

// DimensionMismatchError indicates a vector whose length does not match
// the cache dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// InvalidDimensionError indicates an invalid configured dimension.
type InvalidDimensionError struct {
	Dimension int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

func (e *InvalidDimensionError) Unwrap() error { return tierstore.ErrInvalidDimension }

// InvalidGroupSizeError indicates an invalid configured quantization
// group size. Rejected at construction; quantization itself never sees it.
type InvalidGroupSizeError struct {
	Size int
}

func (e *InvalidGroupSizeError) Error() string {
	return fmt.Sprintf("invalid group size: %d", e.Size)
}

func (e *InvalidGroupSizeError) Unwrap() error { return quantization.ErrInvalidGroupSize }

// BudgetInfeasibleError reports a pressure episode that could not free the
// requested bytes. Requested is the freed-bytes target, Freed what the
// pass managed before running out of victims.
//
// errors.Is(err, ErrBudgetInfeasible) matches this error.
type BudgetInfeasibleError struct {
	Requested int64
	Freed     int64
	cause     error
}

func (e *BudgetInfeasibleError) Error() string {
	return fmt.Sprintf("budget infeasible: freed %d of %d requested bytes", e.Freed, e.Requested)
}

func (e *BudgetInfeasibleError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tierstore.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
