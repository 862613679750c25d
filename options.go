package kvgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/kvgo/quantization"
	"github.com/hupe1980/kvgo/salience"
)

const (
	// DefaultGroupSize is the quantization calibration group size.
	DefaultGroupSize = 32

	// DefaultDemotionThreshold separates entries worth demoting from
	// entries evicted outright.
	DefaultDemotionThreshold = 0.5

	// DefaultTier is the precision new entries are stored at when the
	// budget permits.
	DefaultTier = quantization.Bits8

	// DefaultHotCacheSize is the number of dequantized vectors kept in
	// the read-through hot cache.
	DefaultHotCacheSize = 256
)

type options struct {
	groupSize         int
	demotionThreshold float32
	defaultTier       quantization.Tier
	scorer            salience.Scorer
	clock             salience.Clock
	halfLife          time.Duration
	hotCacheSize      int
	offHeap           bool
	slotsPerChunk     int
	maintInterval     time.Duration
	maintRate         int64
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures cache construction behavior.
type Option func(*options)

// WithGroupSize sets the quantization group size: the number of elements
// sharing one (scale, zero point) pair. Smaller groups calibrate tighter
// at the cost of per-group header bytes.
func WithGroupSize(n int) Option {
	return func(o *options) {
		o.groupSize = n
	}
}

// WithDemotionThreshold sets the salience at or above which a pressure
// victim is demoted to a lower tier instead of evicted. Clamped to [0, 1].
func WithDemotionThreshold(t float32) Option {
	return func(o *options) {
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		o.demotionThreshold = t
	}
}

// WithDefaultTier sets the precision tier new entries are stored at when
// budget headroom permits.
func WithDefaultTier(t quantization.Tier) Option {
	return func(o *options) {
		if t.Valid() {
			o.defaultTier = t
		}
	}
}

// WithScorer sets the salience scoring strategy. The default is the
// attention-mass scorer with exponential recency decay; see
// salience.LRUScorer and salience.MesolimbicScorer for alternatives.
func WithScorer(s salience.Scorer) Option {
	return func(o *options) {
		o.scorer = s
	}
}

// WithClock injects the clock used for recency decay and access
// timestamps. Tests use this to make scores deterministic.
func WithClock(c salience.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithHalfLife sets the recency half-life of the default scorer. Ignored
// when WithScorer is given.
func WithHalfLife(d time.Duration) Option {
	return func(o *options) {
		o.halfLife = d
	}
}

// WithHotCacheSize sets the capacity of the dequantized read cache.
// Zero disables it.
func WithHotCacheSize(n int) Option {
	return func(o *options) {
		o.hotCacheSize = n
	}
}

// WithOffHeap backs the tier arenas with anonymous mappings outside the
// Go heap, removing packed attention state from garbage collector scans.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// WithSlotsPerChunk sets the arena growth granularity.
func WithSlotsPerChunk(n int) Option {
	return func(o *options) {
		o.slotsPerChunk = n
	}
}

// WithMaintenance enables the background sweep that fades the salience of
// entries left untouched for a full interval. Zero disables maintenance
// (the default).
func WithMaintenance(interval time.Duration) Option {
	return func(o *options) {
		o.maintInterval = interval
	}
}

// WithMaintenanceRate paces how many bytes per second the maintenance
// sweep may touch, so sweeps do not starve foreground reads. Zero means
// unpaced.
func WithMaintenanceRate(bytesPerSec int64) Option {
	return func(o *options) {
		o.maintRate = bytesPerSec
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// cache operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &kvgo.BasicMetricsCollector{}
//	cache, _ := kvgo.New(64, 1<<20, kvgo.WithMetricsCollector(metrics))
//	// ... use cache ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Hit rate: %d/%d\n", stats.PutCount, stats.GetHits, stats.GetCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := kvgo.NewJSONLogger(slog.LevelInfo)
//	cache, _ := kvgo.New(64, 1<<20, kvgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		groupSize:         DefaultGroupSize,
		demotionThreshold: DefaultDemotionThreshold,
		defaultTier:       DefaultTier,
		hotCacheSize:      DefaultHotCacheSize,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
