package kvgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    putCounter    prometheus.Counter
//	    getHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPut(duration time.Duration, err error) {
//	    p.putCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordPut is called after each put operation.
	// duration is the total time taken, err is nil if successful.
	RecordPut(duration time.Duration, err error)

	// RecordBatchPut is called after each batch put operation.
	// count is the number of items attempted, failed is the number that
	// failed, duration is the total time taken.
	RecordBatchPut(count, failed int, duration time.Duration)

	// RecordGet is called after each get operation.
	RecordGet(duration time.Duration, hit bool)

	// RecordTouch is called after each touch operation.
	RecordTouch(hit bool)

	// RecordRemove is called after each remove operation.
	RecordRemove(removed bool)

	// RecordEvictionPass is called after each pressure episode with the
	// number of demoted and evicted entries and the bytes freed.
	RecordEvictionPass(demoted, evicted int, freed int64, duration time.Duration)

	// RecordSweep is called after each maintenance sweep with the number
	// of faded entries.
	RecordSweep(faded int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordBatchPut(int, int, time.Duration)          {}
func (NoopMetricsCollector) RecordGet(time.Duration, bool)                   {}
func (NoopMetricsCollector) RecordTouch(bool)                                {}
func (NoopMetricsCollector) RecordRemove(bool)                               {}
func (NoopMetricsCollector) RecordEvictionPass(int, int, int64, time.Duration) {}
func (NoopMetricsCollector) RecordSweep(int, time.Duration)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount          atomic.Int64
	PutErrors         atomic.Int64
	PutTotalNanos     atomic.Int64
	BatchPutCount     atomic.Int64
	BatchPutItems     atomic.Int64
	BatchPutFailed    atomic.Int64
	GetCount          atomic.Int64
	GetHits           atomic.Int64
	GetTotalNanos     atomic.Int64
	TouchCount        atomic.Int64
	TouchMisses       atomic.Int64
	RemoveCount       atomic.Int64
	RemoveMisses      atomic.Int64
	EvictionPasses    atomic.Int64
	EntriesDemoted    atomic.Int64
	EntriesEvicted    atomic.Int64
	BytesFreed        atomic.Int64
	SweepCount        atomic.Int64
	EntriesFaded      atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordBatchPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchPut(count, failed int, duration time.Duration) {
	b.BatchPutCount.Add(1)
	b.BatchPutItems.Add(int64(count))
	b.BatchPutFailed.Add(int64(failed))
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, hit bool) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
}

// RecordTouch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTouch(hit bool) {
	b.TouchCount.Add(1)
	if !hit {
		b.TouchMisses.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(removed bool) {
	b.RemoveCount.Add(1)
	if !removed {
		b.RemoveMisses.Add(1)
	}
}

// RecordEvictionPass implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvictionPass(demoted, evicted int, freed int64, duration time.Duration) {
	b.EvictionPasses.Add(1)
	b.EntriesDemoted.Add(int64(demoted))
	b.EntriesEvicted.Add(int64(evicted))
	b.BytesFreed.Add(freed)
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(faded int, duration time.Duration) {
	b.SweepCount.Add(1)
	b.EntriesFaded.Add(int64(faded))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:       b.PutCount.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    b.getAvgPutNanos(),
		BatchPutCount:  b.BatchPutCount.Load(),
		BatchPutItems:  b.BatchPutItems.Load(),
		BatchPutFailed: b.BatchPutFailed.Load(),
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		GetAvgNanos:    b.getAvgGetNanos(),
		TouchCount:     b.TouchCount.Load(),
		TouchMisses:    b.TouchMisses.Load(),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveMisses:   b.RemoveMisses.Load(),
		EvictionPasses: b.EvictionPasses.Load(),
		EntriesDemoted: b.EntriesDemoted.Load(),
		EntriesEvicted: b.EntriesEvicted.Load(),
		BytesFreed:     b.BytesFreed.Load(),
		SweepCount:     b.SweepCount.Load(),
		EntriesFaded:   b.EntriesFaded.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgPutNanos() int64 {
	count := b.PutCount.Load()
	if count == 0 {
		return 0
	}
	return b.PutTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgGetNanos() int64 {
	count := b.GetCount.Load()
	if count == 0 {
		return 0
	}
	return b.GetTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount       int64
	PutErrors      int64
	PutAvgNanos    int64
	BatchPutCount  int64
	BatchPutItems  int64
	BatchPutFailed int64
	GetCount       int64
	GetHits        int64
	GetAvgNanos    int64
	TouchCount     int64
	TouchMisses    int64
	RemoveCount    int64
	RemoveMisses   int64
	EvictionPasses int64
	EntriesDemoted int64
	EntriesEvicted int64
	BytesFreed     int64
	SweepCount     int64
	EntriesFaded   int64
}
