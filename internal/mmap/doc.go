// Package mmap provides anonymous memory mappings for off-heap allocation.
//
// # Overview
//
// Tier slabs can hold hundreds of megabytes of packed attention state.
// Keeping them on the Go heap makes every GC cycle scan memory that
// contains no pointers. MapAnon() obtains read-write anonymous mappings
// directly from the OS, so slab memory is invisible to the collector.
//
// # Usage
//
//	m, err := mmap.MapAnon(64 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//
//	// Provide kernel hints for access patterns
//	m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON, madvise(2) for hints
//   - Windows: VirtualAlloc with demand paging (madvise is a no-op)
//
// # Thread Safety
//
// Mapping is safe for concurrent read access. Close() is idempotent and
// protected by atomic operations, but callers must ensure no goroutines
// access Bytes() after Close() returns.
package mmap
