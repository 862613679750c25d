// Package arena provides a slab allocator with fixed-size slots.
//
// # Overview
//
// Every precision tier stores its packed entries in slots of one fixed
// size, so allocation reduces to free-slot bookkeeping: a bitset records
// which slots are available and allocation takes the lowest free one.
// Slabs are reserved lazily and grow in chunks, an arena for a tier that
// holds no entries costs nothing.
//
// # Concurrency Model
//
// Alloc and Free are serialized internally. Bytes is lock-free and may
// be called concurrently with allocation, but not with Close.
//
// # Memory Management
//
// Slabs are either heap-backed or, with WithOffHeap, anonymous mappings
// outside the garbage collector's reach. Freed slots are recycled
// without zeroing; callers overwrite a slot completely before use.
// Slab memory is only returned to the OS by Close.
package arena
