// Package kvgo provides an embedded inference-time KV cache for
// transformer attention state.
//
// Each cached vector is stored at an adaptive numeric precision chosen
// from a discrete ladder (1/2/4/8/16/32 bits per element) using group-wise
// affine quantization. Under memory pressure the cache demotes entries to
// a lower tier (keeping a lossier reconstruction) or evicts them, chosen
// by a salience score derived from attention statistics rather than plain
// recency. A hard byte budget holds after every completed operation.
//
// Key features:
//
//   - Six-tier precision ladder with group-wise scale/zero-point calibration
//   - Salience-driven tiered eviction: demote salient entries, evict the rest
//   - Pluggable scoring strategies (attention mass, LRU, reward-modulated)
//   - Sharded entry table and slab arenas for contention-free concurrent access
//   - Optional off-heap storage via anonymous mappings (no GC scan work)
//   - Background maintenance sweep fading untouched entries
//   - fp16 ingestion and batch insertion for inference-loop integration
//
// # Quick Start
//
// Create a cache for 64-dimensional attention vectors under a 1 MiB budget:
//
//	cache, err := kvgo.New(64, 1<<20,
//	    kvgo.WithGroupSize(32),
//	    kvgo.WithDemotionThreshold(0.5),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer cache.Close()
//
// Insert and read back per attention slot:
//
//	key := core.Key{Layer: 3, Head: 7, Position: 42}
//	err = cache.Put(ctx, key, vector, salience.AttentionUsage{
//	    Mass:       0.8,
//	    ObservedAt: time.Now(),
//	})
//	values, ok := cache.Get(ctx, key)
//
// Proactively make room before a bulk insert:
//
//	if err := cache.EnsureCapacity(ctx, 1<<18); err != nil {
//	    // budget cannot hold the working set
//	}
//
// The cache is safe for concurrent use by multiple inference workers;
// operations on distinct keys do not block each other.
package kvgo
