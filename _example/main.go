package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/hupe1980/kvgo"
	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/quantization"
	"github.com/hupe1980/kvgo/salience"
)

func main() {
	seed := int64(4711)
	dim := 128
	size := 20000
	budget := int64(size) / 2 * 160 // room for half the entries at Bits8

	rng := rand.New(rand.NewSource(seed))

	cache, err := kvgo.New(dim, budget,
		kvgo.WithOffHeap(true),
		kvgo.WithMaintenance(time.Second),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer cache.Close()

	ctx := context.Background()

	fmt.Println("--- Insert ---")
	fmt.Println("Dimension:", dim)
	fmt.Println("Size:", size)
	fmt.Println("Budget (bytes):", budget)

	values := make([]float32, dim)
	start := time.Now()

	for i := 0; i < size; i++ {
		for j := range values {
			values[j] = rng.Float32()*2 - 1
		}
		key := core.Key{
			Layer:    uint32(i % 32),
			Head:     uint32(i % 8),
			Position: uint64(i),
		}
		usage := salience.AttentionUsage{
			Mass:       rng.Float32(),
			ObservedAt: time.Now(),
		}
		if err := cache.Put(ctx, key, values, usage); err != nil {
			log.Fatal(err)
		}
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- Read ---")

	start = time.Now()
	hits := 0
	for i := 0; i < size; i++ {
		key := core.Key{
			Layer:    uint32(i % 32),
			Head:     uint32(i % 8),
			Position: uint64(i),
		}
		if _, ok := cache.Get(ctx, key); ok {
			hits++
		}
	}

	fmt.Printf("Seconds: %.2f\n", time.Since(start).Seconds())
	fmt.Printf("Hit rate: %.1f%%\n\n", 100*float64(hits)/float64(size))

	fmt.Println("--- Stats ---")

	stats := cache.Stats()
	fmt.Println("Entries:", stats.Entries)
	fmt.Printf("Used: %d of %d bytes\n", stats.UsedBytes, stats.MaxBytes)
	fmt.Println("Demotions:", stats.Demotions)
	fmt.Println("Evictions:", stats.Evictions)
	for tier := quantization.Bits1; tier <= quantization.Bits32; tier++ {
		if n := stats.TierCounts[tier]; n > 0 {
			fmt.Printf("  %s: %d\n", tier, n)
		}
	}
}
