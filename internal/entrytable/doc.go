// Package entrytable implements the concurrent metadata table of the cache.
//
// # Overview
//
// The table answers "where does this key live and how salient is it": each
// entry records its precision tier, arena slot, last observed attention
// mass, the stored salience score, and a logical access time. Entries are
// spread over 64 shards by a seeded maphash of the key, so unrelated keys
// rarely contend.
//
// A roaring bitmap per shard and tier indexes membership, which makes
// per-tier iteration and tier population counts cheap compared to scanning
// every shard map.
//
// # Pinning
//
// Slot memory is recycled, so a reader must pin an entry before
// dereferencing its slot:
//
//	tier, slot, ok := table.Pin(key)
//	if !ok { ... }
//	data := store.Load(tier, slot)
//	table.UnpinTouch(key, tick)
//
// Replace, move, and remove wait for pins to drain before invalidating a
// slot. Pin sections are short (a bounded copy), so writers yield with
// runtime.Gosched rather than queueing on a condition variable.
//
// # Conditional commits
//
// The pressure policy scans a snapshot, picks victims, then acts. Between
// scan and act an entry may be replaced, moved, or removed, and a removed
// key can even be re-inserted into a recycled slot, so location alone is
// not enough to re-validate. Every slot installation is stamped with a
// table-wide generation; CommitRemove and CommitMove apply only while the
// scanned generation still matches.
package entrytable
