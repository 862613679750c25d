// Package policy implements the eviction and demotion policy that keeps
// the cache under its byte budget.
//
// Each pressure episode runs four phases: scan a snapshot of the entry
// table, select victims ordered by ascending salience (oldest first among
// ties), act on each victim by demoting or evicting it, and verify that
// the freed-bytes target was met. Salient entries are demoted one tier to
// preserve a lossier reconstruction; entries below the demotion threshold
// are evicted outright. A demotion that cannot be placed anywhere on the
// ladder degrades to an eviction of that entry, never an aborted pass.
package policy
