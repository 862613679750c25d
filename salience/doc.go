// Package salience scores the importance of cached attention state.
//
// A salience score is a value in [0, 1] estimating how much a cached KV
// vector matters for future attention computation. The eviction policy
// demotes or evicts the least salient entries first, so the scorer is the
// one deliberately pluggable seam of the cache.
//
// # Reference Behavior
//
// AttentionMassScorer implements the reference formula
//
//	raw = mass * exp(-age / halfLife)
//
// normalized against a running maximum held in an explicit State object.
// The running maximum is session-scoped: callers reset it at sequence
// boundaries via Reset, never an internal timer.
//
// # Alternative Strategies
//
//	scorer := salience.NewLRUScorer(clock, halfLife)        // pure recency
//	scorer := salience.NewMesolimbicScorer(st, clock, 0, 0) // reward-modulated
//
// MesolimbicScorer adds a novelty bonus derived from an exponentially
// weighted moving average of observed attention mass. Its exact functional
// form is implementation-defined; treat it as an experiment, not a
// reference behavior.
//
// # Determinism
//
// Scorers are deterministic given the same usage, state, and clock. Inject
// a fixed Clock in tests to pin ages.
package salience
