package salience

import (
	"math"
	"time"
)

// DefaultHalfLife is the recency half-life used when none is configured.
const DefaultHalfLife = 30 * time.Second

// AttentionUsage carries the attention statistics for one cached vector:
// the recent attention-weight mass attributed to it and when that mass was
// observed. Produced by the attention computation, consumed by a Scorer.
type AttentionUsage struct {
	Mass       float32
	ObservedAt time.Time
}

// Scorer turns usage statistics into a salience score in [0, 1].
// Reset clears any session-scoped scoring state (running maxima, traces)
// and is invoked by the cache at sequence boundaries.
type Scorer interface {
	Score(usage AttentionUsage) float32
	Reset()
}

// AttentionMassScorer is the reference scorer: attention mass with
// exponential recency decay, normalized against the running maximum in its
// State.
type AttentionMassScorer struct {
	state    *State
	clock    Clock
	halfLife time.Duration
}

// NewAttentionMassScorer creates the reference scorer. A nil state or
// clock falls back to a fresh State and the system clock; a non-positive
// halfLife falls back to DefaultHalfLife.
func NewAttentionMassScorer(state *State, clock Clock, halfLife time.Duration) *AttentionMassScorer {
	if state == nil {
		state = NewState()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &AttentionMassScorer{state: state, clock: clock, halfLife: halfLife}
}

// Score computes mass * exp(-age/halfLife), normalized into [0, 1].
func (s *AttentionMassScorer) Score(usage AttentionUsage) float32 {
	mass := float64(usage.Mass)
	if mass < 0 {
		mass = 0
	}
	raw := mass * decayFactor(age(s.clock, usage.ObservedAt), s.halfLife)
	return float32(s.state.Normalize(raw))
}

// Reset clears the running maximum.
func (s *AttentionMassScorer) Reset() {
	s.state.Reset()
}

// LRUScorer scores by recency alone: exp(-age/halfLife). Attention mass is
// ignored and no normalization state is needed, making this the drop-in
// "plain LRU" strategy.
type LRUScorer struct {
	clock    Clock
	halfLife time.Duration
}

// NewLRUScorer creates a recency-only scorer.
func NewLRUScorer(clock Clock, halfLife time.Duration) *LRUScorer {
	if clock == nil {
		clock = SystemClock()
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &LRUScorer{clock: clock, halfLife: halfLife}
}

// Score returns exp(-age/halfLife), already in [0, 1].
func (s *LRUScorer) Score(usage AttentionUsage) float32 {
	return float32(decayFactor(age(s.clock, usage.ObservedAt), s.halfLife))
}

// Reset is a no-op; the scorer is stateless.
func (s *LRUScorer) Reset() {}

func age(clock Clock, observedAt time.Time) time.Duration {
	a := clock.Now().Sub(observedAt)
	if a < 0 {
		return 0
	}
	return a
}

func decayFactor(age, halfLife time.Duration) float64 {
	return math.Exp(-float64(age) / float64(halfLife))
}
