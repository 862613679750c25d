package salience

import (
	"math"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
)

// DefaultRewardWeight weights the novelty bonus of the MesolimbicScorer.
const DefaultRewardWeight = 0.25

// MesolimbicScorer extends the reference formula with a reward term: a
// novelty bonus proportional to how far the observed attention mass
// deviates from its moving average. Tokens whose attention suddenly spikes
// score above their plain decayed mass, mimicking reward-driven retention.
//
// The functional form is implementation-defined; the reference behavior of
// the cache remains AttentionMassScorer.
type MesolimbicScorer struct {
	state        *State
	clock        Clock
	halfLife     time.Duration
	rewardWeight float64

	mu    sync.Mutex
	trace ewma.MovingAverage
}

// NewMesolimbicScorer creates a reward-modulated scorer. Zero values fall
// back to a fresh State, the system clock, DefaultHalfLife and
// DefaultRewardWeight.
func NewMesolimbicScorer(state *State, clock Clock, halfLife time.Duration, rewardWeight float64) *MesolimbicScorer {
	if state == nil {
		state = NewState()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	if rewardWeight <= 0 {
		rewardWeight = DefaultRewardWeight
	}
	return &MesolimbicScorer{
		state:        state,
		clock:        clock,
		halfLife:     halfLife,
		rewardWeight: rewardWeight,
		trace:        ewma.NewMovingAverage(),
	}
}

// Score computes mass*exp(-age/halfLife) + rewardWeight*|mass - trace|,
// normalized into [0, 1]. The trace is updated on every call.
func (s *MesolimbicScorer) Score(usage AttentionUsage) float32 {
	mass := float64(usage.Mass)
	if mass < 0 {
		mass = 0
	}

	s.mu.Lock()
	novelty := math.Abs(mass - s.trace.Value())
	s.trace.Add(mass)
	s.mu.Unlock()

	decayed := mass * decayFactor(age(s.clock, usage.ObservedAt), s.halfLife)
	raw := decayed + s.rewardWeight*novelty
	return float32(s.state.Normalize(raw))
}

// Reset clears the running maximum and the mass trace.
func (s *MesolimbicScorer) Reset() {
	s.state.Reset()
	s.mu.Lock()
	s.trace = ewma.NewMovingAverage()
	s.mu.Unlock()
}
