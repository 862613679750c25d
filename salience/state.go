package salience

import "sync"

// State holds the running maximum used to normalize raw scores into [0, 1].
// It is an explicitly owned object rather than package-level state: the
// cache constructs one per instance and resets it at session boundaries.
// Safe for concurrent use.
type State struct {
	mu         sync.Mutex
	runningMax float64
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Normalize records raw into the running maximum and returns raw divided
// by the maximum, clamped to [0, 1]. A raw value of zero (or an all-zero
// history) normalizes to zero.
func (s *State) Normalize(raw float64) float64 {
	if raw < 0 {
		raw = 0
	}

	s.mu.Lock()
	if raw > s.runningMax {
		s.runningMax = raw
	}
	maxSeen := s.runningMax
	s.mu.Unlock()

	if maxSeen == 0 {
		return 0
	}
	v := raw / maxSeen
	if v > 1 {
		v = 1
	}
	return v
}

// RunningMax returns the current running maximum.
func (s *State) RunningMax() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningMax
}

// Reset clears the running maximum. Call at sequence/session boundaries.
func (s *State) Reset() {
	s.mu.Lock()
	s.runningMax = 0
	s.mu.Unlock()
}
