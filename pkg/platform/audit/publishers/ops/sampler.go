package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a configurable fraction of ops events per action. Rates are
// clamped to [0, 1]; 1 keeps everything.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
	roll         func() float64
}

func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
		roll:         rand.Float64, //nolint:gosec // sampling doesn't need crypto rand
	}
}

// ShouldSample reports whether an event with this action is kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.rateFor(action)
	if rate >= 1 {
		return true
	}
	return s.roll() < rate
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	return min(max(rate, 0), 1)
}
