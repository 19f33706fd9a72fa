package orchestrator

import (
	"sync"
	"time"
)

// BreakerState is the circuit state exposed in metrics.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

type breaker struct {
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// breakerSet tracks one circuit breaker per machine id. Counting happens on
// lane goroutines and admission checks on sender goroutines, so the set is
// mutex-guarded; the critical sections are a handful of field updates.
type breakerSet struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	targets   map[string]*breaker
}

func newBreakerSet(threshold int, cooldown time.Duration) *breakerSet {
	return &breakerSet{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		targets:   make(map[string]*breaker),
	}
}

func (s *breakerSet) get(id string) *breaker {
	b, ok := s.targets[id]
	if !ok {
		b = &breaker{state: BreakerClosed}
		s.targets[id] = b
	}
	return b
}

// allow reports whether a send to id may proceed. An open breaker past its
// cooldown admits exactly one probe and moves to HALF_OPEN; further sends are
// refused until the probe's outcome is recorded. probe is true when this
// admission is the half-open probe; a caller that fails to enqueue it must
// call releaseProbe.
func (s *breakerSet) allow(id string) (probe bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.get(id)
	switch b.state {
	case BreakerClosed:
		return false, nil
	case BreakerOpen:
		if s.now().Sub(b.openedAt) < s.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true, nil
	default: // HALF_OPEN
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	}
}

// releaseProbe undoes a probe admission whose envelope never reached a lane,
// so a later send can be admitted as a new probe.
func (s *breakerSet) releaseProbe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.targets[id]; ok && b.state == BreakerHalfOpen {
		b.probing = false
	}
}

func (s *breakerSet) recordSuccess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.get(id)
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}

// recordFailure returns true when this failure tripped the breaker open.
func (s *breakerSet) recordFailure(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.get(id)
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = s.now()
		b.probing = false
		return true
	}
	b.failures++
	if b.failures >= s.threshold && b.state == BreakerClosed {
		b.state = BreakerOpen
		b.openedAt = s.now()
		return true
	}
	return false
}

func (s *breakerSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, id)
}

// states returns the non-closed breakers for metrics and health.
func (s *breakerSet) states() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BreakerState)
	for id, b := range s.targets {
		if b.state != BreakerClosed {
			out[id] = b.state
		}
	}
	return out
}
