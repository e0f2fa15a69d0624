package risk

import "sync"

// CircuitBreaker is the session-wide kill switch. It is armed once with the
// first successful account read of the session and trips exactly once when
// the daily loss limit is breached. A tripped breaker stays tripped until
// process restart.
type CircuitBreaker struct {
	mu               sync.Mutex
	startOfDayEquity float64
	armed            bool
	tripped          bool
}

func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{}
}

// Arm records the start-of-day equity baseline. Only the first call has any
// effect; later account reads within the session do not move the baseline.
func (b *CircuitBreaker) Arm(equity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.armed {
		return
	}
	b.startOfDayEquity = equity
	b.armed = true
}

func (b *CircuitBreaker) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed
}

func (b *CircuitBreaker) StartOfDayEquity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startOfDayEquity
}

// Trip flips the breaker. Returns true only on the first call, so the caller
// can emit the trip notification exactly once.
func (b *CircuitBreaker) Trip() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return false
	}
	b.tripped = true
	return true
}

func (b *CircuitBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}
