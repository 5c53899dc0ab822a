package cache

import (
	"sync"
	"time"
)

// breaker tracks consecutive persistent-tier errors:
//   - open after failureThreshold consecutive failures; while open the cache
//     runs memory-only
//   - once cooldown has elapsed a single probe is let through
//   - close after successThreshold consecutive successful probes
type breaker struct {
	mu               sync.Mutex
	state            breakerState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

func newBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &breaker{
		state:            breakerClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// allow reports whether a persistent-tier call may be attempted now.
func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerClosed {
		return true
	}
	if now.Sub(b.openedAt) >= b.cooldown {
		// Push the window forward so only one probe goes out per cooldown.
		b.openedAt = now
		return true
	}
	return false
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen
}

// recordFailure returns true when this failure opened the circuit.
func (b *breaker) recordFailure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.successCount = 0
	if b.state == breakerOpen {
		b.openedAt = now
		return false
	}
	if b.failureCount >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = now
		return true
	}
	return false
}

// recordSuccess returns true when this success closed the circuit.
func (b *breaker) recordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = breakerClosed
			b.failureCount = 0
			b.successCount = 0
			return true
		}
		return false
	}
	b.failureCount = 0
	return false
}
