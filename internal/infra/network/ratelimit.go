package network

import (
	"sync"
	"time"
)

// TokenBucket rate-limits outbound oracle calls. It is adaptive: when
// the guarded endpoint's median RTT degrades past twice its baseline,
// capacity and rate are halved so the simulation fan-out backs off
// before timeouts start landing.
type TokenBucket struct {
	mu          sync.Mutex
	capacity    int
	tokens      float64
	rate        float64 // tokens per second
	last        time.Time
	baselineRTT float64 // milliseconds
}

func NewTokenBucket(capacity int, rate float64, baselineRTTms float64) *TokenBucket {
	return &TokenBucket{
		capacity:    capacity,
		tokens:      float64(capacity),
		rate:        rate,
		last:        time.Now(),
		baselineRTT: baselineRTTms,
	}
}

// Allow consumes one token if available. Callers that get false drop
// the call rather than queueing it; a detection cycle never waits on
// the limiter.
func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *TokenBucket) refill(now time.Time) {
	b.tokens += b.rate * now.Sub(b.last).Seconds()
	b.last = now
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}

// AdjustForRTT halves capacity and rate whenever the reported median
// RTT exceeds twice the baseline. Repeated reports keep halving down
// to a floor of one token.
func (b *TokenBucket) AdjustForRTT(medianRTTms float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.baselineRTT <= 0 || medianRTTms <= 2*b.baselineRTT {
		return
	}
	b.capacity = max(1, b.capacity/2)
	b.rate /= 2
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
}
