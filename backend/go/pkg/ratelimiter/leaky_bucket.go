package ratelimiter

import (
	"sync"
	"time"
)

// LeakyBucket drains at a steady rate and rejects requests while it is full.
// Unlike TokenBucket it starts empty, so it also admits an initial burst of capacity.
type LeakyBucket struct {
	rate       float64 // drained requests per second
	capacity   float64
	waterLevel float64
	lastLeak   time.Time
	now        func() time.Time
	mutex      sync.Mutex
}

func NewLeakyBucket(rate float64, capacity int) *LeakyBucket {
	lb := &LeakyBucket{rate: rate, capacity: float64(capacity), now: time.Now}
	lb.lastLeak = lb.now()
	return lb
}

func (lb *LeakyBucket) Allow() bool {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	now := lb.now()
	if elapsed := now.Sub(lb.lastLeak); elapsed > 0 {
		lb.waterLevel -= elapsed.Seconds() * lb.rate
		if lb.waterLevel < 0 {
			lb.waterLevel = 0
		}
		lb.lastLeak = now
	}

	if lb.waterLevel+1 <= lb.capacity {
		lb.waterLevel++
		return true
	}
	return false
}
