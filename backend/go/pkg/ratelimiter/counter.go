package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindowCounter admits up to limit requests per fixed window.
type FixedWindowCounter struct {
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
	mutex       sync.Mutex
}

func NewFixedWindowCounter(limit int, window time.Duration) *FixedWindowCounter {
	fwc := &FixedWindowCounter{limit: limit, window: window, now: time.Now}
	fwc.windowStart = fwc.now()
	return fwc
}

// Allow starts a new window once the current one has passed.
func (fwc *FixedWindowCounter) Allow() bool {
	fwc.mutex.Lock()
	defer fwc.mutex.Unlock()

	now := fwc.now()
	if !now.Before(fwc.windowStart.Add(fwc.window)) {
		fwc.windowStart = now
		fwc.count = 0
	}

	if fwc.count < fwc.limit {
		fwc.count++
		return true
	}
	return false
}
