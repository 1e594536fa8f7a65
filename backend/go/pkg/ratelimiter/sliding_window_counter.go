package ratelimiter

import (
	"sync"
	"time"
)

// SlidingWindowCounter splits the window into buckets and admits a request
// while the sum over all buckets is below limit.
type SlidingWindowCounter struct {
	limit      int
	numBuckets int
	bucketSize time.Duration
	buckets    []int
	current    int
	lastUpdate time.Time
	now        func() time.Time
	mutex      sync.Mutex
}

// NewSlidingWindowCounter uses 10 buckets when numBuckets is not positive.
func NewSlidingWindowCounter(limit int, window time.Duration, numBuckets int) *SlidingWindowCounter {
	if numBuckets <= 0 {
		numBuckets = 10
	}
	bucketSize := window / time.Duration(numBuckets)
	if bucketSize <= 0 {
		bucketSize = time.Nanosecond
	}
	swc := &SlidingWindowCounter{
		limit:      limit,
		numBuckets: numBuckets,
		bucketSize: bucketSize,
		buckets:    make([]int, numBuckets),
		now:        time.Now,
	}
	swc.lastUpdate = swc.now()
	return swc
}

// slide clears the buckets that fell out of the window. Caller holds the mutex.
func (swc *SlidingWindowCounter) slide() {
	steps := int(swc.now().Sub(swc.lastUpdate) / swc.bucketSize)
	if steps <= 0 {
		return
	}
	if steps >= swc.numBuckets {
		for i := range swc.buckets {
			swc.buckets[i] = 0
		}
	} else {
		for i := 1; i <= steps; i++ {
			swc.buckets[(swc.current+i)%swc.numBuckets] = 0
		}
	}
	swc.current = (swc.current + steps) % swc.numBuckets
	// Advance by whole buckets so partial progress is not lost.
	swc.lastUpdate = swc.lastUpdate.Add(time.Duration(steps) * swc.bucketSize)
}

func (swc *SlidingWindowCounter) Allow() bool {
	swc.mutex.Lock()
	defer swc.mutex.Unlock()

	swc.slide()

	total := 0
	for _, n := range swc.buckets {
		total += n
	}
	if total < swc.limit {
		swc.buckets[swc.current]++
		return true
	}
	return false
}
