package ratelimiter

import (
	"container/list"
	"sync"
	"time"
)

// SlidingWindowLog keeps the timestamp of every admitted request in the last window.
type SlidingWindowLog struct {
	limit  int
	window time.Duration
	log    *list.List
	now    func() time.Time
	mutex  sync.Mutex
}

func NewSlidingWindowLog(limit int, window time.Duration) *SlidingWindowLog {
	return &SlidingWindowLog{limit: limit, window: window, log: list.New(), now: time.Now}
}

func (swl *SlidingWindowLog) Allow() bool {
	swl.mutex.Lock()
	defer swl.mutex.Unlock()

	now := swl.now()
	boundary := now.Add(-swl.window)
	// Timestamps are ordered, the first one inside the window ends the scan.
	for e := swl.log.Front(); e != nil && !e.Value.(time.Time).After(boundary); e = swl.log.Front() {
		swl.log.Remove(e)
	}

	if swl.log.Len() < swl.limit {
		swl.log.PushBack(now)
		return true
	}
	return false
}
