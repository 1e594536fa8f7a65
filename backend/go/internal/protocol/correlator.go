package protocol

import (
	"fmt"
	"sync"

	ragerr "agentic_rag/backend/go/pkg/errors"
)

// Correlator routes responses arriving on an asynchronous channel back to the
// caller waiting on them, keyed by trace id and response type.
type Correlator struct {
	mu      sync.Mutex
	waiting map[lifecycleKey]chan Message
}

func NewCorrelator() *Correlator {
	return &Correlator{waiting: make(map[lifecycleKey]chan Message)}
}

// Register reserves the slot for one response. The returned cancel func must be
// called once the caller stops waiting. A second outstanding registration of the
// same key is refused.
func (c *Correlator) Register(traceID string, respType MessageType) (<-chan Message, func(), error) {
	key := lifecycleKey{trace: traceID, typ: respType}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.waiting[key]; busy {
		return nil, nil, ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("a %s for this trace is already awaited", respType),
			ragerr.FieldTraceID(traceID))
	}
	ch := make(chan Message, 1)
	c.waiting[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			if c.waiting[key] == ch {
				delete(c.waiting, key)
			}
			c.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Deliver hands m to its waiter. It reports false when nobody is waiting, which
// happens for late responses after a timeout.
func (c *Correlator) Deliver(m Message) bool {
	key := lifecycleKey{trace: m.TraceID, typ: m.Type}

	c.mu.Lock()
	ch, ok := c.waiting[key]
	if ok {
		delete(c.waiting, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- m
	return true
}

// Pending returns the number of outstanding registrations.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiting)
}
