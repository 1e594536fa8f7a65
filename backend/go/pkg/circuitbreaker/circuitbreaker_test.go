package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(failures, successes uint32, coolDown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(failures, successes, coolDown)
	b.now = clock.now
	return b, clock
}

var errUpstream = errors.New("upstream unavailable")

func fail() (int, error)    { return 0, errUpstream }
func succeed() (int, error) { return 42, nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(2, 1, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := Do(b, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
	if _, err := Do(b, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, 1, time.Minute)

	_, _ = Do(b, fail)
	_, _ = Do(b, succeed)
	_, _ = Do(b, fail)

	if b.State() != Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b, clock := newTestBreaker(1, 2, time.Second)

	_, _ = Do(b, fail)
	clock.advance(time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected Half-Open, got %s", b.State())
	}

	for i := 0; i < 2; i++ {
		v, err := Do(b, succeed)
		if err != nil || v != 42 {
			t.Fatalf("trial %d: got (%d, %v)", i, v, err)
		}
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed, got %s", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 1, time.Second)

	_, _ = Do(b, fail)
	clock.advance(2 * time.Second)
	_, _ = Do(b, fail)

	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
}

func TestBreakerHalfOpenAdmitsOneProbe(t *testing.T) {
	b, clock := newTestBreaker(1, 1, time.Second)
	_, _ = Do(b, fail)
	clock.advance(time.Second)

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Do(b, func() (int, error) {
			<-release
			return 1, nil
		})
	}()

	// wait until the probe holds the half-open slot
	for {
		b.mu.Lock()
		probing := b.probing
		b.mu.Unlock()
		if probing {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := Do(b, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected second half-open call to be rejected, got %v", err)
	}
	close(release)
	<-done
	if b.State() != Closed {
		t.Errorf("expected Closed after successful probe, got %s", b.State())
	}
}

func TestExecuteUntyped(t *testing.T) {
	b := New(1, 1, time.Minute)
	v, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("got (%v, %v)", v, err)
	}
}
