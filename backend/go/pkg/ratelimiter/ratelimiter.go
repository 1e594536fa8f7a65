package ratelimiter

import (
	"fmt"
	"time"
)

// RateLimiter decides whether one more request may proceed now.
type RateLimiter interface {
	Allow() bool
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

// Algorithm names accepted by FromConfig.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmLeakyBucket   = "leaky_bucket"
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmSlidingLog    = "sliding_log"
)

// Config selects and sizes a limiter. Rate and Capacity drive the bucket
// algorithms. Capacity, Window and Buckets drive the window algorithms.
type Config struct {
	Enabled   bool
	Algorithm string
	Rate      float64 // bucket algorithms, requests per second
	Capacity  int     // burst size, or requests per window
	Window    time.Duration
	Buckets   int // sliding_window only
}

// FromConfig builds the configured limiter. A disabled config yields Unlimited.
func FromConfig(cfg Config) (RateLimiter, error) {
	if !cfg.Enabled {
		return Unlimited{}, nil
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("rate limiter capacity must be positive, got %d", cfg.Capacity)
	}

	switch cfg.Algorithm {
	case "", AlgorithmTokenBucket, AlgorithmLeakyBucket:
		if cfg.Rate <= 0 {
			return nil, fmt.Errorf("rate limiter rate must be positive, got %v", cfg.Rate)
		}
		if cfg.Algorithm == AlgorithmLeakyBucket {
			return NewLeakyBucket(cfg.Rate, cfg.Capacity), nil
		}
		return NewTokenBucket(cfg.Rate, cfg.Capacity), nil
	case AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmSlidingLog:
		if cfg.Window <= 0 {
			return nil, fmt.Errorf("rate limiter window must be positive, got %s", cfg.Window)
		}
		switch cfg.Algorithm {
		case AlgorithmFixedWindow:
			return NewFixedWindowCounter(cfg.Capacity, cfg.Window), nil
		case AlgorithmSlidingWindow:
			return NewSlidingWindowCounter(cfg.Capacity, cfg.Window, cfg.Buckets), nil
		default:
			return NewSlidingWindowLog(cfg.Capacity, cfg.Window), nil
		}
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm %q", cfg.Algorithm)
	}
}

var (
	_ RateLimiter = (*TokenBucket)(nil)
	_ RateLimiter = (*LeakyBucket)(nil)
	_ RateLimiter = (*FixedWindowCounter)(nil)
	_ RateLimiter = (*SlidingWindowCounter)(nil)
	_ RateLimiter = (*SlidingWindowLog)(nil)
)
