package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
	"golang.org/x/time/rate"
)

// Limiter paces outbound requests. One instance is shared by every worker.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter builds the limiter selected by cfg.RateMode.
func NewLimiter(cfg *config.Config) (Limiter, error) {
	switch cfg.RateMode {
	case "", config.RateModeFixed:
		return NewFixedDelay(cfg.Delay), nil
	case config.RateModeWindow:
		return NewSlidingWindow(cfg.WindowRequests, cfg.Window), nil
	case config.RateModeToken:
		return NewTokenBucket(cfg.WindowRequests, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate mode %q", cfg.RateMode)
	}
}

// FixedDelay spaces consecutive requests at least delay apart.
type FixedDelay struct {
	delay time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewFixedDelay returns a limiter spacing requests delay apart.
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay}
}

// Wait blocks until the next free slot.
func (f *FixedDelay) Wait(ctx context.Context) error {
	f.mu.Lock()
	now := time.Now()
	slot := f.next
	if slot.Before(now) {
		slot = now
	}
	f.next = slot.Add(f.delay)
	f.mu.Unlock()

	return sleepContext(ctx, time.Until(slot))
}

// SlidingWindow admits at most maxRequests calls in any trailing window.
type SlidingWindow struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

// NewSlidingWindow admits maxRequests calls per window, at least one.
func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &SlidingWindow{maxRequests: maxRequests, window: window, now: time.Now}
}

// Wait blocks until fewer than maxRequests calls fall inside the window, then
// records the current call.
func (w *SlidingWindow) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		w.evict(now)
		if len(w.calls) < w.maxRequests {
			w.calls = append(w.calls, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.calls[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}

func (w *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	w.calls = w.calls[i:]
}

// TokenBucket spreads requests evenly at n per window.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket admits n requests per window with a burst of one.
func NewTokenBucket(n int, window time.Duration) *TokenBucket {
	if n < 1 {
		n = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(n)), 1)}
}

// Wait blocks until a token is available.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
