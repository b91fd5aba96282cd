package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
)

func TestSlidingWindowBlocksWhenFull(t *testing.T) {
	window := 100 * time.Millisecond
	w := NewSlidingWindow(2, window)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := w.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > window/2 {
		t.Fatalf("first calls should not block, took %v", elapsed)
	}

	if err := w.Wait(ctx); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window-10*time.Millisecond {
		t.Fatalf("third call admitted after %v, want about %v", elapsed, window)
	}
}

func TestSlidingWindowEvictsOldCalls(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(1, time.Second)
	w.now = func() time.Time { return now }

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	now = now.Add(2 * time.Second)
	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(w.calls) != 1 || !w.calls[0].Equal(now) {
		t.Fatalf("calls = %v, want only the latest", w.calls)
	}
}

func TestSlidingWindowHonorsCancel(t *testing.T) {
	w := NewSlidingWindow(1, time.Hour)
	_ = w.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestFixedDelaySpacing(t *testing.T) {
	delay := 30 * time.Millisecond
	f := NewFixedDelay(delay)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := f.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Fatalf("three calls took %v, want at least %v", elapsed, 2*delay)
	}
}

func TestNewLimiterModes(t *testing.T) {
	tests := []struct {
		mode    string
		check   func(Limiter) bool
		wantErr bool
	}{
		{mode: config.RateModeFixed, check: func(l Limiter) bool { _, ok := l.(*FixedDelay); return ok }},
		{mode: config.RateModeWindow, check: func(l Limiter) bool { _, ok := l.(*SlidingWindow); return ok }},
		{mode: config.RateModeToken, check: func(l Limiter) bool { _, ok := l.(*TokenBucket); return ok }},
		{mode: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.RateMode = tt.mode
			l, err := NewLimiter(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !tt.check(l) {
				t.Fatalf("unexpected limiter %T", l)
			}
		})
	}
}
