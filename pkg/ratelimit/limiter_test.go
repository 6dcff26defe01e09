package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(cfg Config) *Limiter {
	return NewLimiter(cfg, zerolog.Nop())
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := newTestLimiter(Config{})
	state := l.State()

	if state.Burst != 1 {
		t.Errorf("Burst = %d, want 1", state.Burst)
	}
	if state.IsPaused() {
		t.Error("New limiter should not be paused")
	}
}

func TestLimiter_WaitUnlimited(t *testing.T) {
	l := newTestLimiter(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() #%d error = %v", i, err)
		}
	}
}

func TestLimiter_PauseFromHeaders(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		wantMin    time.Duration
		wantMax    time.Duration
	}{
		{name: "no header", retryAfter: "", wantMin: 0, wantMax: 0},
		{name: "seconds", retryAfter: "3", wantMin: 3 * time.Second, wantMax: 3 * time.Second},
		{name: "http date ignored", retryAfter: "Wed, 21 Oct 2026 07:28:00 GMT", wantMin: 0, wantMax: 0},
		{name: "negative ignored", retryAfter: "-5", wantMin: 0, wantMax: 0},
		{name: "capped", retryAfter: "3600", wantMin: MaxPause, wantMax: MaxPause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLimiter(DefaultConfig())
			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}

			got := l.PauseFromHeaders(headers)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("PauseFromHeaders() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
			if (got > 0) != l.State().IsPaused() {
				t.Errorf("IsPaused() = %v after pause of %v", l.State().IsPaused(), got)
			}
		})
	}
}

func TestLimiter_PauseNeverShortens(t *testing.T) {
	l := newTestLimiter(DefaultConfig())

	l.Pause(time.Minute)
	l.Pause(time.Second)

	if remaining := l.State().TimeUntilResume(); remaining < 50*time.Second {
		t.Errorf("TimeUntilResume() = %v, want about 1m", remaining)
	}
}

func TestLimiter_WaitCancelledDuringPause(t *testing.T) {
	l := newTestLimiter(DefaultConfig())
	l.Pause(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() did not return promptly on cancellation")
	}
}

func TestState_TimeUntilResume(t *testing.T) {
	past := State{PausedUntil: time.Now().Add(-time.Minute)}
	if past.TimeUntilResume() != 0 {
		t.Errorf("TimeUntilResume() = %v, want 0", past.TimeUntilResume())
	}
	if past.IsPaused() {
		t.Error("Expired pause reported as active")
	}
}
