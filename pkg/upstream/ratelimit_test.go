package upstream

import (
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(now time.Time) *RateLimiter {
	r := NewRateLimiter(zerolog.Nop())
	r.now = func() time.Time { return now }
	return r
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 8, 22, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"seconds", "120", 120 * time.Second, true},
		{"zero", "0", 0, true},
		{"padded", " 5 ", 5 * time.Second, true},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"past http date", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"empty", "", 0, false},
		{"negative", "-3", 0, false},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRateLimitState(t *testing.T) {
	now := time.Now()
	state := RateLimitState{BlockedUntil: now.Add(10 * time.Second)}

	if !state.IsBlocked(now) {
		t.Error("state should be blocked before BlockedUntil")
	}
	if got := state.TimeUntilReset(now); got != 10*time.Second {
		t.Errorf("TimeUntilReset = %v, want 10s", got)
	}
	if state.IsBlocked(now.Add(11 * time.Second)) {
		t.Error("state should not be blocked after BlockedUntil")
	}
	if got := state.TimeUntilReset(now.Add(time.Minute)); got != 0 {
		t.Errorf("TimeUntilReset after window = %v, want 0", got)
	}
}

func TestRateLimiter_UpdateFromResponse(t *testing.T) {
	now := time.Date(2025, 8, 22, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		status      int
		retryAfter  string
		wantBlocked bool
		wantWait    time.Duration
	}{
		{"200 is ignored", http.StatusOK, "60", false, 0},
		{"429 with Retry-After", http.StatusTooManyRequests, "60", true, 60 * time.Second},
		{"429 without Retry-After uses default", http.StatusTooManyRequests, "", true, DefaultRetryAfter},
		{"503 with Retry-After", http.StatusServiceUnavailable, "15", true, 15 * time.Second},
		{"503 without Retry-After is ignored", http.StatusServiceUnavailable, "", false, 0},
		{"500 is ignored", http.StatusInternalServerError, "60", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestLimiter(now)
			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}

			r.UpdateFromResponse(tt.status, headers)

			allowed, wait := r.Allow()
			if allowed == tt.wantBlocked {
				t.Errorf("Allow() = %v, want %v", allowed, !tt.wantBlocked)
			}
			if wait != tt.wantWait {
				t.Errorf("wait = %v, want %v", wait, tt.wantWait)
			}
		})
	}
}

func TestRateLimiter_WindowOnlyExtends(t *testing.T) {
	now := time.Date(2025, 8, 22, 12, 0, 0, 0, time.UTC)
	r := newTestLimiter(now)

	long := http.Header{}
	long.Set("Retry-After", "120")
	short := http.Header{}
	short.Set("Retry-After", "5")

	r.UpdateFromResponse(http.StatusTooManyRequests, long)
	r.UpdateFromResponse(http.StatusTooManyRequests, short)

	if got := r.State().TimeUntilReset(now); got != 120*time.Second {
		t.Errorf("window = %v, want 120s", got)
	}
}

func TestRateLimiter_ReopensAfterWindow(t *testing.T) {
	now := time.Date(2025, 8, 22, 12, 0, 0, 0, time.UTC)
	r := newTestLimiter(now)

	h := http.Header{}
	h.Set("Retry-After", "30")
	r.UpdateFromResponse(http.StatusTooManyRequests, h)

	r.now = func() time.Time { return now.Add(31 * time.Second) }
	if allowed, _ := r.Allow(); !allowed {
		t.Error("gate should reopen once the window passes")
	}
	if r.State().StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", r.State().StatusCode)
	}
}
