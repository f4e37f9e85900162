package cache

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	withMeta := map[string]string{MetaETag: `"abc"`}

	tests := []struct {
		name         string
		entry        *Entry
		now          time.Time
		revalidation bool
		want         Freshness
	}{
		{
			name:  "nil entry",
			entry: nil,
			now:   t0,
			want:  Expired,
		},
		{
			name:  "just written",
			entry: &Entry{StoredAt: t0, TTLSeconds: 3600},
			now:   t0,
			want:  Fresh,
		},
		{
			name:  "one second before expiry",
			entry: &Entry{StoredAt: t0, TTLSeconds: 3600},
			now:   t0.Add(3599 * time.Second),
			want:  Fresh,
		},
		{
			name:  "at expiry without metadata",
			entry: &Entry{StoredAt: t0, TTLSeconds: 3600},
			now:   t0.Add(3600 * time.Second),
			want:  Expired,
		},
		{
			name:         "at expiry with metadata and revalidation",
			entry:        &Entry{StoredAt: t0, TTLSeconds: 3600, ValidationMetadata: withMeta},
			now:          t0.Add(3600 * time.Second),
			revalidation: true,
			want:         Stale,
		},
		{
			name:         "metadata but loader cannot revalidate",
			entry:        &Entry{StoredAt: t0, TTLSeconds: 3600, ValidationMetadata: withMeta},
			now:          t0.Add(2 * time.Hour),
			revalidation: false,
			want:         Expired,
		},
		{
			name:         "empty metadata values",
			entry:        &Entry{StoredAt: t0, TTLSeconds: 60, ValidationMetadata: map[string]string{MetaETag: ""}},
			now:          t0.Add(time.Hour),
			revalidation: true,
			want:         Expired,
		},
		{
			name:  "missing ttl is never fresh",
			entry: &Entry{StoredAt: t0},
			now:   t0,
			want:  Expired,
		},
		{
			name:         "missing ttl with metadata is stale",
			entry:        &Entry{StoredAt: t0, ValidationMetadata: withMeta},
			now:          t0,
			revalidation: true,
			want:         Stale,
		},
		{
			name:  "stored in the future",
			entry: &Entry{StoredAt: t0.Add(time.Minute), TTLSeconds: 10},
			now:   t0,
			want:  Fresh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.entry, tt.now, tt.revalidation)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestClassify_FreshWindow checks every second of [t0, t0+T) is fresh and t0+T is not.
func TestClassify_FreshWindow(t *testing.T) {
	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	const ttl = 120
	entry := &Entry{StoredAt: t0, TTLSeconds: ttl}

	for s := 0; s < ttl; s++ {
		if got := Classify(entry, t0.Add(time.Duration(s)*time.Second), false); got != Fresh {
			t.Fatalf("t0+%ds classified %v, want fresh", s, got)
		}
	}
	for _, s := range []int{ttl, ttl + 1, 10 * ttl} {
		if got := Classify(entry, t0.Add(time.Duration(s)*time.Second), false); got == Fresh {
			t.Errorf("t0+%ds classified fresh", s)
		}
	}
}

func TestEntry_IsExpiredAt(t *testing.T) {
	t0 := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	entry := &Entry{StoredAt: t0, TTLSeconds: 60}

	if entry.IsExpiredAt(t0.Add(59 * time.Second)) {
		t.Error("entry should not be expired before its TTL")
	}
	if !entry.IsExpiredAt(t0.Add(60 * time.Second)) {
		t.Error("entry should be expired at its TTL")
	}
	if !(&Entry{StoredAt: t0}).IsExpiredAt(t0) {
		t.Error("entry without TTL is always expired")
	}
}

func TestFreshness_String(t *testing.T) {
	if Fresh.String() != "fresh" || Stale.String() != "stale" || Expired.String() != "expired" {
		t.Errorf("unexpected names: %s %s %s", Fresh, Stale, Expired)
	}
}
