package cache

import "time"

// Freshness is the result of classifying a stored entry.
type Freshness int

const (
	// Expired entries must be refetched in full.
	Expired Freshness = iota

	// Stale entries are past their TTL but can be revalidated upstream.
	Stale

	// Fresh entries are served without contacting the upstream.
	Fresh
)

// String returns the lower-case name of the freshness state.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "expired"
	}
}

// Classify decides whether an entry can be served as-is, needs revalidation,
// or must be refetched.
//
// A TTL of zero (or a missing TTL) is never fresh. An entry is Stale rather
// than Expired only if it carries validation metadata and the loader supports
// conditional revalidation.
func Classify(entry *Entry, now time.Time, revalidationSupported bool) Freshness {
	if entry == nil {
		return Expired
	}

	if entry.TTLSeconds > 0 && entry.Age(now) < entry.TTL() {
		return Fresh
	}

	if revalidationSupported && entry.HasValidationMetadata() {
		return Stale
	}

	return Expired
}

// IsExpiredAt reports whether the entry's TTL has elapsed at the given time.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return e.TTLSeconds <= 0 || !now.Before(e.ExpiresAt())
}
