package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no entry is stored for the key.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt indicates an entry exists but cannot be parsed.
	// Readers treat it as a miss.
	ErrCorrupt = errors.New("cache entry corrupt")

	// ErrInvalidKeyInput indicates the request descriptor or key cannot be canonicalized.
	ErrInvalidKeyInput = errors.New("invalid cache key input")
)

// Store persists cache entries, one addressable unit per key.
type Store interface {
	// Get returns the stored entry, ErrNotFound, or ErrCorrupt.
	// Expired entries are still returned; freshness is the caller's decision.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Put replaces any entry for entry.Key. Readers never observe a partial write,
	// and a failed Put leaves the previous entry in place.
	Put(ctx context.Context, entry *Entry) error

	// Delete removes the entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// ListExpired returns the keys whose TTL had elapsed at the given time.
	ListExpired(ctx context.Context, now time.Time) ([]Key, error)

	// Purge removes every entry. It is the only global reset.
	Purge(ctx context.Context) error
}

// Stats summarizes the contents of a store.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Sweep deletes every entry that expired before now minus retention.
// It returns the number of deleted entries.
func Sweep(ctx context.Context, s Store, now time.Time, retention time.Duration) (int, error) {
	keys, err := s.ListExpired(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
