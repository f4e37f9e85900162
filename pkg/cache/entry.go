package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// DefaultTTL is the validity window applied when the caller does not choose one.
const DefaultTTL = time.Hour

// Validation metadata keys understood by the upstream loaders.
const (
	// MetaETag holds the entity tag for If-None-Match revalidation.
	MetaETag = "etag"

	// MetaLastModified holds the Last-Modified header value for If-Modified-Since revalidation.
	MetaLastModified = "last_modified"

	// MetaFingerprint holds an upstream content fingerprint (e.g. the FPL "last_updated" stamp).
	MetaFingerprint = "fingerprint"
)

// Entry is a single cached payload with its freshness information.
// Entries are replaced as a whole; nothing updates a stored entry in place.
type Entry struct {
	// Key is the derived cache key.
	Key Key `json:"key"`

	// Payload is the caller's data; the cache never interprets it.
	Payload json.RawMessage `json:"payload"`

	// StoredAt is when the entry was written (or last revalidated).
	StoredAt time.Time `json:"stored_at"`

	// TTLSeconds is the validity window chosen at write time.
	// A missing value decodes to 0, which is never fresh.
	TTLSeconds int `json:"ttl_seconds"`

	// ValidationMetadata holds upstream freshness hints (etag, last_modified, fingerprint).
	ValidationMetadata map[string]string `json:"validation_metadata,omitempty"`
}

// NewEntry creates an entry stored at the given time.
// The payload is kept in compact form, which is also the form it is persisted
// and read back in.
func NewEntry(key Key, payload json.RawMessage, storedAt time.Time, ttl time.Duration, meta map[string]string) *Entry {
	return &Entry{
		Key:                key,
		Payload:            compactJSON(payload),
		StoredAt:           storedAt.UTC(),
		TTLSeconds:         int(ttl / time.Second),
		ValidationMetadata: maps.Clone(meta),
	}
}

// TTL returns the validity window as a duration.
func (e *Entry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// ExpiresAt returns the moment the entry stops being fresh.
func (e *Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL())
}

// Age returns how long ago the entry was stored. Never negative.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age
}

// HasValidationMetadata reports whether the entry carries any non-empty freshness hint.
func (e *Entry) HasValidationMetadata() bool {
	for _, v := range e.ValidationMetadata {
		if v != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Payload = bytes.Clone(e.Payload)
	c.ValidationMetadata = maps.Clone(e.ValidationMetadata)
	return &c
}

// WithStoredAt returns a copy with StoredAt moved to now, renewing the TTL.
// Non-empty values in meta are merged over the existing metadata.
func (e *Entry) WithStoredAt(now time.Time, meta map[string]string) *Entry {
	c := e.Clone()
	c.StoredAt = now.UTC()
	for k, v := range meta {
		if v == "" {
			continue
		}
		if c.ValidationMetadata == nil {
			c.ValidationMetadata = make(map[string]string, len(meta))
		}
		c.ValidationMetadata[k] = v
	}
	return c
}

func compactJSON(payload json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return bytes.Clone(payload)
	}
	return buf.Bytes()
}

// encodeEntry serializes an entry to its on-disk document.
func encodeEntry(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}
	if !e.Key.Valid() {
		return nil, fmt.Errorf("%w: malformed key %q", ErrInvalidKeyInput, e.Key)
	}
	if !json.Valid(e.Payload) {
		return nil, fmt.Errorf("cache entry payload is not valid JSON")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEntry parses a stored document. Anything that does not describe a
// complete entry for key is reported as ErrCorrupt.
func decodeEntry(key Key, data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entry.Key != key {
		return nil, fmt.Errorf("%w: key mismatch (stored %q)", ErrCorrupt, entry.Key)
	}
	if entry.StoredAt.IsZero() || len(entry.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing stored_at or payload", ErrCorrupt)
	}
	return &entry, nil
}
