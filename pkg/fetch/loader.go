package fetch

import (
	"context"
	"encoding/json"
)

// Payload is what a loader returns from the upstream: the JSON document and
// the freshness hints that allow a later conditional revalidation.
type Payload struct {
	Data     json.RawMessage
	Metadata map[string]string
}

// Loader fetches the full current value for one logical request.
type Loader interface {
	FetchFull(ctx context.Context) (Payload, error)
}

// Revalidator is implemented by loaders that can cheaply confirm whether a
// cached value is still current. It is optional; loaders without it always
// refetch in full once the TTL elapses.
type Revalidator interface {
	Revalidate(ctx context.Context, meta map[string]string) (Revalidation, error)
}

// Revalidation is the answer of a revalidation call.
type Revalidation struct {
	// Changed reports that the cached value is no longer current.
	Changed bool

	// Payload optionally carries the new value when Changed is true.
	// Without it the orchestrator performs a full fetch.
	Payload *Payload

	// Metadata holds refreshed hints when the value is unchanged.
	// Non-empty values are merged into the stored entry.
	Metadata map[string]string
}

// Unchanged reports that the cached value is still current.
func Unchanged(meta map[string]string) Revalidation {
	return Revalidation{Metadata: meta}
}

// Changed reports a new value. p may be nil.
func Changed(p *Payload) Revalidation {
	return Revalidation{Changed: true, Payload: p}
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (Payload, error)

// FetchFull calls f(ctx).
func (f LoaderFunc) FetchFull(ctx context.Context) (Payload, error) {
	return f(ctx)
}
