package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"maps"
	"net/url"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
)

// ErrInvalidPayload is returned when the upstream answers 200 with a body
// that is not JSON (maintenance pages, captive portals).
var ErrInvalidPayload = errors.New("upstream returned a non-JSON body")

// EndpointLoader loads one API endpoint for the orchestrator.
// Every payload it returns carries a content fingerprint, so cached entries
// can always be revalidated.
type EndpointLoader struct {
	Client   *Client
	Endpoint string
	Query    url.Values
}

// NewEndpointLoader creates a loader for endpoint with optional query parameters.
func NewEndpointLoader(client *Client, endpoint string, query url.Values) *EndpointLoader {
	return &EndpointLoader{Client: client, Endpoint: endpoint, Query: query}
}

// Key derives the cache key for the loader's request.
func (l *EndpointLoader) Key() (cache.Key, error) {
	return cache.KeyForEndpoint(l.Endpoint, l.Query)
}

// FetchFull implements fetch.Loader.
func (l *EndpointLoader) FetchFull(ctx context.Context) (fetch.Payload, error) {
	resp, err := l.Client.Get(ctx, l.Endpoint, l.Query, nil)
	if err != nil {
		return fetch.Payload{}, err
	}
	if !json.Valid(resp.Body) {
		return fetch.Payload{}, ErrInvalidPayload
	}
	return fetch.Payload{Data: resp.Body, Metadata: responseMetadata(resp)}, nil
}

// Revalidate implements fetch.Revalidator. A 304, or a 200 whose fingerprint
// matches the cached one, reports the entry unchanged. A changed 200 carries
// the new payload so no second request is needed.
func (l *EndpointLoader) Revalidate(ctx context.Context, meta map[string]string) (fetch.Revalidation, error) {
	resp, err := l.Client.Get(ctx, l.Endpoint, l.Query, meta)
	if err != nil {
		return fetch.Revalidation{}, err
	}

	if resp.NotModified() {
		return fetch.Unchanged(resp.Metadata), nil
	}
	if !json.Valid(resp.Body) {
		return fetch.Revalidation{}, ErrInvalidPayload
	}

	fresh := responseMetadata(resp)
	if old := meta[cache.MetaFingerprint]; old != "" && old == fresh[cache.MetaFingerprint] {
		return fetch.Unchanged(fresh), nil
	}
	return fetch.Changed(&fetch.Payload{Data: resp.Body, Metadata: fresh}), nil
}

func responseMetadata(resp *Response) map[string]string {
	meta := maps.Clone(resp.Metadata)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[cache.MetaFingerprint] = Fingerprint(resp.Body)
	return meta
}

// Fingerprint identifies a payload's content. For documents with a top-level
// "last_updated" string (bootstrap-static) that stamp is used; otherwise a
// SHA-256 of the body.
func Fingerprint(body []byte) string {
	var probe struct {
		LastUpdated string `json:"last_updated"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.LastUpdated != "" {
		return probe.LastUpdated
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}
