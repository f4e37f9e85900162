package upstream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harshcurious/fpl-analytics/internal/testutil"
	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/harshcurious/fpl-analytics/pkg/fetch"
	"github.com/rs/zerolog"
)

func TestFingerprint(t *testing.T) {
	if got := Fingerprint([]byte(testutil.BootstrapStaticJSON)); got != "2025-08-01T11:58:12Z" {
		t.Errorf("bootstrap fingerprint = %q, want last_updated stamp", got)
	}

	fixtures := Fingerprint([]byte(testutil.FixturesJSON))
	if !strings.HasPrefix(fixtures, "sha256:") {
		t.Errorf("fixtures fingerprint = %q, want sha256 digest", fixtures)
	}
	if fixtures != Fingerprint([]byte(testutil.FixturesJSON)) {
		t.Error("fingerprint should be deterministic")
	}
	if fixtures == Fingerprint([]byte(`[]`)) {
		t.Error("different bodies should have different fingerprints")
	}
}

func TestEndpointLoader_Key(t *testing.T) {
	l := NewEndpointLoader(nil, "bootstrap-static", nil)
	got, err := l.Key()
	if err != nil {
		t.Fatal(err)
	}
	want, _ := cache.KeyForEndpoint("bootstrap-static", nil)
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestEndpointLoader_FetchFull(t *testing.T) {
	mock := testutil.NewFPL()
	defer mock.Close()

	l := NewEndpointLoader(newTestClient(t, mock), "bootstrap-static", nil)
	p, err := l.FetchFull(context.Background())
	if err != nil {
		t.Fatalf("FetchFull() error = %v", err)
	}

	if string(p.Data) != testutil.BootstrapStaticJSON {
		t.Error("payload mismatch")
	}
	if p.Metadata[cache.MetaETag] != `"bootstrap-v1"` {
		t.Errorf("etag = %q", p.Metadata[cache.MetaETag])
	}
	if p.Metadata[cache.MetaFingerprint] != "2025-08-01T11:58:12Z" {
		t.Errorf("fingerprint = %q", p.Metadata[cache.MetaFingerprint])
	}
}

func TestEndpointLoader_FetchFull_InvalidPayload(t *testing.T) {
	mock := testutil.NewMockFPL()
	defer mock.Close()
	mock.SetResponse("/bootstrap-static/", testutil.NewMaintenanceResponse())

	l := NewEndpointLoader(newTestClient(t, mock), "bootstrap-static", nil)
	if _, err := l.FetchFull(context.Background()); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestEndpointLoader_Revalidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*testutil.MockFPL)
		meta        map[string]string
		wantChanged bool
		wantPayload bool
	}{
		{
			name:  "304 is unchanged",
			setup: func(m *testutil.MockFPL) {},
			meta:  map[string]string{cache.MetaETag: `"bootstrap-v1"`},
		},
		{
			name: "same fingerprint without validators is unchanged",
			setup: func(m *testutil.MockFPL) {
				m.SetResponse("/bootstrap-static/", testutil.MockResponse{StatusCode: 200, Body: testutil.BootstrapStaticJSON})
			},
			meta: map[string]string{cache.MetaFingerprint: "2025-08-01T11:58:12Z"},
		},
		{
			name:        "different fingerprint is changed",
			setup:       func(m *testutil.MockFPL) {},
			meta:        map[string]string{cache.MetaETag: `"bootstrap-v0"`, cache.MetaFingerprint: "2025-07-30T09:00:00Z"},
			wantChanged: true,
			wantPayload: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewFPL()
			defer mock.Close()
			tt.setup(mock)

			l := NewEndpointLoader(newTestClient(t, mock), "bootstrap-static", nil)
			rv, err := l.Revalidate(context.Background(), tt.meta)
			if err != nil {
				t.Fatalf("Revalidate() error = %v", err)
			}
			if rv.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", rv.Changed, tt.wantChanged)
			}
			if (rv.Payload != nil) != tt.wantPayload {
				t.Errorf("Payload present = %v, want %v", rv.Payload != nil, tt.wantPayload)
			}
		})
	}
}

func TestEndpointLoader_WithOrchestrator(t *testing.T) {
	mock := testutil.NewFPL()
	defer mock.Close()

	store, err := cache.NewFileStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	o := fetch.New(store)

	l := NewEndpointLoader(newTestClient(t, mock), "fixtures", nil)
	key, err := l.Key()
	if err != nil {
		t.Fatal(err)
	}

	first, err := o.Fetch(context.Background(), key, l)
	if err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	second, err := o.Fetch(context.Background(), key, l)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	if first.Origin != fetch.OriginUpstream || second.Origin != fetch.OriginCache {
		t.Errorf("origins = %v, %v; want upstream, cache", first.Origin, second.Origin)
	}
	if mock.GetPathCount("/fixtures/") != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.GetPathCount("/fixtures/"))
	}
}
