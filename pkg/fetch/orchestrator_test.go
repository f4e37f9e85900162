package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/harshcurious/fpl-analytics/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingLoader returns a fixed payload or error and counts calls.
type countingLoader struct {
	calls atomic.Int32
	data  string
	meta  map[string]string
	err   error
}

func (l *countingLoader) FetchFull(context.Context) (Payload, error) {
	l.calls.Add(1)
	if l.err != nil {
		return Payload{}, l.err
	}
	return Payload{Data: json.RawMessage(l.data), Metadata: l.meta}, nil
}

// revalidatingLoader adds a scripted Revalidate to countingLoader.
type revalidatingLoader struct {
	countingLoader
	revalidations atomic.Int32
	gotMeta       map[string]string
	result        Revalidation
	revalErr      error
}

func (l *revalidatingLoader) Revalidate(_ context.Context, meta map[string]string) (Revalidation, error) {
	l.revalidations.Add(1)
	l.gotMeta = meta
	return l.result, l.revalErr
}

func newTestOrchestrator(t *testing.T, clock *fakeClock) (*Orchestrator, *cache.FileStore) {
	t.Helper()
	store, err := cache.NewFileStoreFS(memfs.New(), zerolog.Nop())
	require.NoError(t, err)
	return New(store, WithClock(clock.Now), WithLogger(zerolog.Nop())), store
}

func mustKey(t *testing.T, namespace string, params ...cache.Param) cache.Key {
	t.Helper()
	key, err := cache.DeriveKey(namespace, params...)
	require.NoError(t, err)
	return key
}

func TestFetch_PlayersScenario(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	orch, _ := newTestOrchestrator(t, clock)
	key := mustKey(t, "players")

	loader := &countingLoader{data: `{"count":600}`}

	// t=0: miss, loaded from upstream
	res, err := orch.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":600}`, string(res.Payload))
	assert.Equal(t, OriginUpstream, res.Origin)
	assert.False(t, res.Stale)
	assert.EqualValues(t, 1, loader.calls.Load())

	// t=10: fresh hit, no loader call
	clock.Advance(10 * time.Second)
	res, err = orch.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":600}`, string(res.Payload))
	assert.Equal(t, OriginCache, res.Origin)
	assert.False(t, res.Stale)
	assert.EqualValues(t, 1, loader.calls.Load())

	// t=4000: expired, loader fails, stale payload served
	clock.Advance(3990 * time.Second)
	failing := &countingLoader{err: errors.New("connection refused")}
	res, err = orch.Fetch(ctx, key, failing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":600}`, string(res.Payload))
	assert.True(t, res.Stale)
	assert.Equal(t, OriginCache, res.Origin)
	assert.EqualError(t, res.UpstreamErr, "connection refused")
	assert.EqualValues(t, 1, failing.calls.Load())

	// t=4000, nothing cached for this key: unavailable
	other := mustKey(t, "players", cache.P("team", 1))
	_, err = orch.Fetch(ctx, other, failing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, other, upErr.Key)
	assert.EqualError(t, errors.Unwrap(err), "connection refused")
}

func TestFetch_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	orch, store := newTestOrchestrator(t, clock)
	key := mustKey(t, "teams")

	_, err := orch.Fetch(ctx, key, &countingLoader{data: `[]`})
	require.NoError(t, err)

	entry, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3600, entry.TTLSeconds)
	assert.True(t, entry.StoredAt.Equal(clock.Now()))

	key2 := mustKey(t, "fixtures")
	_, err = orch.Fetch(ctx, key2, &countingLoader{data: `[]`}, WithTTL(5*time.Minute))
	require.NoError(t, err)

	entry, err = store.Get(ctx, key2)
	require.NoError(t, err)
	assert.Equal(t, 300, entry.TTLSeconds)
}

func TestFetch_WithoutStaleFallback(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	orch, _ := newTestOrchestrator(t, clock)
	key := mustKey(t, "fixtures")

	_, err := orch.Fetch(ctx, key, &countingLoader{data: `[1]`}, WithTTL(time.Minute))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	failing := &countingLoader{err: errors.New("503")}
	_, err = orch.Fetch(ctx, key, failing, WithoutStaleFallback())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	// The entry is still there for callers that accept stale data
	res, err := orch.Fetch(ctx, key, failing)
	require.NoError(t, err)
	assert.True(t, res.Stale)
}

func TestFetch_SingleFlight(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	orch, _ := newTestOrchestrator(t, clock)
	key := mustKey(t, "bootstrap-static")

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	loader := LoaderFunc(func(context.Context) (Payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Payload{Data: json.RawMessage(`{"events":[1,2,3]}`)}, nil
	})

	const n = 20
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = orch.Fetch(ctx, key, loader)
		}(i)
	}

	<-started
	// Let the remaining callers attach before the load settles
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, `{"events":[1,2,3]}`, string(results[i].Payload))
	}

	// Each caller owns its payload bytes
	results[0].Payload[0] = 'X'
	assert.Equal(t, byte('{'), results[1].Payload[0])
}

func TestFetch_SingleFlightFailureShared(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	orch, _ := newTestOrchestrator(t, clock)
	key := mustKey(t, "element-summary", cache.P("player_id", 302))

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	loader := LoaderFunc(func(context.Context) (Payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Payload{}, errors.New("upstream timeout")
	})

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.Fetch(ctx, key, loader)
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	}
}

func TestFetch_CancelledWaiterDoesNotCancelFlight(t *testing.T) {
	clock := newFakeClock()
	orch, _ := newTestOrchestrator(t, clock)
	key := mustKey(t, "fixtures", cache.P("event", 12))

	release := make(chan struct{})
	started := make(chan struct{})
	var loaderCancelled atomic.Bool
	var calls atomic.Int32
	loader := LoaderFunc(func(ctx context.Context) (Payload, error) {
		calls.Add(1)
		close(started)
		<-release
		loaderCancelled.Store(ctx.Err() != nil)
		return Payload{Data: json.RawMessage(`[{"id":1}]`)}, nil
	})

	cancelCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := orch.Fetch(cancelCtx, key, loader)
		firstErr <- err
	}()

	<-started
	secondRes := make(chan *Result, 1)
	go func() {
		res, err := orch.Fetch(context.Background(), key, loader)
		assert.NoError(t, err)
		secondRes <- res
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-secondRes
	require.NotNil(t, res)
	assert.Equal(t, `[{"id":1}]`, string(res.Payload))
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, loaderCancelled.Load(), "shared flight must not observe the waiter's cancellation")
}

func TestFetch_AlreadyCancelled(t *testing.T) {
	orch, _ := newTestOrchestrator(t, newFakeClock())
	loader := &countingLoader{data: `{}`}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Fetch(ctx, mustKey(t, "teams"), loader)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 0, loader.calls.Load())
}

func TestFetch_WithTimeout(t *testing.T) {
	orch, _ := newTestOrchestrator(t, newFakeClock())

	loader := LoaderFunc(func(ctx context.Context) (Payload, error) {
		<-ctx.Done()
		return Payload{}, ctx.Err()
	})

	_, err := orch.Fetch(context.Background(), mustKey(t, "slow"), loader, WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_CorruptEntryRepopulated(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	fs := memfs.New()
	store, err := cache.NewFileStoreFS(fs, zerolog.Nop())
	require.NoError(t, err)
	orch := New(store, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	key := mustKey(t, "players")

	loader := &countingLoader{data: `{"count":600}`}
	_, err = orch.Fetch(ctx, key, loader)
	require.NoError(t, err)

	// Truncate the stored document
	path := fs.Join("entries", key.String()+".json")
	data, err := util.ReadFile(fs, path)
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(fs, path, data[:len(data)/2], 0o640))

	_, err = store.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrCorrupt)

	res, err := orch.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.Equal(t, OriginUpstream, res.Origin)
	assert.JSONEq(t, `{"count":600}`, string(res.Payload))
	assert.EqualValues(t, 2, loader.calls.Load())

	entry, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":600}`, string(entry.Payload))
}

func TestFetch_CorruptEntryAndFailingLoader(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	store, err := cache.NewFileStoreFS(fs, zerolog.Nop())
	require.NoError(t, err)
	orch := New(store, WithLogger(zerolog.Nop()))
	key := mustKey(t, "players")

	require.NoError(t, util.WriteFile(fs, fs.Join("entries", key.String()+".json"), []byte(`{"key":`), 0o640))

	_, err = orch.Fetch(ctx, key, &countingLoader{err: errors.New("down")})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFetch_Revalidation(t *testing.T) {
	ctx := context.Background()
	meta := map[string]string{cache.MetaETag: `"v1"`}

	seed := func(t *testing.T) (*Orchestrator, *cache.FileStore, *fakeClock, cache.Key) {
		clock := newFakeClock()
		orch, store := newTestOrchestrator(t, clock)
		key := mustKey(t, "bootstrap-static")
		_, err := orch.Fetch(ctx, key, &countingLoader{data: `{"v":1}`, meta: meta}, WithTTL(time.Minute))
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)
		return orch, store, clock, key
	}

	t.Run("unchanged renews entry", func(t *testing.T) {
		orch, store, clock, key := seed(t)
		loader := &revalidatingLoader{
			countingLoader: countingLoader{data: `{"v":2}`},
			result:         Unchanged(map[string]string{cache.MetaLastModified: "Fri, 01 Aug 2025 12:00:00 GMT"}),
		}

		res, err := orch.Fetch(ctx, key, loader, WithTTL(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, OriginRevalidated, res.Origin)
		assert.Equal(t, `{"v":1}`, string(res.Payload))
		assert.EqualValues(t, 0, loader.calls.Load())
		assert.EqualValues(t, 1, loader.revalidations.Load())
		assert.Equal(t, `"v1"`, loader.gotMeta[cache.MetaETag])

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, entry.StoredAt.Equal(clock.Now()))
		assert.Equal(t, `{"v":1}`, string(entry.Payload))
		assert.Equal(t, `"v1"`, entry.ValidationMetadata[cache.MetaETag])
		assert.NotEmpty(t, entry.ValidationMetadata[cache.MetaLastModified])

		// Fresh again after the renewal
		res, err = orch.Fetch(ctx, key, loader)
		require.NoError(t, err)
		assert.Equal(t, OriginCache, res.Origin)
		assert.EqualValues(t, 1, loader.revalidations.Load())
	})

	t.Run("changed with payload", func(t *testing.T) {
		orch, store, _, key := seed(t)
		loader := &revalidatingLoader{
			countingLoader: countingLoader{data: `{"v":3}`},
			result:         Changed(&Payload{Data: json.RawMessage(`{"v":2}`), Metadata: map[string]string{cache.MetaETag: `"v2"`}}),
		}

		res, err := orch.Fetch(ctx, key, loader)
		require.NoError(t, err)
		assert.Equal(t, OriginUpstream, res.Origin)
		assert.Equal(t, `{"v":2}`, string(res.Payload))
		assert.EqualValues(t, 0, loader.calls.Load())

		entry, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `"v2"`, entry.ValidationMetadata[cache.MetaETag])
	})

	t.Run("changed without payload fetches in full", func(t *testing.T) {
		orch, _, _, key := seed(t)
		loader := &revalidatingLoader{
			countingLoader: countingLoader{data: `{"v":4}`},
			result:         Changed(nil),
		}

		res, err := orch.Fetch(ctx, key, loader)
		require.NoError(t, err)
		assert.Equal(t, OriginUpstream, res.Origin)
		assert.Equal(t, `{"v":4}`, string(res.Payload))
		assert.EqualValues(t, 1, loader.calls.Load())
	})

	t.Run("revalidation error fetches in full", func(t *testing.T) {
		orch, _, _, key := seed(t)
		loader := &revalidatingLoader{
			countingLoader: countingLoader{err: errors.New("down")},
			revalErr:       errors.New("timeout"),
		}

		res, err := orch.Fetch(ctx, key, loader)
		require.NoError(t, err)
		assert.True(t, res.Stale)
		assert.Equal(t, `{"v":1}`, string(res.Payload))
		assert.EqualValues(t, 1, loader.calls.Load())
	})

	t.Run("loader without revalidation refetches", func(t *testing.T) {
		orch, _, _, key := seed(t)
		loader := &countingLoader{data: `{"v":5}`}

		res, err := orch.Fetch(ctx, key, loader)
		require.NoError(t, err)
		assert.Equal(t, OriginUpstream, res.Origin)
		assert.EqualValues(t, 1, loader.calls.Load())
	})
}

func TestFetch_InvalidInput(t *testing.T) {
	orch, _ := newTestOrchestrator(t, newFakeClock())

	_, err := orch.Fetch(context.Background(), cache.Key("players"), &countingLoader{data: `{}`})
	assert.ErrorIs(t, err, cache.ErrInvalidKeyInput)

	_, err = orch.Fetch(context.Background(), mustKey(t, "players"), nil)
	assert.Error(t, err)
}

func TestFetch_InvalidPayloadIsLoaderFailure(t *testing.T) {
	orch, store := newTestOrchestrator(t, newFakeClock())
	key := mustKey(t, "players")

	_, err := orch.Fetch(context.Background(), key, &countingLoader{data: `<html>`})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = store.Get(context.Background(), key)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	cache.Store
	getErr error
	putErr error
}

func (s *failingStore) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Put(ctx context.Context, e *cache.Entry) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, e)
}

func TestFetch_StoreFailures(t *testing.T) {
	ctx := context.Background()
	base, err := cache.NewFileStoreFS(memfs.New(), zerolog.Nop())
	require.NoError(t, err)

	t.Run("write failure still returns payload", func(t *testing.T) {
		orch := New(&failingStore{Store: base, putErr: errors.New("disk full")}, WithLogger(zerolog.Nop()))
		res, err := orch.Fetch(ctx, mustKey(t, "teams"), &countingLoader{data: `[1]`})
		require.NoError(t, err)
		assert.Equal(t, OriginUpstream, res.Origin)
		assert.Equal(t, `[1]`, string(res.Payload))
	})

	t.Run("read failure treated as miss", func(t *testing.T) {
		orch := New(&failingStore{Store: base, getErr: errors.New("permission denied")}, WithLogger(zerolog.Nop()))
		loader := &countingLoader{data: `[2]`}
		res, err := orch.Fetch(ctx, mustKey(t, "gameweeks"), loader)
		require.NoError(t, err)
		assert.Equal(t, OriginUpstream, res.Origin)
		assert.EqualValues(t, 1, loader.calls.Load())
	})

	t.Run("read failure and loader failure", func(t *testing.T) {
		orch := New(&failingStore{Store: base, getErr: errors.New("permission denied")}, WithLogger(zerolog.Nop()))
		_, err := orch.Fetch(ctx, mustKey(t, "gameweeks"), &countingLoader{err: errors.New("down")})
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})
}

func TestFetch_Invalidate(t *testing.T) {
	ctx := context.Background()
	orch, _ := newTestOrchestrator(t, newFakeClock())
	key := mustKey(t, "teams")
	loader := &countingLoader{data: `[]`}

	_, err := orch.Fetch(ctx, key, loader)
	require.NoError(t, err)
	require.NoError(t, orch.Invalidate(ctx, key))

	res, err := orch.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.Equal(t, OriginUpstream, res.Origin)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestOrigin_String(t *testing.T) {
	assert.Equal(t, "cache", OriginCache.String())
	assert.Equal(t, "revalidated", OriginRevalidated.String())
	assert.Equal(t, "upstream", OriginUpstream.String())
	assert.Equal(t, "unknown", Origin(0).String())
}
