package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalGuard/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func newTestFetcher(t *testing.T) (*CachedFetcher[quote], *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = store.Close() })
	return NewCachedFetcher(store, New[quote](), time.Minute, nil), store
}

func TestCachedFetcherServesSecondCallFromCache(t *testing.T) {
	f, store := newTestFetcher(t)
	var calls atomic.Int32
	fetch := func(ctx context.Context) (quote, error) {
		calls.Add(1)
		return quote{Symbol: "ETH", Price: 3120.5}, nil
	}

	q1, err := f.Get(context.Background(), "quote:ETH", fetch)
	require.NoError(t, err)
	q2, err := f.Get(context.Background(), "quote:ETH", fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, q1, q2)
	assert.Equal(t, 1, store.Len())
}

func TestCachedFetcherColdKeyFetchedOnce(t *testing.T) {
	f, _ := newTestFetcher(t)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (quote, error) {
		calls.Add(1)
		<-release
		return quote{Symbol: "SOL", Price: 150}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := f.Get(context.Background(), "quote:SOL", fetch)
			assert.NoError(t, err)
			assert.Equal(t, 150.0, q.Price)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	f, store := newTestFetcher(t)
	boom := errors.New("rate limited")

	_, err := f.Get(context.Background(), "quote:X", func(ctx context.Context) (quote, error) {
		return quote{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestCachedFetcherInvalidate(t *testing.T) {
	f, _ := newTestFetcher(t)
	var calls atomic.Int32
	fetch := func(ctx context.Context) (quote, error) {
		return quote{Price: float64(calls.Add(1))}, nil
	}

	_, err := f.Get(context.Background(), "k", fetch)
	require.NoError(t, err)
	require.NoError(t, f.Invalidate(context.Background(), "k"))
	q, err := f.Get(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.Price)
}

func TestCachedFetcherInvalidateKeepsInFlightFetchShared(t *testing.T) {
	store := cache.NewMemoryStore(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = store.Close() })
	c := New[quote]()
	f := NewCachedFetcher(store, c, time.Minute, nil)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (quote, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return quote{Symbol: "BTC", Price: 64000}, nil
	}

	results := make(chan quote, 2)
	go func() {
		q, _ := f.Get(context.Background(), "quote:BTC", fetch)
		results <- q
	}()
	<-started

	require.NoError(t, f.Invalidate(context.Background(), "quote:BTC"))
	go func() {
		q, _ := f.Get(context.Background(), "quote:BTC", fetch)
		results <- q
	}()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.InFlight())

	close(release)
	for i := 0; i < 2; i++ {
		assert.Equal(t, 64000.0, (<-results).Price)
	}
	assert.Equal(t, int32(1), calls.Load())
}
