package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFetchRunsFetchOnceForConcurrentCallers(t *testing.T) {
	c := New[int]()
	const n = 50

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	results := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup

	// the leader first, so every other caller arrives while the fetch is in flight
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.GetOrFetch(context.Background(), "quote:AAPL", fetch)
	}()
	<-started

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "quote:AAPL", fetch)
		}(i)
	}

	// give the joiners time to register before resolving
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
	assert.Equal(t, 0, c.InFlight())
}

func TestGetOrFetchDeliversIdenticalErrorToAllWaiters(t *testing.T) {
	c := New[string]()
	boom := errors.New("upstream unavailable")

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "", boom
	}

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.GetOrFetch(context.Background(), "k", fetch)
	}()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrFetch(context.Background(), "k", fetch)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.Same(t, boom, err)
	}
}

func TestGetOrFetchStartsNewFetchAfterResolution(t *testing.T) {
	c := New[int]()
	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	v1, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	v2, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
}

func TestGetOrFetchDistinctKeysDoNotCoalesce(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(key string) FetchFunc[string] {
		return func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-release
			return key, nil
		}
	}

	var wg sync.WaitGroup
	got := make([]string, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			got[i], _ = c.GetOrFetch(context.Background(), key, fetch(key))
		}(i, key)
	}
	require.Eventually(t, func() bool { return c.InFlight() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestWaiterCancellationDoesNotAbortSharedFetch(t *testing.T) {
	c := New[int]()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		close(started)
		select {
		case <-release:
			return 7, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(leaderCtx, "k", fetch)
		leaderErr <- err
	}()
	<-started

	other := make(chan int, 1)
	go func() {
		v, _ := c.GetOrFetch(context.Background(), "k", fetch)
		other <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	assert.Equal(t, 7, <-other)
}

func TestFetchTimeoutBoundsSharedFetch(t *testing.T) {
	c := New[int](WithFetchTimeout(20 * time.Millisecond))
	_, err := c.GetOrFetch(context.Background(), "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchPanicBecomesError(t *testing.T) {
	c := New[int]()
	_, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (int, error) {
		panic("bad payload")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchPanic)
	assert.Contains(t, err.Error(), "bad payload")
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "quote", namespace("quote:binance:BTC"))
	assert.Equal(t, "default", namespace("plain"))
	assert.Equal(t, "default", namespace(":x"))
}
