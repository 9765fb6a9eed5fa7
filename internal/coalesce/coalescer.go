// Package coalesce merges concurrent identical fetches into one underlying call.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"SignalGuard/internal/domain/repository"
	"SignalGuard/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

// ErrFetchPanic wraps a panic raised inside a fetch so every waiter receives it as an error.
var ErrFetchPanic = errors.New("coalesce: fetch panicked")

// FetchFunc performs the shared operation. It must not touch caller-private state:
// its result is handed to every waiter.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Option configures a Coalescer.
type Option func(*options)

type options struct {
	fetchTimeout time.Duration
	metrics      repository.Metrics
}

// WithFetchTimeout bounds each shared fetch. Zero means no bound beyond the fetch's own.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

func WithMetrics(m repository.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// Coalescer guarantees at most one in-flight fetch per key. Callers arriving while a fetch for
// their key is running wait for it and observe the identical value or error.
//
// The pending-call table is a singleflight.Group: the leader runs the fetch without holding the
// group lock, then removes the key and delivers results to every registered waiter in a single
// critical section, so a caller can neither join a finished call nor miss an unfinished one.
type Coalescer[T any] struct {
	group    singleflight.Group
	inFlight atomic.Int64
	opts     options
}

func New[T any](opts ...Option) *Coalescer[T] {
	o := options{metrics: metrics.Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Coalescer[T]{opts: o}
}

// GetOrFetch returns the result of fetch for key, sharing one call among all concurrent callers.
//
// The fetch runs on a context detached from the leader's cancellation, so one caller giving up
// does not fail the others. A waiter whose own ctx ends returns ctx.Err() immediately; the shared
// fetch keeps running for the rest.
func (c *Coalescer[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	var led atomic.Bool

	ch := c.group.DoChan(key, func() (interface{}, error) {
		led.Store(true)
		n := c.inFlight.Add(1)
		c.opts.metrics.SetInFlight(int(n))
		defer func() {
			n := c.inFlight.Add(-1)
			c.opts.metrics.SetInFlight(int(n))
		}()
		return c.run(ctx, fetch)
	})

	select {
	case res := <-ch:
		c.opts.metrics.RecordFetch(namespace(key), !led.Load(), res.Err)
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Coalescer[T]) run(parent context.Context, fetch FetchFunc[T]) (val interface{}, err error) {
	ctx := context.WithoutCancel(parent)
	if c.opts.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.fetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// InFlight reports how many keys are currently being fetched.
func (c *Coalescer[T]) InFlight() int {
	return int(c.inFlight.Load())
}

func namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}
