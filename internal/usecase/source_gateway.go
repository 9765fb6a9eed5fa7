package usecase

import (
	"context"
	"strings"
	"sync"

	"SignalGuard/internal/coalesce"
	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	"SignalGuard/pkg/cache"

	"golang.org/x/sync/errgroup"
)

// SourceLookup resolves data sources by name; datasource.Registry satisfies it.
type SourceLookup interface {
	Get(name string) (domrepo.DataSource, error)
	Names() []string
}

// SourceGateway fronts upstream quote sources with a cache and per-key request coalescing.
type SourceGateway struct {
	sources SourceLookup
	fetcher *coalesce.CachedFetcher[models.Quote]
	fanout  int
}

func NewSourceGateway(sources SourceLookup, fetcher *coalesce.CachedFetcher[models.Quote]) *SourceGateway {
	return &SourceGateway{sources: sources, fetcher: fetcher, fanout: 8}
}

func quoteKey(source, symbol string) string {
	return cache.Key("quote", source, strings.ToUpper(symbol))
}

// Quote returns a quote for symbol from the named source. Concurrent calls for the same
// source and symbol share one upstream request.
func (g *SourceGateway) Quote(ctx context.Context, source, symbol string) (models.Quote, error) {
	ds, err := g.sources.Get(source)
	if err != nil {
		return models.Quote{}, err
	}
	sym := strings.ToUpper(symbol)
	return g.fetcher.Get(ctx, quoteKey(source, sym), func(fctx context.Context) (models.Quote, error) {
		return ds.FetchQuote(fctx, sym)
	})
}

// QuoteAll asks every source for symbol. Failed sources are reported in errs, never fatal.
func (g *SourceGateway) QuoteAll(ctx context.Context, symbol string) (map[string]models.Quote, map[string]error) {
	names := g.sources.Names()
	quotes := make(map[string]models.Quote, len(names))
	errs := make(map[string]error)
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(g.fanout)
	for _, name := range names {
		name := name
		eg.Go(func() error {
			q, err := g.Quote(ctx, name, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[name] = err
			} else {
				quotes[name] = q
			}
			return nil
		})
	}
	_ = eg.Wait()
	return quotes, errs
}

// Refresh drops the cached quote so the next call after any in-flight fetch goes upstream.
func (g *SourceGateway) Refresh(ctx context.Context, source, symbol string) error {
	if _, err := g.sources.Get(source); err != nil {
		return err
	}
	return g.fetcher.Invalidate(ctx, quoteKey(source, symbol))
}
