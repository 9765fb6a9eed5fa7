// Package datasource holds the upstream quote providers the gateway fans requests out to.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	xhttp "SignalGuard/pkg/http"
	"SignalGuard/pkg/util"
)

var (
	ErrUnknownSource = errors.New("datasource: unknown source")
	ErrNoQuote       = errors.New("datasource: no quote for symbol")
	ErrBadQuote      = errors.New("datasource: malformed quote")
)

// quotePayload is the upstream wire shape. Timestamps may be RFC3339 or unix seconds.
type quotePayload struct {
	Symbol    string          `json:"symbol"`
	Price     float64         `json:"price"`
	Volume    float64         `json:"volume"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// HTTPSource fetches quotes from a JSON endpoint: GET {base}/quote?symbol=XYZ.
type HTTPSource struct {
	name   string
	client *xhttp.Client
	now    func() time.Time
}

func NewHTTPSource(name, baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		name: name,
		client: xhttp.NewClient(
			xhttp.WithBaseURL(baseURL),
			xhttp.WithTimeout(timeout),
			xhttp.WithHeader("Accept", "application/json"),
		),
		now: time.Now,
	}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	var p quotePayload
	q := url.Values{"symbol": []string{symbol}}
	if err := s.client.GetJSON(ctx, "/quote", q, &p); err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == 404 {
			return models.Quote{}, fmt.Errorf("%s %s: %w", s.name, symbol, ErrNoQuote)
		}
		return models.Quote{}, fmt.Errorf("%s quote %s: %w", s.name, symbol, err)
	}
	if p.Price <= 0 {
		return models.Quote{}, fmt.Errorf("%s %s price %v: %w", s.name, symbol, p.Price, ErrBadQuote)
	}
	if p.Symbol == "" {
		p.Symbol = symbol
	}
	return models.Quote{
		Source:    s.name,
		Symbol:    strings.ToUpper(p.Symbol),
		Price:     p.Price,
		Volume:    p.Volume,
		Timestamp: util.ParseTimeDefault(strings.Trim(string(p.Timestamp), `"`), s.now().UTC()),
	}, nil
}

// HTTPEquityProvider polls account equity from the execution side: GET {base}/equity.
type HTTPEquityProvider struct {
	client *xhttp.Client
	path   string
}

func NewHTTPEquityProvider(baseURL string, timeout time.Duration) *HTTPEquityProvider {
	return &HTTPEquityProvider{
		client: xhttp.NewClient(xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(timeout)),
		path:   "/equity",
	}
}

func (p *HTTPEquityProvider) Equity(ctx context.Context) (float64, error) {
	var body struct {
		Equity *float64 `json:"equity"`
	}
	if err := p.client.GetJSON(ctx, p.path, nil, &body); err != nil {
		return 0, fmt.Errorf("equity: %w", err)
	}
	if body.Equity == nil {
		return 0, errors.New("equity: response has no equity field")
	}
	return *body.Equity, nil
}

// Registry maps source names to providers.
type Registry struct {
	sources map[string]repository.DataSource
	order   []string
}

func NewRegistry(sources ...repository.DataSource) *Registry {
	r := &Registry{sources: make(map[string]repository.DataSource, len(sources))}
	for _, s := range sources {
		if _, dup := r.sources[s.Name()]; !dup {
			r.order = append(r.order, s.Name())
		}
		r.sources[s.Name()] = s
	}
	return r
}

func (r *Registry) Get(name string) (repository.DataSource, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownSource)
	}
	return s, nil
}

// All returns the sources in registration order.
func (r *Registry) All() []repository.DataSource {
	out := make([]repository.DataSource, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

// Names returns source names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

var (
	_ repository.DataSource     = (*HTTPSource)(nil)
	_ repository.EquityProvider = (*HTTPEquityProvider)(nil)
)
