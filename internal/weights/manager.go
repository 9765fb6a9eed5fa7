// Package weights maintains the per-source consensus weights and adapts them to each source's
// rolling accuracy.
package weights

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	repo "SignalGuard/internal/repository"
	"SignalGuard/pkg/logger"
	"SignalGuard/pkg/metrics"
)

var (
	ErrUnknownSource     = errors.New("weights: unknown source")
	ErrInvalidConfidence = errors.New("weights: confidence must be within 0-100")
	ErrInvalidConfig     = errors.New("weights: invalid configuration")
)

// scoreFloor keeps a zero-accuracy source strictly positive so the proportional step still ranks it.
const scoreFloor = 0.01

const sumTolerance = 1e-9

type Config struct {
	Sources        []string
	InitialWeights map[string]float64 // optional, normalized on construction
	MinWeight      float64
	MaxWeight      float64
	Window         int // samples retained per source by the default history store
	MinSamples     int // sources with fewer samples keep their weight
}

type Option func(*Manager)

// WithHistoryStore replaces the in-memory history, e.g. with the Redis-backed store.
func WithHistoryStore(h repository.HistoryStore) Option {
	return func(m *Manager) {
		if h != nil {
			m.history = h
		}
	}
}

func WithMetrics(r repository.Metrics) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager owns the weight table. Updates only append history; AdjustWeights reads the windows,
// computes a new table without holding the table lock, and swaps it in.
type Manager struct {
	sources    []string
	known      map[string]struct{}
	minWeight  float64
	maxWeight  float64
	minSamples int

	history repository.HistoryStore
	metrics repository.Metrics
	log     *logger.Logger
	now     func() time.Time

	adjustMu sync.Mutex
	mu       sync.RWMutex
	weights  map[string]float64
	adjusted time.Time
}

func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	n := len(cfg.Sources)
	if n == 0 {
		return nil, fmt.Errorf("%w: no sources", ErrInvalidConfig)
	}
	if cfg.MinWeight < 0 || cfg.MaxWeight <= 0 || cfg.MinWeight > cfg.MaxWeight {
		return nil, fmt.Errorf("%w: bounds [%g, %g]", ErrInvalidConfig, cfg.MinWeight, cfg.MaxWeight)
	}
	if float64(n)*cfg.MinWeight > 1+sumTolerance || float64(n)*cfg.MaxWeight < 1-sumTolerance {
		return nil, fmt.Errorf("%w: %d sources cannot sum to 1 within [%g, %g]", ErrInvalidConfig, n, cfg.MinWeight, cfg.MaxWeight)
	}

	known := make(map[string]struct{}, n)
	for _, s := range cfg.Sources {
		if s == "" {
			return nil, fmt.Errorf("%w: empty source id", ErrInvalidConfig)
		}
		if _, dup := known[s]; dup {
			return nil, fmt.Errorf("%w: duplicate source %q", ErrInvalidConfig, s)
		}
		known[s] = struct{}{}
	}

	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 1
	}

	m := &Manager{
		sources:    append([]string(nil), cfg.Sources...),
		known:      known,
		minWeight:  cfg.MinWeight,
		maxWeight:  cfg.MaxWeight,
		minSamples: minSamples,
		history:    repo.NewMemoryHistoryStore(cfg.Window),
		metrics:    metrics.Nop{},
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	w, err := m.initialWeights(cfg.InitialWeights)
	if err != nil {
		return nil, err
	}
	m.weights = w
	m.publish(w)
	return m, nil
}

func (m *Manager) initialWeights(initial map[string]float64) (map[string]float64, error) {
	w := make(map[string]float64, len(m.sources))
	if len(initial) == 0 {
		uniform := 1 / float64(len(m.sources))
		for _, s := range m.sources {
			w[s] = uniform
		}
		return w, nil
	}

	var total float64
	for _, s := range m.sources {
		v, ok := initial[s]
		if !ok || v <= 0 {
			return nil, fmt.Errorf("%w: initial weight for %q must be positive", ErrInvalidConfig, s)
		}
		total += v
	}
	for s := range initial {
		if _, ok := m.known[s]; !ok {
			return nil, fmt.Errorf("%w: initial weight for unknown source %q", ErrInvalidConfig, s)
		}
	}

	scores := make([]float64, len(m.sources))
	for i, s := range m.sources {
		scores[i] = initial[s] / total
	}
	for i, v := range allocate(scores, 1, m.minWeight, m.maxWeight) {
		w[m.sources[i]] = v
	}
	return w, nil
}

// UpdatePerformance records one outcome for source. Weights change only on AdjustWeights.
func (m *Manager) UpdatePerformance(ctx context.Context, source string, correct bool, confidence float64) error {
	return m.Record(ctx, models.PerformanceSample{
		SourceID:   source,
		Correct:    correct,
		Confidence: confidence,
		Timestamp:  m.now().UTC(),
	})
}

// Record appends an already timestamped sample.
func (m *Manager) Record(ctx context.Context, s models.PerformanceSample) error {
	if _, ok := m.known[s.SourceID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, s.SourceID)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("%w: got %g", ErrInvalidConfidence, s.Confidence)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = m.now().UTC()
	}
	if err := m.history.Append(ctx, s); err != nil {
		m.metrics.RecordError("history_append")
		return fmt.Errorf("append sample for %s: %w", s.SourceID, err)
	}
	return nil
}

type windowStats struct {
	count         int
	correct       int
	confCorrect   float64
	accuracy      float64
	avgConfidence float64
}

func summarize(samples []models.PerformanceSample) windowStats {
	var st windowStats
	for _, s := range samples {
		st.count++
		if s.Correct {
			st.correct++
			st.confCorrect += s.Confidence
		}
	}
	if st.count > 0 {
		st.accuracy = float64(st.correct) / float64(st.count)
	}
	if st.correct > 0 {
		st.avgConfidence = st.confCorrect / float64(st.correct)
	}
	return st
}

func (m *Manager) snapshot(ctx context.Context) (map[string]windowStats, error) {
	stats := make(map[string]windowStats, len(m.sources))
	for _, s := range m.sources {
		samples, err := m.history.Window(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("read window for %s: %w", s, err)
		}
		stats[s] = summarize(samples)
	}
	return stats, nil
}

// AdjustWeights recomputes the table from the current windows and returns it.
//
// Sources with fewer than MinSamples samples keep their weight; the remaining mass is shared by
// the others proportionally to accuracy, each clamped into [MinWeight, MaxWeight]. When every
// sampled source has the same accuracy there is nothing to rank on and the table is kept.
func (m *Manager) AdjustWeights(ctx context.Context) (map[string]float64, error) {
	m.adjustMu.Lock()
	defer m.adjustMu.Unlock()
	start := time.Now()

	stats, err := m.snapshot(ctx)
	if err != nil {
		m.metrics.RecordError("weights_adjust")
		return nil, err
	}
	prior := m.Weights()

	var (
		free   []string
		scores []float64
		mass   = 1.0
	)
	for _, s := range m.sources {
		st := stats[s]
		if st.count < m.minSamples {
			mass -= prior[s]
			continue
		}
		free = append(free, s)
		scores = append(scores, st.accuracy+scoreFloor)
	}

	if indistinguishable(scores) {
		m.log.Debug("weights unchanged", logger.Int("ranked_sources", len(free)))
		return prior, nil
	}

	next := make(map[string]float64, len(m.sources))
	for s, w := range prior {
		next[s] = w
	}
	for i, w := range allocate(scores, mass, m.minWeight, m.maxWeight) {
		next[free[i]] = w
	}

	m.mu.Lock()
	m.weights = next
	m.adjusted = m.now().UTC()
	m.mu.Unlock()

	m.publish(next)
	m.metrics.RecordLatency("weights_adjust", time.Since(start).Seconds())
	m.log.Info("weights adjusted",
		logger.Int("ranked_sources", len(free)),
		logger.Any("weights", next),
	)
	return copyWeights(next), nil
}

func indistinguishable(scores []float64) bool {
	if len(scores) < 2 {
		return true
	}
	for _, s := range scores[1:] {
		if s != scores[0] {
			return false
		}
	}
	return true
}

func (m *Manager) publish(w map[string]float64) {
	for s, v := range w {
		m.metrics.SetSourceWeight(s, v)
	}
}

// Weight returns the current weight of source and whether the source is known.
func (m *Manager) Weight(source string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.weights[source]
	return w, ok
}

// Weights returns a copy of the current table.
func (m *Manager) Weights() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyWeights(m.weights)
}

// LastAdjusted is the time of the last table swap, zero if weights were never adjusted.
func (m *Manager) LastAdjusted() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adjusted
}

func (m *Manager) Sources() []string {
	return append([]string(nil), m.sources...)
}

// PerformanceReport summarizes every source's window, sorted by source id.
func (m *Manager) PerformanceReport(ctx context.Context) ([]models.SourceReport, error) {
	stats, err := m.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	weights := m.Weights()

	out := make([]models.SourceReport, 0, len(m.sources))
	for _, s := range m.sources {
		st := stats[s]
		out = append(out, models.SourceReport{
			SourceID:             s,
			SampleSize:           st.count,
			Accuracy:             st.accuracy,
			AvgConfidenceCorrect: st.avgConfidence,
			CurrentWeight:        weights[s],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
