// Package risk implements the drawdown and daily-loss circuit breaker that gates order submission.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	"SignalGuard/pkg/logger"
	"SignalGuard/pkg/metrics"
)

var (
	ErrTradingHalted = errors.New("risk: trading halted")
	ErrStillBreached = errors.New("risk: limits still breached")
	ErrInvalidEquity = errors.New("risk: equity must be a finite non-negative number")
	ErrInvalidConfig = errors.New("risk: invalid configuration")
)

const (
	defaultCheckInterval = 5 * time.Second
	defaultSampleHistory = 1000
	eventBuffer          = 64
	publishTimeout       = 5 * time.Second
)

type Config struct {
	MaxDrawdownPct    float64
	DailyLossLimitPct float64
	InitialCapital    float64
	CheckInterval     time.Duration
	SampleHistory     int
}

type Option func(*Monitor)

// WithEquityProvider makes every loop iteration poll equity before sampling.
func WithEquityProvider(p repository.EquityProvider) Option {
	return func(m *Monitor) { m.provider = p }
}

// WithSampleSink persists every recorded sample in addition to the in-memory history.
func WithSampleSink(s repository.SampleSink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithEventPublisher adds a receiver for level transitions. May be given more than once.
func WithEventPublisher(p repository.RiskEventPublisher) Option {
	return func(m *Monitor) {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
}

func WithMetrics(r repository.Metrics) Option {
	return func(m *Monitor) {
		if r != nil {
			m.metrics = r
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Level             models.RiskLevel `json:"level"`
	Halted            bool             `json:"halted"`
	HaltReason        string           `json:"halt_reason,omitempty"`
	Equity            float64          `json:"equity"`
	PeakEquity        float64          `json:"peak_equity"`
	DayStartEquity    float64          `json:"day_start_equity"`
	DrawdownPct       float64          `json:"drawdown_pct"`
	DailyPnLPct       float64          `json:"daily_pnl_pct"`
	DrawdownRatio     float64          `json:"drawdown_ratio"`
	DailyLossRatio    float64          `json:"daily_loss_ratio"`
	MaxDrawdownPct    float64          `json:"max_drawdown_pct"`
	DailyLossLimitPct float64          `json:"daily_loss_limit_pct"`
	Monitoring        bool             `json:"monitoring"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Monitor tracks equity against drawdown and daily-loss limits. The level is recomputed from
// state on every change; a BREACH latches a halt that only ResetHalt clears.
//
// Equity updates and the sampling loop share one mutex covering current, peak and baseline
// equity, so no update is lost and every sample is internally consistent.
type Monitor struct {
	cfg        Config
	provider   repository.EquityProvider
	sink       repository.SampleSink
	publishers []repository.RiskEventPublisher
	metrics    repository.Metrics
	log        *logger.Logger
	now        func() time.Time

	mu         sync.Mutex
	equity     float64
	peak       float64
	dayStart   float64
	day        string
	assessment Assessment
	halted     bool
	haltReason string
	updatedAt  time.Time
	samples    []models.EquitySample
	sampleNext int
	sampleLen  int

	lifeMu     sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	monitoring atomic.Bool

	eventsMu     sync.Mutex
	events       chan models.RiskEvent
	eventsClosed bool
	eventsWG     sync.WaitGroup
	closeOnce    sync.Once
}

func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.MaxDrawdownPct <= 0 || cfg.MaxDrawdownPct > 100 {
		return nil, fmt.Errorf("%w: max drawdown %g%%", ErrInvalidConfig, cfg.MaxDrawdownPct)
	}
	if cfg.DailyLossLimitPct <= 0 || cfg.DailyLossLimitPct > 100 {
		return nil, fmt.Errorf("%w: daily loss limit %g%%", ErrInvalidConfig, cfg.DailyLossLimitPct)
	}
	if cfg.InitialCapital <= 0 || math.IsInf(cfg.InitialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital %g", ErrInvalidConfig, cfg.InitialCapital)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.SampleHistory <= 0 {
		cfg.SampleHistory = defaultSampleHistory
	}

	m := &Monitor{
		cfg:     cfg,
		metrics: metrics.Nop{},
		log:     logger.Nop(),
		now:     time.Now,
		equity:  cfg.InitialCapital,
		peak:    cfg.InitialCapital,
		samples: make([]models.EquitySample, cfg.SampleHistory),
		events:  make(chan models.RiskEvent, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}

	now := m.now().UTC()
	m.dayStart = cfg.InitialCapital
	m.day = dayKey(now)
	m.updatedAt = now
	m.assessment = m.assessLocked()

	m.eventsWG.Add(1)
	go m.dispatch()
	return m, nil
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (m *Monitor) assessLocked() Assessment {
	return Assess(m.equity, m.peak, m.dayStart, m.cfg.MaxDrawdownPct, m.cfg.DailyLossLimitPct)
}

// UpdateEquity applies a new equity reading and returns the resulting level. Peak equity only
// ever rises here. Reaching BREACH halts trading before this call returns.
func (m *Monitor) UpdateEquity(value float64) (models.RiskLevel, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return m.Level(), fmt.Errorf("%w: got %g", ErrInvalidEquity, value)
	}

	m.mu.Lock()
	m.equity = value
	if value > m.peak {
		m.peak = value
	}
	evt := m.reevaluateLocked()
	level := m.assessment.Level
	m.mu.Unlock()

	m.emit(evt)
	return level, nil
}

// reevaluateLocked recomputes the level, latches a halt on BREACH and returns the transition
// event if the level or halt state changed.
func (m *Monitor) reevaluateLocked() *models.RiskEvent {
	prevLevel, prevHalted := m.assessment.Level, m.halted
	m.updatedAt = m.now().UTC()
	m.assessment = m.assessLocked()

	if m.assessment.Level == models.RiskBreach && !m.halted {
		m.halted = true
		m.haltReason = m.breachReasonLocked()
	}
	if m.assessment.Level == prevLevel && m.halted == prevHalted {
		return nil
	}
	return &models.RiskEvent{
		Timestamp:  m.updatedAt,
		Previous:   prevLevel,
		Current:    m.assessment.Level,
		Halted:     m.halted,
		HaltReason: m.haltReason,
		Sample:     m.sampleLocked(m.updatedAt),
	}
}

func (m *Monitor) breachReasonLocked() string {
	a := m.assessment
	if a.DrawdownLevel == models.RiskBreach {
		return fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", a.DrawdownPct, m.cfg.MaxDrawdownPct)
	}
	return fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", -a.DailyPnLPct, m.cfg.DailyLossLimitPct)
}

func (m *Monitor) sampleLocked(ts time.Time) models.EquitySample {
	return models.EquitySample{
		Timestamp:   ts,
		Equity:      m.equity,
		PeakEquity:  m.peak,
		DrawdownPct: m.assessment.DrawdownPct,
		DailyPnLPct: m.assessment.DailyPnLPct,
		Level:       m.assessment.Level,
	}
}

// ResetDaily makes current equity the new daily-loss baseline. Peak equity is untouched.
func (m *Monitor) ResetDaily() {
	m.mu.Lock()
	evt := m.resetDailyLocked(m.now().UTC())
	m.mu.Unlock()
	m.emit(evt)
}

func (m *Monitor) resetDailyLocked(now time.Time) *models.RiskEvent {
	m.dayStart = m.equity
	m.day = dayKey(now)
	m.log.Info("risk daily baseline reset", logger.Float64("day_start_equity", m.dayStart))
	return m.reevaluateLocked()
}

// ResetHalt clears a latched halt. Refused while the current level is still BREACH.
func (m *Monitor) ResetHalt() error {
	m.mu.Lock()
	if m.assessment.Level == models.RiskBreach {
		m.mu.Unlock()
		return ErrStillBreached
	}
	if !m.halted {
		m.mu.Unlock()
		return nil
	}
	m.halted = false
	reason := m.haltReason
	m.haltReason = ""
	m.updatedAt = m.now().UTC()
	evt := &models.RiskEvent{
		Timestamp: m.updatedAt,
		Previous:  m.assessment.Level,
		Current:   m.assessment.Level,
		Sample:    m.sampleLocked(m.updatedAt),
	}
	m.mu.Unlock()

	m.log.Warn("risk halt cleared", logger.String("previous_reason", reason))
	m.emit(evt)
	return nil
}

func (m *Monitor) Level() models.RiskLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessment.Level
}

func (m *Monitor) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

func (m *Monitor) HaltReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haltReason
}

// Allow is the order gate: it returns ErrTradingHalted while the breaker is latched.
func (m *Monitor) Allow() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halted {
		return fmt.Errorf("%w: %s", ErrTradingHalted, m.haltReason)
	}
	return nil
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.assessment
	return Status{
		Level:             a.Level,
		Halted:            m.halted,
		HaltReason:        m.haltReason,
		Equity:            m.equity,
		PeakEquity:        m.peak,
		DayStartEquity:    m.dayStart,
		DrawdownPct:       a.DrawdownPct,
		DailyPnLPct:       a.DailyPnLPct,
		DrawdownRatio:     a.DrawdownRatio,
		DailyLossRatio:    a.DailyLossRatio,
		MaxDrawdownPct:    m.cfg.MaxDrawdownPct,
		DailyLossLimitPct: m.cfg.DailyLossLimitPct,
		Monitoring:        m.monitoring.Load(),
		UpdatedAt:         m.updatedAt,
	}
}

// Samples returns up to limit of the most recent samples, oldest first. limit <= 0 means all.
func (m *Monitor) Samples(limit int) []models.EquitySample {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.sampleLen
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.EquitySample, 0, n)
	size := len(m.samples)
	start := (m.sampleNext - n + size) % size
	for i := 0; i < n; i++ {
		out = append(out, m.samples[(start+i)%size])
	}
	return out
}

func (m *Monitor) IsMonitoring() bool {
	return m.monitoring.Load()
}

// Start launches the sampling loop. A second call while running is a no-op.
func (m *Monitor) Start() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.monitoring.Store(true)
	go m.loop(ctx, m.done)
	m.log.Info("risk monitoring started", logger.Duration("interval_ms", m.cfg.CheckInterval))
}

// Stop signals the loop and waits for it to exit at its next safe point. No sample is recorded
// after Stop returns. A second call is a no-op.
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	m.monitoring.Store(false)
	m.log.Info("risk monitoring stopped")
}

// Close stops monitoring and drains pending events to the publishers.
func (m *Monitor) Close() {
	m.Stop()
	m.closeOnce.Do(func() {
		m.eventsMu.Lock()
		m.eventsClosed = true
		close(m.events)
		m.eventsMu.Unlock()
		m.eventsWG.Wait()
	})
}

func (m *Monitor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one iteration: poll, check for stop, then record. The stop check sits between the
// only blocking call and the sample write.
func (m *Monitor) tick(ctx context.Context) {
	var (
		polled float64
		ok     bool
	)
	if m.provider != nil {
		pctx, cancel := context.WithTimeout(ctx, m.cfg.CheckInterval)
		v, err := m.provider.Equity(pctx)
		cancel()
		switch {
		case err != nil:
			if ctx.Err() == nil {
				m.metrics.RecordError("equity_poll")
				m.log.Warn("risk equity poll failed", logger.Error(err))
			}
		case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
			m.log.Warn("risk equity poll returned invalid value", logger.Float64("equity", v))
		default:
			polled, ok = v, true
		}
	}

	if ctx.Err() != nil {
		return
	}

	sample, evt := m.record(polled, ok)
	m.emit(evt)

	m.metrics.SetRiskState(sample.Level, sample.Equity, sample.DrawdownPct, sample.DailyPnLPct, m.Halted())
	if m.sink != nil {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.CheckInterval)
		if err := m.sink.WriteSample(sctx, sample); err != nil && ctx.Err() == nil {
			m.metrics.RecordError("sample_sink")
			m.log.Warn("risk sample sink write failed", logger.Error(err))
		}
		cancel()
	}
}

// record applies a polled equity value, rolls the daily baseline at UTC midnight and appends a
// sample, all in one critical section.
func (m *Monitor) record(polled float64, havePolled bool) (models.EquitySample, *models.RiskEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var evt *models.RiskEvent
	if havePolled {
		m.equity = polled
		if polled > m.peak {
			m.peak = polled
		}
	}
	if dayKey(now) != m.day {
		evt = m.resetDailyLocked(now)
	} else {
		evt = m.reevaluateLocked()
	}

	s := m.sampleLocked(now)
	m.samples[m.sampleNext] = s
	m.sampleNext = (m.sampleNext + 1) % len(m.samples)
	if m.sampleLen < len(m.samples) {
		m.sampleLen++
	}
	return s, evt
}

func (m *Monitor) emit(evt *models.RiskEvent) {
	if evt == nil {
		return
	}
	if evt.Current != evt.Previous || evt.Halted {
		m.log.Warn("risk level changed",
			logger.String("previous", evt.Previous.String()),
			logger.String("current", evt.Current.String()),
			logger.Bool("halted", evt.Halted),
			logger.String("reason", evt.HaltReason),
		)
	}
	if len(m.publishers) == 0 {
		return
	}
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	if m.eventsClosed {
		m.log.Debug("risk event dropped after close", logger.String("current", evt.Current.String()))
		return
	}
	select {
	case m.events <- *evt:
	default:
		m.metrics.RecordError("risk_event_dropped")
		m.log.Warn("risk event buffer full, dropping event", logger.String("current", evt.Current.String()))
	}
}

// dispatch delivers events in order, off the caller's path.
func (m *Monitor) dispatch() {
	defer m.eventsWG.Done()
	for evt := range m.events {
		for _, p := range m.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := p.PublishRiskEvent(ctx, evt); err != nil {
				m.metrics.RecordError("risk_event_publish")
				m.log.Warn("risk event publish failed", logger.Error(err))
			}
			cancel()
		}
	}
}
