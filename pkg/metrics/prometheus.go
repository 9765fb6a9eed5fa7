package metrics

import (
	"SignalGuard/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	fetches       *prometheus.CounterVec
	inFlight      prometheus.Gauge
	sourceWeight  *prometheus.GaugeVec
	riskLevel     prometheus.Gauge
	equity        prometheus.Gauge
	drawdown      prometheus.Gauge
	dailyPnL      prometheus.Gauge
	halted        prometheus.Gauge
	verifications *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalguard_coalescer_requests_total",
			Help: "Requests through the coalescer by namespace, role (leader|joined) and result",
		}, []string{"namespace", "role", "result"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_coalescer_in_flight",
			Help: "Distinct keys currently being fetched",
		}),
		sourceWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalguard_source_weight",
			Help: "Current consensus weight per data source",
		}, []string{"source"}),
		riskLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_risk_level",
			Help: "Risk level: 0 normal, 1 warning, 2 critical, 3 breach",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_equity",
			Help: "Last sampled account equity",
		}),
		drawdown: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_drawdown_pct",
			Help: "Drawdown from peak equity in percent",
		}),
		dailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_daily_pnl_pct",
			Help: "PnL against the daily baseline in percent",
		}),
		halted: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalguard_trading_halted",
			Help: "1 while the circuit breaker holds trading halted",
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalguard_integrity_verifications_total",
			Help: "Signal integrity verifications by result",
		}, []string{"result"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalguard_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalguard_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordFetch(namespace string, coalesced bool, err error) {
	role := "leader"
	if coalesced {
		role = "joined"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.fetches.WithLabelValues(namespace, role, result).Inc()
}

func (r *Recorder) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}

func (r *Recorder) SetSourceWeight(source string, weight float64) {
	r.sourceWeight.WithLabelValues(source).Set(weight)
}

func (r *Recorder) SetRiskState(level models.RiskLevel, equity, drawdownPct, dailyPnLPct float64, halted bool) {
	r.riskLevel.Set(float64(level))
	r.equity.Set(equity)
	r.drawdown.Set(drawdownPct)
	r.dailyPnL.Set(dailyPnLPct)
	if halted {
		r.halted.Set(1)
	} else {
		r.halted.Set(0)
	}
}

func (r *Recorder) RecordVerification(valid bool) {
	if valid {
		r.verifications.WithLabelValues("valid").Inc()
		return
	}
	r.verifications.WithLabelValues("invalid").Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
