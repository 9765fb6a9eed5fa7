package repository

import (
	"context"

	"SignalGuard/internal/domain/models"
)

// HistoryStore keeps a bounded rolling window of performance samples per source.
// Appends for different sources must not contend with each other.
type HistoryStore interface {
	Append(ctx context.Context, s models.PerformanceSample) error
	// Window returns the retained samples for a source, oldest first.
	Window(ctx context.Context, sourceID string) ([]models.PerformanceSample, error)
	Reset(ctx context.Context, sourceID string) error
}

// SampleSink receives every equity sample the risk monitor records.
type SampleSink interface {
	WriteSample(ctx context.Context, s models.EquitySample) error
}

// SignalStore persists sealed signals.
type SignalStore interface {
	Save(ctx context.Context, s models.Signal) error
	Get(ctx context.Context, id string) (models.Signal, error)
	Recent(ctx context.Context, limit int) ([]models.Signal, error)
}

// SignalPublisher broadcasts sealed signals downstream.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s models.Signal) error
}

// RiskEventPublisher broadcasts risk level transitions.
type RiskEventPublisher interface {
	PublishRiskEvent(ctx context.Context, e models.RiskEvent) error
}

// DataSource is an upstream quote provider.
type DataSource interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// Metrics is the recorder every component reports into.
type Metrics interface {
	RecordFetch(namespace string, coalesced bool, err error)
	SetInFlight(n int)
	SetSourceWeight(source string, weight float64)
	SetRiskState(level models.RiskLevel, equity, drawdownPct, dailyPnLPct float64, halted bool)
	RecordVerification(valid bool)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

// EquityProvider reports current account equity, typically from the order-execution side.
type EquityProvider interface {
	Equity(ctx context.Context) (float64, error)
}
