package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	"SignalGuard/internal/weights"
	pkgkafka "SignalGuard/pkg/kafka"
	"SignalGuard/pkg/logger"
	"SignalGuard/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

// PerformanceRecorder accepts scored outcomes; weights.Manager satisfies it.
type PerformanceRecorder interface {
	Record(ctx context.Context, s models.PerformanceSample) error
}

// OutcomeHandler consumes scored signal outcomes and feeds them to the weight manager.
// incoming message schema: {source_id, correct, confidence, timestamp}
type OutcomeHandler struct {
	topic    string
	recorder PerformanceRecorder
	metrics  domrepo.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewOutcomeHandler(topic string, recorder PerformanceRecorder, m domrepo.Metrics, l *logger.Logger) *OutcomeHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &OutcomeHandler{topic: topic, recorder: recorder, metrics: m, log: l, now: time.Now}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		SourceID   string    `json:"source_id"`
		Correct    bool      `json:"correct"`
		Confidence *float64  `json:"confidence"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("outcome_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	if m.Confidence == nil {
		h.metrics.RecordError("outcome_invalid")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: errors.New("confidence is required")}
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = h.now()
	}

	err := h.recorder.Record(ctx, models.PerformanceSample{
		SourceID:   m.SourceID,
		Correct:    m.Correct,
		Confidence: *m.Confidence,
		Timestamp:  m.Timestamp.UTC(),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, weights.ErrUnknownSource), errors.Is(err, weights.ErrInvalidConfidence):
		h.metrics.RecordError("outcome_invalid")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: err}
	default:
		h.metrics.RecordError("outcome_record")
		return fmt.Errorf("record outcome for %s: %w", m.SourceID, err)
	}
}

// OutcomeHooks builds the consumer hook chain used for the outcomes topic: trace id
// propagation, empty payload rejection and latency/error accounting.
func OutcomeHooks(m domrepo.Metrics, l *logger.Logger) pkgkafka.ConsumerHook {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	type startKey struct{}
	return pkgkafka.NewHookChain(
		pkgkafka.TraceIDHook(),
		pkgkafka.HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				if len(data) == 0 {
					return ctx, km, data, &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: errors.New("empty payload")}
				}
				return context.WithValue(ctx, startKey{}, time.Now()), km, data, nil
			},
			After: func(ctx context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
				if start, ok := ctx.Value(startKey{}).(time.Time); ok {
					m.RecordLatency("outcome_handle_seconds", time.Since(start).Seconds())
				}
			},
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				l.Warn("outcome rejected",
					logger.String("topic", topic),
					logger.Int64("offset", km.Offset),
					logger.String("trace_id", pkgkafka.ExtractTraceID(km)),
					logger.Error(err),
				)
			},
		},
	)
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)
