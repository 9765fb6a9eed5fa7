package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"SignalGuard/internal/domain/models"
	domrepo "SignalGuard/internal/domain/repository"
	"SignalGuard/internal/integrity"
	"SignalGuard/pkg/logger"
	"SignalGuard/pkg/metrics"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidSignal = errors.New("invalid signal")

// TradeGate is consulted before a directional signal goes out; the risk monitor satisfies it.
type TradeGate interface {
	Allow() error
}

type EmitterOption func(*SignalEmitter)

func WithPublisher(p domrepo.SignalPublisher) EmitterOption {
	return func(e *SignalEmitter) { e.publisher = p }
}

func WithTradeGate(g TradeGate) EmitterOption {
	return func(e *SignalEmitter) { e.gate = g }
}

func WithEmitterLogger(l *logger.Logger) EmitterOption {
	return func(e *SignalEmitter) {
		if l != nil {
			e.log = l
		}
	}
}

func WithEmitterMetrics(m domrepo.Metrics) EmitterOption {
	return func(e *SignalEmitter) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithEmitterClock(now func() time.Time) EmitterOption {
	return func(e *SignalEmitter) { e.now = now }
}

// SignalEmitter stamps, seals, stores and publishes outgoing signals.
type SignalEmitter struct {
	verifier  *integrity.Verifier
	store     domrepo.SignalStore
	publisher domrepo.SignalPublisher
	gate      TradeGate
	log       *logger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time

	entropyMu sync.Mutex
	entropy   io.Reader
}

func NewSignalEmitter(v *integrity.Verifier, store domrepo.SignalStore, opts ...EmitterOption) *SignalEmitter {
	e := &SignalEmitter{
		verifier: v,
		store:    store,
		log:      logger.Nop(),
		metrics:  metrics.Nop{},
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *SignalEmitter) newID(t time.Time) string {
	e.entropyMu.Lock()
	defer e.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), e.entropy).String()
}

// Emit assigns an id and timestamp when absent, seals the signal and persists it. A publish
// failure is logged and counted; the stored signal is still returned.
func (e *SignalEmitter) Emit(ctx context.Context, s models.Signal) (models.Signal, error) {
	if err := validateSignal(s); err != nil {
		return models.Signal{}, err
	}
	if s.Action != models.ActionHold && e.gate != nil {
		if err := e.gate.Allow(); err != nil {
			return models.Signal{}, fmt.Errorf("emit %s %s: %w", s.Action, s.Symbol, err)
		}
	}

	now := e.now().UTC()
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	if s.ID == "" {
		s.ID = e.newID(now)
	}
	s.Symbol = strings.ToUpper(s.Symbol)

	sealed, err := e.verifier.Seal(s)
	if err != nil {
		return models.Signal{}, fmt.Errorf("seal signal: %w", err)
	}
	if err := e.store.Save(ctx, sealed); err != nil {
		e.metrics.RecordError("signal_store")
		return models.Signal{}, fmt.Errorf("store signal %s: %w", sealed.ID, err)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishSignal(ctx, sealed); err != nil {
			e.metrics.RecordError("signal_publish")
			e.log.Error("publish signal failed", logger.String("id", sealed.ID), logger.Error(err))
		}
	}
	e.log.Info("signal emitted",
		logger.String("id", sealed.ID),
		logger.String("symbol", sealed.Symbol),
		logger.String("action", string(sealed.Action)),
	)
	return sealed, nil
}

// VerifyStored re-hashes a persisted signal.
func (e *SignalEmitter) VerifyStored(ctx context.Context, id string) (models.VerificationResult, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("load signal %s: %w", id, err)
	}
	return e.verifier.Verify(s), nil
}

func (e *SignalEmitter) Recent(ctx context.Context, limit int) ([]models.Signal, error) {
	return e.store.Recent(ctx, limit)
}

func validateSignal(s models.Signal) error {
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	}
	switch s.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return fmt.Errorf("%w: action %q", ErrInvalidSignal, s.Action)
	}
	for name, v := range map[string]float64{
		"entry_price": s.EntryPrice,
		"stop_loss":   s.StopLoss,
		"take_profit": s.TakeProfit,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s %v", ErrInvalidSignal, name, v)
		}
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("%w: confidence %v outside [0, 100]", ErrInvalidSignal, s.Confidence)
	}
	return nil
}
