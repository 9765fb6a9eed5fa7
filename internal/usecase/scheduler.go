package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalGuard/pkg/logger"
	"SignalGuard/pkg/util"

	"github.com/go-co-op/gocron"
)

// WeightAdjuster is the periodic side of weights.Manager.
type WeightAdjuster interface {
	AdjustWeights(ctx context.Context) (map[string]float64, error)
}

// DailyResetter is the day-boundary side of risk.Monitor.
type DailyResetter interface {
	ResetDaily()
}

// Scheduler runs the periodic jobs: weight adjustment on a fixed interval and the daily
// risk baseline reset at 00:00 UTC.
type Scheduler struct {
	cron           *gocron.Scheduler
	weights        WeightAdjuster
	risk           DailyResetter
	adjustInterval time.Duration
	jobTimeout     time.Duration
	log            *logger.Logger

	mu      sync.Mutex
	started bool
}

func NewScheduler(w WeightAdjuster, r DailyResetter, adjustInterval time.Duration, l *logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		cron:           s,
		weights:        w,
		risk:           r,
		adjustInterval: adjustInterval,
		jobTimeout:     30 * time.Second,
		log:            l,
	}
}

// Start registers the jobs and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.weights != nil && s.adjustInterval > 0 {
		if _, err := s.cron.Every(s.adjustInterval).WaitForSchedule().Do(s.AdjustWeights); err != nil {
			return fmt.Errorf("schedule weight adjustment: %w", err)
		}
	}
	if s.risk != nil {
		if _, err := s.cron.Every(1).Day().At("00:00").Do(s.ResetDaily); err != nil {
			return fmt.Errorf("schedule daily reset: %w", err)
		}
	}

	s.cron.StartAsync()
	s.started = true
	s.log.Info("scheduler started",
		logger.Duration("adjust_interval_ms", s.adjustInterval),
		logger.String("next_daily_reset", util.NextUTCMidnight(time.Now()).Format(time.RFC3339)),
	)
	return nil
}

// AdjustWeights runs one adjustment pass. Exposed so jobs can also be triggered on demand.
func (s *Scheduler) AdjustWeights() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	start := time.Now()
	w, err := s.weights.AdjustWeights(ctx)
	if err != nil {
		s.log.Error("weight adjustment failed", logger.Error(err))
		return
	}
	s.log.Debug("weights adjusted", logger.Any("weights", w), logger.Duration("took_ms", time.Since(start)))
}

func (s *Scheduler) ResetDaily() {
	s.risk.ResetDaily()
	s.log.Info("daily risk reset", logger.String("next", util.NextUTCMidnight(time.Now()).Format(time.RFC3339)))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.cron.Clear()
	s.started = false
	s.log.Info("scheduler stopped")
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return s.cron.Len()
}
