package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"SignalGuard/internal/handler/api"
	"SignalGuard/internal/risk"
	"SignalGuard/internal/service/datasource"
	"SignalGuard/internal/usecase"
	"SignalGuard/pkg/config"
	xhttp "SignalGuard/pkg/http"
	pkgkafka "SignalGuard/pkg/kafka"
	applogger "SignalGuard/pkg/logger"
)

// runner is a background component that lives until its context ends, e.g. a stream source.
type runner interface {
	Run(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	monitor    *risk.Monitor
	scheduler  *usecase.Scheduler
	consumer   *pkgkafka.Consumer
	httpServer *xhttp.Server
	hub        *api.RiskHub
	sources    *datasource.Registry

	runnersWG sync.WaitGroup
}

func New(
	cfg *config.Config,
	log *applogger.Logger,
	monitor *risk.Monitor,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	hub *api.RiskHub,
	sources *datasource.Registry,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		monitor:    monitor,
		scheduler:  scheduler,
		consumer:   consumer,
		httpServer: httpServer,
		hub:        hub,
		sources:    sources,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM or a fatal server error.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		cancel()
		a.shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case runErr = <-a.httpServer.Errors():
	}

	cancel()
	a.shutdown()
	return runErr
}

func (a *App) start(ctx context.Context) error {
	a.monitor.Start()
	a.log.Info("risk monitor started",
		applogger.Float64("max_drawdown_pct", a.cfg.Risk.MaxDrawdownPct),
		applogger.Float64("daily_loss_limit_pct", a.cfg.Risk.DailyLossLimitPct),
	)

	if err := a.scheduler.Start(); err != nil {
		return err
	}

	for _, src := range a.sources.All() {
		r, ok := src.(runner)
		if !ok {
			continue
		}
		a.runnersWG.Add(1)
		go func(name string, r runner) {
			defer a.runnersWG.Done()
			if err := r.Run(ctx); err != nil {
				a.log.Error("source stopped", applogger.String("source", name), applogger.Error(err))
			}
		}(src.Name(), r)
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topics.Outcomes))
	}

	return a.httpServer.Start()
}

// shutdown stops components in reverse dependency order. Infrastructure clients are closed by
// the DI cleanup afterwards.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	a.hub.Close()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.scheduler.Stop()
	a.monitor.Close()

	done := make(chan struct{})
	go func() {
		a.runnersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		a.log.Warn("sources did not stop in time")
	}

	a.log.Info("shutdown complete")
}
