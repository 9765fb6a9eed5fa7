package di

import (
	"context"
	"fmt"
	"time"

	"SignalGuard/internal/coalesce"
	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	"SignalGuard/internal/handler/api"
	"SignalGuard/internal/integrity"
	internalrepo "SignalGuard/internal/repository"
	"SignalGuard/internal/risk"
	"SignalGuard/internal/service/datasource"
	"SignalGuard/internal/usecase"
	"SignalGuard/internal/weights"
	"SignalGuard/pkg/cache"
	pkgch "SignalGuard/pkg/clickhouse"
	"SignalGuard/pkg/config"
	xhttp "SignalGuard/pkg/http"
	pkgkafka "SignalGuard/pkg/kafka"
	applogger "SignalGuard/pkg/logger"
	"SignalGuard/pkg/metrics"
	"SignalGuard/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// ProvideRegistry creates the Prometheus registry every collector in the process registers on.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pkgkafka.SetMetricsRegisterer(reg)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when metrics are off.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) repository.Metrics {
	if !cfg.Metrics.On() {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer. Nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, _ *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With logger.collect on and Kafka enabled,
// error logs are aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logger.Collect && producer != nil {
		l.AttachCollector(applogger.NewLogCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.CollectInterval,
			CountThreshold: cfg.Logger.CollectMax,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		}))
	}
	l = l.With(applogger.String("env", cfg.Environment))
	return l, l.DetachCollector, nil
}

// ProvideClickHouseClient connects and creates the tables. Nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ch := cfg.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !ch.SkipSchema {
		stmts := append(append([]string{}, internalrepo.EquitySchema...), internalrepo.SignalSchema...)
		if err := client.InitSchema(ctx, stmts); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideRedisClient connects to Redis when it is the storage backend. Nil otherwise.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Storage.Backend != "redis" {
		return nil, func() {}, nil
	}
	r := cfg.Storage.Redis
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := cache.NewRedisClient(ctx,
		cache.WithRedisAddr(r.Addr),
		cache.WithRedisPassword(r.Password),
		cache.WithRedisDB(r.DB),
		cache.WithRedisPool(r.PoolSize, r.MinIdle, r.Timeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideHistoryStore(cfg *config.Config, rc *redis.Client) repository.HistoryStore {
	if rc != nil {
		return internalrepo.NewRedisHistoryStore(rc, cfg.Storage.Redis.KeyPrefix, cfg.Weights.Window)
	}
	return internalrepo.NewMemoryHistoryStore(cfg.Weights.Window)
}

// ProvideQuoteCache is the cache in front of upstream sources: Redis when configured so
// replicas share it, otherwise in process.
func ProvideQuoteCache(cfg *config.Config, rc *redis.Client) (cache.Store, func()) {
	if rc != nil {
		return cache.NewRedisStore(rc, cfg.Storage.Redis.KeyPrefix), func() {}
	}
	s := cache.NewMemoryStore(
		cache.WithMemoryMaxSize(cfg.Coalescer.CacheSize),
		cache.WithMemoryCleanup(time.Minute),
	)
	return s, func() { _ = s.Close() }
}

func ProvideWeightManager(cfg *config.Config, history repository.HistoryStore, m repository.Metrics, l *applogger.Logger) (*weights.Manager, error) {
	w := cfg.Weights
	return weights.NewManager(weights.Config{
		Sources:        w.Sources,
		InitialWeights: w.InitialWeights,
		MinWeight:      w.MinWeight,
		MaxWeight:      w.MaxWeight,
		Window:         w.Window,
		MinSamples:     w.MinSamples,
	},
		weights.WithHistoryStore(history),
		weights.WithMetrics(m),
		weights.WithLogger(l.With(applogger.String("component", "weights"))),
	)
}

func ProvideRiskHub(l *applogger.Logger) *api.RiskHub {
	return api.NewRiskHub(l.With(applogger.String("component", "risk_hub")), nil)
}

// ProvideRiskMonitor builds the circuit breaker. Events go to websocket subscribers and, with
// Kafka on, to the risk events topic. Samples go to ClickHouse when it is enabled.
func ProvideRiskMonitor(
	cfg *config.Config,
	hub *api.RiskHub,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	m repository.Metrics,
	l *applogger.Logger,
) (*risk.Monitor, func(), error) {
	rl := l.With(applogger.String("component", "risk"))
	opts := []risk.Option{
		risk.WithEventPublisher(hub),
		risk.WithMetrics(m),
		risk.WithLogger(rl),
	}
	if producer != nil {
		opts = append(opts, risk.WithEventPublisher(internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.RiskEvents)))
	}
	if ch != nil {
		opts = append(opts, risk.WithSampleSink(internalrepo.NewCHEquityStore(ch.DB(), rl)))
	}
	if cfg.Risk.EquityURL != "" {
		opts = append(opts, risk.WithEquityProvider(datasource.NewHTTPEquityProvider(cfg.Risk.EquityURL, cfg.Risk.CheckInterval)))
	}

	mon, err := risk.NewMonitor(risk.Config{
		MaxDrawdownPct:    cfg.Risk.MaxDrawdownPct,
		DailyLossLimitPct: cfg.Risk.DailyLossLimitPct,
		InitialCapital:    cfg.Risk.InitialCapital,
		CheckInterval:     cfg.Risk.CheckInterval,
		SampleHistory:     cfg.Risk.SampleHistory,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	hub.SetSnapshot(func() interface{} { return mon.Status() })
	return mon, mon.Close, nil
}

func ProvideVerifier(cfg *config.Config, m repository.Metrics) *integrity.Verifier {
	return integrity.NewVerifier(integrity.WithVersion(cfg.Integrity.HashVersion), integrity.WithMetrics(m))
}

func ProvideSignalStore(ch *pkgch.Client, l *applogger.Logger) repository.SignalStore {
	if ch != nil {
		return internalrepo.NewCHSignalStore(ch.DB(), l)
	}
	return internalrepo.NewMemorySignalStore(0)
}

func ProvideSignalEmitter(
	cfg *config.Config,
	v *integrity.Verifier,
	store repository.SignalStore,
	producer *pkgkafka.Producer,
	mon *risk.Monitor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalEmitter {
	opts := []usecase.EmitterOption{
		usecase.WithTradeGate(mon),
		usecase.WithEmitterMetrics(m),
		usecase.WithEmitterLogger(l.With(applogger.String("component", "emitter"))),
	}
	if producer != nil {
		opts = append(opts, usecase.WithPublisher(internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.RiskEvents)))
	}
	return usecase.NewSignalEmitter(v, store, opts...)
}

// ProvideSources builds the configured upstream quote sources.
func ProvideSources(cfg *config.Config, l *applogger.Logger) *datasource.Registry {
	sources := make([]repository.DataSource, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch s.Kind {
		case "stream":
			sources = append(sources, datasource.NewStreamSource(datasource.StreamConfig{
				Name:           s.Name,
				URL:            s.URL,
				Symbols:        s.Symbols,
				ReconnectDelay: s.ReconnectDelay,
				PingInterval:   s.PingInterval,
				MaxQuoteAge:    s.MaxQuoteAge,
			}, l))
		default:
			sources = append(sources, datasource.NewHTTPSource(s.Name, s.URL, s.Timeout))
		}
	}
	return datasource.NewRegistry(sources...)
}

func ProvideSourceGateway(cfg *config.Config, sources *datasource.Registry, store cache.Store, m repository.Metrics, l *applogger.Logger) *usecase.SourceGateway {
	c := coalesce.New[models.Quote](coalesce.WithFetchTimeout(cfg.Coalescer.FetchTimeout), coalesce.WithMetrics(m))
	f := coalesce.NewCachedFetcher(store, c, cfg.Coalescer.CacheTTL, l)
	return usecase.NewSourceGateway(sources, f)
}

func ProvideScheduler(cfg *config.Config, w *weights.Manager, mon *risk.Monitor, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(w, mon, cfg.Weights.AdjustInterval, l.With(applogger.String("component", "scheduler")))
}

// ProvideOutcomeConsumer consumes scored outcomes into the weight manager. Nil when Kafka is
// disabled; outcomes then arrive over HTTP only.
func ProvideOutcomeConsumer(cfg *config.Config, w *weights.Manager, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewOutcomeHandler(cfg.Kafka.Topics.Outcomes, w, m, l))
	consumer.SetHook(usecase.OutcomeHooks(m, l))
	return consumer, nil
}

// ProvideHTTPServer assembles the API with its handlers.
func ProvideHTTPServer(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	mon *risk.Monitor,
	w *weights.Manager,
	v *integrity.Verifier,
	emitter *usecase.SignalEmitter,
	gateway *usecase.SourceGateway,
	sources *datasource.Registry,
	hub *api.RiskHub,
	redisClient *redis.Client,
	ch *pkgch.Client,
) *xhttp.Server {
	checks := map[string]api.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}

	hl := l.With(applogger.String("component", "http"))
	handlers := []xhttp.Handler{
		api.NewHealthHandler(checks),
		api.NewRiskHandler(hl, mon),
		api.NewWeightsHandler(hl, w),
		api.NewSignalsHandler(hl, v, emitter),
		api.NewSourcesHandler(hl, gateway, sources),
		hub,
	}

	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithSlowThreshold(s.SlowThreshold),
		xhttp.WithRateLimit(s.RateLimit, s.RateBurst),
		xhttp.WithMetricsRegistry(reg, reg),
	}
	if len(s.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(true, s.CORSOrigins...))
	}
	return xhttp.NewServer(hl, handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	mon *risk.Monitor,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	hub *api.RiskHub,
	sources *datasource.Registry,
) *server.App {
	return server.New(cfg, l, mon, scheduler, consumer, httpServer, hub, sources)
}
