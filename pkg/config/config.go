package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"SignalGuard/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SIGNALGUARD_"

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      ServerConfig     `yaml:"server"`
	Logger      LoggerConfig     `yaml:"logger"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Storage     StorageConfig    `yaml:"storage"`
	Coalescer   CoalescerConfig  `yaml:"coalescer"`
	Weights     WeightsConfig    `yaml:"weights"`
	Risk        RiskConfig       `yaml:"risk"`
	Integrity   IntegrityConfig  `yaml:"integrity"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Sources     []SourceConfig   `yaml:"sources" validate:"dive"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimit       float64       `yaml:"rate_limit" default:"50" validate:"gte=0"`
	RateBurst       int           `yaml:"rate_burst" default:"100" validate:"gte=0"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
	// Collect ships aggregated error logs to kafka.topics.logs.
	Collect         bool          `yaml:"collect"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
	CollectMax      int           `yaml:"collect_max" default:"100"`
}

type MetricsConfig struct {
	Enabled *bool `yaml:"enabled" default:"true"`
}

func (m MetricsConfig) On() bool { return m.Enabled == nil || *m.Enabled }

type StorageConfig struct {
	// Backend selects where performance history lives: memory or redis.
	Backend string      `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"pool_size" default:"20"`
	MinIdle   int           `yaml:"min_idle" default:"2"`
	Timeout   time.Duration `yaml:"timeout" default:"3s"`
	KeyPrefix string        `yaml:"key_prefix" default:"signalguard"`
}

type CoalescerConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout" default:"5s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"2s"`
	CacheSize    int           `yaml:"cache_size" default:"10000"`
}

type WeightsConfig struct {
	Sources        []string           `yaml:"sources" validate:"required,min=1,unique,dive,required"`
	InitialWeights map[string]float64 `yaml:"initial_weights"`
	MinWeight      float64            `yaml:"min_weight" default:"0.05" validate:"gte=0,lte=1"`
	MaxWeight      float64            `yaml:"max_weight" default:"0.5" validate:"gt=0,lte=1,gtefield=MinWeight"`
	Window         int                `yaml:"window" default:"100" validate:"gte=1"`
	MinSamples     int                `yaml:"min_samples" default:"10" validate:"gte=1"`
	AdjustInterval time.Duration      `yaml:"adjust_interval" default:"1m"`
}

type RiskConfig struct {
	MaxDrawdownPct    float64       `yaml:"max_drawdown_pct" default:"10" validate:"gt=0,lte=100"`
	DailyLossLimitPct float64       `yaml:"daily_loss_limit_pct" default:"3" validate:"gt=0,lte=100"`
	InitialCapital    float64       `yaml:"initial_capital" default:"100000" validate:"gt=0"`
	CheckInterval     time.Duration `yaml:"check_interval" default:"5s"`
	SampleHistory     int           `yaml:"sample_history" default:"1000" validate:"gte=1"`
	EquityURL         string        `yaml:"equity_url" validate:"omitempty,url"`
}

type IntegrityConfig struct {
	// HashVersion must be a canonical field set the integrity package defines.
	HashVersion int `yaml:"hash_version" default:"1" validate:"oneof=1"`
}

type KafkaConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Brokers  []string       `yaml:"brokers" validate:"required_if=Enabled true"`
	Topics   TopicsConfig   `yaml:"topics"`
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
}

type TopicsConfig struct {
	Signals    string `yaml:"signals" default:"signalguard.signals"`
	RiskEvents string `yaml:"risk_events" default:"signalguard.risk-events"`
	Outcomes   string `yaml:"outcomes" default:"signalguard.outcomes"`
	Logs       string `yaml:"logs" default:"signalguard.logs"`
}

type ProducerConfig struct {
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type ConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"signalguard"`
	Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"signalguard"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert"`
	WaitForAsync bool          `yaml:"wait_for_async_insert"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	SkipSchema   bool          `yaml:"skip_schema_init"`
}

// SourceConfig is one upstream quote provider. Kind http polls {url}/quote, kind stream
// subscribes to a websocket trade feed.
type SourceConfig struct {
	Name           string        `yaml:"name" validate:"required"`
	Kind           string        `yaml:"kind" default:"http" validate:"oneof=http stream"`
	URL            string        `yaml:"url" validate:"required,url"`
	Timeout        time.Duration `yaml:"timeout" default:"3s"`
	Symbols        []string      `yaml:"symbols"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	MaxQuoteAge    time.Duration `yaml:"max_quote_age"`
}

// Load reads a YAML file, applies defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&c)
}

func finish(c *Config) (*Config, error) {
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	for i := range c.Sources {
		if err := defaults.Set(&c.Sources[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with SIGNALGUARD_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return finish(&c)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = util.SplitCSV(v)
		}
	}
	num := func(name string, dst *float64) error {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = f
		}
		return nil
	}
	flag := func(name string, dst *bool) error {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
		return nil
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Logger.Level)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("REDIS_ADDR", &c.Storage.Redis.Addr)
	str("REDIS_PASSWORD", &c.Storage.Redis.Password)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	str("EQUITY_URL", &c.Risk.EquityURL)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	list("WEIGHT_SOURCES", &c.Weights.Sources)
	if v, ok := lookup(envPrefix + "PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Server.Port = p
	}
	for _, fn := range []func() error{
		func() error { return num("INITIAL_CAPITAL", &c.Risk.InitialCapital) },
		func() error { return num("MAX_DRAWDOWN_PCT", &c.Risk.MaxDrawdownPct) },
		func() error { return num("DAILY_LOSS_LIMIT_PCT", &c.Risk.DailyLossLimitPct) },
		func() error { return flag("KAFKA_ENABLED", &c.Kafka.Enabled) },
		func() error { return flag("CLICKHOUSE_ENABLED", &c.ClickHouse.Enabled) },
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	n := float64(len(c.Weights.Sources))
	if n*c.Weights.MinWeight > 1 || n*c.Weights.MaxWeight < 1 {
		return fmt.Errorf("weights: %d sources cannot sum to 1 within [%g, %g]", len(c.Weights.Sources), c.Weights.MinWeight, c.Weights.MaxWeight)
	}
	for name := range c.Weights.InitialWeights {
		if !contains(c.Weights.Sources, name) {
			return fmt.Errorf("weights.initial_weights: unknown source %q", name)
		}
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("sources: duplicate name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Kind == "stream" && len(s.Symbols) == 0 {
			return fmt.Errorf("sources.%s: stream sources need symbols", s.Name)
		}
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
