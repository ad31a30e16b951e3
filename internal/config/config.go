package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Provider  ProviderConfig  `mapstructure:"provider"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	CallEventTopic    string   `mapstructure:"call_event_topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig controls the periodic campaign evaluation tick.
type SchedulerConfig struct {
	// CronSpec drives the in-process trigger; the default fires once per minute.
	CronSpec string `mapstructure:"cron_spec"`
	// DueGraceWindow bounds how far in the past a scheduled row may be and still
	// be picked up by a tick. Older rows are considered stale and left untouched.
	DueGraceWindow time.Duration `mapstructure:"due_grace_window"`
	// RecurringQueueThreshold stops recurring-contact generation once at least
	// this many due rows are already queued for the campaign.
	RecurringQueueThreshold int `mapstructure:"recurring_queue_threshold"`
	// RecurringContactLimit caps how many campaign contacts are enumerated per
	// tick when deriving recurring calls.
	RecurringContactLimit int `mapstructure:"recurring_contact_limit"`
}

// DispatchConfig controls outbound call placement.
type DispatchConfig struct {
	// MaxConcurrentCalls is the per-campaign ceiling on calls in flight.
	MaxConcurrentCalls int `mapstructure:"max_concurrent_calls"`
	// CapacityPollInterval is how often the dispatcher re-checks the live
	// in-flight count while waiting for capacity.
	CapacityPollInterval time.Duration `mapstructure:"capacity_poll_interval"`
	// LimiterTTL bounds the advisory redis throttle slots.
	LimiterTTL time.Duration `mapstructure:"limiter_ttl"`
}

// ReconcileConfig controls stuck-call repair.
type ReconcileConfig struct {
	// StaleAfter is how long a call may sit in calling/in_progress before the
	// reconciler polls the provider for its true state.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// BatchLimit bounds the number of stuck calls repaired per pass.
	BatchLimit int `mapstructure:"batch_limit"`
}

// ProviderConfig describes the external call provider endpoint.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("DIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.CronSpec == "" {
		c.Scheduler.CronSpec = "* * * * *"
	}
	if c.Scheduler.DueGraceWindow <= 0 {
		c.Scheduler.DueGraceWindow = time.Hour
	}
	if c.Scheduler.RecurringQueueThreshold <= 0 {
		c.Scheduler.RecurringQueueThreshold = 20
	}
	if c.Scheduler.RecurringContactLimit <= 0 {
		c.Scheduler.RecurringContactLimit = 50
	}
	if c.Dispatch.MaxConcurrentCalls <= 0 {
		c.Dispatch.MaxConcurrentCalls = 10
	}
	if c.Dispatch.CapacityPollInterval <= 0 {
		c.Dispatch.CapacityPollInterval = 2 * time.Second
	}
	if c.Reconcile.StaleAfter <= 0 {
		c.Reconcile.StaleAfter = 2 * time.Minute
	}
	if c.Reconcile.BatchLimit <= 0 {
		c.Reconcile.BatchLimit = 100
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = 15 * time.Second
	}
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
