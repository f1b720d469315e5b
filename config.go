package antrian

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the file/env configuration of an Orchestrator.
//
// Sources, highest precedence first:
//  1. Environment variables (ANTRIAN_QUEUE_MAX_PROCESSING, ...)
//  2. Configuration file
//  3. Default values
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Transport TransportConfig `mapstructure:"transport"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig controls the slog backed logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// QueueConfig configures the request queue.
type QueueConfig struct {
	MaxProcessing  int `mapstructure:"max_processing" validate:"gte=1"`
	LimitPerSecond int `mapstructure:"limit_per_second" validate:"gte=0"`
}

// CacheConfig configures the cache tiers.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DurablePath enables a badger durable tier stored at this directory.
	DurablePath  string        `mapstructure:"durable_path"`
	MaxEntries   int           `mapstructure:"max_entries" validate:"gte=1"`
	MaxAge       time.Duration `mapstructure:"max_age" validate:"gt=0"`
	SingleFlight bool          `mapstructure:"single_flight"`
}

// TransportConfig configures the Caller.
type TransportConfig struct {
	Timeout        time.Duration         `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries     int                   `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	InitialBackoff time.Duration         `mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration         `mapstructure:"max_backoff" validate:"gte=0"`
	Headers        map[string]string     `mapstructure:"headers"`
	CircuitBreaker CircuitBreakerSection `mapstructure:"circuit_breaker"`
}

// CircuitBreakerSection configures the optional circuit breaker.
type CircuitBreakerSection struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=0"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" validate:"gte=0"`
	SuccessThreshold int           `mapstructure:"success_threshold" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Queue:   QueueConfig{MaxProcessing: DefaultMaxProcessing},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: DefaultMaxEntries,
			MaxAge:     DefaultMaxAge,
		},
		Transport: TransportConfig{
			Timeout:        30 * time.Second,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("queue.max_processing", def.Queue.MaxProcessing)
	v.SetDefault("queue.limit_per_second", def.Queue.LimitPerSecond)
	v.SetDefault("cache.enabled", def.Cache.Enabled)
	v.SetDefault("cache.durable_path", def.Cache.DurablePath)
	v.SetDefault("cache.max_entries", def.Cache.MaxEntries)
	v.SetDefault("cache.max_age", def.Cache.MaxAge)
	v.SetDefault("cache.single_flight", def.Cache.SingleFlight)
	v.SetDefault("transport.timeout", def.Transport.Timeout)
	v.SetDefault("transport.max_retries", def.Transport.MaxRetries)
	v.SetDefault("transport.initial_backoff", def.Transport.InitialBackoff)
	v.SetDefault("transport.max_backoff", def.Transport.MaxBackoff)
	v.SetDefault("transport.circuit_breaker.enabled", false)
	v.SetDefault("transport.circuit_breaker.failure_threshold", 5)
	v.SetDefault("transport.circuit_breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("transport.circuit_breaker.success_threshold", 2)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
}

// LoadConfig reads configuration from path (optional), ANTRIAN_ environment
// variables and defaults, then validates it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANTRIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return &ClientError{Type: ErrorTypeValidation, Message: strings.Join(msgs, "; "), Cause: err, Timestamp: time.Now()}
		}
		return err
	}
	return nil
}

// configDecodeHooks lets durations be written as Go durations ("30s") or
// TTL template names ("5min", "1day").
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return time.Duration(0), nil
			}
			if d, err := time.ParseDuration(v); err == nil {
				return d, nil
			}
			return ParseTTL(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// NewFromConfig builds an Orchestrator from cfg. Extra options apply after
// the configured ones. When cfg.Cache.DurablePath is set the badger store is
// closed by Orchestrator.Close.
func NewFromConfig(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLeveledLogger(cfg.Logging.Level, cfg.Logging.Format)

	callerOpts := []CallerOption{
		WithHTTPClient(&http.Client{Timeout: cfg.Transport.Timeout}),
		WithRetry(cfg.Transport.MaxRetries, cfg.Transport.InitialBackoff),
		WithMaxBackoff(cfg.Transport.MaxBackoff),
	}
	if len(cfg.Transport.Headers) > 0 {
		header := make(http.Header, len(cfg.Transport.Headers))
		for k, v := range cfg.Transport.Headers {
			header.Set(k, v)
		}
		callerOpts = append(callerOpts, WithMiddleware(HeaderMiddleware(header)))
	}
	if cb := cfg.Transport.CircuitBreaker; cb.Enabled {
		callerOpts = append(callerOpts, WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cb.FailureThreshold,
			RecoveryTimeout:  cb.RecoveryTimeout,
			SuccessThreshold: cb.SuccessThreshold,
		}))
	}

	cacheOpts := []CacheOption{
		WithActivated(cfg.Cache.Enabled),
		WithVolatile(NewMemoryStorage(MemoryStorageConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			MaxAge:     cfg.Cache.MaxAge,
		})),
	}
	if cfg.Cache.SingleFlight {
		cacheOpts = append(cacheOpts, WithSingleFlight())
	}

	var durable *BadgerStorage
	if cfg.Cache.DurablePath != "" {
		store, err := OpenBadgerStorage(cfg.Cache.DurablePath)
		if err != nil {
			return nil, err
		}
		durable = store
		cacheOpts = append(cacheOpts, WithDurable(durable))
	}

	base := []Option{
		WithLogger(logger),
		WithMaxProcessing(cfg.Queue.MaxProcessing),
		WithLimitPerSecond(cfg.Queue.LimitPerSecond),
		WithCallerOptions(callerOpts...),
		WithCacheOptions(cacheOpts...),
	}

	o := New(append(base, opts...)...)
	if durable != nil {
		o.closers = append(o.closers, durable)
	}
	return o, nil
}
