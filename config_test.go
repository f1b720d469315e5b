package antrian

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "antrian.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultMaxProcessing, cfg.Queue.MaxProcessing)
	assert.Equal(t, DefaultMaxEntries, cfg.Cache.MaxEntries)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Queue, cfg.Queue)
	assert.Equal(t, DefaultMaxAge, cfg.Cache.MaxAge)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
queue:
  max_processing: 8
  limit_per_second: 20
cache:
  max_entries: 100
  max_age: 1day
  single_flight: true
transport:
  timeout: 5s
  max_retries: 2
  initial_backoff: 50ms
  headers:
    X-Api-Key: secret
  circuit_breaker:
    enabled: true
    failure_threshold: 3
    recovery_timeout: 1min
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Queue.MaxProcessing)
	assert.Equal(t, 20, cfg.Queue.LimitPerSecond)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, TTL1Day, cfg.Cache.MaxAge)
	assert.True(t, cfg.Cache.SingleFlight)
	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 2, cfg.Transport.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.InitialBackoff)
	assert.True(t, cfg.Transport.CircuitBreaker.Enabled)
	assert.Equal(t, 3, cfg.Transport.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Transport.CircuitBreaker.RecoveryTimeout)
	// viper lower-cases map keys.
	assert.Equal(t, "secret", cfg.Transport.Headers["x-api-key"])
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "queue:\n  max_processing: 8\n")
	t.Setenv("ANTRIAN_QUEUE_MAX_PROCESSING", "12")
	t.Setenv("ANTRIAN_TRANSPORT_TIMEOUT", "2s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Queue.MaxProcessing)
	assert.Equal(t, 2*time.Second, cfg.Transport.Timeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfig(t, "queue:\n  max_processing: 0\n")

	_, err := LoadConfig(path)
	require.Error(t, err)

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrorTypeValidation, clientErr.Type)
	assert.Contains(t, clientErr.Message, "MaxProcessing")
}

func TestConfigValidateMetricsAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg.Metrics.Addr = ":9100"
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.MaxRetries = 11
	assert.Error(t, cfg.Validate())
}

func TestDurationDecodeHook(t *testing.T) {
	path := writeConfig(t, "cache:\n  max_age: 7day\ntransport:\n  max_backoff: 90s\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, TTL7Day, cfg.Cache.MaxAge)
	assert.Equal(t, 90*time.Second, cfg.Transport.MaxBackoff)

	bad := writeConfig(t, "cache:\n  max_age: someday\n")
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	var gotKey string
	server := newTestAPI(t, func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-Api-Key")
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
	})

	cfg := DefaultConfig()
	cfg.Queue.MaxProcessing = 3
	cfg.Cache.DurablePath = t.TempDir()
	cfg.Cache.SingleFlight = true
	cfg.Transport.Headers = map[string]string{"x-api-key": "k1"}
	cfg.Transport.CircuitBreaker.Enabled = true

	o, err := NewFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, o.Queue().MaxProcessing())
	require.NotNil(t, o.Cache().Durable())
	assert.NotNil(t, o.Caller().CircuitBreaker())

	got, err := o.Request(server.URL + "/").Cache(CachePolicy{}).Storage().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, got)
	assert.Equal(t, "k1", gotKey)

	_, ok, err := o.Cache().Durable().Get(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, o.Close())
}

func TestNewFromConfigInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"

	_, err := NewFromConfig(cfg)
	assert.Error(t, err)
}

func TestNewFromConfigCacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = false

	o, err := NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })

	assert.False(t, o.Cache().Activated())
}
