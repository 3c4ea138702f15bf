package upload

import (
	"fmt"
	"time"

	"github.com/marmos91/vidforge/pkg/protocol"
)

// DefaultMaxPayloadBytes is the default request payload ceiling (4 GiB).
const DefaultMaxPayloadBytes = 4 << 30

// Config holds configuration parameters for the upload server.
//
// Default values (applied by New if zero):
//   - MaxPayloadBytes: 4 GiB
//   - ReadTimeout: 10m (the whole request, payload included)
//   - WriteTimeout: 2m
//   - AcceptPollInterval: 1s
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m
//
// Port 0 binds an ephemeral port; the configuration layer supplies 5000.
type Config struct {
	// Enabled controls whether the upload adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the interface to bind. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxPayloadBytes rejects requests declaring a larger payload before any
	// of it is read. The whole payload is held in memory while processing.
	MaxPayloadBytes uint64 `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes" validate:"max=1099511627775"`

	// ReadTimeout bounds reading one complete request.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// AcceptPollInterval is how long one Accept call may block before the
	// loop re-checks for shutdown.
	AcceptPollInterval time.Duration `mapstructure:"accept_poll_interval" yaml:"accept_poll_interval" validate:"min=0"`

	// ShutdownTimeout is how long shutdown waits for in-flight requests
	// before force-closing their sockets.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the period of the activity log line. Negative disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`

	// AcceptRate limits admitted connections per second across all clients.
	// Zero disables the limit.
	AcceptRate float64 `mapstructure:"accept_rate" yaml:"accept_rate" validate:"min=0"`

	// AcceptBurst is the number of connections admitted back to back before
	// AcceptRate applies. Zero derives it from AcceptRate.
	AcceptBurst int `mapstructure:"accept_burst" yaml:"accept_burst" validate:"min=0"`
}

func (c *Config) applyDefaults() {
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 2 * time.Minute
	}
	if c.AcceptPollInterval == 0 {
		c.AcceptPollInterval = time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxPayloadBytes > protocol.MaxPayloadSize {
		return fmt.Errorf("invalid max payload %d: wire format allows at most %d", c.MaxPayloadBytes, uint64(protocol.MaxPayloadSize))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("invalid timeouts read=%v write=%v: must be >= 0", c.ReadTimeout, c.WriteTimeout)
	}
	if c.AcceptPollInterval <= 0 {
		return fmt.Errorf("invalid accept poll interval %v: must be > 0", c.AcceptPollInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.AcceptRate < 0 || c.AcceptBurst < 0 {
		return fmt.Errorf("invalid accept rate %v burst %d: must be >= 0", c.AcceptRate, c.AcceptBurst)
	}
	return nil
}
