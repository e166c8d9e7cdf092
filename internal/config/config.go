package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every externally tunable knob of the dispatcher server.
// Defaults mirror the values the original factotum-server shipped with.
type Config struct {
	// Server
	IP           string        `envconfig:"IP" default:"0.0.0.0"`
	Port         uint32        `envconfig:"PORT" default:"3000"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// Dispatcher
	MaxJobs    int `envconfig:"MAX_JOBS" default:"1000"`
	MaxWorkers int `envconfig:"MAX_WORKERS" default:"20"`

	// Runner - appended verbatim to every factotum invocation
	FactotumBin      string `envconfig:"FACTOTUM_BIN" required:"true"`
	Webhook          string `envconfig:"WEBHOOK" default:""`
	NoColour         bool   `envconfig:"NO_COLOUR" default:"false"`
	MaxStdouterrSize int    `envconfig:"MAX_STDOUTERR_SIZE" default:"0"`

	// Store namespace (Consul-style key prefix, backed by Redis - internal/store)
	ConsulName      string `envconfig:"CONSUL_NAME" default:"factotum"`
	ConsulIP        string `envconfig:"CONSUL_IP" default:"127.0.0.1"`
	ConsulPort      uint32 `envconfig:"CONSUL_PORT" default:"8500"`
	ConsulNamespace string `envconfig:"CONSUL_NAMESPACE" default:"com.snowplowanalytics/factotum"`

	// Redis connection backing the Store interface
	RedisURL string `envconfig:"REDIS_URL" default:"redis://127.0.0.1:6379/0"`

	// Optional Postgres audit trail (internal/store.AuditLog); disabled when empty
	PostgresURL string `envconfig:"POSTGRES_URL" default:""`

	// Optional NATS subject publisher for job lifecycle events; disabled when empty
	NATSURL string `envconfig:"NATS_URL" default:""`

	// Observability
	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
