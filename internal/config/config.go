// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs group the settings of one
// component.
type Config struct {
	Env          string `env:"APP_ENV,required"`           // local, dev or prod; selects the log format
	Port         string `env:"APP_PORT" envDefault:"8080"` // HTTP port to listen on
	JWTSecret    string `env:"JWT_SECRET,required"`        // secret used to verify access tokens
	AccessTTLMin int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"60"`

	DB          DBConfig
	Reservation ReservationConfig
	Redis       RedisConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	Notify      NotifyConfig
	Invitations InvitationConfig
}

// DBConfig selects and addresses the reservation database.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	User       string `env:"DB_USER"`
	Pass       string `env:"DB_PASS"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       string `env:"DB_PORT" envDefault:"3306"`
	Name       string `env:"DB_NAME"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/teetime.db"`
	Migrate    bool   `env:"DB_MIGRATE" envDefault:"true"`
}

// ReservationConfig tunes the coordinator's retry loop.
type ReservationConfig struct {
	MaxAttempts     int           `env:"RESERVATION_MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff  time.Duration `env:"RESERVATION_BACKOFF_INITIAL" envDefault:"20ms"`
	MaxBackoff      time.Duration `env:"RESERVATION_BACKOFF_MAX" envDefault:"250ms"`
	AttemptTimeout  time.Duration `env:"RESERVATION_ATTEMPT_TIMEOUT" envDefault:"3s"`
	DispatchTimeout time.Duration `env:"RESERVATION_DISPATCH_TIMEOUT" envDefault:"5s"`
}

// NotifyConfig addresses the RabbitMQ broker that carries reservation events.
type NotifyConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	FallbackURL     string `env:"AMQP_URL"`
	Queue           string `env:"NOTIFY_QUEUE" envDefault:"reservation.events"`
	ConsumerEnabled bool   `env:"NOTIFY_CONSUMER_ENABLED" envDefault:"false"`
	LogDir          string `env:"NOTIFY_LOG_DIR" envDefault:"logs"`
}

// BrokerURL returns the first configured broker URL.  An empty result
// disables publishing.
func (n NotifyConfig) BrokerURL() string {
	if n.URL != "" {
		return n.URL
	}
	return n.FallbackURL
}

// InvitationConfig controls the expiry of unanswered invitations.
type InvitationConfig struct {
	TTL           time.Duration `env:"INVITATION_TTL" envDefault:"72h"`
	SweepInterval time.Duration `env:"INVITATION_SWEEP_INTERVAL" envDefault:"10m"`
	SweepBatch    int           `env:"INVITATION_SWEEP_BATCH" envDefault:"100"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load for program start-up: it panics on invalid configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case "mysql":
		if c.DB.User == "" || c.DB.Name == "" {
			return fmt.Errorf("DB_USER and DB_NAME are required for the mysql driver")
		}
	case "sqlite":
		if strings.TrimSpace(c.DB.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.AccessTTLMin <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	if c.Invitations.TTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive")
	}
	return nil
}
