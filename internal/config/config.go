package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string
	LogLevel  string
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Outbox    OutboxConfig
	Redis     RedisConfig
	Lock      LockConfig
	Auth      AuthConfig
	Fill      FillConfig
	Positions PositionsConfig
}

type HTTPConfig struct {
	Port string
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicsConfig
}

type TopicsConfig struct {
	OrderCreated         string
	OrderStatusChanged   string
	TradeExecuted        string
	RecalculateRequested string
}

type OutboxConfig struct {
	RelayInterval time.Duration
	BatchSize     int
	RetryAfter    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LockConfig struct {
	TTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
	// Service credentials carrying the internal permission. Registered only
	// when both are set.
	InternalAPIKey    string
	InternalAPISecret string
}

// PositionsConfig holds the settings of the position ledger process, which
// owns a separate store and consumer group.
type PositionsConfig struct {
	HTTPPort string
	Database DatabaseConfig
	GroupID  string
}

// FillConfig selects how an execution is classified against its order.
// "cumulative" compares against the remaining quantity; "single" compares a
// single execution against the original order quantity.
type FillConfig struct {
	Mode string
}

const (
	FillModeCumulative = "cumulative"
	FillModeSingle     = "single"
)

// DefaultJWTSecret signs tokens outside production only.
const DefaultJWTSecret = "dev-secret-key"

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http.port", "8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "orders.db")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "position-reconciler")
	v.SetDefault("kafka.topics.order_created", "order-created")
	v.SetDefault("kafka.topics.order_status_changed", "order-status-changed")
	v.SetDefault("kafka.topics.trade_executed", "trade-executed")
	v.SetDefault("kafka.topics.recalculate_requested", "positions-recalculate-requested")
	v.SetDefault("outbox.relay_interval", "5s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.retry_after", "30s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("lock.ttl", "10s")
	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.internal_api_key", "")
	v.SetDefault("auth.internal_api_secret", "")
	v.SetDefault("fill.mode", FillModeCumulative)
	v.SetDefault("positions.http_port", "8081")
	v.SetDefault("positions.database.driver", "sqlite")
	v.SetDefault("positions.database.dsn", "positions.db")
	v.SetDefault("positions.group_id", "position-ledger")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. The file is CONFIG_FILE if
// set, otherwise ./config.yaml when present. Nested keys map to environment
// variables with dots replaced by underscores (kafka.group_id -> KAFKA_GROUP_ID).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variables kept from the original server setup.
	_ = v.BindEnv("http.port", "PORT", "HTTP_PORT")
	_ = v.BindEnv("env", "ENV")

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if os.Getenv("DEBUG") == "true" {
		v.Set("log_level", "debug")
	}

	cfg := &Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log_level"),
		HTTP:     HTTPConfig{Port: v.GetString("http.port")},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			GroupID: v.GetString("kafka.group_id"),
			Topics: TopicsConfig{
				OrderCreated:         v.GetString("kafka.topics.order_created"),
				OrderStatusChanged:   v.GetString("kafka.topics.order_status_changed"),
				TradeExecuted:        v.GetString("kafka.topics.trade_executed"),
				RecalculateRequested: v.GetString("kafka.topics.recalculate_requested"),
			},
		},
		Outbox: OutboxConfig{
			RelayInterval: v.GetDuration("outbox.relay_interval"),
			BatchSize:     v.GetInt("outbox.batch_size"),
			RetryAfter:    v.GetDuration("outbox.retry_after"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Lock: LockConfig{TTL: v.GetDuration("lock.ttl")},
		Auth: AuthConfig{
			JWTSecret:         v.GetString("auth.jwt_secret"),
			InternalAPIKey:    v.GetString("auth.internal_api_key"),
			InternalAPISecret: v.GetString("auth.internal_api_secret"),
		},
		Fill: FillConfig{Mode: strings.ToLower(v.GetString("fill.mode"))},
		Positions: PositionsConfig{
			HTTPPort: v.GetString("positions.http_port"),
			Database: DatabaseConfig{
				Driver: v.GetString("positions.database.driver"),
				DSN:    v.GetString("positions.database.dsn"),
			},
			GroupID: v.GetString("positions.group_id"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for _, db := range []DatabaseConfig{c.Database, c.Positions.Database} {
		switch db.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("unsupported database driver %q", db.Driver)
		}
	}
	switch c.Fill.Mode {
	case FillModeCumulative, FillModeSingle:
	default:
		return fmt.Errorf("unsupported fill mode %q", c.Fill.Mode)
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("outbox batch size must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.Production() && c.Auth.JWTSecret == DefaultJWTSecret {
		return errors.New("auth jwt secret must be set in production")
	}
	return nil
}

// Production reports whether the process runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// splitList accepts both YAML lists and comma-separated environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
