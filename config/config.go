package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Pilots    PilotsConfig    `yaml:"pilots"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"ssl_mode"`
	MigrationsPath string `yaml:"migrations_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL is the postgres:// form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	LocationTopic      string   `yaml:"location_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	Issuer          string `yaml:"issuer"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type LifecycleConfig struct {
	RequestTimeoutMs      int `yaml:"request_timeout_ms"`
	MinCancelReasonLength int `yaml:"min_cancel_reason_length"`
	LockTTLSeconds        int `yaml:"lock_ttl_seconds"`
}

func (l LifecycleConfig) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutMs) * time.Millisecond
}

func (l LifecycleConfig) LockTTL() time.Duration {
	return time.Duration(l.LockTTLSeconds) * time.Second
}

type PilotsConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func (p PilotsConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

type RealtimeConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	SendBuffer          int `yaml:"send_buffer"`
}

func (r RealtimeConfig) PingInterval() time.Duration {
	return time.Duration(r.PingIntervalSeconds) * time.Second
}

// LoadConfig reads the YAML file at path. A .env file next to the binary is
// loaded first so ${VAR} references in the YAML can be filled from it.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects settings under which a booking lock could expire while
// its holder is still waiting on the store.
func (c *Config) validate() error {
	if c.Lifecycle.LockTTL() <= c.Lifecycle.RequestTimeout() {
		return fmt.Errorf("lifecycle.lock_ttl_seconds (%s) must exceed lifecycle.request_timeout_ms (%s)",
			c.Lifecycle.LockTTL(), c.Lifecycle.RequestTimeout())
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.LocationTopic == "" {
		c.Kafka.LocationTopic = "pilot-locations"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "courierbooking"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "courierbooking"
	}
	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 60
	}
	if c.Lifecycle.RequestTimeoutMs == 0 {
		c.Lifecycle.RequestTimeoutMs = 5000
	}
	if c.Lifecycle.MinCancelReasonLength == 0 {
		c.Lifecycle.MinCancelReasonLength = 10
	}
	if c.Lifecycle.LockTTLSeconds == 0 {
		c.Lifecycle.LockTTLSeconds = 30
	}
	if c.Pilots.CacheTTLSeconds == 0 {
		c.Pilots.CacheTTLSeconds = 15
	}
	if c.Realtime.PingIntervalSeconds == 0 {
		c.Realtime.PingIntervalSeconds = 30
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 64
	}
}
