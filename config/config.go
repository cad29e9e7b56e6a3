package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Events   EventsConfig   `yaml:"events"`
	Services ServicesConfig `yaml:"services"`
	Payment  PaymentConfig  `yaml:"payment"`
	Rental   RentalConfig   `yaml:"rental"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	RentalEventsTopic  string   `yaml:"rental_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RabbitMQConfig struct {
	URL                string `yaml:"url"`
	Queue              string `yaml:"queue"`
	NotificationsQueue string `yaml:"notifications_queue"`
}

// EventsConfig selects the transport rental events are published on: "kafka" or "rabbitmq".
type EventsConfig struct {
	Broker string `yaml:"broker"`
}

// Topics returns the rental events and notifications destinations of the selected
// broker: Kafka topics or RabbitMQ queue names.
func (c *Config) Topics() (events, notifications string) {
	if c.Events.Broker == "rabbitmq" {
		return c.RabbitMQ.Queue, c.RabbitMQ.NotificationsQueue
	}
	return c.Kafka.RentalEventsTopic, c.Kafka.NotificationsTopic
}

type ServicesConfig struct {
	VehicleURL        string `yaml:"vehicle_url"`
	ClientURL         string `yaml:"client_url"`
	TimeoutMillis     int    `yaml:"timeout_ms"`
	ClientCacheTTLSec int    `yaml:"client_cache_ttl_seconds"`
}

func (s ServicesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMillis) * time.Millisecond
}

func (s ServicesConfig) ClientCacheTTL() time.Duration {
	return time.Duration(s.ClientCacheTTLSec) * time.Second
}

// PaymentConfig drives the simulated payment provider.
type PaymentConfig struct {
	SuccessRate   float64 `yaml:"success_rate"`
	LatencyMillis int     `yaml:"latency_ms"`
	TimeoutMillis int     `yaml:"timeout_ms"`
	Outage        bool    `yaml:"outage"`
}

func (p PaymentConfig) Latency() time.Duration {
	return time.Duration(p.LatencyMillis) * time.Millisecond
}

func (p PaymentConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMillis) * time.Millisecond
}

type RentalConfig struct {
	LockTTLSeconds     int `yaml:"lock_ttl_seconds"`
	PendingHoldMinutes int `yaml:"pending_hold_minutes"`
}

func (r RentalConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSeconds) * time.Second
}

func (r RentalConfig) PendingHold() time.Duration {
	return time.Duration(r.PendingHoldMinutes) * time.Minute
}

type WorkerConfig struct {
	ExpirePendingSchedule string `yaml:"expire_pending_schedule"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.overrideWithEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) overrideWithEnv() {
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Kafka.Brokers = strings.Split(val, ",")
	}
	if val := os.Getenv("VEHICLE_SERVICE_URL"); val != "" {
		c.Services.VehicleURL = val
	}
	if val := os.Getenv("CLIENT_SERVICE_URL"); val != "" {
		c.Services.ClientURL = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Events.Broker == "" {
		c.Events.Broker = "kafka"
	}
	if c.Kafka.RentalEventsTopic == "" {
		c.Kafka.RentalEventsTopic = "rental-events"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "rental-notifications"
	}
	if c.RabbitMQ.NotificationsQueue == "" {
		c.RabbitMQ.NotificationsQueue = "rental-notifications"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "rental-worker"
	}
	if c.Services.TimeoutMillis == 0 {
		c.Services.TimeoutMillis = 3000
	}
	if c.Services.ClientCacheTTLSec == 0 {
		c.Services.ClientCacheTTLSec = 300
	}
	if c.Payment.SuccessRate == 0 {
		c.Payment.SuccessRate = 0.95
	}
	if c.Payment.TimeoutMillis == 0 {
		c.Payment.TimeoutMillis = 5000
	}
	if c.Rental.LockTTLSeconds == 0 {
		c.Rental.LockTTLSeconds = 30
	}
	if c.Rental.PendingHoldMinutes == 0 {
		c.Rental.PendingHoldMinutes = 30
	}
	if c.Worker.ExpirePendingSchedule == "" {
		c.Worker.ExpirePendingSchedule = "0 */5 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database name is required")
	}
	if c.Services.VehicleURL == "" {
		return errors.New("vehicle service url is required")
	}
	if c.Payment.SuccessRate < 0 || c.Payment.SuccessRate > 1 {
		return fmt.Errorf("payment success rate must be within [0, 1], got %v", c.Payment.SuccessRate)
	}
	switch c.Events.Broker {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers are required")
		}
	case "rabbitmq":
		if c.RabbitMQ.URL == "" || c.RabbitMQ.Queue == "" {
			return errors.New("rabbitmq url and queue are required")
		}
	default:
		return fmt.Errorf("unknown events broker %q", c.Events.Broker)
	}
	if events, notifications := c.Topics(); events == notifications {
		return fmt.Errorf("rental events and notifications must use different destinations, both are %q", events)
	}
	return nil
}
