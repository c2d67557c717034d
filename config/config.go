package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. AIRWAYS_HTTP_ADDRESS.
const EnvPrefix = "AIRWAYS"

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Booking   BookingConfig   `yaml:"booking"`
	Payment   PaymentConfig   `yaml:"payment"`
	Worker    WorkerConfig    `yaml:"worker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
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
	SSLMode        string `yaml:"ssl_mode" envconfig:"SSL_MODE"`
	MaxConns       int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
	MigrateOnStart bool   `yaml:"migrate_on_start" envconfig:"MIGRATE_ON_START"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Brokers               []string `yaml:"brokers"`
	EventsTopic           string   `yaml:"events_topic" envconfig:"EVENTS_TOPIC"`
	NotificationsTopic    string   `yaml:"notifications_topic" envconfig:"NOTIFICATIONS_TOPIC"`
	PaymentCallbacksTopic string   `yaml:"payment_callbacks_topic" envconfig:"PAYMENT_CALLBACKS_TOPIC"`
	GroupID               string   `yaml:"group_id" envconfig:"GROUP_ID"`
}

type BookingConfig struct {
	TaxRate           string        `yaml:"tax_rate" envconfig:"TAX_RATE"`
	SeatHoldTTL       time.Duration `yaml:"seat_hold_ttl" envconfig:"SEAT_HOLD_TTL"`
	FlightsCacheTTL   time.Duration `yaml:"flights_cache_ttl" envconfig:"FLIGHTS_CACHE_TTL"`
	NodeID            int64         `yaml:"node_id" envconfig:"NODE_ID"`
	ReferenceAttempts int           `yaml:"reference_attempts" envconfig:"REFERENCE_ATTEMPTS"`
}

type PaymentConfig struct {
	Payme           gateway.PaymeConfig  `yaml:"payme"`
	Click           gateway.ClickConfig  `yaml:"click"`
	Stripe          gateway.StripeConfig `yaml:"stripe"`
	PendingCheckAge time.Duration        `yaml:"pending_check_age" envconfig:"PENDING_CHECK_AGE"`
	SyncBatchSize   int                  `yaml:"sync_batch_size" envconfig:"SYNC_BATCH_SIZE"`
}

type WorkerConfig struct {
	PaymentSyncInterval time.Duration `yaml:"payment_sync_interval" envconfig:"PAYMENT_SYNC_INTERVAL"`
	FlightSweepInterval time.Duration `yaml:"flight_sweep_interval" envconfig:"FLIGHT_SWEEP_INTERVAL"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Insecure    bool   `yaml:"insecure"`
}

// LoadConfig reads the YAML file at path, then applies a .env file if one is
// present and AIRWAYS_* environment variables on top.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "airways"
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StoragePostgres
	}
	if c.Booking.TaxRate == "" {
		c.Booking.TaxRate = "0.12"
	}
	if c.Booking.SeatHoldTTL == 0 {
		c.Booking.SeatHoldTTL = 5 * time.Minute
	}
	if c.Booking.FlightsCacheTTL == 0 {
		c.Booking.FlightsCacheTTL = 30 * time.Second
	}
	if c.Booking.ReferenceAttempts == 0 {
		c.Booking.ReferenceAttempts = 5
	}
	if c.Payment.PendingCheckAge == 0 {
		c.Payment.PendingCheckAge = 15 * time.Minute
	}
	if c.Payment.SyncBatchSize == 0 {
		c.Payment.SyncBatchSize = 100
	}
	if c.Worker.PaymentSyncInterval == 0 {
		c.Worker.PaymentSyncInterval = time.Minute
	}
	if c.Worker.FlightSweepInterval == 0 {
		c.Worker.FlightSweepInterval = 5 * time.Minute
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.App.Name
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required for postgres storage"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required for postgres storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Booking.NodeID < 0 || c.Booking.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("booking.node_id %d out of range 0..1023", c.Booking.NodeID))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
