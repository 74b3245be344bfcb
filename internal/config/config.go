package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backend names.
const (
	StoreMongo  = "mongo"
	StoreBolt   = "bolt"
	StoreMemory = "memory"

	EventLogPostgres    = "postgres"
	CascadeJournalRedis = "redis"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName      string
	Environment  string
	HTTP         HTTPConfig
	Store        StoreConfig
	Mongo        MongoConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Repair       RepairConfig
	Traceability TraceabilityConfig
	Compliance   ComplianceConfig
	Context      ContextConfig
	Logger       LoggerConfig
	Migrations   MigrationsConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnableMetrics bool
}

// StoreConfig selects where entities, events and cascade batches live.
type StoreConfig struct {
	Backend        string
	BoltPath       string
	EventLog       string
	CascadeJournal string
	MaxRetries     int
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether relationship events are published.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type RepairConfig struct {
	Path           string
	Schedule       string
	BatchSize      int
	MaxRetry       int
	RetentionHours int
	SweepSchedule  string
}

type TraceabilityConfig struct {
	MaxDepth       int
	RetentionYears int
}

type ComplianceConfig struct {
	ReviewInterval time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "relational-graph"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", true),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(getString("STORE_BACKEND", StoreBolt)),
			BoltPath:       getString("BOLT_PATH", "./data/entities.db"),
			EventLog:       strings.ToLower(getString("EVENT_LOG_BACKEND", EventLogPostgres)),
			CascadeJournal: strings.ToLower(getString("CASCADE_JOURNAL_BACKEND", CascadeJournalRedis)),
			MaxRetries:     getInt("MAX_CONFLICT_RETRIES", 3),
		},
		Mongo: MongoConfig{
			URI:            getString("MONGO_URI", "mongodb://localhost:27017"),
			Database:       getString("MONGO_DATABASE", "manufacturing"),
			ConnectTimeout: getDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "relational_db"),
			User:            getString("DB_USER", "relational_user"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
			Prefix:   getString("REDIS_PREFIX", "cascade:"),
		},
		Kafka: KafkaConfig{
			Brokers: getList("KAFKA_BROKERS"),
			Topic:   getString("KAFKA_TOPIC", "relationship-events"),
		},
		Repair: RepairConfig{
			Path:           getString("REPAIR_QUEUE_PATH", "./data/repair.db"),
			Schedule:       getString("REPAIR_SCHEDULE", "@every 30s"),
			BatchSize:      getInt("REPAIR_BATCH_SIZE", 50),
			MaxRetry:       getInt("REPAIR_MAX_RETRY", 5),
			RetentionHours: getInt("REPAIR_RETENTION_HOURS", 72),
			SweepSchedule:  getString("INTEGRITY_SWEEP_SCHEDULE", "@hourly"),
		},
		Traceability: TraceabilityConfig{
			MaxDepth:       getInt("TRACE_MAX_DEPTH", 10),
			RetentionYears: getInt("TRACE_RETENTION_YEARS", 10),
		},
		Compliance: ComplianceConfig{
			ReviewInterval: getDuration("COMPLIANCE_REVIEW_INTERVAL", 90*24*time.Hour),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMongo, StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Store.EventLog {
	case EventLogPostgres, StoreMemory:
	default:
		return fmt.Errorf("config: unknown EVENT_LOG_BACKEND %q", c.Store.EventLog)
	}
	switch c.Store.CascadeJournal {
	case CascadeJournalRedis, StoreMemory:
	default:
		return fmt.Errorf("config: unknown CASCADE_JOURNAL_BACKEND %q", c.Store.CascadeJournal)
	}
	if c.Traceability.MaxDepth <= 0 {
		return fmt.Errorf("config: TRACE_MAX_DEPTH must be positive")
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration accepts Go durations, plain seconds, or whole days as "90d".
func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if days, ok := strings.CutSuffix(val, "d"); ok {
			if n, err := strconv.Atoi(days); err == nil {
				return time.Duration(n) * 24 * time.Hour
			}
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
