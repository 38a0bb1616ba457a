package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines feature availability
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Audit pipeline settings
	Audit AuditConfig `yaml:"audit"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// AuditConfig holds audit pipeline settings.
type AuditConfig struct {
	// MaxRuleWorkers bounds concurrent product rule evaluations.
	MaxRuleWorkers int `yaml:"maxRuleWorkers"`

	// RuleCacheTTL is how long negative lists stay cached, in seconds.
	RuleCacheTTL int `yaml:"ruleCacheTtl"`

	// ReloadSchedule is a cron expression for periodic rule reloads.
	// Empty disables scheduled reloading.
	ReloadSchedule string `yaml:"reloadSchedule"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"serviceName"`
	ExporterType string `yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Audit: AuditConfig{
			MaxRuleWorkers: 10,
			RuleCacheTTL:   300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
