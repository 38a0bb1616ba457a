// Package config loads Kestrel configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/opensource-insurance/kestrel/internal/domain"
	"gopkg.in/yaml.v3"
)

// Load reads configuration for the given tier, applies the YAML file at
// path when non-empty, then applies KESTREL_* environment overrides.
func Load(path string, tier domain.Tier) (*domain.Config, error) {
	var cfg *domain.Config
	switch tier {
	case domain.TierPro, domain.TierEnterprise:
		cfg = domain.ProConfig()
	default:
		cfg = domain.DefaultConfig()
	}
	cfg.Tier = tier

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

// overrideFromEnv applies environment variable overrides. Only set
// variables take effect.
func overrideFromEnv(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("KESTREL_PORT"); v > 0 {
		cfg.Server.Port = v
	}

	if v := os.Getenv("KESTREL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := envInt("KESTREL_POSTGRES_PORT"); v > 0 {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("KESTREL_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("KESTREL_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := envInt("KESTREL_MAX_RULE_WORKERS"); v > 0 {
		cfg.Audit.MaxRuleWorkers = v
	}
	if v := envInt("KESTREL_RULE_CACHE_TTL"); v > 0 {
		cfg.Audit.RuleCacheTTL = v
	}
	if v := os.Getenv("KESTREL_RELOAD_SCHEDULE"); v != "" {
		cfg.Audit.ReloadSchedule = v
	}

	if v := os.Getenv("KESTREL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("KESTREL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
