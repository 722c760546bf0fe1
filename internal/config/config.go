// Package config loads the service configuration from an optional YAML
// file and RINGWATCH_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RINGWATCH_"

// Load builds the configuration. The tier default is chosen from
// RINGWATCH_TIER, then the YAML file at path (if non-empty) is applied,
// then individual environment overrides.
func Load(path string) (*domain.Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(getenv(EnvPrefix+"TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	e := &env{get: getenv}
	e.str("SERVER_HOST", &cfg.Server.Host)
	e.int("SERVER_PORT", &cfg.Server.Port)

	e.str("REPOSITORY_DRIVER", &cfg.Repository.Driver)
	e.str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	e.str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	e.int("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	e.str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	e.str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	e.str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	e.str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	e.str("CACHE_TYPE", &cfg.Cache.Type)
	e.str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	e.str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	e.duration("REPORT_TTL", &cfg.Cache.ReportTTL)

	e.str("EVENTBUS_TYPE", &cfg.EventBus.Type)
	e.str("NATS_URL", &cfg.EventBus.NATSUrl)
	e.str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	e.int("CYCLE_MAX_NODES", &cfg.Detection.CycleMaxNodes)
	e.int("CYCLE_MAX_EDGES", &cfg.Detection.CycleMaxEdges)
	e.int("MAX_CYCLES", &cfg.Detection.MaxCycles)
	e.int("MAX_SHELL_CHAINS", &cfg.Detection.MaxShellChains)
	e.str("ROLE_RULES", &cfg.Detection.RoleRulesPath)

	e.bool("WORKER_ENABLED", &cfg.Worker.Enabled)
	e.list("WORKER_TENANTS", &cfg.Worker.Tenants)
	e.int("WORKER_CONCURRENCY", &cfg.Worker.Concurrency)

	e.bool("EXPORT_ENABLED", &cfg.Export.Enabled)
	e.str("NEO4J_URI", &cfg.Export.Neo4jURI)
	e.str("NEO4J_USER", &cfg.Export.Neo4jUser)
	e.str("NEO4J_PASSWORD", &cfg.Export.Neo4jPassword)
	e.str("NEO4J_DATABASE", &cfg.Export.Neo4jDatabase)

	e.str("LOG_LEVEL", &cfg.Logging.Level)
	e.str("LOG_FORMAT", &cfg.Logging.Format)
	e.bool("TRACING_ENABLED", &cfg.Tracing.Enabled)

	if e.err != nil {
		return nil, e.err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver)
	}
	d := cfg.Detection
	if d.CycleMaxNodes < 0 || d.CycleMaxEdges < 0 || d.MaxCycles < 0 || d.MaxShellChains < 0 {
		return fmt.Errorf("detection limits must not be negative")
	}
	return nil
}

// env applies overrides and remembers the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.get(EnvPrefix + key))
	return v, v != ""
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

// list reads a comma-separated value, dropping empty items.
func (e *env) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *env) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		return
	}
	*dst = n
}

func (e *env) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		return
	}
	*dst = b
}

func (e *env) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		return
	}
	*dst = d
}
