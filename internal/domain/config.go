package domain

import "time"

// Config holds the complete RingWatch configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines feature availability
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Detection limits. Scoring weights and thresholds are fixed.
	Detection DetectionConfig `yaml:"detection"`

	// Async dataset processing
	Worker WorkerConfig `yaml:"worker"`

	// Optional graph export
	Export ExportConfig `yaml:"export"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds

	// MaxBodyBytes bounds an uploaded ledger.
	MaxBodyBytes int64 `yaml:"maxBodyBytes"`
}

// DetectionConfig bounds the exponential parts of the pipeline.
type DetectionConfig struct {
	// Cycle enumeration is skipped when the graph exceeds both limits.
	CycleMaxNodes int `yaml:"cycleMaxNodes"`
	CycleMaxEdges int `yaml:"cycleMaxEdges"`

	MaxCycles      int `yaml:"maxCycles"`
	MaxShellChains int `yaml:"maxShellChains"`

	// RoleRulesPath optionally replaces the built-in role rules.
	RoleRulesPath string `yaml:"roleRulesPath"`
}

// WorkerConfig controls the consumer of submitted datasets.
type WorkerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Tenants     []string `yaml:"tenants"` // empty means all tenants
	Concurrency int      `yaml:"concurrency"`
}

// ExportConfig holds graph database export settings.
type ExportConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Neo4jURI      string        `yaml:"neo4jUri"`
	Neo4jUser     string        `yaml:"neo4jUser"`
	Neo4jPassword string        `yaml:"neo4jPassword"`
	Neo4jDatabase string        `yaml:"neo4jDatabase"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings. When disabled, a no-op
// tracer provider is installed; otherwise spans go to the global provider
// registered by the host process.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultDetectionConfig returns the standard detection limits.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		CycleMaxNodes:  5000,
		CycleMaxEdges:  20000,
		MaxCycles:      5000,
		MaxShellChains: 2000,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
			MaxBodyBytes: 64 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./ringwatch.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    15 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 64,
		},
		Detection: DefaultDetectionConfig(),
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: 2,
		},
		Export: ExportConfig{
			Neo4jURI:      "neo4j://localhost:7687",
			Neo4jUser:     "neo4j",
			Neo4jDatabase: "neo4j",
			Timeout:       30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ringwatch",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "ringwatch",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   64,
		LocalTTL:       time.Minute,
		ReportTTL:      time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "ringwatch-workers",
	}
	cfg.Worker.Concurrency = 8
	cfg.Tracing.Enabled = true
	return cfg
}
