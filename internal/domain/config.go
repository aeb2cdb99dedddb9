package domain

import "time"

// Config holds the complete CredBud configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Tier selects the infrastructure profile
	Tier Tier `mapstructure:"tier" json:"tier"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus" json:"eventBus"`

	// Application behaviour
	Processing ProcessingConfig `mapstructure:"processing" json:"processing"`
	Upload     UploadConfig     `mapstructure:"upload" json:"upload"`
	Banks      BanksConfig      `mapstructure:"banks" json:"banks"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string   `mapstructure:"host" json:"host"`
	Port         int      `mapstructure:"port" json:"port"`
	ReadTimeout  int      `mapstructure:"readTimeout" json:"readTimeout"`   // seconds
	WriteTimeout int      `mapstructure:"writeTimeout" json:"writeTimeout"` // seconds
	CORSOrigins  []string `mapstructure:"corsOrigins" json:"corsOrigins"`
}

// ProcessingConfig controls how applications and statements are handled.
type ProcessingConfig struct {
	// Async hands statement analysis and loan scoring to the worker.
	Async bool `mapstructure:"async" json:"async"`

	// PolicyEscalation lets a failing policy rule move a loan to under_review.
	PolicyEscalation bool `mapstructure:"policyEscalation" json:"policyEscalation"`

	// VelocityWindow is the lookback for recent_applications.
	VelocityWindow time.Duration `mapstructure:"velocityWindow" json:"velocityWindow"`

	// MaxApplicationsPerWindow rejects submissions beyond this count with 429. Zero disables.
	MaxApplicationsPerWindow int `mapstructure:"maxApplicationsPerWindow" json:"maxApplicationsPerWindow"`

	// BehaviorTTL is how long behaviour summaries stay cached.
	BehaviorTTL time.Duration `mapstructure:"behaviorTTL" json:"behaviorTTL"`

	// MaxWorkers bounds concurrent policy rule evaluation.
	MaxWorkers int `mapstructure:"maxWorkers" json:"maxWorkers"`
}

// UploadConfig limits statement uploads.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"maxBytes" json:"maxBytes"`
}

// BanksConfig points at an optional bank catalog replacing the built-in one.
type BanksConfig struct {
	CatalogPath string `mapstructure:"catalogPath" json:"catalogPath"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"serviceName" json:"serviceName"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			CORSOrigins:  []string{"http://localhost:5173"},
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./credbud.db",
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
		Processing: ProcessingConfig{
			VelocityWindow:           24 * time.Hour,
			MaxApplicationsPerWindow: 20,
			BehaviorTTL:              time.Hour,
			MaxWorkers:               8,
		},
		Upload: UploadConfig{
			MaxBytes: 5 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "credbud",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
// Statement analysis and scoring run asynchronously on the worker.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "credbud",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Processing.Async = true
	cfg.Tracing.Enabled = true
	return cfg
}
