// Package config loads the service configuration from defaults, an
// optional YAML file, a .env file and CREDBUD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CREDBUD_SERVER_PORT.
const EnvPrefix = "CREDBUD"

// Load builds the configuration. An empty path searches for credbud.yaml
// in the working directory and ./configs; a missing file is not an error.
// The tier key picks the base profile before file and env values apply.
func Load(path string) (*domain.Config, error) {
	loadEnvFile(".env")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("credbud")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if strings.EqualFold(v.GetString("tier"), string(domain.TierPro)) {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads variables from a .env file without overriding the
// process environment.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load env file", "path", path, "error", err)
	}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, c *domain.Config) {
	defaults := map[string]any{
		"tier": string(c.Tier),

		"server.host":         c.Server.Host,
		"server.port":         c.Server.Port,
		"server.readTimeout":  c.Server.ReadTimeout,
		"server.writeTimeout": c.Server.WriteTimeout,
		"server.corsOrigins":  c.Server.CORSOrigins,

		"repository.driver":           c.Repository.Driver,
		"repository.sqlitePath":       c.Repository.SQLitePath,
		"repository.postgresHost":     c.Repository.PostgresHost,
		"repository.postgresPort":     c.Repository.PostgresPort,
		"repository.postgresUser":     c.Repository.PostgresUser,
		"repository.postgresPassword": c.Repository.PostgresPassword,
		"repository.postgresDB":       c.Repository.PostgresDB,
		"repository.postgresSSLMode":  c.Repository.PostgresSSLMode,
		"repository.maxOpenConns":     c.Repository.MaxOpenConns,
		"repository.maxIdleConns":     c.Repository.MaxIdleConns,
		"repository.connMaxLifetime":  c.Repository.ConnMaxLifetime,

		"cache.type":           c.Cache.Type,
		"cache.localMaxSize":   c.Cache.LocalMaxSize,
		"cache.localTTL":       c.Cache.LocalTTL,
		"cache.redisAddr":      c.Cache.RedisAddr,
		"cache.redisPassword":  c.Cache.RedisPassword,
		"cache.redisDB":        c.Cache.RedisDB,
		"cache.enableTwoPhase": c.Cache.EnableTwoPhase,

		"eventBus.type":              c.EventBus.Type,
		"eventBus.channelBufferSize": c.EventBus.ChannelBufferSize,
		"eventBus.natsUrl":           c.EventBus.NATSUrl,
		"eventBus.natsToken":         c.EventBus.NATSToken,
		"eventBus.natsMaxReconnects": c.EventBus.NATSMaxReconnects,
		"eventBus.natsReconnectWait": c.EventBus.NATSReconnectWait,

		"processing.async":                    c.Processing.Async,
		"processing.policyEscalation":         c.Processing.PolicyEscalation,
		"processing.velocityWindow":           c.Processing.VelocityWindow,
		"processing.maxApplicationsPerWindow": c.Processing.MaxApplicationsPerWindow,
		"processing.behaviorTTL":              c.Processing.BehaviorTTL,
		"processing.maxWorkers":               c.Processing.MaxWorkers,

		"upload.maxBytes":   c.Upload.MaxBytes,
		"banks.catalogPath": c.Banks.CatalogPath,

		"logging.level":  c.Logging.Level,
		"logging.format": c.Logging.Format,

		"tracing.enabled":     c.Tracing.Enabled,
		"tracing.serviceName": c.Tracing.ServiceName,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// applyDefaults fills values that must never be zero.
func applyDefaults(cfg *domain.Config) {
	def := domain.DefaultConfig()

	if cfg.Tier == "" {
		cfg.Tier = domain.TierCommunity
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if cfg.Cache.LocalMaxSize <= 0 {
		cfg.Cache.LocalMaxSize = def.Cache.LocalMaxSize
	}
	if cfg.EventBus.ChannelBufferSize <= 0 {
		cfg.EventBus.ChannelBufferSize = def.EventBus.ChannelBufferSize
	}
	if cfg.Processing.VelocityWindow <= 0 {
		cfg.Processing.VelocityWindow = def.Processing.VelocityWindow
	}
	if cfg.Processing.BehaviorTTL <= 0 {
		cfg.Processing.BehaviorTTL = def.Processing.BehaviorTTL
	}
	if cfg.Processing.MaxWorkers <= 0 {
		cfg.Processing.MaxWorkers = def.Processing.MaxWorkers
	}
	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = def.Upload.MaxBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
	// The pro tier always runs the worker.
	if cfg.Tier == domain.TierPro {
		cfg.Processing.Async = true
	}
}

func validate(cfg *domain.Config) error {
	var errs []error

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository.driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache.type %q", cfg.Cache.Type))
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redisAddr is required for redis"))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported eventBus.type %q", cfg.EventBus.Type))
	}
	if cfg.EventBus.Type == "nats" && cfg.EventBus.NATSUrl == "" {
		errs = append(errs, errors.New("eventBus.natsUrl is required for nats"))
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", cfg.Logging.Format))
	}
	if cfg.Processing.MaxApplicationsPerWindow < 0 {
		errs = append(errs, errors.New("processing.maxApplicationsPerWindow must not be negative"))
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q", s)
	}
	return level, nil
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
