package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken         string           `yaml:"discord_token"`
	DatabasePath         string           `yaml:"database_path"`
	LogLevel             string           `yaml:"log_level"`
	DefaultModLogChannel string           `yaml:"default_mod_log_channel"`
	Health               HealthConfig     `yaml:"health"`
	Scheduler            SchedulerConfig  `yaml:"scheduler"`
	Moderation           ModerationConfig `yaml:"moderation"`
	Ladder               LadderConfig     `yaml:"ladder"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SchedulerConfig struct {
	MaxConcurrentSubjects    int `yaml:"max_concurrent_subjects"`
	RetryIntervalSeconds     int `yaml:"retry_interval_seconds"`
	ReconcileIntervalMinutes int `yaml:"reconcile_interval_minutes"`
	GatewayTimeoutSeconds    int `yaml:"gateway_timeout_seconds"`
}

type ModerationConfig struct {
	MuteRoleID    string `yaml:"mute_role_id"`
	WarnRoleID    string `yaml:"warn_role_id"`
	WarnThreshold int    `yaml:"warn_threshold"`
	WarnDecayDays int    `yaml:"warn_decay_days"`
}

type LadderConfig struct {
	KFactor    float64 `yaml:"k_factor"`
	BaseRating float64 `yaml:"base_rating"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:         "/data/guildwarden.db",
		LogLevel:             "info",
		DefaultModLogChannel: "",
		Health:               HealthConfig{Enabled: false, Addr: ":8080"},
		Scheduler: SchedulerConfig{
			MaxConcurrentSubjects:    4,
			RetryIntervalSeconds:     60,
			ReconcileIntervalMinutes: 5,
			GatewayTimeoutSeconds:    10,
		},
		Moderation: ModerationConfig{
			WarnThreshold: 3,
			WarnDecayDays: 7,
		},
		Ladder: LadderConfig{
			KFactor:    32,
			BaseRating: 1000,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultModLogChannel = envString("DEFAULT_MOD_LOG_CHANNEL", cfg.DefaultModLogChannel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Scheduler.MaxConcurrentSubjects = envInt("SCHEDULER_MAX_CONCURRENT_SUBJECTS", cfg.Scheduler.MaxConcurrentSubjects)
	cfg.Scheduler.RetryIntervalSeconds = envInt("SCHEDULER_RETRY_INTERVAL_SECONDS", cfg.Scheduler.RetryIntervalSeconds)
	cfg.Scheduler.ReconcileIntervalMinutes = envInt("SCHEDULER_RECONCILE_INTERVAL_MINUTES", cfg.Scheduler.ReconcileIntervalMinutes)
	cfg.Scheduler.GatewayTimeoutSeconds = envInt("SCHEDULER_GATEWAY_TIMEOUT_SECONDS", cfg.Scheduler.GatewayTimeoutSeconds)
	cfg.Moderation.MuteRoleID = envString("MUTE_ROLE_ID", cfg.Moderation.MuteRoleID)
	cfg.Moderation.WarnRoleID = envString("WARN_ROLE_ID", cfg.Moderation.WarnRoleID)
	cfg.Moderation.WarnThreshold = envInt("WARN_THRESHOLD", cfg.Moderation.WarnThreshold)
	cfg.Moderation.WarnDecayDays = envInt("WARN_DECAY_DAYS", cfg.Moderation.WarnDecayDays)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
