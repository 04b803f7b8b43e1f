package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Values come from an optional YAML file
// named by CONFIG_FILE, then environment variables override them.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	JoinCooldown     time.Duration `yaml:"join_cooldown"`
	ChatHistoryLimit int           `yaml:"chat_history_limit"`
	RunHistoryLimit  int           `yaml:"run_history_limit"`
	SendQueueSize    int           `yaml:"send_queue_size"`
	CORSOrigins      []string      `yaml:"cors_origins"`

	RedisAddr     string `yaml:"redis_addr"`
	StatsSchedule string `yaml:"stats_schedule"`

	AIProvider string `yaml:"ai_provider"`

	SandboxEnabled  bool          `yaml:"sandbox_enabled"`
	SandboxWallTime time.Duration `yaml:"sandbox_wall_time"`
	SandboxMemoryMB int64         `yaml:"sandbox_memory_mb"`
}

var supportedProviders = map[string]bool{"gemini": true}

func Default() *Config {
	return &Config{
		Port:             "8080",
		LogLevel:         "info",
		JoinCooldown:     time.Second,
		ChatHistoryLimit: 0,
		RunHistoryLimit:  20,
		SendQueueSize:    256,
		CORSOrigins:      []string{"*"},
		StatsSchedule:    "@every 1m",
		AIProvider:       "gemini",
		SandboxWallTime:  10 * time.Second,
		SandboxMemoryMB:  512,
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.RedisAddr)
	c.StatsSchedule = getEnvOrDefault("STATS_SCHEDULE", c.StatsSchedule)
	c.AIProvider = getEnvOrDefault("AI_PROVIDER", c.AIProvider)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if c.JoinCooldown, err = getEnvDuration("JOIN_COOLDOWN", c.JoinCooldown); err != nil {
		return err
	}
	if c.SandboxWallTime, err = getEnvDuration("SANDBOX_WALL_TIME", c.SandboxWallTime); err != nil {
		return err
	}
	if c.ChatHistoryLimit, err = getEnvInt("CHAT_HISTORY_LIMIT", c.ChatHistoryLimit); err != nil {
		return err
	}
	if c.RunHistoryLimit, err = getEnvInt("RUN_HISTORY_LIMIT", c.RunHistoryLimit); err != nil {
		return err
	}
	if c.SendQueueSize, err = getEnvInt("SEND_QUEUE_SIZE", c.SendQueueSize); err != nil {
		return err
	}
	mem, err := getEnvInt("SANDBOX_MEMORY_MB", int(c.SandboxMemoryMB))
	if err != nil {
		return err
	}
	c.SandboxMemoryMB = int64(mem)
	if c.SandboxEnabled, err = getEnvBool("SANDBOX_ENABLED", c.SandboxEnabled); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if c.JoinCooldown < 0 {
		errs = append(errs, errors.New("join cooldown must not be negative"))
	}
	if c.ChatHistoryLimit < 0 || c.RunHistoryLimit < 0 {
		errs = append(errs, errors.New("history limits must not be negative"))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, errors.New("send queue size must be positive"))
	}
	if c.SandboxEnabled && (c.SandboxWallTime <= 0 || c.SandboxMemoryMB <= 0) {
		errs = append(errs, errors.New("sandbox limits must be positive"))
	}
	if !supportedProviders[c.AIProvider] {
		errs = append(errs, errors.New("unsupported AI provider: "+c.AIProvider+". Currently supported: gemini"))
	}
	return errors.Join(errs...)
}

// FeedEnabled reports whether the Redis activity feed is configured.
func (c *Config) FeedEnabled() bool { return c.RedisAddr != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
