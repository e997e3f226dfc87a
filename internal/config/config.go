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

// Ledger backends
const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

// ServerConfig holds relay server configuration
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// BettingConfig holds the fixed fields stamped on every command
type BettingConfig struct {
	Host  string  `yaml:"host"`
	Stake float64 `yaml:"stake"`
}

// TelegramConfig holds the chat feed configuration. The feed is enabled
// when a bot token is set.
type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// LedgerConfig selects the dedup backend
type LedgerConfig struct {
	Backend string `yaml:"backend"`
}

// StreamConfig defines the Redis stream tips are read from
type StreamConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Name          string `yaml:"name"`
	ConsumerGroup string `yaml:"consumer_group"`
	ConsumerID    string `yaml:"consumer_id"`
}

// JournalConfig holds the outcome journal DSN. Empty disables the journal.
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

// ConsoleConfig toggles the interactive operator console
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RetryConfig holds the startup connection retry policy
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Betting  BettingConfig  `yaml:"betting"`
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Stream   StreamConfig   `yaml:"stream"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
	Console  ConsoleConfig  `yaml:"console"`
	Retry    RetryConfig    `yaml:"retry"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "0.0.0.0:5999",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Redis: RedisConfig{
			URL: "localhost:6380",
		},
		Ledger: LedgerConfig{
			Backend: LedgerMemory,
		},
		Stream: StreamConfig{
			Name:          "tips.raw",
			ConsumerGroup: "tip-relay",
			ConsumerID:    "relay-1",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Console: ConsoleConfig{
			Enabled: true,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
		},
	}
}

// LoadConfig loads the file named by TIP_RELAY_CONFIG (default config.yaml)
// and applies environment overrides
func LoadConfig() (*Config, error) {
	return Load(getEnv("TIP_RELAY_CONFIG", "config.yaml"))
}

// Load reads an optional YAML file over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with any environment variables that are set
func (c *Config) applyEnv() error {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Betting.Host = getEnv("BETTING_HOST", c.Betting.Host)
	c.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Ledger.Backend = getEnv("LEDGER_BACKEND", c.Ledger.Backend)
	c.Stream.Name = getEnv("STREAM_NAME", c.Stream.Name)
	c.Stream.ConsumerGroup = getEnv("CONSUMER_GROUP", c.Stream.ConsumerGroup)
	c.Stream.ConsumerID = getEnv("CONSUMER_ID", c.Stream.ConsumerID)
	c.Journal.DSN = getEnv("JOURNAL_DSN", c.Journal.DSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = getEnv("LOG_ENCODING", c.Log.Encoding)

	var err error
	if c.Betting.Stake, err = getEnvFloat("BETTING_STAKE", c.Betting.Stake); err != nil {
		return err
	}
	if c.Stream.Enabled, err = getEnvBool("STREAM_ENABLED", c.Stream.Enabled); err != nil {
		return err
	}
	if c.Console.Enabled, err = getEnvBool("CONSOLE_ENABLED", c.Console.Enabled); err != nil {
		return err
	}
	if c.Retry.MaxAttempts, err = getEnvInt("RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts); err != nil {
		return err
	}
	if c.Retry.InitialDelay, err = getEnvDuration("RETRY_INITIAL_DELAY", c.Retry.InitialDelay); err != nil {
		return err
	}

	if ids := os.Getenv("TELEGRAM_CHAT_IDS"); ids != "" {
		parsed := make([]int64, 0)
		for _, raw := range splitList(ids) {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("TELEGRAM_CHAT_IDS: invalid chat id %q: %w", raw, err)
			}
			parsed = append(parsed, id)
		}
		c.Telegram.ChatIDs = parsed
	}

	return nil
}

// Validate checks the settings every command depends on
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Betting.Host) == "" {
		return errors.New("betting.host is required")
	}
	if c.Betting.Stake <= 0 {
		return fmt.Errorf("betting.stake must be positive, got %v", c.Betting.Stake)
	}
	switch c.Ledger.Backend {
	case LedgerMemory, LedgerRedis:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// NeedsRedis reports whether any enabled component talks to Redis
func (c *Config) NeedsRedis() bool {
	return c.Ledger.Backend == LedgerRedis || c.Stream.Enabled
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// splitList splits a comma-separated list, dropping blanks
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
