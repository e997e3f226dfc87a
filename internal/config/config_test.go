package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:5999" {
		t.Errorf("Expected default server addr '0.0.0.0:5999', got '%s'", cfg.Server.Addr)
	}
	if cfg.Redis.URL != "localhost:6380" {
		t.Errorf("Expected default redis URL 'localhost:6380', got '%s'", cfg.Redis.URL)
	}
	if cfg.Ledger.Backend != config.LedgerMemory {
		t.Errorf("Expected memory ledger by default, got '%s'", cfg.Ledger.Backend)
	}
	if cfg.Stream.Name != "tips.raw" {
		t.Errorf("Expected default stream 'tips.raw', got '%s'", cfg.Stream.Name)
	}
	if !cfg.Console.Enabled {
		t.Error("Expected console enabled by default")
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second {
		t.Errorf("Unexpected retry defaults: %+v", cfg.Retry)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
server:
  addr: 127.0.0.1:7000
betting:
  host: bet365
  stake: 12.5
telegram:
  bot_token: abc
  chat_ids: [-1001, -1002]
ledger:
  backend: redis
retry:
  initial_delay: 250ms
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:7000" {
		t.Errorf("Server.Addr = %s", cfg.Server.Addr)
	}
	if cfg.Betting.Host != "bet365" || cfg.Betting.Stake != 12.5 {
		t.Errorf("Betting = %+v", cfg.Betting)
	}
	if len(cfg.Telegram.ChatIDs) != 2 || cfg.Telegram.ChatIDs[1] != -1002 {
		t.Errorf("Telegram.ChatIDs = %v", cfg.Telegram.ChatIDs)
	}
	if cfg.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("Retry.InitialDelay = %v", cfg.Retry.InitialDelay)
	}
	// Untouched sections keep their defaults
	if cfg.Redis.URL != "localhost:6380" {
		t.Errorf("Redis.URL = %s", cfg.Redis.URL)
	}
	if !cfg.NeedsRedis() {
		t.Error("Expected redis ledger to need redis")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "betting:\n  host: bet365\n  stake: 10\n")

	t.Setenv("BETTING_HOST", "pinnacle")
	t.Setenv("BETTING_STAKE", "25")
	t.Setenv("TELEGRAM_CHAT_IDS", "-100, 42")
	t.Setenv("STREAM_ENABLED", "true")
	t.Setenv("CONSOLE_ENABLED", "false")
	t.Setenv("RETRY_INITIAL_DELAY", "2s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Betting.Host != "pinnacle" || cfg.Betting.Stake != 25 {
		t.Errorf("Betting = %+v", cfg.Betting)
	}
	if len(cfg.Telegram.ChatIDs) != 2 || cfg.Telegram.ChatIDs[0] != -100 || cfg.Telegram.ChatIDs[1] != 42 {
		t.Errorf("Telegram.ChatIDs = %v", cfg.Telegram.ChatIDs)
	}
	if !cfg.Stream.Enabled || cfg.Console.Enabled {
		t.Errorf("Stream.Enabled = %v, Console.Enabled = %v", cfg.Stream.Enabled, cfg.Console.Enabled)
	}
	if cfg.Retry.InitialDelay != 2*time.Second {
		t.Errorf("Retry.InitialDelay = %v", cfg.Retry.InitialDelay)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		want    string
	}{
		{name: "bad yaml", content: "betting: [", want: "parse config"},
		{name: "bad stake", env: map[string]string{"BETTING_STAKE": "ten"}, want: "BETTING_STAKE"},
		{name: "bad chat id", env: map[string]string{"TELEGRAM_CHAT_IDS": "abc"}, want: "TELEGRAM_CHAT_IDS"},
		{name: "bad bool", env: map[string]string{"STREAM_ENABLED": "maybe"}, want: "STREAM_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(writeFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Default()
		cfg.Betting.Host = "bet365"
		cfg.Betting.Stake = 10
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "missing host", mutate: func(c *config.Config) { c.Betting.Host = " " }, wantErr: true},
		{name: "zero stake", mutate: func(c *config.Config) { c.Betting.Stake = 0 }, wantErr: true},
		{name: "negative stake", mutate: func(c *config.Config) { c.Betting.Stake = -1 }, wantErr: true},
		{name: "unknown ledger", mutate: func(c *config.Config) { c.Ledger.Backend = "etcd" }, wantErr: true},
		{name: "redis ledger", mutate: func(c *config.Config) { c.Ledger.Backend = config.LedgerRedis }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
