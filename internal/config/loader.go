package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the per-user config directory name under ~/.config.
	ConfigDir = "expensecat"
	// DefaultJournalFile is the journal file name inside the data directory.
	DefaultJournalFile = "journal.db"
)

// ErrMissingMCP is returned by Validate when the MCP server is not configured.
var ErrMissingMCP = errors.New("MCP_SERVER_URL and MCP_SECRET_KEY environment variables are required")

// JournalOff disables the journal when used as JOURNAL_PATH.
const JournalOff = "off"

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	journalPath := ""
	if dir, err := DataDir(); err == nil {
		journalPath = filepath.Join(dir, DefaultJournalFile)
	}
	return &Config{
		Model: ModelConfig{
			Name:              "openai/gpt-oss-20b",
			APIBase:           "https://api.groq.com/openai/v1",
			MaxTokens:         4096,
			Temperature:       0,
			MaxToolIterations: 10,
		},
		MCP: MCPConfig{
			Timeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			Backend:  BackendRedis,
			Requests: "discord:requests",
			Results:  "discord:results",
			Block:    5 * time.Second,
			Count:    10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Kafka: KafkaConfig{
			Brokers:       "localhost:9092",
			ConsumerGroup: "expensecat",
		},
		Runner: RunnerConfig{
			MaxAttempts: 3,
		},
		Journal: JournalConfig{
			Path: journalPath,
		},
		Server: ServerConfig{
			Port: "3000",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads env files, then the process environment, over DefaultConfig.
// It does not validate; call Validate before serving.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	LoadEnvFileCandidates()

	groups := []struct {
		prefix string
		target any
	}{
		{"MODEL", &cfg.Model},
		{"MCP", &cfg.MCP},
		{"STREAM", &cfg.Stream},
		{"REDIS", &cfg.Redis},
		{"KAFKA", &cfg.Kafka},
		{"RUNNER", &cfg.Runner},
		{"JOURNAL", &cfg.Journal},
		{"", &cfg.Server},
		{"LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return nil, fmt.Errorf("load %s config: %w", strings.ToLower(g.prefix), err)
		}
	}
	cfg.Stream.Backend = strings.ToLower(strings.TrimSpace(cfg.Stream.Backend))
	if strings.EqualFold(strings.TrimSpace(cfg.Journal.Path), JournalOff) {
		cfg.Journal.Path = ""
	}
	return cfg, nil
}

// Validate reports configuration that prevents the worker from starting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MCP.ServerURL) == "" || strings.TrimSpace(c.MCP.SecretKey) == "" {
		return ErrMissingMCP
	}
	switch c.Stream.Backend {
	case BackendRedis, BackendKafka:
	default:
		return fmt.Errorf("unknown STREAM_BACKEND %q (want %s or %s)", c.Stream.Backend, BackendRedis, BackendKafka)
	}
	return nil
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// DataDir returns ~/.config/expensecat, where the journal lives by default.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", ConfigDir), nil
}
