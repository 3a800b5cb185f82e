// Package config provides configuration types and loading for expensecat.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Model   ModelConfig
	MCP     MCPConfig
	Stream  StreamConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Runner  RunnerConfig
	Journal JournalConfig
	Server  ServerConfig
	Log     LogConfig
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM endpoint and agent-loop settings.
type ModelConfig struct {
	APIKey            string `split_words:"true"`
	Name              string
	APIBase           string `split_words:"true"`
	MaxTokens         int    `split_words:"true"`
	Temperature       float64
	MaxToolIterations int `split_words:"true"`
}

// ---------------------------------------------------------------------------
// MCP – remote ledger tools
// ---------------------------------------------------------------------------

// MCPConfig locates the MCP server exposing the ledger tools.
type MCPConfig struct {
	ServerURL string `split_words:"true"`
	SecretKey string `split_words:"true"`
	Timeout   time.Duration
}

// ---------------------------------------------------------------------------
// Stream – request/result transport
// ---------------------------------------------------------------------------

// Stream backends.
const (
	BackendRedis = "redis"
	BackendKafka = "kafka"
)

// StreamConfig selects the transport and names the request and result streams.
type StreamConfig struct {
	Backend  string
	Requests string
	Results  string
	Block    time.Duration
	Count    int64
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// KafkaConfig configures the Kafka connection.
type KafkaConfig struct {
	Brokers       string
	ConsumerGroup string `split_words:"true"`
}

// ---------------------------------------------------------------------------
// Processing
// ---------------------------------------------------------------------------

// RunnerConfig bounds instruction retries.
type RunnerConfig struct {
	MaxAttempts int `split_words:"true"`
}

// JournalConfig locates the request journal. It defaults to
// ~/.config/expensecat/journal.db; an empty path or "off" disables it.
type JournalConfig struct {
	Path string
}

// ServerConfig configures the health server. Port is kept raw so an invalid
// value can fall back to the default instead of failing the load.
// It is processed without a prefix: the variable is PORT.
type ServerConfig struct {
	Port string
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string
	Format string
}
