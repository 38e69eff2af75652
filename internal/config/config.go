package config

import "time"

// Run modes.
const (
	ModeServer = "server"
	ModeClient = "client"
)

// Config is the root configuration for a framelink process.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Mode      string          `yaml:"mode"` // "server" or "client"
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Transport TransportConfig `yaml:"transport"`
	Framing   FramingConfig   `yaml:"framing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds listener and session settings.
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	ReapInterval   time.Duration `yaml:"reap_interval"`
	WriteQueueSize int           `yaml:"write_queue_size"`
}

// ClientConfig holds reconnecting client settings.
type ClientConfig struct {
	Address        string        `yaml:"address"` // Hostname or IP literal
	Port           int           `yaml:"port"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	WriteQueueSize int           `yaml:"write_queue_size"`
}

// TransportConfig selects the byte-stream transport.
type TransportConfig struct {
	Kind         string        `yaml:"kind"`    // "tcp" or "websocket"
	WSPath       string        `yaml:"ws_path"` // WebSocket endpoint path
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// FramingConfig selects how the byte stream is split into messages.
type FramingConfig struct {
	Mode               string `yaml:"mode"` // "line" or "tag"
	Tag                string `yaml:"tag"`  // Tag name for tag mode, e.g. "Vision"
	RetainPartialStart bool   `yaml:"retain_partial_start"`
	MaxPending         int    `yaml:"max_pending"` // Bytes, 0 = unlimited
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
