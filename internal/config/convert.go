package config

import (
	"log/slog"
	"strings"

	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/manager"
	"github.com/rickgao/framelink/internal/transport"
)

// FramingConfig returns the decoder config.
func (c *Config) FramingConfig() (framing.Config, error) {
	mode, err := framing.ParseMode(c.Framing.Mode)
	if err != nil {
		return framing.Config{}, err
	}

	cfg := framing.Config{
		Mode:       mode,
		Tag:        c.Framing.Tag,
		MaxPending: c.Framing.MaxPending,
	}
	if c.Framing.RetainPartialStart {
		cfg.Unmarked = framing.RetainPartialStart
	}
	return cfg, cfg.Validate()
}

// TransportConfig returns the transport config.
func (c *Config) TransportConfig() (transport.Config, error) {
	kind, err := transport.ParseKind(c.Transport.Kind)
	if err != nil {
		return transport.Config{}, err
	}

	cfg := transport.DefaultConfig()
	cfg.Kind = kind
	cfg.WSPath = c.Transport.WSPath
	cfg.PingInterval = c.Transport.PingInterval
	cfg.PongTimeout = c.Transport.PongTimeout
	return cfg, nil
}

// ServerManagerConfig returns the server manager config.
func (c *Config) ServerManagerConfig() (manager.ServerConfig, error) {
	fc, err := c.FramingConfig()
	if err != nil {
		return manager.ServerConfig{}, err
	}

	cfg := manager.DefaultServerConfig()
	cfg.Listen = c.Server.Listen
	cfg.RestartDelay = c.Server.RestartDelay
	cfg.ReapInterval = c.Server.ReapInterval
	cfg.WriteQueueSize = c.Server.WriteQueueSize
	cfg.Framing = fc
	return cfg, nil
}

// ClientManagerConfig returns the client manager config.
func (c *Config) ClientManagerConfig() (manager.ClientConfig, error) {
	fc, err := c.FramingConfig()
	if err != nil {
		return manager.ClientConfig{}, err
	}

	cfg := manager.DefaultClientConfig()
	cfg.RestartDelay = c.Client.RestartDelay
	cfg.Supervisor.Host = c.Client.Address
	cfg.Supervisor.Port = c.Client.Port
	cfg.Supervisor.RetryDelay = c.Client.RetryDelay
	cfg.Supervisor.ConnectTimeout = c.Client.ConnectTimeout
	cfg.Supervisor.WriteQueueSize = c.Client.WriteQueueSize
	cfg.Supervisor.Framing = fc
	return cfg, nil
}

// SlogLevel maps the configured level to a slog.Level. Unknown values map
// to Info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
