package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID     = "framelink"
	DefaultMode           = ModeServer
	DefaultListen         = ":7000"
	DefaultRestartDelay   = 5 * time.Second
	DefaultReapInterval   = 1 * time.Second
	DefaultWriteQueueSize = 1024
	DefaultClientPort     = 7000
	DefaultRetryDelay     = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultTransportKind  = "tcp"
	DefaultWSPath         = "/ws"
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultFramingMode    = "line"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}
	if c.Mode == "" {
		c.Mode = DefaultMode
	}

	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.RestartDelay == 0 {
		c.Server.RestartDelay = DefaultRestartDelay
	}
	if c.Server.ReapInterval == 0 {
		c.Server.ReapInterval = DefaultReapInterval
	}
	if c.Server.WriteQueueSize == 0 {
		c.Server.WriteQueueSize = DefaultWriteQueueSize
	}

	// Client defaults
	if c.Client.Port == 0 {
		c.Client.Port = DefaultClientPort
	}
	if c.Client.RetryDelay == 0 {
		c.Client.RetryDelay = DefaultRetryDelay
	}
	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Client.RestartDelay == 0 {
		c.Client.RestartDelay = DefaultRestartDelay
	}
	if c.Client.WriteQueueSize == 0 {
		c.Client.WriteQueueSize = DefaultWriteQueueSize
	}

	// Transport defaults
	if c.Transport.Kind == "" {
		c.Transport.Kind = DefaultTransportKind
	}
	if c.Transport.WSPath == "" {
		c.Transport.WSPath = DefaultWSPath
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PongTimeout == 0 {
		c.Transport.PongTimeout = DefaultPongTimeout
	}

	// Framing defaults
	if c.Framing.Mode == "" {
		c.Framing.Mode = DefaultFramingMode
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
