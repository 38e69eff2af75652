package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/transport"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Mode {
	case ModeServer:
		if err := c.Server.validate("server"); err != nil {
			return err
		}
	case ModeClient:
		if err := c.Client.validate("client"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeServer, ModeClient, c.Mode)
	}

	kind, err := transport.ParseKind(c.Transport.Kind)
	if err != nil {
		return fmt.Errorf("transport.kind must be \"tcp\" or \"websocket\", got %q", c.Transport.Kind)
	}
	if kind == transport.KindWebSocket && !strings.HasPrefix(c.Transport.WSPath, "/") {
		return fmt.Errorf("transport.ws_path must start with \"/\", got %q", c.Transport.WSPath)
	}

	if err := c.Framing.validate("framing"); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (s *ServerConfig) validate(prefix string) error {
	if s.Listen == "" {
		return fmt.Errorf("%s.listen is required", prefix)
	}
	if s.RestartDelay <= 0 {
		return fmt.Errorf("%s.restart_delay must be > 0", prefix)
	}
	if s.ReapInterval <= 0 {
		return fmt.Errorf("%s.reap_interval must be > 0", prefix)
	}
	if s.WriteQueueSize < 1 {
		return fmt.Errorf("%s.write_queue_size must be >= 1", prefix)
	}
	return nil
}

func (cl *ClientConfig) validate(prefix string) error {
	if cl.Address == "" {
		return fmt.Errorf("%s.address is required", prefix)
	}
	if cl.Port < 1 || cl.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, cl.Port)
	}
	if cl.RetryDelay <= 0 {
		return fmt.Errorf("%s.retry_delay must be > 0", prefix)
	}
	if cl.RestartDelay <= 0 {
		return fmt.Errorf("%s.restart_delay must be > 0", prefix)
	}
	if cl.WriteQueueSize < 1 {
		return fmt.Errorf("%s.write_queue_size must be >= 1", prefix)
	}
	return nil
}

func (f *FramingConfig) validate(prefix string) error {
	mode, err := framing.ParseMode(f.Mode)
	if err != nil {
		return fmt.Errorf("%s.mode must be \"line\" or \"tag\", got %q", prefix, f.Mode)
	}
	if mode == framing.ModeTag {
		if f.Tag == "" {
			return fmt.Errorf("%s.tag is required in tag mode", prefix)
		}
		if strings.ContainsAny(f.Tag, "<>/ \t\r\n") {
			return fmt.Errorf("%s.tag must be a bare element name, got %q", prefix, f.Tag)
		}
	}
	if f.MaxPending < 0 {
		return fmt.Errorf("%s.max_pending must be >= 0", prefix)
	}
	return nil
}
