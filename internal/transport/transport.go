package transport

import (
	"fmt"
	"log/slog"
)

// New builds the transport named by cfg.Kind.
func New(cfg Config, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case KindTCP, "":
		return &TCP{}, nil
	case KindWebSocket:
		return NewWebSocket(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
