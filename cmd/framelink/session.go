package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/manager"
)

// endpoint is what the receive loop needs from either manager.
type endpoint interface {
	Receive(ctx context.Context) ([]byte, error)
	Send(msg []byte) error
	BufferSize() int
}

// receiveLoop logs every message until ctx is done or the manager stops.
// With echo set, each message is sent back framed the same way.
func receiveLoop(ctx context.Context, ep endpoint, fc framing.Config, echo bool, logger *slog.Logger) {
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, manager.ErrStopped) {
				logger.Warn("receive failed", "error", err)
			}
			return
		}

		logger.Info("message received",
			"bytes", len(msg),
			"buffered", ep.BufferSize(),
		)

		if echo {
			if err := ep.Send(reframe(fc, msg)); err != nil {
				logger.Debug("echo dropped", "error", err)
			}
		}
	}
}

// reframe restores the boundary markers the decoder stripped. Tag-mode
// messages keep their tags.
func reframe(fc framing.Config, msg []byte) []byte {
	if fc.Mode == framing.ModeTag {
		return msg
	}
	return framing.Frame(fc, msg)
}
