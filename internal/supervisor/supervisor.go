package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/framelink/internal/connection"
	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/queue"
	"github.com/rickgao/framelink/internal/transport"
)

// Supervisor owns at most one outbound connection at a time and replaces it
// whenever it fails.
type Supervisor struct {
	cfg           Config
	transport     transport.Transport
	resolver      transport.Resolver
	queue         *queue.Queue[[]byte]
	logger        *slog.Logger
	observer      framing.Observer
	onStateChange func(from, to State)

	state   atomic.Int32
	handle  atomic.Pointer[connection.Handle]
	running atomic.Bool

	// Stats
	attempts    atomic.Int64
	connects    atomic.Int64
	disconnects atomic.Int64
}

// New creates a Supervisor. Call Run to start connecting.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.transport == nil {
		s.transport = &transport.TCP{}
	}
	if s.resolver == nil {
		s.resolver = transport.NetResolver{}
	}
	if s.queue == nil {
		s.queue = queue.New[[]byte](connection.DefaultQueueCapacity)
	}

	return s, nil
}

// Run connects and reconnects until ctx is done. It returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("supervisor started",
		"host", s.cfg.Host,
		"port", s.cfg.Port,
		"retry_delay", s.cfg.RetryDelay,
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		h, err := s.connect(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("connection attempt failed",
				"host", s.cfg.Host,
				"port", s.cfg.Port,
				"error", err,
				"retry_in", s.cfg.RetryDelay,
			)
			if !sleep(ctx, s.cfg.RetryDelay) {
				return ctx.Err()
			}
			continue
		}

		s.handle.Store(h)
		s.connects.Add(1)
		s.setState(StateConnected)
		s.logger.Info("connected", "remote", h.RemoteAddr().String(), "conn_id", h.ID().String())

		select {
		case <-ctx.Done():
			s.drop(h)
			return ctx.Err()
		case <-h.Done():
		}

		s.drop(h)
		s.logger.Warn("connection lost",
			"conn_id", h.ID().String(),
			"error", h.Err(),
			"retry_in", s.cfg.RetryDelay,
		)
		if !sleep(ctx, s.cfg.RetryDelay) {
			return ctx.Err()
		}
	}
}

// Send writes msg on the current connection. When disconnected the message
// is dropped with a warning and ErrNotConnected is returned.
func (s *Supervisor) Send(msg []byte) error {
	h := s.handle.Load()
	if h == nil || !h.IsOpen() {
		s.logger.Warn("not connected, dropping message", "bytes", len(msg), "state", s.State().String())
		return ErrNotConnected
	}
	if err := h.Send(msg); err != nil {
		if errors.Is(err, connection.ErrClosed) {
			s.logger.Warn("not connected, dropping message", "bytes", len(msg), "state", s.State().String())
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Connected reports whether a connection is up.
func (s *Supervisor) Connected() bool {
	return s.State() == StateConnected
}

// Attempts returns the number of endpoint dials made so far.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

// Queue returns the shared inbound queue.
func (s *Supervisor) Queue() *queue.Queue[[]byte] {
	return s.queue
}

// Handle returns the current connection, or nil.
func (s *Supervisor) Handle() *connection.Handle {
	return s.handle.Load()
}

// Stats returns a snapshot of supervisor activity.
func (s *Supervisor) Stats() Stats {
	return Stats{
		State:       s.State(),
		Attempts:    s.attempts.Load(),
		Connects:    s.connects.Load(),
		Disconnects: s.disconnects.Load(),
		Queued:      s.queue.Len(),
	}
}

// connect resolves the host and dials each endpoint in order.
func (s *Supervisor) connect(ctx context.Context) (*connection.Handle, error) {
	s.setState(StateResolving)
	endpoints, err := s.resolver.Resolve(ctx, s.cfg.Host, s.cfg.Port)
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, transport.ErrNoEndpoints
	}

	s.setState(StateConnecting)

	var lastErr error
	for _, ep := range endpoints {
		s.attempts.Add(1)

		conn, err := s.dial(ctx, ep)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("endpoint failed", "endpoint", ep, "error", err)
			lastErr = err
			continue
		}

		h, err := connection.New(conn, s.handleOptions()...)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("wrap connection: %w", err)
		}
		return h, nil
	}

	return nil, fmt.Errorf("all %d endpoints failed: %w", len(endpoints), lastErr)
}

func (s *Supervisor) dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}
	return s.transport.Dial(ctx, endpoint)
}

func (s *Supervisor) handleOptions() []connection.Option {
	opts := []connection.Option{
		connection.WithLogger(s.logger),
		connection.WithQueue(s.queue),
		connection.WithFraming(s.cfg.Framing),
		connection.WithWriteQueueSize(s.cfg.WriteQueueSize),
	}
	if s.observer != nil {
		opts = append(opts, connection.WithObserver(s.observer))
	}
	return opts
}

// drop closes h and clears it before the state leaves Connected.
func (s *Supervisor) drop(h *connection.Handle) {
	s.handle.CompareAndSwap(h, nil)
	h.Close()
	s.disconnects.Add(1)
	s.setState(StateDisconnected)
}

func (s *Supervisor) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.logger.Debug("state change", "from", from.String(), "to", to.String())
	if s.onStateChange != nil {
		s.onStateChange(from, to)
	}
}

// sleep waits for d or ctx, returning false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
