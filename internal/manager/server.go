package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/framelink/internal/connection"
	"github.com/rickgao/framelink/internal/transport"
)

// Server accepts connections, broadcasts to all of them and merges their
// inbound messages into Receive.
type Server struct {
	cfg       ServerConfig
	logger    *slog.Logger
	transport transport.Transport
	observer  Observer

	healthy  atomic.Bool
	session  atomic.Pointer[serverSession]
	arrivals chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	stopped chan struct{}
	stopMu  sync.Once

	// Stats
	sessions atomic.Int64
	accepted atomic.Int64
}

// serverSession is everything that gets thrown away when the accept loop
// fails.
type serverSession struct {
	listener transport.Listener
	registry *connection.Registry

	// Closed handles whose queues may still hold messages. The registry only
	// has weak references, so these keep them reachable until drained.
	mu      sync.Mutex
	retired []*connection.Handle
}

// retire keeps a closed handle alive until Receive or ClearBuffer empties it.
func (ss *serverSession) retire(h *connection.Handle) {
	ss.mu.Lock()
	ss.retired = append(ss.retired, h)
	ss.mu.Unlock()
}

// handles returns the registered handles in registration order, followed by
// retired handles the registry has already dropped. Drained retired handles
// are released.
func (ss *serverSession) handles() []*connection.Handle {
	hs := ss.registry.Handles()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	kept := ss.retired[:0]
	for _, h := range ss.retired {
		if h.Queue().Len() > 0 {
			kept = append(kept, h)
		}
	}
	clear(ss.retired[len(kept):])
	ss.retired = kept

	if len(kept) == 0 {
		return hs
	}
	seen := make(map[*connection.Handle]struct{}, len(hs))
	for _, h := range hs {
		seen[h] = struct{}{}
	}
	for _, h := range kept {
		if _, ok := seen[h]; !ok {
			hs = append(hs, h)
		}
	}
	return hs
}

// NewServer creates a Server. Call Start to begin listening.
func NewServer(cfg ServerConfig, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	return &Server{
		cfg:       cfg,
		logger:    o.logger.With("role", RoleServer),
		transport: o.transport,
		observer:  o.observer,
		arrivals:  make(chan struct{}, 1),
		stopped:   make(chan struct{}),
	}, nil
}

// Start launches the supervising goroutine. The first session is built in
// the background; Healthy reports true once it is listening.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("server manager started",
		"listen", s.cfg.Listen,
		"restart_delay", s.cfg.RestartDelay,
		"framing", s.cfg.Framing.Mode.String(),
	)
	return nil
}

// Stop tears down the current session and waits for the supervising
// goroutine, or until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server manager")

	if s.cancel != nil {
		s.cancel()
	}
	s.stopMu.Do(func() { close(s.stopped) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout, forcing close")
	}

	s.logger.Info("server manager stopped")
	return nil
}

// Healthy reports whether a session is currently listening.
func (s *Server) Healthy() bool {
	return s.healthy.Load()
}

// Addr returns the bound address of the current session, or nil.
func (s *Server) Addr() net.Addr {
	sess := s.session.Load()
	if sess == nil {
		return nil
	}
	return sess.listener.Addr()
}

// Broadcast sends msg to every open connection and returns how many
// accepted it.
func (s *Server) Broadcast(msg []byte) int {
	sess := s.session.Load()
	if sess == nil {
		s.logger.Warn("no active session, dropping broadcast", "bytes", len(msg))
		return 0
	}
	return sess.registry.Broadcast(msg)
}

// Send broadcasts msg. It returns ErrNoSession when no session is running
// and connection.ErrNotConnected when nobody accepted it.
func (s *Server) Send(msg []byte) error {
	if s.session.Load() == nil {
		s.logger.Warn("no active session, dropping message", "bytes", len(msg))
		return ErrNoSession
	}
	if s.Broadcast(msg) == 0 {
		return connection.ErrNotConnected
	}
	return nil
}

// Receive returns the oldest queued message of the first connection, in
// registration order, that has one. It blocks until a message arrives, ctx
// is done, or the server is stopped.
func (s *Server) Receive(ctx context.Context) ([]byte, error) {
	for {
		var partial bool
		var backlog int

		if sess := s.session.Load(); sess != nil {
			for _, h := range sess.handles() {
				if msg, ok := h.Queue().TryPop(); ok {
					return msg, nil
				}
				if h.HasPartial() {
					partial = true
					backlog = max(backlog, h.PendingChunks())
				}
			}
		}

		if err := wait(ctx, s.stopped, s.arrivals, s.cfg.Poll.Delay(partial, backlog)); err != nil {
			return nil, err
		}
	}
}

// BufferSize returns the number of messages waiting across all connections.
func (s *Server) BufferSize() int {
	sess := s.session.Load()
	if sess == nil {
		return 0
	}
	n := 0
	for _, h := range sess.handles() {
		n += h.Queue().Len()
	}
	return n
}

// ClearBuffer drops every queued message and returns how many were dropped.
func (s *Server) ClearBuffer() int {
	sess := s.session.Load()
	if sess == nil {
		return 0
	}
	n := 0
	for _, h := range sess.handles() {
		n += h.Queue().Clear()
	}
	if n > 0 {
		s.logger.Debug("buffer cleared", "dropped", n)
	}
	return n
}

// Stats returns current statistics.
func (s *Server) Stats() ServerStats {
	stats := ServerStats{
		Healthy:  s.Healthy(),
		Sessions: s.sessions.Load(),
		Accepted: s.accepted.Load(),
		Queued:   s.BufferSize(),
	}
	if sess := s.session.Load(); sess != nil {
		stats.Connections = len(sess.registry.Live())
	}
	return stats
}

// loop runs sessions back to back until the manager is stopped.
func (s *Server) loop() {
	defer s.wg.Done()

	for {
		err := s.runSession(s.ctx)
		s.setHealthy(false)

		if s.ctx.Err() != nil {
			return
		}

		s.logger.Error("session failed, restarting",
			"error", err,
			"restart_in", s.cfg.RestartDelay,
		)
		s.observer.SessionRestarted(RoleServer)

		if !sleep(s.ctx, s.cfg.RestartDelay) {
			return
		}
	}
}

// runSession listens, accepts and reaps until the accept loop fails or ctx
// is done. Everything it created is closed before it returns.
func (s *Server) runSession(ctx context.Context) error {
	ln, err := s.transport.Listen(ctx, s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sess := &serverSession{
		listener: ln,
		registry: connection.NewRegistry(s.logger),
	}
	s.session.Store(sess)
	s.sessions.Add(1)
	s.setHealthy(true)

	s.logger.Info("session started", "addr", ln.Addr().String(), "session", s.sessions.Load())

	// A failed accept loop cancels gctx, which stops the reaper.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.acceptLoop(gctx, sess)
	})
	g.Go(func() error {
		return sess.registry.Run(gctx, s.cfg.ReapInterval)
	})
	err = g.Wait()

	// The old session is discarded before any replacement exists.
	s.session.CompareAndSwap(sess, nil)
	ln.Close()
	closed := sess.registry.CloseAll()

	s.logger.Info("session torn down", "connections_closed", closed)
	return err
}

func (s *Server) acceptLoop(ctx context.Context, sess *serverSession) error {
	for {
		conn, err := sess.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		h, err := connection.New(conn,
			connection.WithLogger(s.logger),
			connection.WithFraming(s.cfg.Framing),
			connection.WithObserver(s.observer),
			connection.WithWriteQueueSize(s.cfg.WriteQueueSize),
			connection.WithOnMessage(func(*connection.Handle) { notify(s.arrivals) }),
			connection.WithOnClose(func(h *connection.Handle) {
				sess.retire(h)
				s.observer.ConnectionClosed(RoleServer)
			}),
		)
		if err != nil {
			conn.Close()
			return fmt.Errorf("wrap connection: %w", err)
		}

		sess.registry.Register(h)
		s.accepted.Add(1)
		s.observer.ConnectionOpened(RoleServer)

		s.logger.Info("connection accepted",
			"conn_id", h.ID().String(),
			"remote", conn.RemoteAddr().String(),
		)
	}
}

func (s *Server) setHealthy(v bool) {
	if s.healthy.Swap(v) != v {
		s.observer.HealthChanged(RoleServer, v)
	}
}
