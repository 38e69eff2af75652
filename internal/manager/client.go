package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/framelink/internal/connection"
	"github.com/rickgao/framelink/internal/queue"
	"github.com/rickgao/framelink/internal/supervisor"
	"github.com/rickgao/framelink/internal/transport"
)

// Client keeps one outbound connection alive through a supervisor and
// rebuilds the supervisor if its event loop ever returns.
type Client struct {
	cfg       ClientConfig
	logger    *slog.Logger
	transport transport.Transport
	resolver  transport.Resolver
	observer  Observer

	// Shared by every supervisor this client builds
	queue *queue.Queue[[]byte]

	healthy atomic.Bool
	sup     atomic.Pointer[supervisor.Supervisor]

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	stopped chan struct{}
	stopMu  sync.Once

	restarts atomic.Int64
}

// NewClient creates a Client. Call Start to begin connecting.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Supervisor.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	return &Client{
		cfg:       cfg,
		logger:    o.logger.With("role", RoleClient),
		transport: o.transport,
		resolver:  o.resolver,
		observer:  o.observer,
		queue:     queue.New[[]byte](connection.DefaultQueueCapacity),
		stopped:   make(chan struct{}),
	}, nil
}

// Start launches the supervising goroutine.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.loop()

	c.logger.Info("client manager started",
		"host", c.cfg.Supervisor.Host,
		"port", c.cfg.Supervisor.Port,
		"retry_delay", c.cfg.Supervisor.RetryDelay,
	)
	return nil
}

// Stop closes the connection and waits for the supervising goroutine, or
// until ctx is done. Messages already queued can still be received.
func (c *Client) Stop(ctx context.Context) error {
	c.logger.Info("stopping client manager")

	if c.cancel != nil {
		c.cancel()
	}
	c.stopMu.Do(func() { close(c.stopped) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("shutdown timeout, forcing close")
	}

	c.logger.Info("client manager stopped")
	return nil
}

// Healthy reports whether the supervisor's event loop is running.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	sup := c.sup.Load()
	return sup != nil && sup.Connected()
}

// State returns the supervisor state, or Disconnected between restarts.
func (c *Client) State() supervisor.State {
	sup := c.sup.Load()
	if sup == nil {
		return supervisor.StateDisconnected
	}
	return sup.State()
}

// Send writes msg on the current connection. When disconnected the message
// is dropped with a warning.
func (c *Client) Send(msg []byte) error {
	sup := c.sup.Load()
	if sup == nil {
		c.logger.Warn("not connected, dropping message", "bytes", len(msg))
		return supervisor.ErrNotConnected
	}
	return sup.Send(msg)
}

// Receive returns the oldest queued message, blocking until one arrives, ctx
// is done, or the client is stopped.
func (c *Client) Receive(ctx context.Context) ([]byte, error) {
	for {
		ready := c.queue.Ready()
		if msg, ok := c.queue.TryPop(); ok {
			return msg, nil
		}

		var partial bool
		var backlog int
		if sup := c.sup.Load(); sup != nil {
			if h := sup.Handle(); h != nil {
				partial = h.HasPartial()
				backlog = h.PendingChunks()
			}
		}

		if err := wait(ctx, c.stopped, ready, c.cfg.Poll.Delay(partial, backlog)); err != nil {
			return nil, err
		}
	}
}

// TryReceive returns the oldest queued message without blocking.
func (c *Client) TryReceive() ([]byte, bool) {
	return c.queue.TryPop()
}

// BufferSize returns the number of queued messages.
func (c *Client) BufferSize() int {
	return c.queue.Len()
}

// ClearBuffer drops every queued message and returns how many were dropped.
func (c *Client) ClearBuffer() int {
	n := c.queue.Clear()
	if n > 0 {
		c.logger.Debug("buffer cleared", "dropped", n)
	}
	return n
}

// Stats returns current statistics.
func (c *Client) Stats() ClientStats {
	qs := c.queue.Stats()
	stats := ClientStats{
		Healthy:  c.Healthy(),
		Restarts: c.restarts.Load(),
		State:    c.State(),
		Queued:   qs.Count,
		Received: qs.TotalPopped,
		Cleared:  qs.TotalCleared,
	}
	if sup := c.sup.Load(); sup != nil {
		ss := sup.Stats()
		stats.Attempts = ss.Attempts
		stats.Connects = ss.Connects
	}
	return stats
}

// loop runs supervisors back to back until the manager is stopped.
func (c *Client) loop() {
	defer c.wg.Done()

	for {
		err := c.runSupervisor(c.ctx)
		c.setHealthy(false)

		if c.ctx.Err() != nil {
			return
		}

		c.restarts.Add(1)
		c.logger.Error("event loop terminated, restarting",
			"error", err,
			"restart_in", c.cfg.RestartDelay,
		)
		c.observer.SessionRestarted(RoleClient)

		if !sleep(c.ctx, c.cfg.RestartDelay) {
			return
		}
	}
}

// runSupervisor builds a fresh supervisor and runs it. A panic inside the
// event loop is returned as an error.
func (c *Client) runSupervisor(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("supervisor panic: %v", r)
		}
	}()

	sup, err := supervisor.New(c.cfg.Supervisor,
		supervisor.WithLogger(c.logger),
		supervisor.WithTransport(c.transport),
		supervisor.WithResolver(c.resolver),
		supervisor.WithQueue(c.queue),
		supervisor.WithObserver(c.observer),
		supervisor.WithOnStateChange(c.stateChanged),
	)
	if err != nil {
		return fmt.Errorf("new supervisor: %w", err)
	}

	c.sup.Store(sup)
	defer func() {
		// The old supervisor is discarded before any replacement exists.
		c.sup.CompareAndSwap(sup, nil)
		if h := sup.Handle(); h != nil {
			h.Close()
		}
	}()

	c.setHealthy(true)
	return sup.Run(ctx)
}

func (c *Client) stateChanged(from, to supervisor.State) {
	c.observer.ClientStateChanged(to.String())
	switch {
	case to == supervisor.StateConnected:
		c.observer.ConnectionOpened(RoleClient)
	case from == supervisor.StateConnected:
		c.observer.ConnectionClosed(RoleClient)
	}
}

func (c *Client) setHealthy(v bool) {
	if c.healthy.Swap(v) != v {
		c.observer.HealthChanged(RoleClient, v)
	}
}
