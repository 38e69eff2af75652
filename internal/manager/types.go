package manager

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/framelink/internal/connection"
	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/supervisor"
	"github.com/rickgao/framelink/internal/transport"
)

// Errors
var (
	ErrStopped        = errors.New("manager stopped")
	ErrAlreadyStarted = errors.New("manager already started")
	ErrNoSession      = errors.New("no active session")
)

// Roles passed to Observer methods.
const (
	RoleServer = "server"
	RoleClient = "client"
)

// Observer receives lifecycle events. Calls happen on internal goroutines
// and must not block.
type Observer interface {
	framing.Observer
	ConnectionOpened(role string)
	ConnectionClosed(role string)
	SessionRestarted(role string)
	HealthChanged(role string, healthy bool)
	ClientStateChanged(state string)
}

type nopObserver struct{}

func (nopObserver) MessagesDecoded(framing.Mode, int)     {}
func (nopObserver) FragmentDiscarded(framing.Reason, int) {}
func (nopObserver) ConnectionOpened(string)               {}
func (nopObserver) ConnectionClosed(string)               {}
func (nopObserver) SessionRestarted(string)               {}
func (nopObserver) HealthChanged(string, bool)            {}
func (nopObserver) ClientStateChanged(string)             {}

// ServerConfig configures a Server.
type ServerConfig struct {
	Listen         string        // host:port to bind
	RestartDelay   time.Duration // Wait before rebuilding a failed session
	ReapInterval   time.Duration // Registry reaper period
	WriteQueueSize int           // Outbound queue per connection
	Framing        framing.Config
	Poll           framing.PollPolicy
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RestartDelay:   5 * time.Second,
		ReapInterval:   connection.DefaultReapInterval,
		WriteQueueSize: connection.DefaultWriteQueueSize,
		Framing:        framing.LineConfig(),
		Poll:           framing.DefaultPollPolicy(),
	}
}

// Validate checks the config.
func (c ServerConfig) Validate() error {
	if c.Listen == "" {
		return errors.New("manager: listen address is required")
	}
	return c.Framing.Validate()
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Supervisor   supervisor.Config
	RestartDelay time.Duration // Wait before rebuilding a failed supervisor
	Poll         framing.PollPolicy
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Supervisor:   supervisor.DefaultConfig(),
		RestartDelay: 5 * time.Second,
		Poll:         framing.DefaultPollPolicy(),
	}
}

// ServerStats provides statistics about a Server.
type ServerStats struct {
	Healthy     bool
	Sessions    int64 // sessions built, including the current one
	Accepted    int64 // connections accepted across all sessions
	Connections int   // open connections in the current session
	Queued      int   // messages waiting in Receive
}

// ClientStats provides statistics about a Client.
type ClientStats struct {
	Healthy  bool
	Restarts int64
	State    supervisor.State
	Attempts int64
	Connects int64
	Queued   int
	Received int64 // messages handed out by Receive/TryReceive
	Cleared  int64 // messages dropped by ClearBuffer
}

// Option configures a Server or Client.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	transport transport.Transport
	resolver  transport.Resolver
	observer  Observer
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.transport == nil {
		o.transport = &transport.TCP{}
	}
	if o.resolver == nil {
		o.resolver = transport.NetResolver{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport sets the transport. Default is TCP.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithResolver sets the client's endpoint resolver. Default is DNS.
func WithResolver(r transport.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithObserver receives lifecycle and decoder events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
