package supervisor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/framelink/internal/connection"
	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/queue"
	"github.com/rickgao/framelink/internal/transport"
)

// Errors
var (
	ErrNotConnected   = connection.ErrNotConnected
	ErrAlreadyRunning = errors.New("supervisor already running")
	ErrMissingHost    = errors.New("supervisor: host is required")
	ErrInvalidPort    = errors.New("supervisor: port out of range")
)

// State is the supervisor's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateResolving
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config configures a Supervisor.
type Config struct {
	Host           string
	Port           int
	RetryDelay     time.Duration // Fixed wait between attempts
	ConnectTimeout time.Duration // Per-endpoint dial timeout, 0 = none
	WriteQueueSize int           // Outbound queue per connection
	Framing        framing.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryDelay:     5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		WriteQueueSize: connection.DefaultWriteQueueSize,
		Framing:        framing.LineConfig(),
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	return c.Framing.Validate()
}

// Stats is a snapshot of supervisor activity.
type Stats struct {
	State       State
	Attempts    int64 // endpoint dials, successful or not
	Connects    int64 // successful connections
	Disconnects int64
	Queued      int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithTransport sets the transport used to dial. Default is TCP.
func WithTransport(t transport.Transport) Option {
	return func(s *Supervisor) {
		s.transport = t
	}
}

// WithResolver sets the endpoint resolver. Default is DNS.
func WithResolver(r transport.Resolver) Option {
	return func(s *Supervisor) {
		s.resolver = r
	}
}

// WithQueue sets the queue every connection delivers into.
func WithQueue(q *queue.Queue[[]byte]) Option {
	return func(s *Supervisor) {
		s.queue = q
	}
}

// WithObserver receives decoder events from every connection.
func WithObserver(obs framing.Observer) Option {
	return func(s *Supervisor) {
		s.observer = obs
	}
}

// WithOnStateChange is called after every state transition.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(s *Supervisor) {
		s.onStateChange = fn
	}
}
