package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Errors
var (
	ErrListenerClosed = errors.New("transport: listener closed")
	ErrUnknownKind    = errors.New("transport: unknown kind")
	ErrNoEndpoints    = errors.New("transport: no endpoints resolved")
)

// Conn is a single bidirectional byte stream.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives, the listener is closed, or
	// ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport creates listeners and outbound connections.
type Transport interface {
	Listen(ctx context.Context, addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Resolver turns a host and port into candidate "host:port" endpoints, in the
// order they should be tried.
type Resolver interface {
	Resolve(ctx context.Context, host string, port int) ([]string, error)
}

// Kind names a transport implementation.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "websocket"
)

// ParseKind converts a config string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp":
		return KindTCP, nil
	case "websocket", "ws":
		return KindWebSocket, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Config selects and configures a transport.
type Config struct {
	Kind             Kind
	WSPath           string        // HTTP path the WebSocket endpoint is served on
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	PingInterval     time.Duration // WebSocket keepalive ping period, 0 disables
	PongTimeout      time.Duration // Max silence before a WebSocket is considered dead
}

// DefaultConfig returns a plain TCP config with WebSocket defaults filled in.
func DefaultConfig() Config {
	return Config{
		Kind:             KindTCP,
		WSPath:           "/ws",
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
	}
}
