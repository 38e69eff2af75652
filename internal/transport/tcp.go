package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TCP is the plain stream transport.
type TCP struct {
	Dialer net.Dialer
}

// Listen binds a TCP listener on addr.
func (t *TCP) Listen(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &tcpListener{ln: ln}, nil
}

// Dial connects to addr.
func (t *TCP) Dial(ctx context.Context, addr string) (Conn, error) {
	conn, err := t.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

type tcpListener struct {
	ln net.Listener
}

// Accept waits for the next connection. Cancelling ctx closes the listener,
// since net.Listener has no per-call cancellation.
func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.Close()
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return conn, nil
}

func (l *tcpListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *tcpListener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
