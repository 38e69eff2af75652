package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carries the byte stream inside binary WebSocket messages.
// Message boundaries on the wire carry no meaning; readers see a plain stream.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/"
	}
	return &WebSocket{cfg: cfg, logger: logger}
}

// Listen serves the WebSocket endpoint on addr.
func (w *WebSocket) Listen(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	l := &wsListener{
		ln:       ln,
		accepted: make(chan Conn),
		done:     make(chan struct{}),
		logger:   w.logger,
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.cfg.WSPath, func(rw http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			w.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		conn := newWSConn(ws, w.cfg, w.logger)
		select {
		case l.accepted <- conn:
		case <-l.done:
			conn.Close()
		}
	})

	l.srv = &http.Server{Handler: mux}

	go func() {
		err := l.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warn("websocket server stopped", "error", err)
		}
		l.Close()
	}()

	return l, nil
}

// Dial opens a WebSocket to ws://addr/<path>.
func (w *WebSocket) Dial(ctx context.Context, addr string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
	}

	url := "ws://" + addr + w.cfg.WSPath
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	w.logger.Debug("websocket connected", "url", url)
	return newWSConn(ws, w.cfg, w.logger), nil
}

type wsListener struct {
	ln       net.Listener
	srv      *http.Server
	accepted chan Conn
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (l *wsListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.accepted:
		return conn, nil
	case <-l.done:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the HTTP server. Already upgraded connections are hijacked and
// stay open; their owners close them.
func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// wsConn adapts a *websocket.Conn to an io.ReadWriteCloser.
type wsConn struct {
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	reader io.Reader // current message, read by a single goroutine

	writeMu   sync.Mutex
	lastSeen  atomic.Int64 // unix nanos of the last ping or pong
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *wsConn {
	c := &wsConn{
		ws:     ws,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	c.lastSeen.Store(time.Now().UnixNano())

	// Peer sends ping, we respond with pong
	ws.SetPingHandler(func(data string) error {
		c.lastSeen.Store(time.Now().UnixNano())
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Peer responds to our ping
	ws.SetPongHandler(func(string) error {
		c.lastSeen.Store(time.Now().UnixNano())
		return nil
	})

	if cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}
	return c
}

// Read returns bytes from the current message, moving to the next message
// when it is exhausted. A normal close from the peer reads as io.EOF.
func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.PongTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.cfg.PongTimeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and closes the underlying connection.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }
func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }

// heartbeatLoop pings the peer and closes the connection once it has been
// silent for longer than PongTimeout. The pending Read then fails.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			if c.cfg.PongTimeout <= 0 {
				continue
			}
			lastSeen := time.Unix(0, c.lastSeen.Load())
			if time.Since(lastSeen) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"remote", c.ws.RemoteAddr().String(),
					"last_seen", lastSeen,
					"timeout", c.cfg.PongTimeout,
				)
				c.Close()
				return
			}
		}
	}
}
