package connection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/queue"
	"github.com/rickgao/framelink/internal/transport"
)

// Handle is one live transport connection plus its decoder and inbound queue.
type Handle struct {
	id        uuid.UUID
	conn      transport.Conn
	decoder   *framing.Decoder // only touched by the read goroutine
	queue     *queue.Queue[[]byte]
	logger    *slog.Logger
	onMessage func(*Handle)
	onClose   func(*Handle)
	readSize  int
	createdAt time.Time

	outbox chan []byte

	// State
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	errMu     sync.Mutex
	err       error
	errCode   atomic.Int64

	// Mirrors of decoder state, readable from any goroutine
	pendingBytes  atomic.Int64
	pendingChunks atomic.Int64

	// Stats
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	messagesIn   atomic.Int64
	messagesOut  atomic.Int64
	sendsDropped atomic.Int64
}

// New wraps conn and starts its read and write goroutines. The handle owns
// conn from here on.
func New(conn transport.Conn, opts ...Option) (*Handle, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	id := uuid.New()
	logger := o.logger.With("conn_id", id.String(), "remote", addrString(conn.RemoteAddr()))

	decOpts := []framing.Option{framing.WithLogger(logger)}
	if o.observer != nil {
		decOpts = append(decOpts, framing.WithObserver(o.observer))
	}
	dec, err := framing.NewDecoder(o.framing, decOpts...)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	q := o.queue
	if q == nil {
		q = queue.New[[]byte](DefaultQueueCapacity)
	}

	h := &Handle{
		id:        id,
		conn:      conn,
		decoder:   dec,
		queue:     q,
		logger:    logger,
		onMessage: o.onMessage,
		onClose:   o.onClose,
		readSize:  o.readBufferSize,
		createdAt: time.Now(),
		outbox:    make(chan []byte, o.writeQueueSize),
		done:      make(chan struct{}),
	}

	go h.readLoop()
	go h.writeLoop()

	logger.Debug("connection opened", "framing", o.framing.Mode.String())
	return h, nil
}

// ID returns the handle's unique id.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// RemoteAddr returns the peer address.
func (h *Handle) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

// Queue returns the queue decoded messages are delivered to.
func (h *Handle) Queue() *queue.Queue[[]byte] {
	return h.queue
}

// Send queues msg for writing and returns immediately. msg must not be
// modified afterwards. A full write queue drops the message.
func (h *Handle) Send(msg []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}

	select {
	case <-h.done:
		return ErrClosed
	default:
	}

	select {
	case h.outbox <- msg:
		return nil
	case <-h.done:
		return ErrClosed
	default:
		h.sendsDropped.Add(1)
		h.logger.Warn("write queue full, dropping message", "bytes", len(msg))
		return ErrWriteQueueFull
	}
}

// Close closes the connection. Safe to call more than once.
func (h *Handle) Close() error {
	return h.closeWith(nil)
}

// IsOpen reports whether the handle has not been closed.
func (h *Handle) IsOpen() bool {
	return !h.closed.Load()
}

// Done is closed when the handle closes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the I/O error that closed the handle, or nil if it is open or
// was closed explicitly.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// LastErrorCode returns the errno of the write failure that closed the
// handle, or 0.
func (h *Handle) LastErrorCode() int {
	return int(h.errCode.Load())
}

// HasPartial reports whether the decoder holds an incomplete message.
func (h *Handle) HasPartial() bool {
	return h.pendingBytes.Load() > 0
}

// PendingChunks returns how many raw reads make up the incomplete message.
func (h *Handle) PendingChunks() int {
	return int(h.pendingChunks.Load())
}

// Stats returns the handle's counters.
func (h *Handle) Stats() Stats {
	return Stats{
		BytesIn:      h.bytesIn.Load(),
		BytesOut:     h.bytesOut.Load(),
		MessagesIn:   h.messagesIn.Load(),
		MessagesOut:  h.messagesOut.Load(),
		SendsDropped: h.sendsDropped.Load(),
		Pending:      int(h.pendingBytes.Load()),
		Queued:       h.queue.Len(),
	}
}

func (h *Handle) closeWith(cause error) error {
	var err error
	h.closeOnce.Do(func() {
		h.errMu.Lock()
		h.err = cause
		h.errMu.Unlock()

		h.closed.Store(true)
		close(h.done)
		err = h.conn.Close()

		h.logger.Debug("connection released",
			"uptime", time.Since(h.createdAt).Round(time.Millisecond),
			"messages_in", h.messagesIn.Load(),
			"messages_out", h.messagesOut.Load(),
		)

		if h.onClose != nil {
			h.onClose(h)
		}
	})
	return err
}

// readLoop decodes raw reads into messages until the first read error.
func (h *Handle) readLoop() {
	buf := make([]byte, h.readSize)

	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			h.bytesIn.Add(int64(n))
			msgs := h.decoder.Feed(buf[:n])
			h.pendingBytes.Store(int64(h.decoder.PendingLen()))
			h.pendingChunks.Store(int64(h.decoder.PendingChunks()))

			for _, msg := range msgs {
				h.queue.Push(msg)
			}
			if len(msgs) > 0 {
				h.messagesIn.Add(int64(len(msgs)))
				if h.onMessage != nil {
					h.onMessage(h)
				}
			}
		}

		if err != nil {
			if h.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				h.logger.Info("connection closed by peer")
			} else {
				h.logger.Warn("read failed", "error", err)
			}
			h.closeWith(err)
			return
		}
	}
}

// writeLoop performs queued writes in order until the first write error.
func (h *Handle) writeLoop() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.outbox:
			n, err := h.conn.Write(msg)
			h.bytesOut.Add(int64(n))
			if err != nil {
				h.handleWriteError(err)
				return
			}
			h.messagesOut.Add(1)
		}
	}
}

// handleWriteError records the errno and closes the handle. There is no
// retry.
func (h *Handle) handleWriteError(err error) {
	if h.closed.Load() {
		return
	}

	code := Errno(err)
	h.errCode.Store(int64(code))

	switch {
	case errors.Is(err, syscall.EPIPE):
		h.logger.Info("connection closed", "errno", code)
	case errors.Is(err, syscall.EBADF):
		h.logger.Info("connection awaiting removal", "errno", code)
	default:
		h.logger.Warn("unhandled socket error", "errno", code, "error", err)
	}

	h.closeWith(err)
}

// Errno extracts the system error number from err, or 0 if there is none.
func Errno(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
