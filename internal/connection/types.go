package connection

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/queue"
)

// Errors
var (
	ErrClosed         = errors.New("connection closed")
	ErrWriteQueueFull = errors.New("write queue full")
	ErrNotConnected   = errors.New("not connected")
)

// Defaults
const (
	DefaultReadBufferSize = 10240
	DefaultWriteQueueSize = 1024
	DefaultQueueCapacity  = 64
	DefaultReapInterval   = 1 * time.Second
)

// Stats is a point-in-time view of a handle's counters.
type Stats struct {
	BytesIn      int64
	BytesOut     int64
	MessagesIn   int64
	MessagesOut  int64
	SendsDropped int64
	Pending      int // bytes held by the decoder
	Queued       int // decoded messages not yet received
}

// Option configures a Handle.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	queue          *queue.Queue[[]byte]
	framing        framing.Config
	observer       framing.Observer
	onMessage      func(*Handle)
	onClose        func(*Handle)
	writeQueueSize int
	readBufferSize int
}

func defaultOptions() options {
	return options{
		framing:        framing.LineConfig(),
		writeQueueSize: DefaultWriteQueueSize,
		readBufferSize: DefaultReadBufferSize,
	}
}

// WithLogger sets the logger. The handle adds its own conn_id attribute.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithQueue delivers decoded messages into q instead of a private queue.
// Used by clients so messages survive reconnects.
func WithQueue(q *queue.Queue[[]byte]) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithFraming sets the decoder config. Default is CRLF line mode.
func WithFraming(cfg framing.Config) Option {
	return func(o *options) {
		o.framing = cfg
	}
}

// WithObserver receives decoder events.
func WithObserver(obs framing.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithOnMessage is called on the read goroutine after one or more messages
// were queued.
func WithOnMessage(fn func(*Handle)) Option {
	return func(o *options) {
		o.onMessage = fn
	}
}

// WithOnClose is called once, after the handle has closed.
func WithOnClose(fn func(*Handle)) Option {
	return func(o *options) {
		o.onClose = fn
	}
}

// WithWriteQueueSize sets how many outbound messages may wait for the
// writer before Send starts dropping.
func WithWriteQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.writeQueueSize = n
		}
	}
}

// WithReadBufferSize sets the size of each raw read.
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBufferSize = n
		}
	}
}
