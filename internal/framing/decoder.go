package framing

import (
	"bytes"
	"log/slog"
)

// Decoder reassembles messages from raw chunks.
type Decoder struct {
	cfg      Config
	tagStart []byte
	tagEnd   []byte

	pending []byte
	chunks  int // raw chunks that contributed to pending

	observer Observer
	logger   *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(d *Decoder) {
		d.observer = o
	}
}

// NewDecoder creates a Decoder for the given config.
func NewDecoder(cfg Config, opts ...Option) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Decoder{
		cfg:    cfg,
		logger: slog.Default(),
	}
	if cfg.Mode == ModeTag {
		d.tagStart = []byte("<" + cfg.Tag)
		d.tagEnd = []byte("</" + cfg.Tag + ">")
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	return d, nil
}

// Config returns the decoder's config.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Feed appends raw to the pending fragment and returns every complete
// message it now contains, in arrival order. Returned slices are copies.
func (d *Decoder) Feed(raw []byte) [][]byte {
	if len(raw) == 0 {
		return nil
	}

	d.pending = append(d.pending, raw...)
	d.chunks++

	var out [][]byte
	switch d.cfg.Mode {
	case ModeTag:
		out = d.splitTags()
	default:
		out = d.splitLines()
	}

	if d.cfg.MaxPending > 0 && len(d.pending) > d.cfg.MaxPending {
		d.logger.Warn("pending fragment too large, discarding",
			"pending", len(d.pending),
			"max", d.cfg.MaxPending,
		)
		d.discard(ReasonOverflow)
	}

	if len(out) > 0 && d.observer != nil {
		d.observer.MessagesDecoded(d.cfg.Mode, len(out))
	}

	return out
}

// Pending returns a copy of the bytes carried over to the next Feed.
func (d *Decoder) Pending() []byte {
	return bytes.Clone(d.pending)
}

// PendingLen returns the size of the pending fragment.
func (d *Decoder) PendingLen() int {
	return len(d.pending)
}

// PendingChunks returns how many raw chunks are sitting in the pending
// fragment without having produced a message yet.
func (d *Decoder) PendingChunks() int {
	return d.chunks
}

// Reset drops the pending fragment.
func (d *Decoder) Reset() {
	d.pending = nil
	d.chunks = 0
}

func (d *Decoder) splitLines() [][]byte {
	var out [][]byte
	consumed := 0

	for {
		i := bytes.Index(d.pending[consumed:], LineTerminator)
		if i < 0 {
			break
		}
		// Empty lines carry no message.
		if i > 0 {
			out = append(out, bytes.Clone(d.pending[consumed:consumed+i]))
		}
		consumed += i + len(LineTerminator)
	}

	d.advance(consumed)
	return out
}

func (d *Decoder) splitTags() [][]byte {
	var out [][]byte
	consumed := 0

	for consumed < len(d.pending) {
		rest := d.pending[consumed:]
		start := bytes.Index(rest, d.tagStart)
		end := bytes.Index(rest, d.tagEnd)

		switch {
		case start < 0 && end < 0:
			d.advance(consumed)
			d.dropUnmarked()
			return out

		case start >= 0 && end >= 0:
			stop := end + len(d.tagEnd)
			if end < start {
				// Drop through the stray end tag; the rest may hold a
				// complete message.
				d.logger.Warn("frame corruption: end tag before start tag, discarding prefix",
					"tag", d.cfg.Tag,
					"start", start,
					"end", end,
					"dropped", stop,
				)
				d.report(ReasonEndBeforeStart, stop)
				consumed += stop
				continue
			}
			out = append(out, bytes.Clone(rest[start:stop]))
			consumed += stop

		default:
			// Only one marker so far: wait for more bytes.
			d.advance(consumed)
			return out
		}
	}

	d.advance(consumed)
	return out
}

// advance drops the first n pending bytes.
func (d *Decoder) advance(n int) {
	if n == 0 {
		return
	}
	rest := d.pending[n:]
	if len(rest) == 0 {
		d.pending = nil
		d.chunks = 0
		return
	}
	d.pending = append(make([]byte, 0, len(rest)), rest...)
	d.chunks = 1
}

func (d *Decoder) dropUnmarked() {
	if len(d.pending) == 0 {
		return
	}

	keep := 0
	if d.cfg.Unmarked == RetainPartialStart {
		keep = partialPrefixLen(d.pending, d.tagStart)
	}

	dropped := len(d.pending) - keep
	if dropped > 0 {
		d.logger.Debug("no tag markers in fragment, discarding",
			"tag", d.cfg.Tag,
			"dropped", dropped,
			"kept", keep,
		)
		if d.observer != nil {
			d.observer.FragmentDiscarded(ReasonUnmarked, dropped)
		}
	}

	if keep == 0 {
		d.pending = nil
		d.chunks = 0
		return
	}
	d.pending = append(make([]byte, 0, keep), d.pending[len(d.pending)-keep:]...)
	d.chunks = 1
}

func (d *Decoder) discard(reason Reason) {
	n := len(d.pending)
	d.pending = nil
	d.chunks = 0
	d.report(reason, n)
}

func (d *Decoder) report(reason Reason, n int) {
	if d.observer != nil && n > 0 {
		d.observer.FragmentDiscarded(reason, n)
	}
}

// partialPrefixLen returns the length of the longest suffix of b that is a
// proper prefix of marker.
func partialPrefixLen(b, marker []byte) int {
	limit := len(marker) - 1
	if limit > len(b) {
		limit = len(b)
	}
	for n := limit; n > 0; n-- {
		if bytes.Equal(b[len(b)-n:], marker[:n]) {
			return n
		}
	}
	return 0
}
