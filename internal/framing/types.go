package framing

import (
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrMissingTag  = errors.New("framing: tag mode requires a tag name")
	ErrInvalidTag  = errors.New("framing: tag name contains reserved characters")
	ErrUnknownMode = errors.New("framing: unknown mode")
)

// LineTerminator ends every message in line mode.
var LineTerminator = []byte("\r\n")

// Mode selects the message boundary convention.
type Mode int

const (
	ModeLine Mode = iota
	ModeTag
)

func (m Mode) String() string {
	switch m {
	case ModeLine:
		return "line"
	case ModeTag:
		return "tag"
	default:
		return "unknown"
	}
}

// ParseMode converts a config string ("line", "tag") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "line", "crlf":
		return ModeLine, nil
	case "tag":
		return ModeTag, nil
	default:
		return ModeLine, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// UnmarkedPolicy decides what happens to pending bytes in tag mode when
// neither the start tag nor the end tag can be found.
type UnmarkedPolicy int

const (
	// DiscardUnmarked empties the pending fragment. A start tag split across
	// two reads (e.g. "<" then "Name>...") is lost this way.
	DiscardUnmarked UnmarkedPolicy = iota

	// RetainPartialStart keeps the longest trailing run of bytes that could
	// still grow into the start tag, and discards the rest.
	RetainPartialStart
)

// Reason labels why pending bytes were thrown away.
type Reason string

const (
	ReasonEndBeforeStart Reason = "end_before_start" // corrupted or interleaved data
	ReasonOverflow       Reason = "pending_overflow" // pending fragment exceeded MaxPending
	ReasonUnmarked       Reason = "unmarked"         // no tag markers at all
)

// Observer receives decoder events. Implementations must be cheap; they run
// on the reader goroutine.
type Observer interface {
	MessagesDecoded(mode Mode, n int)
	FragmentDiscarded(reason Reason, bytes int)
}

// Config configures a Decoder.
type Config struct {
	Mode       Mode
	Tag        string         // tag name without brackets (tag mode only)
	Unmarked   UnmarkedPolicy // tag mode only
	MaxPending int            // max pending fragment size in bytes, 0 = unlimited
}

// LineConfig returns a CRLF line-mode config.
func LineConfig() Config {
	return Config{Mode: ModeLine}
}

// TagConfig returns a tag-mode config for the given tag name.
func TagConfig(tag string) Config {
	return Config{Mode: ModeTag, Tag: tag}
}

// Validate checks the config.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeLine:
	case ModeTag:
		if c.Tag == "" {
			return ErrMissingTag
		}
		if strings.ContainsAny(c.Tag, "<>/ \t\r\n") {
			return fmt.Errorf("%w: %q", ErrInvalidTag, c.Tag)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMode, c.Mode)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("framing: max pending must be >= 0, got %d", c.MaxPending)
	}
	return nil
}

// Frame wraps payload in the boundary markers cfg decodes.
func Frame(cfg Config, payload []byte) []byte {
	if cfg.Mode == ModeTag {
		out := make([]byte, 0, len(payload)+2*len(cfg.Tag)+5)
		out = append(out, '<')
		out = append(out, cfg.Tag...)
		out = append(out, '>')
		out = append(out, payload...)
		out = append(out, '<', '/')
		out = append(out, cfg.Tag...)
		return append(out, '>')
	}
	out := make([]byte, 0, len(payload)+len(LineTerminator))
	out = append(out, payload...)
	return append(out, LineTerminator...)
}
