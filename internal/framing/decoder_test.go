package framing

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recordingObserver struct {
	decoded   int
	discarded map[Reason]int
}

func (r *recordingObserver) MessagesDecoded(_ Mode, n int) {
	r.decoded += n
}

func (r *recordingObserver) FragmentDiscarded(reason Reason, bytes int) {
	if r.discarded == nil {
		r.discarded = make(map[Reason]int)
	}
	r.discarded[reason] += bytes
}

func newTestDecoder(t *testing.T, cfg Config, obs Observer) *Decoder {
	t.Helper()
	opts := []Option{}
	if obs != nil {
		opts = append(opts, WithObserver(obs))
	}
	d, err := NewDecoder(cfg, opts...)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d
}

func feedAll(d *Decoder, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, msg := range d.Feed([]byte(c)) {
			out = append(out, string(msg))
		}
	}
	return out
}

func TestDecoder_LineSingleChunk(t *testing.T) {
	d := newTestDecoder(t, LineConfig(), nil)

	got := feedAll(d, "ping\r\npong\r\npar")
	want := []string{"ping", "pong"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if string(d.Pending()) != "par" {
		t.Errorf("Pending() = %q, want %q", d.Pending(), "par")
	}
}

func TestDecoder_LineChunkingInvariance(t *testing.T) {
	input := "alpha\r\nbeta\r\n\r\ngamma delta\r\nz\r\n"
	want := []string{"alpha", "beta", "gamma delta", "z"}

	// Every two-way and three-way split, including splits between '\r' and '\n'.
	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			d := newTestDecoder(t, LineConfig(), nil)
			got := feedAll(d, input[:i], input[i:j], input[j:])
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("split at %d,%d mismatch (-want +got):\n%s", i, j, diff)
			}
			if d.PendingLen() != 0 {
				t.Fatalf("split at %d,%d left %d pending bytes", i, j, d.PendingLen())
			}
		}
	}
}

func TestDecoder_LineByteAtATime(t *testing.T) {
	input := "one\r\ntwo\r\n"
	d := newTestDecoder(t, LineConfig(), nil)

	var chunks []string
	for i := range input {
		chunks = append(chunks, input[i:i+1])
	}

	got := feedAll(d, chunks...)
	if diff := cmp.Diff([]string{"one", "two"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_LinePendingChunks(t *testing.T) {
	d := newTestDecoder(t, LineConfig(), nil)

	d.Feed([]byte("a"))
	d.Feed([]byte("b"))
	d.Feed([]byte("c"))
	if d.PendingChunks() != 3 {
		t.Errorf("PendingChunks() = %d, want 3", d.PendingChunks())
	}

	d.Feed([]byte("\r\nd"))
	if d.PendingChunks() != 1 {
		t.Errorf("PendingChunks() = %d, want 1 after a message", d.PendingChunks())
	}

	d.Reset()
	if d.PendingChunks() != 0 || d.PendingLen() != 0 {
		t.Errorf("Reset left chunks=%d len=%d", d.PendingChunks(), d.PendingLen())
	}
}

func TestDecoder_TagTwoMessagesOneChunk(t *testing.T) {
	obs := &recordingObserver{}
	d := newTestDecoder(t, TagConfig("A"), obs)

	got := feedAll(d, "<A>x</A><A>y</A>")
	want := []string{"<A>x</A>", "<A>y</A>"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if obs.decoded != 2 {
		t.Errorf("observer decoded = %d, want 2", obs.decoded)
	}
}

func TestDecoder_TagWithAttributesAndNoise(t *testing.T) {
	d := newTestDecoder(t, TagConfig("Vision"), nil)

	got := feedAll(d,
		`junk<Vision id="1">`,
		`<x>1</x></Vis`,
		`ion>tail`,
	)
	want := []string{`<Vision id="1"><x>1</x></Vision>`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	// "tail" has no markers and is discarded.
	if d.PendingLen() != 0 {
		t.Errorf("PendingLen() = %d, want 0", d.PendingLen())
	}
}

// Regression baseline: the start marker "<A" arrives whole in the first
// chunk, so it is retained as a partial message and nothing is lost.
func TestDecoder_TagStartMarkerAtChunkEnd(t *testing.T) {
	d := newTestDecoder(t, TagConfig("A"), nil)

	got := feedAll(d, "<A", "></A>")
	if diff := cmp.Diff([]string{"<A></A>"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

// Regression baseline for DiscardUnmarked: a start marker split inside
// itself is dropped, so the first message loses its start tag and is thrown
// away as corruption once the next message arrives.
func TestDecoder_TagSplitStartMarkerIsLost(t *testing.T) {
	obs := &recordingObserver{}
	d := newTestDecoder(t, TagConfig("A"), obs)

	got := feedAll(d, "<", "A>x</A>", "<A>y</A>")
	if diff := cmp.Diff([]string{"<A>y</A>"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if obs.discarded[ReasonUnmarked] != 1 {
		t.Errorf("unmarked discard = %d bytes, want 1", obs.discarded[ReasonUnmarked])
	}
	if obs.discarded[ReasonEndBeforeStart] != len("A>x</A>") {
		t.Errorf("end_before_start discard = %d bytes, want %d", obs.discarded[ReasonEndBeforeStart], len("A>x</A>"))
	}
	if d.PendingLen() != 0 {
		t.Errorf("PendingLen() = %d, want 0", d.PendingLen())
	}
}

func TestDecoder_TagRetainPartialStart(t *testing.T) {
	cfg := TagConfig("Vision")
	cfg.Unmarked = RetainPartialStart
	d := newTestDecoder(t, cfg, nil)

	got := feedAll(d, "noise<Vi", "sion>x</Vision>", "<", "Vision>y</Vision>")
	want := []string{"<Vision>x</Vision>", "<Vision>y</Vision>"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_TagCorruptionDropsThroughEndTag(t *testing.T) {
	tests := []struct {
		name        string
		chunks      []string
		want        []string
		wantDropped int
		wantPending string
	}{
		{
			name:        "message after stray end tag",
			chunks:      []string{"</A><A>x</A>"},
			want:        []string{"<A>x</A>"},
			wantDropped: len("</A>"),
		},
		{
			name:        "noise before stray end tag",
			chunks:      []string{"x</A><A>y</A><A>z</A>"},
			want:        []string{"<A>y</A>", "<A>z</A>"},
			wantDropped: len("x</A>"),
		},
		{
			name:        "partial message after stray end tag is kept",
			chunks:      []string{"x</A><A>y", "</A>"},
			want:        []string{"<A>y</A>"},
			wantDropped: len("x</A>"),
		},
		{
			name:        "start only after stray end tag waits",
			chunks:      []string{"junk</A><A>partial"},
			want:        nil,
			wantDropped: len("junk</A>"),
			wantPending: "<A>partial",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			d := newTestDecoder(t, TagConfig("A"), obs)

			got := feedAll(d, tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			if obs.discarded[ReasonEndBeforeStart] != tt.wantDropped {
				t.Errorf("end_before_start discard = %d, want %d", obs.discarded[ReasonEndBeforeStart], tt.wantDropped)
			}
			if string(d.Pending()) != tt.wantPending {
				t.Errorf("Pending() = %q, want %q", d.Pending(), tt.wantPending)
			}
		})
	}
}

func TestDecoder_TagDecodingContinuesAfterCorruption(t *testing.T) {
	d := newTestDecoder(t, TagConfig("A"), nil)

	got := feedAll(d, "</A><A>x</A>", "<A>y</A>")
	if diff := cmp.Diff([]string{"<A>x</A>", "<A>y</A>"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_TagOnlyEndRetained(t *testing.T) {
	d := newTestDecoder(t, TagConfig("A"), nil)

	d.Feed([]byte("abc</A>"))
	if string(d.Pending()) != "abc</A>" {
		t.Errorf("Pending() = %q, want %q", d.Pending(), "abc</A>")
	}
}

func TestDecoder_MaxPendingOverflow(t *testing.T) {
	obs := &recordingObserver{}
	cfg := LineConfig()
	cfg.MaxPending = 8
	d := newTestDecoder(t, cfg, obs)

	d.Feed([]byte("0123456789"))
	if d.PendingLen() != 0 {
		t.Errorf("PendingLen() = %d, want 0 after overflow", d.PendingLen())
	}
	if obs.discarded[ReasonOverflow] != 10 {
		t.Errorf("overflow discard = %d, want 10", obs.discarded[ReasonOverflow])
	}

	got := feedAll(d, "ok\r\n")
	if diff := cmp.Diff([]string{"ok"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_MessagesAreCopies(t *testing.T) {
	d := newTestDecoder(t, LineConfig(), nil)

	raw := []byte("abc\r\n")
	msgs := d.Feed(raw)
	raw[0] = 'X'
	if string(msgs[0]) != "abc" {
		t.Errorf("message aliased input buffer: %q", msgs[0])
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "line", cfg: LineConfig()},
		{name: "tag", cfg: TagConfig("Vision")},
		{name: "missing tag", cfg: Config{Mode: ModeTag}, wantErr: ErrMissingTag},
		{name: "bracket in tag", cfg: TagConfig("<A"), wantErr: ErrInvalidTag},
		{name: "slash in tag", cfg: TagConfig("/A"), wantErr: ErrInvalidTag},
		{name: "unknown mode", cfg: Config{Mode: Mode(7)}, wantErr: ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeLine},
		{in: "line", want: ModeLine},
		{in: "CRLF", want: ModeLine},
		{in: " tag ", want: ModeTag},
		{in: "json", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
		got  string // what the decoder yields back
	}{
		{name: "line", cfg: LineConfig(), want: "tick 1\r\n", got: "tick 1"},
		{name: "tag", cfg: TagConfig("Vision"), want: "<Vision>tick 1</Vision>", got: "<Vision>tick 1</Vision>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed := Frame(tt.cfg, []byte("tick 1"))
			if string(framed) != tt.want {
				t.Errorf("Frame() = %q, want %q", framed, tt.want)
			}

			d := newTestDecoder(t, tt.cfg, nil)
			if diff := cmp.Diff([]string{tt.got}, feedAll(d, string(framed))); diff != "" {
				t.Errorf("decoded mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
