package supervisor

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/framelink/internal/queue"
	"github.com/rickgao/framelink/internal/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// nextMessage waits up to two seconds for the next queued message.
func nextMessage(t *testing.T, q *queue.Queue[[]byte]) string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		ready := q.Ready()
		if msg, ok := q.TryPop(); ok {
			return string(msg)
		}
		select {
		case <-timeout:
			t.Fatal("timed out waiting for a message")
		case <-ready:
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "framelink.test"
	cfg.Port = 9000
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	return cfg
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

// deadAddr returns a loopback address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func startSupervisor(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func TestSupervisor_ConnectsAndReceives(t *testing.T) {
	ln := listen(t)

	s, err := New(testConfig(), WithResolver(transport.StaticResolver{ln.Addr().String()}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startSupervisor(t, s)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	waitFor(t, "connected", s.Connected)

	if _, err := conn.Write([]byte("hello\r\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	if msg := nextMessage(t, s.Queue()); msg != "hello" {
		t.Errorf("received %q, want %q", msg, "hello")
	}

	if err := s.Send([]byte("back\r\n")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(buf[:n]) != "back\r\n" {
		t.Errorf("server read %q, want %q", buf[:n], "back\r\n")
	}
}

func TestSupervisor_SendWhileDisconnected(t *testing.T) {
	s, err := New(testConfig(), WithResolver(transport.StaticResolver{deadAddr(t)}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Send([]byte("dropped\r\n")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestSupervisor_TriesEndpointsInOrder(t *testing.T) {
	ln := listen(t)
	resolver := transport.StaticResolver{deadAddr(t), ln.Addr().String()}

	s, err := New(testConfig(), WithResolver(resolver))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startSupervisor(t, s)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer conn.Close()

	waitFor(t, "connected", s.Connected)
	if got := s.Attempts(); got != 2 {
		t.Errorf("Attempts() = %d, want 2", got)
	}
}

func TestSupervisor_ReconnectsAfterLoss(t *testing.T) {
	ln := listen(t)

	s, err := New(testConfig(), WithResolver(transport.StaticResolver{ln.Addr().String()}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startSupervisor(t, s)

	first, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	waitFor(t, "first connection", s.Connected)
	queue := s.Queue()

	first.Close()

	second, err := ln.Accept()
	if err != nil {
		t.Fatalf("second Accept: %v", err)
	}
	defer second.Close()

	waitFor(t, "second connection", func() bool { return s.Stats().Connects == 2 && s.Connected() })

	if s.Queue() != queue {
		t.Error("queue replaced across reconnect")
	}

	second.Write([]byte("again\r\n"))
	if msg := nextMessage(t, s.Queue()); msg != "again" {
		t.Errorf("received %q, want %q", msg, "again")
	}
}

func TestSupervisor_RetriesWithStateTransitions(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	s, err := New(testConfig(),
		WithResolver(transport.StaticResolver{}),
		WithOnStateChange(func(_, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startSupervisor(t, s)

	waitFor(t, "two resolution attempts", func() bool {
		mu.Lock()
		defer mu.Unlock()
		resolving := 0
		for _, st := range transitions {
			if st == StateResolving {
				resolving++
			}
		}
		return resolving >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if transitions[0] != StateResolving || transitions[1] != StateDisconnected {
		t.Errorf("transitions = %v, want resolving then disconnected", transitions)
	}
	if s.Attempts() != 0 {
		t.Errorf("Attempts() = %d, want 0 with no endpoints", s.Attempts())
	}
}

func TestSupervisor_RunTwice(t *testing.T) {
	s, err := New(testConfig(), WithResolver(transport.StaticResolver{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startSupervisor(t, s)

	waitFor(t, "running", func() bool { return s.running.Load() })
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: ErrMissingHost},
		{name: "zero port", mutate: func(c *Config) { c.Port = 0 }, wantErr: ErrInvalidPort},
		{name: "port too large", mutate: func(c *Config) { c.Port = 70000 }, wantErr: ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
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

func TestState_String(t *testing.T) {
	want := map[State]string{
		StateDisconnected: "disconnected",
		StateResolving:    "resolving",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		State(42):         "unknown",
	}
	for st, s := range want {
		if st.String() != s {
			t.Errorf("State(%d).String() = %q, want %q", st, st.String(), s)
		}
		if b, _ := st.MarshalText(); string(b) != s {
			t.Errorf("State(%d).MarshalText() = %q, want %q", st, b, s)
		}
	}
}
