package connection

import (
	"context"
	"net"
	"runtime"
	"testing"
	"time"
)

func newFakeHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := New(newFakeConn())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestRegistry_BroadcastAndReap(t *testing.T) {
	r := NewRegistry(nil)

	if n := r.Broadcast([]byte("x")); n != 0 {
		t.Errorf("Broadcast on empty registry = %d, want 0", n)
	}

	h1, remote1 := newPipeHandle(t)
	h2, remote2 := newPipeHandle(t)
	r.Register(h1)
	r.Register(h2)

	// Pipe writes block until read, so drain both peers.
	for _, remote := range []net.Conn{remote1, remote2} {
		go func() {
			buf := make([]byte, 64)
			for {
				if _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	}

	if n := r.Broadcast([]byte("ping\r\n")); n != 2 {
		t.Errorf("Broadcast = %d, want 2", n)
	}

	h1.Close()

	live := r.Live()
	if len(live) != 1 || live[0] != h2 {
		t.Fatalf("Live() = %v, want only h2", live)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d before reap, want 2", r.Len())
	}

	if removed := r.Reap(); removed != 1 {
		t.Errorf("Reap() removed %d, want 1", removed)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d after reap, want 1", r.Len())
	}
	if !h2.IsOpen() {
		t.Error("Reap must not close live handles")
	}

	if n := r.Broadcast([]byte("ping\r\n")); n != 1 {
		t.Errorf("Broadcast after reap = %d, want 1", n)
	}
}

func TestRegistry_PreservesOrder(t *testing.T) {
	r := NewRegistry(nil)

	var want []*Handle
	for i := 0; i < 5; i++ {
		h := newFakeHandle(t)
		defer h.Close()
		r.Register(h)
		want = append(want, h)
	}

	got := r.Live()
	if len(got) != len(want) {
		t.Fatalf("Live() returned %d handles, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Live()[%d] is not the handle registered at position %d", i, i)
		}
	}
}

// registerAndClose leaves no strong reference to the handle behind.
func registerAndClose(t *testing.T, r *Registry) {
	h := newFakeHandle(t)
	r.Register(h)
	h.Close()
}

func TestRegistry_DoesNotKeepHandlesAlive(t *testing.T) {
	r := NewRegistry(nil)
	registerAndClose(t, r)

	deadline := time.Now().Add(2 * time.Second)
	for len(r.Handles()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed handle was never collected")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 until reaped", r.Len())
	}
	r.Reap()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after reap, want 0", r.Len())
	}
}

func TestRegistry_RunReapsPeriodically(t *testing.T) {
	r := NewRegistry(nil)
	h := newFakeHandle(t)
	r.Register(h)
	h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not reap the closed handle")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil)
	h1 := newFakeHandle(t)
	h2 := newFakeHandle(t)
	r.Register(h1)
	r.Register(h2)
	h2.Close()

	if n := r.CloseAll(); n != 1 {
		t.Errorf("CloseAll() = %d, want 1", n)
	}
	if h1.IsOpen() {
		t.Error("h1 still open after CloseAll")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after CloseAll, want 0", r.Len())
	}
}
