package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"weak"
)

// Registry tracks handles without owning them. Entries whose handle has been
// garbage collected or closed are removed by Reap.
type Registry struct {
	mu        sync.Mutex
	entries   []weak.Pointer[Handle]
	lastCount int
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds h. Registration order is preserved.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	r.entries = append(r.entries, weak.Make(h))
	r.mu.Unlock()
}

// Handles returns strong references to every handle still in memory, open or
// not, in registration order. A closed handle is only still in memory if
// something outside the registry references it.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.entries))
	for _, wp := range r.entries {
		if h := wp.Value(); h != nil {
			out = append(out, h)
		}
	}
	return out
}

// Live returns strong references to every open handle in registration order.
func (r *Registry) Live() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.entries))
	for _, wp := range r.entries {
		if h := wp.Value(); h != nil && h.IsOpen() {
			out = append(out, h)
		}
	}
	return out
}

// Broadcast sends msg to every live handle and returns how many accepted it.
// The lock is not held while sending.
func (r *Registry) Broadcast(msg []byte) int {
	sent := 0
	for _, h := range r.Live() {
		if err := h.Send(msg); err == nil {
			sent++
		}
	}
	return sent
}

// Reap drops entries whose handle is gone or closed and returns how many were
// removed. It never closes anything.
func (r *Registry) Reap() int {
	r.mu.Lock()
	kept := r.entries[:0]
	for _, wp := range r.entries {
		if h := wp.Value(); h != nil && h.IsOpen() {
			kept = append(kept, wp)
		}
	}
	removed := len(r.entries) - len(kept)
	clear(r.entries[len(kept):])
	r.entries = kept

	count := len(kept)
	changed := count != r.lastCount
	r.lastCount = count
	r.mu.Unlock()

	if changed {
		r.logger.Info("maintaining connections", "count", count, "removed", removed)
	}
	return removed
}

// Run reaps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Reap()
		}
	}
}

// CloseAll closes every handle still in memory and empties the registry.
// Returns the number of handles closed.
func (r *Registry) CloseAll() int {
	handles := r.Handles()

	r.mu.Lock()
	r.entries = nil
	r.lastCount = 0
	r.mu.Unlock()

	closed := 0
	for _, h := range handles {
		if h.IsOpen() {
			closed++
		}
		h.Close()
	}
	return closed
}

// Len returns the number of entries, including ones not yet reaped.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
