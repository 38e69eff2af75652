// Package supervisor keeps a single outbound connection alive.
//
// A Supervisor walks Disconnected → Resolving → Connecting → Connected and
// back to Disconnected on any failure. Resolution may return several
// endpoints; they are dialled in order until one succeeds. After a failed
// attempt or a lost connection it waits a fixed delay and starts over.
//
// Messages from every connection the supervisor makes land in one shared
// queue, so callers never see a reconnect. Sends while disconnected are
// dropped, not replayed.
package supervisor
