// Package manager runs a server or client session in the background and
// rebuilds it from scratch whenever it fails.
//
// The Server wraps a listener, a connection.Registry and its reaper. When
// the accept loop dies, the whole session is torn down, Healthy reports
// false, and a new session is installed after RestartDelay.
//
// The Client wraps a supervisor.Supervisor and restarts it if its event loop
// ever returns. Its inbound queue outlives every supervisor and connection.
//
// Receive blocks until a message is queued. It wakes on arrivals and, as a
// fallback, on the tiered framing.PollPolicy delay.
package manager
