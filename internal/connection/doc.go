// Package connection implements per-connection session state and the
// registry that fans messages out to every live connection.
//
// A Handle owns one transport.Conn exclusively:
//   - a read goroutine decodes raw chunks into messages and queues them
//   - a write goroutine drains an outbound queue, so Send never blocks
//
// The first read or write failure closes the handle; it is never re-armed.
//
// A Registry holds only weak references. Handles stay alive while their
// goroutines run; once closed they are dropped by the periodic reaper.
package connection
