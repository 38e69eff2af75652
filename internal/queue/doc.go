// Package queue provides the inbound message queue that sits between a
// connection's reader goroutine and arbitrary consumer goroutines.
//
// A Queue is an unbounded FIFO backed by a ring buffer that doubles when it
// reaches 70% of its capacity. Pushes come from one producer (the reader),
// pops from any number of consumers.
package queue
