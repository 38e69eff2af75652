// Package framing turns an unbounded sequence of raw byte chunks into
// discrete application messages.
//
// Two boundary conventions are supported:
//   - Line mode: messages end with "\r\n"; the terminator is stripped.
//   - Tag mode: messages are "<Name ...>...</Name>" blocks; the tags are kept.
//
// A Decoder is owned by exactly one reader goroutine and is not safe for
// concurrent use. Bytes that do not yet form a complete message are carried
// between Feed calls.
//
// The package also holds PollPolicy, the tiered wait used by blocking
// receivers while a message is still being reassembled.
package framing
