// Package transport provides the byte-stream connections a session runs over.
//
// Two transports are available:
//   - TCP: plain net.Conn streams
//   - WebSocket: binary messages carried over gorilla/websocket, each message
//     delivered to readers as a raw chunk with no boundary guarantees
//
// Resolvers turn a host and port into an ordered list of dialable endpoints.
package transport
