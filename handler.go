package quic

import "github.com/quince-project/quic/transport"

// Handler processes connection and stream events. Serve is usually invoked
// from the connection's own goroutine; the endpoint also invokes it from its
// read loop when a stateless reset closes a connection, and from Close.
// Implementations must not block for long and must not call back into the
// Conn from another goroutine concurrently.
type Handler interface {
	Serve(c Conn, events []transport.Event)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(c Conn, events []transport.Event)

func (f HandlerFunc) Serve(c Conn, events []transport.Event) {
	f(c, events)
}
