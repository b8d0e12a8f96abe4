package quic

import "github.com/quince-project/quic/transport"

// Connection-lifecycle events, delivered alongside transport.Event values
// (transport.EventStream and friends) in the slice passed to Handler.Serve.
// They live in a disjoint numeric range so a single switch over Event.Type
// can handle both.
const (
	// EventConnAccept indicates a new connection has completed its
	// handshake and is ready for use. Only sent once per connection.
	EventConnAccept transport.EventType = 100 + iota
	// EventConnClose indicates the connection has been closed, locally or
	// by the peer, and must not be used further.
	EventConnClose
)
