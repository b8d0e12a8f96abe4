// Package quic implements a QUIC endpoint: UDP datagram demultiplexing,
// connection lifecycle, and the client/server roles built on top of the
// transport package state machine.
package quic

import (
	"net"
	"time"

	"github.com/quince-project/quic/transport"
)

// Conn is a QUIC connection bound to a remote network address.
type Conn interface {
	// RemoteAddr returns the address of the peer.
	RemoteAddr() net.Addr
	// Stream returns a stream given its id, creating a local one if needed.
	Stream(id uint64) *transport.Stream
	// Close closes the connection with the given application error code.
	Close(errCode uint64, reason string) error
	// UpdateKeys initiates a 1-RTT key update (RFC 9001 Section 6).
	UpdateKeys() error
}

// remoteConn binds a transport.Conn state machine to the network address
// it is exchanging datagrams with, as tracked by an endpoint's demux table.
type remoteConn struct {
	scid []byte // Local (our) source connection id identifying this conn in the demux table
	addr net.Addr
	conn *transport.Conn

	// recvCh receives datagrams read by the endpoint's read loop so the
	// connection's own goroutine can process them in order.
	recvCh chan []byte
	// closed is closed once the connection goroutine has exited.
	closed chan struct{}
}

func (c *remoteConn) RemoteAddr() net.Addr {
	return c.addr
}

func (c *remoteConn) Stream(id uint64) *transport.Stream {
	st, err := c.conn.Stream(id)
	if err != nil {
		return nil
	}
	return st
}

func (c *remoteConn) Close(errCode uint64, reason string) error {
	c.conn.Close(true, errCode, reason)
	return nil
}

func (c *remoteConn) UpdateKeys() error {
	return c.conn.UpdateKeys(time.Now())
}
