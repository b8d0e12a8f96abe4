package quic

import "github.com/quince-project/quic/transport"

// Client dials outgoing QUIC connections from a single UDP socket.
type Client struct {
	endpoint
}

// NewClient creates a client using config for every dialed connection.
func NewClient(config *transport.Config) *Client {
	return &Client{endpoint: endpoint{config: config, isClient: true, log: newLogger()}}
}

// ListenAndServe binds the local UDP socket used for outgoing connections.
// addr may have a zero port to let the OS pick one.
func (c *Client) ListenAndServe(addr string) error {
	return c.listen(addr)
}

// Connect dials a new connection to addr.
func (c *Client) Connect(addr string) error {
	if c.socket == nil {
		return errNotListening
	}
	raddr, err := resolveUDPAddr(addr)
	if err != nil {
		return err
	}
	_, err = c.connect(raddr)
	return err
}
