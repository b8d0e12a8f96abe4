package transport

import "crypto/tls"

// Config carries the configuration used to create a Conn.
// https://quicwg.org/base-drafts/draft-ietf-quic-transport.html#transport-parameter-definitions
type Config struct {
	// Version is the QUIC wire version to speak. Leave zero to use the
	// latest version this package supports.
	Version uint32

	// TLS is forwarded to crypto/tls's QUIC integration. ClientHello/
	// ServerHello exchange, certificate verification, ALPN and 0-RTT
	// resumption are entirely delegated to it.
	TLS *tls.Config

	// Params are the local transport parameters sent to the peer during
	// the handshake. Use NewConfig to fill reasonable defaults.
	Params Parameters

	// CongestionControl selects the sender-side congestion controller:
	// "reno" (default), "cubic", or "bbr". Chosen once at connection
	// construction; it does not change for the life of the connection.
	CongestionControl string
}

// NewConfig returns a Config with the default transport parameters set,
// ready for a caller to override individual fields.
func NewConfig() *Config {
	return &Config{
		Version: ProtocolVersion,
		Params:  defaultParameters(),
	}
}

func newCongestionController(name string) congestionController {
	switch name {
	case "cubic":
		return newCubicCC()
	case "bbr":
		return newBBRCC()
	default:
		return newNewRenoCC()
	}
}
