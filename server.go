package quic

import "github.com/quince-project/quic/transport"

// Server accepts incoming QUIC connections on a UDP socket.
type Server struct {
	endpoint
}

// NewServer creates a server using config for every accepted connection.
func NewServer(config *transport.Config) *Server {
	return &Server{endpoint: endpoint{config: config, log: newLogger()}}
}

// ListenAndServe starts accepting connections on addr. It returns once the
// socket is bound; incoming connections are served on background
// goroutines and reported to the configured Handler.
func (s *Server) ListenAndServe(addr string) error {
	return s.listen(addr)
}
