package main

import (
	"crypto/tls"

	"github.com/quince-project/quic/transport"
)

func newConfig() *transport.Config {
	config := transport.NewConfig()
	config.TLS = &tls.Config{
		NextProtos: []string{"hq-29"},
		MinVersion: tls.VersionTLS13,
	}
	return config
}
