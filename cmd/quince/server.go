package main

import (
	"crypto/tls"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/quince-project/quic"
	"github.com/quince-project/quic/transport"
)

var (
	serverListenAddr string
	serverCertFile   string
	serverKeyFile    string
	serverLogLevel   int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a QUIC server that echoes received stream data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serverCmd.Flags().StringVar(&serverListenAddr, "listen", "0.0.0.0:4433", "listen on the given IP:port")
	serverCmd.Flags().StringVar(&serverCertFile, "cert", "", "TLS certificate file")
	serverCmd.Flags().StringVar(&serverKeyFile, "key", "", "TLS private key file")
	serverCmd.Flags().IntVar(&serverLogLevel, "v", 2, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
}

func runServer() error {
	cert, err := tls.LoadX509KeyPair(serverCertFile, serverKeyFile)
	if err != nil {
		return err
	}
	config := newConfig()
	config.TLS.Certificates = []tls.Certificate{cert}
	server := quic.NewServer(config)
	server.SetHandler(&serverHandler{})
	server.SetLogger(serverLogLevel, os.Stdout)
	if err := server.ListenAndServe(serverListenAddr); err != nil {
		return err
	}
	log.Printf("listening on %s", serverListenAddr)
	select {}
}

type serverHandler struct{}

func (s *serverHandler) Serve(c quic.Conn, events []transport.Event) {
	for _, e := range events {
		switch e.Type {
		case quic.EventConnAccept:
			log.Printf("%s connected", c.RemoteAddr())
		case transport.EventStream:
			st := c.Stream(e.StreamID)
			if st == nil {
				continue
			}
			buf := make([]byte, 4096)
			n, _ := st.Read(buf)
			if n > 0 {
				_, _ = st.Write(buf[:n])
			}
		case quic.EventConnClose:
			log.Printf("%s disconnected", c.RemoteAddr())
		}
	}
}
