package main

import (
	"log"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/quince-project/quic"
	"github.com/quince-project/quic/transport"
)

var (
	clientListenAddr string
	clientInsecure   bool
	clientData       string
	clientLogLevel   int
)

var clientCmd = &cobra.Command{
	Use:   "client <address>",
	Short: "Connect to a QUIC server and send data on stream 4",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClient(args[0])
	},
}

func init() {
	clientCmd.Flags().StringVar(&clientListenAddr, "listen", "0.0.0.0:0", "listen on the given IP:port")
	clientCmd.Flags().BoolVar(&clientInsecure, "insecure", false, "skip verifying server certificate")
	clientCmd.Flags().StringVar(&clientData, "data", "GET /\r\n", "data to send on the first stream")
	clientCmd.Flags().IntVar(&clientLogLevel, "v", 2, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
}

func runClient(addr string) error {
	config := newConfig()
	config.TLS.ServerName = serverName(addr)
	config.TLS.InsecureSkipVerify = clientInsecure
	handler := clientHandler{data: clientData}
	client := quic.NewClient(config)
	client.SetHandler(&handler)
	client.SetLogger(clientLogLevel, os.Stdout)
	if err := client.ListenAndServe(clientListenAddr); err != nil {
		return err
	}
	handler.wg.Add(1)
	if err := client.Connect(addr); err != nil {
		return err
	}
	handler.wg.Wait()
	return client.Close()
}

type clientHandler struct {
	wg   sync.WaitGroup
	data string
}

func (s *clientHandler) Serve(c quic.Conn, events []transport.Event) {
	for _, e := range events {
		log.Printf("%s connection event: %v", c.RemoteAddr(), e.Type)
		switch e.Type {
		case quic.EventConnAccept:
			st := c.Stream(4)
			_, _ = st.Write([]byte(s.data))
			_ = st.Close()
		case transport.EventStream:
			st := c.Stream(e.StreamID)
			if st != nil {
				buf := make([]byte, 512)
				n, _ := st.Read(buf)
				log.Printf("stream %d received:\n%s", e.StreamID, buf[:n])
			}
		case quic.EventConnClose:
			s.wg.Done()
		}
	}
}

func serverName(s string) string {
	colon := strings.LastIndex(s, ":")
	if colon > 0 {
		bracket := strings.LastIndex(s, "]")
		if colon > bracket {
			return s[:colon]
		}
	}
	return s
}
