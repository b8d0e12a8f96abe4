package quic

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/quince-project/quic/transport"
)

// localCIDLength is the length of every connection id this endpoint
// issues. Short headers do not self-describe their connection id length,
// so a fixed size lets the read loop demultiplex them before any Conn is
// involved.
const localCIDLength = 8

// maxDatagramSize is the largest UDP payload this endpoint reads or writes
// in one syscall.
const maxDatagramSize = 65527

// endpoint is the shared core of Client and Server: a UDP socket, a demux
// table from connection id to connection, and the goroutine pool running
// each connection's actor loop.
type endpoint struct {
	socket net.PacketConn
	config *transport.Config
	isClient bool

	handler   Handler
	log       logger
	collector *Collector

	mu          sync.Mutex
	conns       map[string]*remoteConn // keyed by local scid
	resetTokens map[[16]byte]*remoteConn

	closeOnce sync.Once
	closeCh   chan struct{}
}

// SetHandler installs the callback invoked with connection and stream
// events. Must be called before ListenAndServe.
func (e *endpoint) SetHandler(h Handler) {
	e.handler = h
}

// SetCollector attaches a Prometheus collector that is kept up to date with
// connection and byte counters as the endpoint runs.
func (e *endpoint) SetCollector(c *Collector) {
	e.collector = c
}

// SetLogger enables transaction logging at the given verbosity
// (0=off 1=error 2=info 3=debug 4=trace) to w.
func (e *endpoint) SetLogger(level int, w io.Writer) {
	e.log.setLevel(level, w)
}

func (e *endpoint) listen(addr string) error {
	lc := net.ListenConfig{Control: setReusePort}
	packetConn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return err
	}
	socket := packetConn
	e.socket = socket
	// ECT(0) lets on-path routers signal incipient congestion (RFC 3168)
	// without dropping packets; RFC 9002 Section 13.4.1 treats ECN-CE
	// marks as an additional loss-like congestion signal. Marking is a
	// best effort: some kernels or NAT paths refuse IP_TOS on a UDP
	// socket, so failure here is not fatal.
	if pc := ipv4.NewPacketConn(socket); pc != nil {
		_ = pc.SetTOS(ecnECT0)
	}
	e.conns = make(map[string]*remoteConn)
	e.resetTokens = make(map[[16]byte]*remoteConn)
	e.closeCh = make(chan struct{})
	go e.readLoop()
	return nil
}

// ECN codepoints, RFC 3168 Section 5.
const (
	ecnNotECT = 0
	ecnECT1   = 1
	ecnECT0   = 2
	ecnCE     = 3
)

// Close shuts down the socket and every connection it owns.
func (e *endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closeCh)
		if e.socket != nil {
			err = e.socket.Close()
		}
		e.mu.Lock()
		conns := make([]*remoteConn, 0, len(e.conns))
		for _, c := range e.conns {
			conns = append(conns, c)
		}
		e.mu.Unlock()
		for _, c := range conns {
			c.conn.Close(false, 0, "")
			e.drive(c)
		}
	})
	return err
}

func (e *endpoint) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := e.socket.ReadFrom(buf)
		if err != nil {
			return
		}
		e.handleDatagram(append([]byte(nil), buf[:n]...), addr)
	}
}

func (e *endpoint) handleDatagram(b []byte, addr net.Addr) {
	if e.collector != nil {
		e.collector.onIO(0, len(b))
	}
	dcid, ok := transport.PeekConnectionID(b, localCIDLength)
	if !ok {
		e.log.log(levelDebug, "dropped unparseable datagram from %s", addr)
		return
	}
	c := e.lookup(dcid)
	if c == nil {
		if !e.isClient && looksLikeInitial(b) {
			var err error
			c, err = e.accept(dcid, addr)
			if err != nil {
				e.log.log(levelError, "accept %s: %v", addr, err)
				return
			}
		} else if reset, ok := e.matchStatelessReset(b); ok {
			reset.conn.SetDraining(time.Now())
			e.deliver(reset, []transport.Event{{Type: EventConnClose}})
			return
		} else {
			e.log.log(levelDebug, "dropped datagram for unknown connection from %s", addr)
			return
		}
	}
	if err := c.conn.NotifyPeerAddr(addr, time.Now()); err != nil {
		e.log.log(levelError, "conn %x: %v", c.scid, err)
	}
	select {
	case c.recvCh <- b:
	default:
		// Connection actor is behind; drop rather than block the read loop.
		e.log.log(levelError, "dropped datagram: connection %x backlogged", c.scid)
	}
}

func looksLikeInitial(b []byte) bool {
	return len(b) >= 1 && b[0]&0x80 != 0 && b[0]&0x30 == 0x00
}

func (e *endpoint) lookup(dcid []byte) *remoteConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[string(dcid)]
}

func (e *endpoint) matchStatelessReset(b []byte) (*remoteConn, bool) {
	if len(b) < 16 {
		return nil, false
	}
	var token [16]byte
	copy(token[:], b[len(b)-16:])
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.resetTokens[token]
	return c, ok
}

func (e *endpoint) newSCID() ([]byte, error) {
	cid := make([]byte, localCIDLength)
	if _, err := rand.Read(cid); err != nil {
		return nil, err
	}
	return cid, nil
}

// accept creates a server-side connection for an incoming Initial packet.
func (e *endpoint) accept(odcid []byte, addr net.Addr) (*remoteConn, error) {
	scid, err := e.newSCID()
	if err != nil {
		return nil, err
	}
	tconn, err := transport.Accept(scid, odcid, e.config)
	if err != nil {
		return nil, err
	}
	return e.register(scid, addr, tconn), nil
}

// connect creates a client-side connection dialing addr.
func (e *endpoint) connect(addr net.Addr) (*remoteConn, error) {
	scid, err := e.newSCID()
	if err != nil {
		return nil, err
	}
	tconn, err := transport.Connect(scid, e.config)
	if err != nil {
		return nil, err
	}
	return e.register(scid, addr, tconn), nil
}

func (e *endpoint) register(scid []byte, addr net.Addr, tconn *transport.Conn) *remoteConn {
	c := &remoteConn{
		scid:   scid,
		addr:   addr,
		conn:   tconn,
		recvCh: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	e.log.attachTransportLog(c)
	e.mu.Lock()
	e.conns[string(scid)] = c
	e.mu.Unlock()
	go e.serve(c)
	return c
}

func (e *endpoint) unregister(c *remoteConn) {
	e.mu.Lock()
	delete(e.conns, string(c.scid))
	if token := c.conn.PeerStatelessResetToken(); len(token) == 16 {
		var t [16]byte
		copy(t[:], token)
		delete(e.resetTokens, t)
	}
	e.mu.Unlock()
	e.log.detachTransportLog(c)
	close(c.closed)
}

// serve is the per-connection actor loop: it folds incoming datagrams,
// timer fires, and application-triggered sends into repeated calls on the
// transport.Conn state machine, and reports events to the handler.
func (e *endpoint) serve(c *remoteConn) {
	defer e.unregister(c)
	accepted := false
	ticker := time.NewTimer(time.Second)
	defer ticker.Stop()
	for {
		e.drive(c)
		if !accepted && c.conn.IsEstablished() {
			accepted = true
			if e.collector != nil {
				e.collector.onAccept()
			}
			e.deliver(c, []transport.Event{{Type: EventConnAccept}})
			if token := c.conn.PeerStatelessResetToken(); len(token) == 16 {
				var t [16]byte
				copy(t[:], token)
				e.mu.Lock()
				e.resetTokens[t] = c
				e.mu.Unlock()
			}
		}
		if c.conn.IsClosed() {
			if accepted && e.collector != nil {
				e.collector.onClose()
			}
			e.deliver(c, []transport.Event{{Type: EventConnClose}})
			return
		}
		timeout := c.conn.Timeout()
		if timeout < 0 {
			timeout = time.Second
		}
		if !ticker.Stop() {
			select {
			case <-ticker.C:
			default:
			}
		}
		ticker.Reset(timeout)
		select {
		case b := <-c.recvCh:
			if _, err := c.conn.Write(b); err != nil {
				e.log.log(levelError, "conn %x: %v", c.scid, err)
			}
		case <-ticker.C:
		case <-e.closeCh:
			return
		}
	}
}

// drive flushes every packet the connection currently wants to send and
// reports any accumulated stream/lifecycle events to the handler.
func (e *endpoint) drive(c *remoteConn) {
	if addr := c.conn.PeerAddr(); addr != nil {
		c.addr = addr
	}
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			e.log.log(levelError, "conn %x read: %v", c.scid, err)
			return
		}
		if n == 0 {
			break
		}
		if _, err := e.socket.WriteTo(buf[:n], c.addr); err != nil {
			e.log.log(levelError, "conn %x write: %v", c.scid, err)
			return
		}
		if e.collector != nil {
			e.collector.onIO(n, 0)
		}
	}
	events := c.conn.Events(nil)
	if len(events) > 0 {
		e.deliver(c, events)
	}
}

func (e *endpoint) deliver(c *remoteConn, events []transport.Event) {
	if e.handler != nil {
		e.handler.Serve(c, events)
	}
}

var errNotListening = errors.New("quic: endpoint not listening")

func resolveUDPAddr(addr string) (net.Addr, error) {
	return net.ResolveUDPAddr("udp", addr)
}

// setReusePort sets SO_REUSEPORT on the listening socket so several
// endpoint processes can share one UDP port, letting the kernel load
// balance datagrams across them instead of running one oversubscribed
// read loop.
func setReusePort(network, address string, c syscall.RawConn) error {
	// Best effort: platforms or kernels without SO_REUSEPORT still get a
	// working, merely non-shared, socket.
	_ = c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	return nil
}
