package transport

import (
	"crypto/rand"
	"net"
	"time"
)

// pathState tracks validation of a single network path, RFC 9000 Section
// 8.2: an endpoint must not send more than a minimal amount of data on a
// path until a PATH_CHALLENGE sent on it has been answered.
type pathState struct {
	addr net.Addr

	validated   bool
	challenge   [8]byte
	challenged  bool
	challengeAt time.Time

	// bytesSent/bytesRecv implement the anti-amplification limit: before
	// validation, an endpoint may send at most 3x the bytes it has
	// received on this path.
	bytesSent uint64
	bytesRecv uint64
}

// pathManager tracks every path this connection has observed packets from
// or is attempting to migrate to, supporting simultaneous probing of a new
// path while the original remains active (Section 9).
type pathManager struct {
	paths  []*pathState
	active int
}

func (m *pathManager) get(addr net.Addr) *pathState {
	for _, p := range m.paths {
		if sameAddr(p.addr, addr) {
			return p
		}
	}
	return nil
}

func (m *pathManager) getOrCreate(addr net.Addr) *pathState {
	if p := m.get(addr); p != nil {
		return p
	}
	p := &pathState{addr: addr}
	m.paths = append(m.paths, p)
	return p
}

// setInitialPath records addr as the connection's first path, already
// considered valid since packets have been exchanged on it during the
// handshake.
func (m *pathManager) setInitialPath(addr net.Addr) {
	p := m.getOrCreate(addr)
	p.validated = true
	for i, pp := range m.paths {
		if pp == p {
			m.active = i
			break
		}
	}
}

func (m *pathManager) activePath() *pathState {
	if m.active < 0 || m.active >= len(m.paths) {
		return nil
	}
	return m.paths[m.active]
}

// probe begins validating addr as a candidate path by generating a fresh
// PATH_CHALLENGE payload (Section 8.2.1). Conn.NotifyPeerAddr calls it when
// a datagram arrives from a new peer address (an apparent peer migration).
func (m *pathManager) probe(addr net.Addr, now time.Time) (*pathChallengeFrame, error) {
	p := m.getOrCreate(addr)
	if p.validated {
		return nil, nil
	}
	var data [8]byte
	if _, err := rand.Read(data[:]); err != nil {
		return nil, err
	}
	p.challenge = data
	p.challenged = true
	p.challengeAt = now
	return newPathChallengeFrame(data), nil
}

// onPathResponse validates a path once its PATH_CHALLENGE payload is
// echoed back correctly.
func (m *pathManager) onPathResponse(data [8]byte) {
	for _, p := range m.paths {
		if p.challenged && p.challenge == data {
			p.validated = true
			p.challenged = false
		}
	}
}

// migrateTo switches the active path once addr's challenge has succeeded,
// RFC 9000 Section 9: the new path becomes active only after validation.
// TODO: retire the connection IDs bound to the path being abandoned; cid.go
// does not yet track which connection ID was issued for which path.
func (m *pathManager) migrateTo(addr net.Addr) bool {
	for i, p := range m.paths {
		if sameAddr(p.addr, addr) && p.validated {
			m.active = i
			return true
		}
	}
	return false
}

// canSend reports whether n more bytes may be sent on a not-yet-validated
// path without violating the 3x anti-amplification limit.
func (p *pathState) canSend(n int) bool {
	if p.validated {
		return true
	}
	return p.bytesSent+uint64(n) <= 3*p.bytesRecv
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
