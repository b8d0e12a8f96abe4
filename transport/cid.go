package transport

// connIDEntry is one connection id issued to, or received from, the peer,
// RFC 9000 Section 5.1.1.
type connIDEntry struct {
	seq   uint64
	cid   []byte
	token [16]byte

	// retired is set once a RETIRE_CONNECTION_ID has been sent or received
	// for this entry, pending its removal once acknowledged.
	retired bool
}

// connIDManager tracks the set of connection ids this endpoint has handed
// out to the peer (local) and the set the peer has handed out to it
// (remote), enforcing active_connection_id_limit and generating
// NEW_CONNECTION_ID/RETIRE_CONNECTION_ID traffic as ids are consumed or
// retired during connection migration (Section 5.1).
type connIDManager struct {
	local  []connIDEntry // ids we generated, advertised via NEW_CONNECTION_ID
	remote []connIDEntry // ids the peer advertised to us

	nextLocalSeq  uint64
	nextRemoteSeq uint64 // highest seq we have accepted from the peer, +1

	activeLimit uint64 // peer's active_connection_id_limit
	current     int    // index into remote of the dcid presently in use

	pendingRetire []uint64 // sequence numbers awaiting a RETIRE_CONNECTION_ID
	pendingIssue  []connIDEntry
}

func (m *connIDManager) init(activeLimit uint64) {
	m.activeLimit = activeLimit
	if m.activeLimit == 0 {
		m.activeLimit = 2
	}
}

// issue generates count new local connection ids beyond what has already
// been handed out, queuing NEW_CONNECTION_ID frames for them.
func (m *connIDManager) issue(genCID func() ([]byte, [16]byte, error), count int) error {
	for i := 0; i < count; i++ {
		cid, token, err := genCID()
		if err != nil {
			return err
		}
		e := connIDEntry{seq: m.nextLocalSeq, cid: cid, token: token}
		m.local = append(m.local, e)
		m.pendingIssue = append(m.pendingIssue, e)
		m.nextLocalSeq++
	}
	return nil
}

// popIssue returns the next queued NEW_CONNECTION_ID to send, if any.
func (m *connIDManager) popIssue() (connIDEntry, bool) {
	if len(m.pendingIssue) == 0 {
		return connIDEntry{}, false
	}
	e := m.pendingIssue[0]
	m.pendingIssue = m.pendingIssue[1:]
	return e, true
}

// receiveNewConnectionID records a connection id advertised by the peer,
// retiring anything below retirePriorTo as RFC 9000 Section 5.1.2 requires.
func (m *connIDManager) receiveNewConnectionID(seq, retirePriorTo uint64, cid []byte, token [16]byte) error {
	if uint64(len(m.remote))-countRetired(m.remote)+1 > m.activeLimit {
		return errCIDLimit
	}
	if cur := m.currentRemoteEntry(); cur != nil && cur.seq < retirePriorTo {
		return errCIDInUse
	}
	for _, e := range m.remote {
		if e.seq == seq {
			return nil // duplicate
		}
	}
	m.remote = append(m.remote, connIDEntry{seq: seq, cid: cid, token: token})
	if seq >= m.nextRemoteSeq {
		m.nextRemoteSeq = seq + 1
	}
	for i := range m.remote {
		if m.remote[i].seq < retirePriorTo && !m.remote[i].retired {
			m.remote[i].retired = true
			m.pendingRetire = append(m.pendingRetire, m.remote[i].seq)
		}
	}
	return nil
}

// popRetire returns the next queued RETIRE_CONNECTION_ID sequence number to
// send, if any.
func (m *connIDManager) popRetire() (uint64, bool) {
	if len(m.pendingRetire) == 0 {
		return 0, false
	}
	seq := m.pendingRetire[0]
	m.pendingRetire = m.pendingRetire[1:]
	return seq, true
}

// retireLocal marks one of our own issued ids as no longer valid once a
// RETIRE_CONNECTION_ID referencing it arrives from the peer.
func (m *connIDManager) retireLocal(seq uint64) {
	for i := range m.local {
		if m.local[i].seq == seq {
			m.local = append(m.local[:i], m.local[i+1:]...)
			return
		}
	}
}

func countRetired(es []connIDEntry) uint64 {
	var n uint64
	for _, e := range es {
		if e.retired {
			n++
		}
	}
	return n
}

// currentRemote returns the destination connection id presently in use.
func (m *connIDManager) currentRemote() []byte {
	if m.current < 0 || m.current >= len(m.remote) {
		return nil
	}
	return m.remote[m.current].cid
}

// currentRemoteEntry returns the full entry behind currentRemote, or nil
// before any remote connection id has been recorded.
func (m *connIDManager) currentRemoteEntry() *connIDEntry {
	if m.current < 0 || m.current >= len(m.remote) {
		return nil
	}
	return &m.remote[m.current]
}

// matchesStatelessReset reports whether token matches any connection id
// this endpoint is aware the peer is using, per RFC 9000 Section 10.3.
func (m *connIDManager) matchesStatelessReset(token [16]byte) bool {
	for _, e := range m.remote {
		if e.token == token {
			return true
		}
	}
	return false
}
