package transport

import "testing"

func TestConnIDManagerIssueAndPopIssue(t *testing.T) {
	var m connIDManager
	m.init(4)
	n := 0
	err := m.issue(func() ([]byte, [16]byte, error) {
		n++
		return []byte{byte(n)}, [16]byte{byte(n)}, nil
	}, 2)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var got []connIDEntry
	for {
		e, ok := m.popIssue()
		if !ok {
			break
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 queued NEW_CONNECTION_ID entries, got %d", len(got))
	}
}

func TestConnIDManagerReceiveNewConnectionIDEnforcesLimit(t *testing.T) {
	var m connIDManager
	m.init(1)
	if err := m.receiveNewConnectionID(0, 0, []byte{1}, [16]byte{}); err != nil {
		t.Fatalf("first id should be accepted: %v", err)
	}
	if err := m.receiveNewConnectionID(1, 0, []byte{2}, [16]byte{}); err != errCIDLimit {
		t.Fatalf("expected errCIDLimit, got %v", err)
	}
}

func TestConnIDManagerRetiresNonActiveIDs(t *testing.T) {
	var m connIDManager
	m.init(4)
	// No remote connection id recorded yet, so currentRemoteEntry is nil
	// and this first arrival cannot conflict with anything in use.
	if err := m.receiveNewConnectionID(0, 0, []byte{1}, [16]byte{}); err != nil {
		t.Fatalf("receiveNewConnectionID: %v", err)
	}
	// Point the active destination CID somewhere other than seq 0 so the
	// next arrival's retire_prior_to can retire seq 0 without conflict.
	m.remote = append(m.remote, connIDEntry{seq: 9, cid: []byte{9}})
	m.current = 1
	if err := m.receiveNewConnectionID(1, 1, []byte{2}, [16]byte{}); err != nil {
		t.Fatalf("receiveNewConnectionID: %v", err)
	}
	seq, ok := m.popRetire()
	if !ok || seq != 0 {
		t.Fatalf("expected sequence 0 queued for retirement, got %d ok=%v", seq, ok)
	}
}

func TestConnIDManagerRejectsRetiringTheInUseCID(t *testing.T) {
	var m connIDManager
	m.init(4)
	// current defaults to index 0: the first connection id recorded
	// becomes the active destination CID this endpoint is using.
	if err := m.receiveNewConnectionID(0, 0, []byte{1}, [16]byte{}); err != nil {
		t.Fatalf("receiveNewConnectionID: %v", err)
	}
	if err := m.receiveNewConnectionID(1, 1, []byte{2}, [16]byte{}); err != errCIDInUse {
		t.Fatalf("expected errCIDInUse when retire_prior_to covers the active CID, got %v", err)
	}
}

func TestConnIDManagerRetireLocal(t *testing.T) {
	var m connIDManager
	m.init(4)
	m.local = []connIDEntry{{seq: 0}, {seq: 1}}
	m.retireLocal(0)
	if len(m.local) != 1 || m.local[0].seq != 1 {
		t.Fatalf("expected only sequence 1 to remain, got %v", m.local)
	}
}

func TestConnIDManagerMatchesStatelessReset(t *testing.T) {
	var m connIDManager
	m.init(4)
	token := [16]byte{1, 2, 3}
	if err := m.receiveNewConnectionID(0, 0, []byte{1}, token); err != nil {
		t.Fatalf("receiveNewConnectionID: %v", err)
	}
	if !m.matchesStatelessReset(token) {
		t.Fatalf("expected token to match a known remote connection id")
	}
	if m.matchesStatelessReset([16]byte{9, 9, 9}) {
		t.Fatalf("did not expect an unrelated token to match")
	}
}
