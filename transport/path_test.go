package transport

import (
	"net"
	"testing"
	"time"
)

func TestPathSetInitialPathIsValidated(t *testing.T) {
	var m pathManager
	addr := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 1234}
	m.setInitialPath(addr)
	p := m.activePath()
	if p == nil || !p.validated {
		t.Fatalf("expected initial path to be active and validated")
	}
	if !sameAddr(p.addr, addr) {
		t.Fatalf("expected active path addr to match %v, got %v", addr, p.addr)
	}
}

func TestPathProbeThenMigrate(t *testing.T) {
	var m pathManager
	orig := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 1234}
	next := &net.UDPAddr{IP: net.ParseIP("192.0.2.2"), Port: 5678}
	m.setInitialPath(orig)

	now := time.Unix(0, 0)
	f, err := m.probe(next, now)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if f == nil {
		t.Fatalf("expected a PATH_CHALLENGE frame for an unvalidated path")
	}
	if m.migrateTo(next) {
		t.Fatalf("migrateTo should fail before the challenge is answered")
	}

	m.onPathResponse(f.data)
	if !m.migrateTo(next) {
		t.Fatalf("migrateTo should succeed once the challenge is answered")
	}
	if p := m.activePath(); p == nil || !sameAddr(p.addr, next) {
		t.Fatalf("expected active path to be %v, got %v", next, p)
	}
}

func TestPathProbeAlreadyValidatedIsNoop(t *testing.T) {
	var m pathManager
	addr := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 1234}
	m.setInitialPath(addr)
	f, err := m.probe(addr, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if f != nil {
		t.Fatalf("expected no challenge needed for an already-validated path")
	}
}

func TestPathAntiAmplificationLimit(t *testing.T) {
	p := &pathState{bytesRecv: 100}
	if !p.canSend(300) {
		t.Fatalf("expected 3x the received bytes to be sendable")
	}
	if p.canSend(301) {
		t.Fatalf("expected more than 3x the received bytes to be blocked")
	}
	p.validated = true
	if !p.canSend(10000) {
		t.Fatalf("a validated path has no amplification limit")
	}
}
