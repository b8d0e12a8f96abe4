package transport

import "testing"

func TestFlowControlCanRecvAndAddRecv(t *testing.T) {
	var f flowControl
	f.init(100, 0)
	if got := f.canRecv(); got != 100 {
		t.Fatalf("expected 100 receivable, got %d", got)
	}
	f.addRecv(40)
	if got := f.canRecv(); got != 60 {
		t.Fatalf("expected 60 receivable after consuming 40, got %d", got)
	}
}

func TestFlowControlAutoExtendsPastHalfWindow(t *testing.T) {
	var f flowControl
	f.init(100, 0)
	f.addRecv(60) // crosses the 50% mark
	if !f.shouldUpdateMaxRecv() {
		t.Fatalf("expected a MAX_DATA update to be due past half the window")
	}
	f.commitMaxRecv()
	if f.shouldUpdateMaxRecv() {
		t.Fatalf("expected no pending update immediately after commit")
	}
	if f.maxRecv <= 100 {
		t.Fatalf("expected the committed limit to have grown, got %d", f.maxRecv)
	}
}

func TestFlowControlSendSideNeverRegresses(t *testing.T) {
	var f flowControl
	f.init(0, 100)
	f.setMaxSend(50)
	if f.maxSend != 100 {
		t.Fatalf("expected setMaxSend to ignore a lower limit, got %d", f.maxSend)
	}
	f.setMaxSend(200)
	if f.maxSend != 200 {
		t.Fatalf("expected setMaxSend to accept a higher limit, got %d", f.maxSend)
	}
}

func TestFlowControlBlocked(t *testing.T) {
	var f flowControl
	f.init(0, 10)
	f.addSend(10)
	if !f.blocked(1) {
		t.Fatalf("expected blocked once the send window is exhausted")
	}
	if f.canSend() != 0 {
		t.Fatalf("expected 0 sendable once exhausted, got %d", f.canSend())
	}
}
