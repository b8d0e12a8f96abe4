package transport

import "testing"

func TestStreamResetQueuesResetStreamFrameUntilAcked(t *testing.T) {
	st := newStream(4)
	if _, err := st.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := st.Reset(42); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !st.resetRequested || st.resetAcked {
		t.Fatalf("expected a reset to be pending and unacked")
	}

	var s Conn
	f := s.sendFrameResetStream(st.id, st)
	if f == nil {
		t.Fatalf("expected a pending RESET_STREAM frame")
	}
	if f.streamID != 4 || f.errorCode != 42 || f.finalSize != 5 {
		t.Fatalf("unexpected frame %+v", f)
	}

	// Resent on every call until acked.
	if f2 := s.sendFrameResetStream(st.id, st); f2 == nil {
		t.Fatalf("expected the RESET_STREAM to be resent while unacked")
	}

	st.ackReset()
	if f3 := s.sendFrameResetStream(st.id, st); f3 != nil {
		t.Fatalf("expected no further RESET_STREAM once acked")
	}
}

func TestStreamResetSuppressesFurtherStreamData(t *testing.T) {
	st := newStream(4)
	if _, err := st.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := st.Reset(1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	data, _, _ := st.popSend(10)
	if data != nil {
		t.Fatalf("expected no STREAM data once the stream is reset, got %v", data)
	}
}

func TestStreamStopQueuesStopSendingFrameUntilAcked(t *testing.T) {
	st := newStream(4)
	if err := st.Stop(7); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !st.stopRequested || st.stopAcked {
		t.Fatalf("expected a stop to be pending and unacked")
	}

	var s Conn
	f := s.sendFrameStopSending(st.id, st)
	if f == nil || f.streamID != 4 || f.errorCode != 7 {
		t.Fatalf("unexpected frame %+v", f)
	}

	st.ackStop()
	if f2 := s.sendFrameStopSending(st.id, st); f2 != nil {
		t.Fatalf("expected no further STOP_SENDING once acked")
	}
}

func TestStreamMapHasFlushableReflectsPendingResetAndStop(t *testing.T) {
	var m streamMap
	m.init(10, 10)
	m.setPeerMaxStreamsBidi(10)
	st, err := m.create(4, true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.hasFlushable() {
		t.Fatalf("expected nothing flushable on a fresh stream")
	}
	if err := st.Reset(1); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !m.hasFlushable() {
		t.Fatalf("expected a pending RESET_STREAM to count as flushable")
	}
	st.ackReset()
	if m.hasFlushable() {
		t.Fatalf("expected nothing flushable once the reset is acked")
	}
}
