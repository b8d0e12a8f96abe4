package transport

import (
	"testing"
	"time"
)

func TestNewCongestionControllerSelectsImplementation(t *testing.T) {
	cases := map[string]interface{}{
		"reno":    &newRenoCC{},
		"cubic":   &cubicCC{},
		"bbr":     &bbrCC{},
		"":        &newRenoCC{},
		"bogus":   &newRenoCC{},
	}
	for name, want := range cases {
		got := newCongestionController(name)
		gotType := typeName(got)
		wantType := typeName(want)
		if gotType != wantType {
			t.Errorf("newCongestionController(%q) = %s, want %s", name, gotType, wantType)
		}
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *newRenoCC:
		return "newRenoCC"
	case *cubicCC:
		return "cubicCC"
	case *bbrCC:
		return "bbrCC"
	default:
		return "unknown"
	}
}

func TestResetForNewPathReinitializesCongestionAndRTT(t *testing.T) {
	var r lossRecovery
	now := time.Unix(0, 0)
	r.init(now, "reno")
	r.cc.onPacketSent(5000)
	r.updateRTT(100*time.Millisecond, 0, packetSpaceApplication)
	if r.cc.bytesInFlight() == 0 {
		t.Fatalf("expected bytes in flight to be nonzero before reset")
	}
	if !r.rttInitialized {
		t.Fatalf("expected rtt to be initialized before reset")
	}

	r.resetForNewPath(now.Add(time.Second))

	if r.cc.bytesInFlight() != 0 {
		t.Fatalf("expected a fresh congestion controller with no bytes in flight")
	}
	if r.rttInitialized {
		t.Fatalf("expected rtt estimator to be cleared on path reset")
	}
	if r.smoothedRTT != kInitialRTT {
		t.Fatalf("expected smoothedRTT reset to kInitialRTT, got %v", r.smoothedRTT)
	}
	if r.ptoCount != 0 {
		t.Fatalf("expected ptoCount reset to 0, got %d", r.ptoCount)
	}
}

func TestProbeTimeoutBacksOffWithPtoCount(t *testing.T) {
	var r lossRecovery
	r.init(time.Unix(0, 0), "reno")
	first := r.probeTimeout()
	r.ptoCount = 1
	second := r.probeTimeout()
	if second <= first {
		t.Fatalf("expected probe timeout to grow with ptoCount: %v then %v", first, second)
	}
}
