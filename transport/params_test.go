package transport

import "testing"

func TestParametersMarshalParseRoundTrip(t *testing.T) {
	p := &Parameters{
		MaxIdleTimeout:                 30000 * 1000 * 1000, // 30s, in time.Duration units
		InitialMaxData:                 1 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 16,
		InitialMaxStreamDataBidiRemote: 1 << 16,
		InitialMaxStreamDataUni:        1 << 16,
		InitialMaxStreamsBidi:          10,
		InitialMaxStreamsUni:           5,
		DisableActiveMigration:         true,
		ActiveConnectionIDLimit:        4,
		InitialSourceCID:               []byte{1, 2, 3, 4},
	}
	b := p.marshal()
	got, err := parseParameters(b)
	if err != nil {
		t.Fatalf("parseParameters: %v", err)
	}
	if got.InitialMaxData != p.InitialMaxData {
		t.Errorf("InitialMaxData = %d, want %d", got.InitialMaxData, p.InitialMaxData)
	}
	if got.InitialMaxStreamsBidi != p.InitialMaxStreamsBidi {
		t.Errorf("InitialMaxStreamsBidi = %d, want %d", got.InitialMaxStreamsBidi, p.InitialMaxStreamsBidi)
	}
	if !got.DisableActiveMigration {
		t.Errorf("expected DisableActiveMigration to round-trip as true")
	}
	if got.ActiveConnectionIDLimit != p.ActiveConnectionIDLimit {
		t.Errorf("ActiveConnectionIDLimit = %d, want %d", got.ActiveConnectionIDLimit, p.ActiveConnectionIDLimit)
	}
	if string(got.InitialSourceCID) != string(p.InitialSourceCID) {
		t.Errorf("InitialSourceCID = %v, want %v", got.InitialSourceCID, p.InitialSourceCID)
	}
}

func TestParametersDefaultsAppliedWhenOmitted(t *testing.T) {
	p := &Parameters{InitialSourceCID: []byte{}}
	b := p.marshal()
	got, err := parseParameters(b)
	if err != nil {
		t.Fatalf("parseParameters: %v", err)
	}
	if got.AckDelayExponent != 3 {
		t.Errorf("expected default AckDelayExponent 3, got %d", got.AckDelayExponent)
	}
	if got.ActiveConnectionIDLimit != 2 {
		t.Errorf("expected default ActiveConnectionIDLimit 2, got %d", got.ActiveConnectionIDLimit)
	}
	if got.DisableActiveMigration {
		t.Errorf("expected DisableActiveMigration to default to false")
	}
}

func TestParametersPreferredAddressIgnored(t *testing.T) {
	var b []byte
	putParamBytes(&b, paramPreferredAddress, []byte{1, 2, 3})
	putParamBytes(&b, paramInitialSourceCID, nil)
	if _, err := parseParameters(b); err != nil {
		t.Fatalf("expected an unrecognized-but-ignored preferred_address to parse cleanly: %v", err)
	}
}
