package transport

import (
	"testing"
	"time"
)

func testAppSpacePair(t *testing.T) (client, server *packetNumberSpace, clientSecret, serverSecret []byte) {
	t.Helper()
	clientSecret = make([]byte, 32)
	serverSecret = make([]byte, 32)
	for i := range clientSecret {
		clientSecret[i] = byte(i + 1)
	}
	for i := range serverSecret {
		serverSecret[i] = byte(i + 100)
	}
	client = &packetNumberSpace{}
	server = &packetNumberSpace{}
	client.init()
	server.init()

	clientOpener, err := deriveKeys(serverSecret, suiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys: %v", err)
	}
	clientSealer, err := deriveKeys(clientSecret, suiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys: %v", err)
	}
	client.opener, client.sealer = clientOpener, clientSealer

	serverOpener, err := deriveKeys(clientSecret, suiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys: %v", err)
	}
	serverSealer, err := deriveKeys(serverSecret, suiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys: %v", err)
	}
	server.opener, server.sealer = serverOpener, serverSealer
	return client, server, clientSecret, serverSecret
}

func TestUpdateKeysFlipsPhaseAndRetainsOldOpener(t *testing.T) {
	client, _, clientSecret, serverSecret := testAppSpacePair(t)
	now := time.Unix(0, 0)
	prevOpener := client.opener

	if err := client.updateKeys(clientSecret, serverSecret, suiteAES128GCM, true, now); err != nil {
		t.Fatalf("updateKeys: %v", err)
	}
	if !client.keyPhase {
		t.Fatalf("expected key phase to flip after updateKeys")
	}
	if client.oldOpener != prevOpener {
		t.Fatalf("expected the previous opener to be retained as oldOpener")
	}
	if client.opener == prevOpener {
		t.Fatalf("expected a new opener to be installed")
	}
}

func TestDiscardOldKeysAfterThreePTOs(t *testing.T) {
	s := &packetNumberSpace{}
	s.init()
	s.oldOpener = &packetKeys{}
	s.keyUpdatedAt = time.Unix(0, 0)

	s.discardOldKeys(time.Unix(0, 0).Add(time.Second), time.Second)
	if s.oldOpener == nil {
		t.Fatalf("old opener should still be retained within the 3-PTO window")
	}

	s.discardOldKeys(time.Unix(0, 0).Add(4*time.Second), time.Second)
	if s.oldOpener != nil {
		t.Fatalf("expected old opener to be discarded past the 3-PTO window")
	}
}

func TestOnAckElicitingPacketReceivedArmsTimerThenThreshold(t *testing.T) {
	s := &packetNumberSpace{}
	s.init()
	now := time.Unix(0, 0)
	maxAckDelay := 25 * time.Millisecond

	s.onAckElicitingPacketReceived(now, maxAckDelay)
	if s.ackElicited {
		t.Fatalf("expected no ACK due yet after a single ack-eliciting packet")
	}
	if s.ackTimer.IsZero() || !s.ackTimer.Equal(now.Add(maxAckDelay)) {
		t.Fatalf("expected the max_ack_delay timer to be armed at %v, got %v", now.Add(maxAckDelay), s.ackTimer)
	}

	s.onAckElicitingPacketReceived(now.Add(time.Millisecond), maxAckDelay)
	if !s.ackElicited {
		t.Fatalf("expected an ACK to be due once the threshold of %d is reached", ackElicitingThreshold)
	}

	s.ackSent()
	if s.ackElicited || s.ackElicitingCount != 0 || !s.ackTimer.IsZero() {
		t.Fatalf("expected ackSent to clear the counter, flag, and timer")
	}
}

func TestOnAckElicitingPacketReceivedTimerAloneSchedulesAck(t *testing.T) {
	s := &packetNumberSpace{}
	s.init()
	now := time.Unix(0, 0)
	s.onAckElicitingPacketReceived(now, 25*time.Millisecond)
	if s.ackElicited {
		t.Fatalf("expected no ACK due before the threshold or the timer fires")
	}
	// Simulate Conn.checkTimeout firing once the deadline has passed.
	if !s.ackTimer.IsZero() && !now.Add(30*time.Millisecond).Before(s.ackTimer) {
		s.ackElicited = true
	}
	if !s.ackElicited {
		t.Fatalf("expected the max_ack_delay timer to schedule an ACK on its own")
	}
}

func TestPromotePeerKeyUpdateAdvancesReceiveSecretOnly(t *testing.T) {
	_, _, clientSecret, serverSecret := testAppSpacePair(t)
	conn := &Conn{isClient: true}
	conn.packetNumberSpaces[packetSpaceApplication].init()
	space := &conn.packetNumberSpaces[packetSpaceApplication]
	hs := &tlsHandshake{conn: conn, appSuite: suiteAES128GCM, appClientSecret: clientSecret, appServerSecret: serverSecret}
	space.hs = hs

	hs.armTrialOpener()
	if space.trialOpener == nil {
		t.Fatalf("expected armTrialOpener to precompute a trial opener")
	}

	prevServerSecret := append([]byte(nil), hs.appServerSecret...)

	space.promotePeerKeyUpdate(time.Unix(0, 0))

	if !space.keyPhase {
		t.Fatalf("expected key phase to flip on promotion")
	}
	if space.trialOpener == nil {
		t.Fatalf("expected a fresh trial opener to be armed for the next generation")
	}
	if string(hs.appServerSecret) == string(prevServerSecret) {
		t.Fatalf("expected the peer's (server) secret to advance a generation")
	}
	if string(hs.appClientSecret) != string(clientSecret) {
		t.Fatalf("expected this endpoint's own (client) send secret to be untouched by a peer-initiated update")
	}
}
