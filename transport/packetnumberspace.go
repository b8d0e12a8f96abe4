package transport

import "time"

// packetNumberSpace holds everything that is scoped to one of the three
// packet number spaces (RFC 9000 Section 12.3): its own packet number
// counter, its own ACK bookkeeping, its own keys, and (for Initial and
// Handshake) the CRYPTO stream carrying that level's TLS messages.
type packetNumberSpace struct {
	nextPacketNumber int64

	opener *packetKeys // keys used to remove protection from received packets
	sealer *packetKeys // keys used to apply protection to sent packets

	// oldOpener retains the previous generation of 1-RTT keys for the
	// duration allowed after a key update, RFC 9001 Section 6.1, so that
	// packets reordered across the update boundary still decrypt.
	oldOpener  *packetKeys
	keyPhase   bool
	keyUpdatedAt time.Time

	// trialOpener holds the keys for the next key phase, precomputed so a
	// peer-initiated key update can be recognized and decrypted on the
	// first packet that uses it rather than dropped.
	trialOpener *packetKeys
	hs          *tlsHandshake

	recvPacketNeedAck    rangeSet // packet numbers received but not yet acked
	ackElicited          bool     // an ACK is due now, either by threshold or by timer
	ackElicitingCount    int      // ack-eliciting packets received since the last ACK was sent
	ackTimer             time.Time // max_ack_delay deadline; zero when disarmed
	largestRecvPacketNum int64
	largestRecvPacketTime time.Time
	firstPacketAcked     bool

	// acked by peer: used to discard state for packets no longer relevant
	// to loss detection once they are acknowledged.
	ackedPacketNumbers rangeSet

	cryptoStream stream
}

func (s *packetNumberSpace) init() {
	s.nextPacketNumber = 0
	s.largestRecvPacketNum = -1
	s.cryptoStream.init(false)
}

// ready reports whether this space has keys installed in both directions.
func (s *packetNumberSpace) ready() bool {
	return s.opener != nil && s.sealer != nil
}

func (s *packetNumberSpace) canDecrypt() bool {
	return s.opener != nil
}

func (s *packetNumberSpace) canEncrypt() bool {
	return s.sealer != nil
}

// drop discards all keys and buffered state for this space, e.g. once the
// handshake completes and Initial/Handshake keys are no longer needed
// (RFC 9001 Section 4.9).
func (s *packetNumberSpace) drop() {
	s.opener = nil
	s.sealer = nil
	s.oldOpener = nil
	s.trialOpener = nil
	s.recvPacketNeedAck = nil
	s.ackedPacketNumbers = nil
	s.ackElicited = false
	s.ackElicitingCount = 0
	s.ackTimer = time.Time{}
}

func (s *packetNumberSpace) isPacketReceived(pn int64) bool {
	return s.recvPacketNeedAck.contains(uint64(pn)) || s.ackedPacketNumbers.contains(uint64(pn))
}

// onPacketReceived records pn as received and due an acknowledgement, and
// tracks the largest packet number/time seen for ACK delay computation
// (RFC 9000 Section 13.2.3).
func (s *packetNumberSpace) onPacketReceived(pn int64, now time.Time) {
	s.recvPacketNeedAck.push(uint64(pn), uint64(pn)+1)
	if pn > s.largestRecvPacketNum {
		s.largestRecvPacketNum = pn
		s.largestRecvPacketTime = now
	}
}

// ackElicitingThreshold is the number of ack-eliciting packets received
// since the last ACK was sent that forces an ACK to be scheduled
// immediately, rather than waiting for the max_ack_delay timer.
const ackElicitingThreshold = 2

// onAckElicitingPacketReceived arms the max_ack_delay timer on the first
// ack-eliciting packet since the last ACK, and schedules an ACK once
// ackElicitingThreshold packets have accumulated.
func (s *packetNumberSpace) onAckElicitingPacketReceived(now time.Time, maxAckDelay time.Duration) {
	s.ackElicitingCount++
	if s.ackTimer.IsZero() {
		s.ackTimer = now.Add(maxAckDelay)
	}
	if s.ackElicitingCount >= ackElicitingThreshold {
		s.ackElicited = true
	}
}

// ackSent clears the threshold counter and disarms the max_ack_delay timer
// once an ACK carrying recvPacketNeedAck has actually been sent.
func (s *packetNumberSpace) ackSent() {
	s.ackElicited = false
	s.ackElicitingCount = 0
	s.ackTimer = time.Time{}
}

// decryptPacket removes header protection and then AEAD protection from a
// received packet in place. p must already have its unprotected header
// fields (headerLen, and for long headers payloadLen) populated by
// packet.decodeHeader. It fills in p.packetNumber and returns the decrypted
// payload along with the total number of bytes this packet occupies in b.
func (s *packetNumberSpace) decryptPacket(b []byte, p *packet, now time.Time) ([]byte, int, error) {
	if s.opener == nil {
		return nil, 0, errKeyUnavailable
	}
	pktNumOffset := p.headerLen
	payloadLen := p.payloadLen
	if p.typ == packetTypeShort {
		payloadLen = len(b) - pktNumOffset
	}
	largestAcked := s.largestRecvPacketNum
	if pktNumOffset+4+16 > len(b) {
		return nil, 0, newCodecError(codecErrTruncated, "header protection sample")
	}
	sample := b[pktNumOffset+4 : pktNumOffset+4+16]
	mask, err := s.opener.headerProtectionMask(sample)
	if err != nil {
		return nil, 0, err
	}
	if b[0]&0x80 != 0 {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	pnLen := int(b[0]&0x03) + 1
	for i := 0; i < pnLen; i++ {
		b[pktNumOffset+i] ^= mask[1+i]
	}
	var truncated uint32
	switch pnLen {
	case 1:
		truncated = uint32(b[pktNumOffset])
	case 2:
		truncated = uint32(getUint16(b[pktNumOffset:]))
	case 3:
		truncated = getUint24(b[pktNumOffset:])
	case 4:
		truncated = getUint32(b[pktNumOffset:])
	}
	pn := decodePacketNumber(largestAcked, truncated, pnLen)

	headerEnd := pktNumOffset + pnLen
	cipherEnd := pktNumOffset + payloadLen
	if cipherEnd > len(b) {
		return nil, 0, newCodecError(codecErrTruncated, "payload")
	}
	associatedData := b[:headerEnd]
	ciphertext := b[headerEnd:cipherEnd]

	// The key phase bit in a short header (RFC 9001 Section 6.3) is only
	// meaningful once 1-RTT keys are in use; header protection keys never
	// rotate, only the packet protection keys picked below do.
	updatedPhase := p.typ == packetTypeShort && (b[0]&0x04 != 0) != s.keyPhase

	opener := s.opener
	if updatedPhase {
		opener = s.trialOpener
	}
	if opener == nil {
		return nil, 0, errKeyUnavailable
	}
	nonce := opener.nonce(pn)
	plain, err := opener.aead.Open(ciphertext[:0], nonce, ciphertext, associatedData)
	if err != nil && !updatedPhase && s.oldOpener != nil {
		nonce = s.oldOpener.nonce(pn)
		plain, err = s.oldOpener.aead.Open(ciphertext[:0], nonce, ciphertext, associatedData)
	}
	if err == nil && updatedPhase && s.hs != nil {
		s.promotePeerKeyUpdate(now)
	}
	if err != nil {
		return nil, 0, errDecryptFailed
	}
	p.packetNumber = pn
	return plain, cipherEnd, nil
}

// reset clears packet-number and ACK bookkeeping for this space while
// leaving any already-installed keys untouched; used when a Retry or
// Version Negotiation packet forces the Initial space to restart (RFC 9000
// Sections 7.3 and 6).
func (s *packetNumberSpace) reset() {
	s.nextPacketNumber = 0
	s.largestRecvPacketNum = -1
	s.largestRecvPacketTime = time.Time{}
	s.recvPacketNeedAck = nil
	s.ackedPacketNumbers = nil
	s.ackElicited = false
	s.ackElicitingCount = 0
	s.ackTimer = time.Time{}
	s.cryptoStream = stream{}
}

// encryptPacket applies AEAD protection followed by header protection to a
// packet whose plaintext frames have already been written into
// b[p.headerLen+pnLen : len(b)-tagLen], with the tag-sized tail reserved by
// the caller. p.headerLen is the offset of the (still unprotected) packet
// number, as left by packet.encode.
func (s *packetNumberSpace) encryptPacket(b []byte, p *packet) (int, error) {
	if s.sealer == nil {
		return 0, errKeyUnavailable
	}
	pnOffset := p.headerLen
	pnLen := packetNumberLen(p.packetNumber, p.packetNumber-1)
	headerEnd := pnOffset + pnLen
	tagLen := s.sealer.aead.Overhead()
	if headerEnd+tagLen > len(b) {
		return 0, newCodecError(codecErrShortBuffer, "packet payload")
	}
	plain := b[headerEnd : len(b)-tagLen]
	nonce := s.sealer.nonce(p.packetNumber)
	associatedData := b[:headerEnd]
	out := s.sealer.aead.Seal(plain[:0], nonce, plain, associatedData)
	total := headerEnd + len(out)
	copy(b[headerEnd:total], out)

	if pnOffset+4+16 > total {
		return 0, newCodecError(codecErrShortBuffer, "header protection sample")
	}
	sample := b[pnOffset+4 : pnOffset+4+16]
	mask, err := s.sealer.headerProtectionMask(sample)
	if err != nil {
		return 0, err
	}
	if b[0]&0x80 != 0 {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
	return total, nil
}

// updateKeys rotates to the next generation of 1-RTT keys, RFC 9001
// Section 6. It also flips keyPhase, which is stamped on outgoing short
// headers from then on.
func (s *packetNumberSpace) updateKeys(clientSecret, serverSecret []byte, suite aeadSuite, isClient bool, now time.Time) error {
	hashFn := hashForSuite(suite)
	nextClient := updateTrafficSecret(hashFn, clientSecret)
	nextServer := updateTrafficSecret(hashFn, serverSecret)
	var recvSecret, sendSecret []byte
	if isClient {
		sendSecret, recvSecret = nextClient, nextServer
	} else {
		sendSecret, recvSecret = nextServer, nextClient
	}
	sealer, err := deriveKeys(sendSecret, suite)
	if err != nil {
		return err
	}
	opener, err := deriveKeys(recvSecret, suite)
	if err != nil {
		return err
	}
	s.oldOpener = s.opener
	s.opener = opener
	s.sealer = sealer
	s.keyPhase = !s.keyPhase
	s.keyUpdatedAt = now
	return nil
}

// promotePeerKeyUpdate commits a key update the peer initiated: the trial
// opener that just decrypted a packet becomes current, and a fresh trial is
// armed for the generation after that. Unlike updateKeys this only advances
// the receive direction; this endpoint's own send keys are rotated
// independently, if and when it chooses to initiate its own update.
func (s *packetNumberSpace) promotePeerKeyUpdate(now time.Time) {
	s.oldOpener = s.opener
	s.opener = s.trialOpener
	s.trialOpener = nil
	s.keyPhase = !s.keyPhase
	s.keyUpdatedAt = now
	if s.hs != nil {
		s.hs.advanceRecvSecret()
		s.hs.armTrialOpener()
	}
}

// discardOldKeys drops the previous key generation once more than three
// PTOs have passed since the update (RFC 9001 Section 6.1). Whether packets
// sent before the update have been acknowledged is not considered.
func (s *packetNumberSpace) discardOldKeys(now time.Time, pto time.Duration) {
	if s.oldOpener != nil && now.Sub(s.keyUpdatedAt) > 3*pto {
		s.oldOpener = nil
	}
}
