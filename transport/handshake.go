package transport

import (
	"context"
	"crypto/tls"
	"time"
)

// tlsHandshake drives the TLS 1.3 handshake using the standard library's
// QUIC-aware crypto/tls.QUICConn (RFC 9001: "QUIC relies on TLS to provide
// authentication and key derivation"). It forwards CRYPTO frame bytes in
// both directions and installs packet-protection keys as TLS derives them.
type tlsHandshake struct {
	conn      *Conn
	tlsConfig *tls.Config
	quic      *tls.QUICConn

	started    bool
	complete   bool
	writeLevel tls.QUICEncryptionLevel

	localParamsBytes []byte
	peerParams       *Parameters

	// appClientSecret and appServerSecret hold the current generation of
	// 1-RTT traffic secrets, kept around so a key update (RFC 9001 Section
	// 6) can derive the next generation without re-running the handshake.
	appClientSecret []byte
	appServerSecret []byte
	appSuite        aeadSuite
}

func (h *tlsHandshake) init(conn *Conn, tlsConfig *tls.Config) {
	h.conn = conn
	h.tlsConfig = tlsConfig
	h.newQUICConn()
}

func (h *tlsHandshake) newQUICConn() {
	cfg := &tls.QUICConfig{TLSConfig: h.tlsConfig}
	if h.conn.isClient {
		h.quic = tls.QUICClient(cfg)
	} else {
		h.quic = tls.QUICServer(cfg)
	}
	h.started = false
	h.complete = false
}

// reset restarts the TLS handshake from scratch after a Retry or Version
// Negotiation packet invalidates everything sent so far.
func (h *tlsHandshake) reset() {
	if h.quic != nil {
		h.quic.Close()
	}
	h.newQUICConn()
}

func (h *tlsHandshake) setTransportParams(p *Parameters) {
	h.localParamsBytes = p.marshal()
	if h.quic != nil {
		h.quic.SetTransportParameters(h.localParamsBytes)
	}
}

// HandshakeComplete reports whether the TLS state machine has finished,
// which in QUIC terms means local 1-RTT keys and the peer's transport
// parameters are both available.
func (h *tlsHandshake) HandshakeComplete() bool {
	return h.complete
}

func (h *tlsHandshake) peerTransportParams() *Parameters {
	return h.peerParams
}

// writeSpace reports the packet number space that should carry a
// PING-only probe or the final CONNECTION_CLOSE, based on the highest
// encryption level TLS has handed us write keys for.
func (h *tlsHandshake) writeSpace() packetSpace {
	return spaceFromQUICLevel(h.writeLevel)
}

// doHandshake drains every pending TLS event: installing keys, copying
// outgoing CRYPTO data into the matching packet number space, and
// recording the peer's transport parameters once they arrive. It is
// called whenever a CRYPTO frame is received and whenever Write()/Read()
// runs, matching crypto/tls.QUICConn's expectation that NextEvent is
// drained to a QUICNoEvent after every state change.
func (h *tlsHandshake) doHandshake() error {
	if h.quic == nil {
		return newError(InternalError, "tls not initialized")
	}
	if !h.started {
		if err := h.quic.Start(context.Background()); err != nil {
			return wrapTLSError(err)
		}
		h.started = true
	}
	for {
		e := h.quic.NextEvent()
		switch e.Kind {
		case tls.QUICNoEvent:
			return nil
		case tls.QUICSetReadSecret:
			space := spaceFromQUICLevel(e.Level)
			suite := suiteFromTLS(e.Suite)
			keys, err := deriveKeys(e.Data, suite)
			if err != nil {
				return err
			}
			h.conn.packetNumberSpaces[space].opener = keys
			if space == packetSpaceApplication {
				h.appSuite = suite
				secret := append([]byte(nil), e.Data...)
				if h.conn.isClient {
					h.appServerSecret = secret
				} else {
					h.appClientSecret = secret
				}
				h.armTrialOpener()
			}
		case tls.QUICSetWriteSecret:
			space := spaceFromQUICLevel(e.Level)
			suite := suiteFromTLS(e.Suite)
			keys, err := deriveKeys(e.Data, suite)
			if err != nil {
				return err
			}
			h.conn.packetNumberSpaces[space].sealer = keys
			if e.Level > h.writeLevel {
				h.writeLevel = e.Level
			}
			if space == packetSpaceApplication {
				h.appSuite = suite
				secret := append([]byte(nil), e.Data...)
				if h.conn.isClient {
					h.appClientSecret = secret
				} else {
					h.appServerSecret = secret
				}
			}
		case tls.QUICWriteData:
			space := spaceFromQUICLevel(e.Level)
			h.conn.packetNumberSpaces[space].cryptoStream.send.write(e.Data)
		case tls.QUICTransportParameters:
			params, err := parseParameters(e.Data)
			if err != nil {
				return newError(TransportParameterError, err.Error())
			}
			h.peerParams = params
		case tls.QUICHandshakeDone:
			h.complete = true
		case tls.QUICTransportParametersRequired:
			h.quic.SetTransportParameters(h.localParamsBytes)
		case tls.QUICRejectedEarlyData:
			// 0-RTT is not offered by this implementation; nothing to undo.
		}
	}
}

// feedCrypto hands received CRYPTO-stream bytes at the given space to TLS.
func (h *tlsHandshake) feedCrypto(space packetSpace, data []byte) error {
	if h.quic == nil {
		return newError(InternalError, "tls not initialized")
	}
	return wrapTLSError(h.quic.HandleData(quicLevelFromSpace(space), data))
}

func spaceFromQUICLevel(level tls.QUICEncryptionLevel) packetSpace {
	switch level {
	case tls.QUICEncryptionLevelInitial:
		return packetSpaceInitial
	case tls.QUICEncryptionLevelHandshake:
		return packetSpaceHandshake
	default:
		return packetSpaceApplication
	}
}

func quicLevelFromSpace(space packetSpace) tls.QUICEncryptionLevel {
	switch space {
	case packetSpaceInitial:
		return tls.QUICEncryptionLevelInitial
	case packetSpaceHandshake:
		return tls.QUICEncryptionLevelHandshake
	default:
		return tls.QUICEncryptionLevelApplication
	}
}

func suiteFromTLS(id uint16) aeadSuite {
	switch id {
	case tls.TLS_AES_256_GCM_SHA384:
		return suiteAES256GCM
	case tls.TLS_CHACHA20_POLY1305_SHA256:
		return suiteChaCha20Poly1305
	default:
		return suiteAES128GCM
	}
}

func (h *tlsHandshake) canRotateAppKeys() bool {
	return h.appClientSecret != nil && h.appServerSecret != nil
}

// armTrialOpener precomputes the opener the peer would use after its next
// key update, so an incoming short header packet with an unexpected key
// phase bit can be tried against it immediately instead of being dropped
// while this endpoint catches up (RFC 9001 Section 6.3).
func (h *tlsHandshake) armTrialOpener() {
	if !h.canRotateAppKeys() {
		return
	}
	recvSecret := h.appServerSecret
	if !h.conn.isClient {
		recvSecret = h.appClientSecret
	}
	next := updateTrafficSecret(hashForSuite(h.appSuite), recvSecret)
	keys, err := deriveKeys(next, h.appSuite)
	if err != nil {
		return
	}
	h.conn.packetNumberSpaces[packetSpaceApplication].trialOpener = keys
}

// advanceRecvSecret moves this endpoint's record of the peer's traffic
// secret forward one key update generation, independent of the send side,
// to match a key update the peer initiated.
func (h *tlsHandshake) advanceRecvSecret() {
	hashFn := hashForSuite(h.appSuite)
	if h.conn.isClient {
		h.appServerSecret = updateTrafficSecret(hashFn, h.appServerSecret)
	} else {
		h.appClientSecret = updateTrafficSecret(hashFn, h.appClientSecret)
	}
}

// rotateAppKeys advances both directions of 1-RTT keys to the next
// generation when this endpoint initiates a key update (Conn.UpdateKeys). A
// peer-initiated update is handled on receive by advanceRecvSecret and
// armTrialOpener instead.
func (h *tlsHandshake) rotateAppKeys(now time.Time) error {
	if !h.canRotateAppKeys() {
		return newError(InternalError, "1-RTT keys not installed")
	}
	pnSpace := &h.conn.packetNumberSpaces[packetSpaceApplication]
	if err := pnSpace.updateKeys(h.appClientSecret, h.appServerSecret, h.appSuite, h.conn.isClient, now); err != nil {
		return err
	}
	hashFn := hashForSuite(h.appSuite)
	h.appClientSecret = updateTrafficSecret(hashFn, h.appClientSecret)
	h.appServerSecret = updateTrafficSecret(hashFn, h.appServerSecret)
	h.armTrialOpener()
	return nil
}

func wrapTLSError(err error) error {
	if err == nil {
		return nil
	}
	if alert, ok := err.(tls.AlertError); ok {
		return newError(CryptoError+uint64(alert), err.Error())
	}
	return newError(CryptoError, err.Error())
}
