package transport

import "fmt"

// MaxCIDLength is the largest connection id permitted by RFC 9000 Section 17.2.
const MaxCIDLength = 20

// MinInitialPacketSize is the minimum UDP payload size of a client Initial
// packet (and any datagram carrying one), RFC 9000 Section 14.1.
const MinInitialPacketSize = 1200

// MaxPacketSize is the largest packet this implementation will ever build,
// independent of what the peer's max_udp_payload_size allows.
const MaxPacketSize = 65527

// minPayloadLength is the minimum length (in bytes) of the packet number
// plus payload, so that header protection sampling (which reads 16 bytes
// starting 4 bytes into the protected region) never reads past the packet.
const minPayloadLength = 20

// retryIntegrityTagLen is the length of the AEAD tag appended to Retry
// packets, RFC 9001 Section 5.8.
const retryIntegrityTagLen = 16

// Frame encoding overhead budgets used when reserving room in a packet
// before the frame's real size is known.
const (
	maxCryptoFrameOverhead = 1 + 8 + 8 // type + offset + length varints
	maxStreamFrameOverhead = 1 + 8 + 8 + 8
)

type packetSpace int

// Packet number spaces, one per encryption level that carries its own
// packet numbers (RFC 9000 Section 12.3). 0-RTT shares the Application
// space's packet numbers; this package does not accept 0-RTT packets.
const (
	packetSpaceInitial packetSpace = iota
	packetSpaceHandshake
	packetSpaceApplication
	packetSpaceCount
)

func (s packetSpace) String() string {
	switch s {
	case packetSpaceInitial:
		return "initial"
	case packetSpaceHandshake:
		return "handshake"
	case packetSpaceApplication:
		return "application"
	default:
		return "unknown"
	}
}

type packetType uint8

const (
	packetTypeInitial packetType = iota
	packetTypeZeroRTT
	packetTypeHandshake
	packetTypeRetry
	packetTypeVersionNegotiation
	packetTypeShort
)

func (t packetType) String() string {
	switch t {
	case packetTypeInitial:
		return "initial"
	case packetTypeZeroRTT:
		return "0RTT"
	case packetTypeHandshake:
		return "handshake"
	case packetTypeRetry:
		return "retry"
	case packetTypeVersionNegotiation:
		return "version_negotiation"
	case packetTypeShort:
		return "1RTT"
	default:
		return "unknown"
	}
}

func packetTypeFromSpace(space packetSpace) packetType {
	switch space {
	case packetSpaceInitial:
		return packetTypeInitial
	case packetSpaceHandshake:
		return packetTypeHandshake
	default:
		return packetTypeShort
	}
}

func spaceFromPacketType(typ packetType) packetSpace {
	switch typ {
	case packetTypeInitial:
		return packetSpaceInitial
	case packetTypeHandshake:
		return packetSpaceHandshake
	default:
		return packetSpaceApplication
	}
}

// longHeaderTypeBits encodes a packetType into the two type bits of a long
// header's first byte, RFC 9000 Section 17.2.
func longHeaderTypeBits(typ packetType) byte {
	switch typ {
	case packetTypeInitial:
		return 0x00
	case packetTypeZeroRTT:
		return 0x10
	case packetTypeHandshake:
		return 0x20
	case packetTypeRetry:
		return 0x30
	}
	return 0
}

func versionSupported(v uint32) bool {
	return v == protocolVersion1
}

const protocolVersion1 = 0x00000001

// ProtocolVersion is the QUIC version number (version 1) this package
// implements, RFC 9000.
const ProtocolVersion = protocolVersion1

// packetHeader carries the fields common to every QUIC packet header.
type packetHeader struct {
	version uint32
	dcid    []byte
	scid    []byte
	dcil    uint8 // expected length of dcid in a short header, set by the caller
}

// packet is a single QUIC packet, either in the process of being parsed off
// the wire or assembled for sending.
type packet struct {
	typ               packetType
	header            packetHeader
	token             []byte
	supportedVersions []uint32
	packetNumber      int64
	payloadLen        int // length of frames (+tag once finalized), used to encode the Length field
	headerLen         int // bytes consumed up to (not including) the protected packet number
	keyPhase          bool // short header only: the phase bit to stamp before header protection
}

func (p *packet) String() string {
	return fmt.Sprintf("type=%s dcid=%x scid=%x pn=%d", p.typ, p.header.dcid, p.header.scid, p.packetNumber)
}

// PeekConnectionID extracts the destination connection id from a datagram
// without fully decoding it, for use by an endpoint demultiplexing incoming
// packets by connection id before a Conn exists to hand them to. shortDCIL
// is the connection id length used for short (1-RTT) headers, since unlike
// long headers they do not encode their own length.
func PeekConnectionID(b []byte, shortDCIL int) ([]byte, bool) {
	if len(b) < 1 {
		return nil, false
	}
	if b[0]&0x80 == 0 {
		n := 1 + shortDCIL
		if len(b) < n {
			return nil, false
		}
		return b[1:n], true
	}
	if len(b) < 6 {
		return nil, false
	}
	dcil := int(b[5])
	off := 6
	if dcil > MaxCIDLength || len(b) < off+dcil {
		return nil, false
	}
	return b[off : off+dcil], true
}

// decodeHeader parses the unprotected portion of a packet header: the form,
// type, version and connection ids. The protected packet number is decoded
// later by packetNumberSpace.decryptPacket once header protection has been
// removed. It returns the number of bytes consumed or a CodecError.
func (p *packet) decodeHeader(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newCodecError(codecErrTruncated, "empty packet")
	}
	first := b[0]
	if first&0x80 == 0 {
		return p.decodeShortHeader(b)
	}
	return p.decodeLongHeader(b, first)
}

func (p *packet) decodeShortHeader(b []byte) (int, error) {
	n := 1 + int(p.header.dcil)
	if len(b) < n {
		return 0, newCodecError(codecErrTruncated, "short header")
	}
	p.typ = packetTypeShort
	p.header.dcid = b[1:n]
	p.headerLen = n
	return n, nil
}

func (p *packet) decodeLongHeader(b []byte, first byte) (int, error) {
	if len(b) < 5 {
		return 0, newCodecError(codecErrTruncated, "long header")
	}
	version := getUint32(b[1:5])
	off := 5
	if off >= len(b) {
		return 0, newCodecError(codecErrTruncated, "long header dcid")
	}
	dcil := int(b[off])
	off++
	if dcil > MaxCIDLength || len(b) < off+dcil {
		return 0, newCodecError(codecErrMalformed, "dcid length")
	}
	dcid := b[off : off+dcil]
	off += dcil
	if off >= len(b) {
		return 0, newCodecError(codecErrTruncated, "long header scid")
	}
	scil := int(b[off])
	off++
	if scil > MaxCIDLength || len(b) < off+scil {
		return 0, newCodecError(codecErrMalformed, "scid length")
	}
	scid := b[off : off+scil]
	off += scil
	p.header.version = version
	p.header.dcid = dcid
	p.header.scid = scid
	if version == 0 {
		p.typ = packetTypeVersionNegotiation
		p.headerLen = off
		return off, nil
	}
	switch (first & 0x30) >> 4 {
	case 0:
		p.typ = packetTypeInitial
	case 1:
		p.typ = packetTypeZeroRTT
	case 2:
		p.typ = packetTypeHandshake
	case 3:
		p.typ = packetTypeRetry
		p.headerLen = off
		return off, nil
	}
	if p.typ == packetTypeInitial {
		var tokenLen uint64
		n := getVarint(b[off:], &tokenLen)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "token length")
		}
		off += n
		if uint64(len(b)-off) < tokenLen {
			return 0, newCodecError(codecErrTruncated, "token")
		}
		p.token = b[off : off+int(tokenLen)]
		off += int(tokenLen)
	}
	var length uint64
	n := getVarint(b[off:], &length)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newCodecError(codecErrTruncated, "payload shorter than length field")
	}
	p.payloadLen = int(length)
	p.headerLen = off
	return off, nil
}

// decodeBody parses the payload of packet types whose body is not
// AEAD-protected: Version Negotiation (list of supported versions) and
// Retry (the contents are validated separately via verifyRetryIntegrity).
func (p *packet) decodeBody(b []byte) (int, error) {
	switch p.typ {
	case packetTypeVersionNegotiation:
		rest := b[p.headerLen:]
		if len(rest)%4 != 0 {
			return 0, newCodecError(codecErrMalformed, "supported versions")
		}
		p.supportedVersions = make([]uint32, 0, len(rest)/4)
		for i := 0; i+4 <= len(rest); i += 4 {
			p.supportedVersions = append(p.supportedVersions, getUint32(rest[i:i+4]))
		}
		return len(rest), nil
	case packetTypeRetry:
		if len(b) < p.headerLen+retryIntegrityTagLen {
			return 0, newCodecError(codecErrTruncated, "retry integrity tag")
		}
		p.token = b[p.headerLen : len(b)-retryIntegrityTagLen]
		return len(b) - p.headerLen, nil
	default:
		return 0, newCodecError(codecErrMalformed, "no unprotected body for this packet type")
	}
}

// encodedLen returns the number of bytes the header (including the packet
// number and the Length varint for long headers) will occupy once encoded.
func (p *packet) encodedLen() int {
	n := 1 // first byte
	if p.typ != packetTypeShort {
		n += 4 // version
		n += 1 + len(p.header.dcid)
		n += 1 + len(p.header.scid)
		if p.typ == packetTypeInitial {
			n += varintLen(uint64(len(p.token))) + len(p.token)
		}
		n += varintLen(uint64(p.payloadLen))
	} else {
		n += len(p.header.dcid)
	}
	n += packetNumberLen(p.packetNumber, p.packetNumber-1)
	return n
}

// encode writes the packet header (with an unprotected packet number; header
// protection is applied afterwards by packetNumberSpace.encryptPacket) and
// returns the offset at which the payload begins.
func (p *packet) encode(b []byte) (int, error) {
	pnLen := packetNumberLen(p.packetNumber, p.packetNumber-1)
	need := p.encodedLen()
	if len(b) < need {
		return 0, newCodecError(codecErrShortBuffer, "packet header")
	}
	off := 0
	if p.typ == packetTypeShort {
		b[0] = 0x40 | byte(pnLen-1)
		if p.keyPhase {
			b[0] |= 0x04
		}
		off = 1
		copy(b[off:], p.header.dcid)
		off += len(p.header.dcid)
	} else {
		b[0] = 0xc0 | longHeaderTypeBits(p.typ) | byte(pnLen-1)
		off = 1
		putUint32(b[off:], p.header.version)
		off += 4
		b[off] = byte(len(p.header.dcid))
		off++
		copy(b[off:], p.header.dcid)
		off += len(p.header.dcid)
		b[off] = byte(len(p.header.scid))
		off++
		copy(b[off:], p.header.scid)
		off += len(p.header.scid)
		if p.typ == packetTypeInitial {
			off += putVarint(b[off:], uint64(len(p.token)))
			copy(b[off:], p.token)
			off += len(p.token)
		}
		off += putVarint(b[off:], uint64(p.payloadLen))
	}
	p.headerLen = off
	putPacketNumber(b[off:], p.packetNumber, pnLen)
	off += pnLen
	return off, nil
}

func putPacketNumber(b []byte, pn int64, pnLen int) {
	switch pnLen {
	case 1:
		b[0] = byte(pn)
	case 2:
		putUint16(b, uint16(pn))
	case 3:
		putUint24(b, uint32(pn))
	case 4:
		putUint32(b, uint32(pn))
	}
}
