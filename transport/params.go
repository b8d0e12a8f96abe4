package transport

import "time"

// Transport parameter identifiers, RFC 9000 Section 18.2.
const (
	paramOriginalDestinationCID         = 0x00
	paramMaxIdleTimeout                 = 0x01
	paramStatelessResetToken            = 0x02
	paramMaxUDPPayloadSize              = 0x03
	paramInitialMaxData                 = 0x04
	paramInitialMaxStreamDataBidiLocal  = 0x05
	paramInitialMaxStreamDataBidiRemote = 0x06
	paramInitialMaxStreamDataUni        = 0x07
	paramInitialMaxStreamsBidi          = 0x08
	paramInitialMaxStreamsUni           = 0x09
	paramAckDelayExponent               = 0x0a
	paramMaxAckDelay                    = 0x0b
	paramDisableActiveMigration         = 0x0c
	paramPreferredAddress               = 0x0d
	paramActiveConnectionIDLimit        = 0x0e
	paramInitialSourceCID               = 0x0f
	paramRetrySourceCID                 = 0x10
)

// Parameters holds the transport parameters exchanged in the TLS
// quic_transport_parameters extension (codepoint 0x39, RFC 9001 Section
// 8.2), used to negotiate flow-control limits, stream limits, idle
// timeouts and connection id policy before either side commits to them.
type Parameters struct {
	OriginalDestinationCID []byte
	MaxIdleTimeout         time.Duration
	StatelessResetToken    []byte
	MaxUDPPayloadSize      uint64
	InitialMaxData         uint64

	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64

	InitialMaxStreamsBidi uint64
	InitialMaxStreamsUni  uint64

	AckDelayExponent uint64
	MaxAckDelay      time.Duration

	DisableActiveMigration bool

	ActiveConnectionIDLimit uint64
	InitialSourceCID        []byte
	RetrySourceCID          []byte
}

// defaultParameters returns the values RFC 9000 Section 18.2 specifies as
// defaults for any parameter the peer omits, plus the conservative minimums
// this implementation actually runs with when a caller builds a Config
// without filling every field in.
func defaultParameters() Parameters {
	return Parameters{
		MaxUDPPayloadSize:        65527,
		AckDelayExponent:         3,
		MaxAckDelay:              25 * time.Millisecond,
		ActiveConnectionIDLimit:  2,
		InitialMaxStreamsBidi:    0,
		InitialMaxStreamsUni:     0,
	}
}

func putParamVarint(b *[]byte, id uint64, v uint64) {
	var tmp [8]byte
	n := putVarint(tmp[:], v)
	putParamBytes(b, id, tmp[:n])
}

func putParamBytes(b *[]byte, id uint64, v []byte) {
	var tmp [8]byte
	n := putVarint(tmp[:], id)
	*b = append(*b, tmp[:n]...)
	n = putVarint(tmp[:], uint64(len(v)))
	*b = append(*b, tmp[:n]...)
	*b = append(*b, v...)
}

// marshal encodes the parameters in the TLV format of RFC 9000 Section
// 18.1, omitting any parameter left zero or empty. Nonzero values are sent
// even where they equal the protocol default.
func (p *Parameters) marshal() []byte {
	var b []byte
	if len(p.OriginalDestinationCID) > 0 {
		putParamBytes(&b, paramOriginalDestinationCID, p.OriginalDestinationCID)
	}
	if p.MaxIdleTimeout > 0 {
		putParamVarint(&b, paramMaxIdleTimeout, uint64(p.MaxIdleTimeout/time.Millisecond))
	}
	if len(p.StatelessResetToken) > 0 {
		putParamBytes(&b, paramStatelessResetToken, p.StatelessResetToken)
	}
	if p.MaxUDPPayloadSize > 0 {
		putParamVarint(&b, paramMaxUDPPayloadSize, p.MaxUDPPayloadSize)
	}
	if p.InitialMaxData > 0 {
		putParamVarint(&b, paramInitialMaxData, p.InitialMaxData)
	}
	if p.InitialMaxStreamDataBidiLocal > 0 {
		putParamVarint(&b, paramInitialMaxStreamDataBidiLocal, p.InitialMaxStreamDataBidiLocal)
	}
	if p.InitialMaxStreamDataBidiRemote > 0 {
		putParamVarint(&b, paramInitialMaxStreamDataBidiRemote, p.InitialMaxStreamDataBidiRemote)
	}
	if p.InitialMaxStreamDataUni > 0 {
		putParamVarint(&b, paramInitialMaxStreamDataUni, p.InitialMaxStreamDataUni)
	}
	if p.InitialMaxStreamsBidi > 0 {
		putParamVarint(&b, paramInitialMaxStreamsBidi, p.InitialMaxStreamsBidi)
	}
	if p.InitialMaxStreamsUni > 0 {
		putParamVarint(&b, paramInitialMaxStreamsUni, p.InitialMaxStreamsUni)
	}
	if p.AckDelayExponent > 0 {
		putParamVarint(&b, paramAckDelayExponent, p.AckDelayExponent)
	}
	if p.MaxAckDelay > 0 {
		putParamVarint(&b, paramMaxAckDelay, uint64(p.MaxAckDelay/time.Millisecond))
	}
	if p.DisableActiveMigration {
		putParamBytes(&b, paramDisableActiveMigration, nil)
	}
	if p.ActiveConnectionIDLimit > 0 {
		putParamVarint(&b, paramActiveConnectionIDLimit, p.ActiveConnectionIDLimit)
	}
	// InitialSourceCID must always be sent, even if empty-length (RFC 9000
	// Section 18.2 lists it without a default).
	putParamBytes(&b, paramInitialSourceCID, p.InitialSourceCID)
	if len(p.RetrySourceCID) > 0 || p.RetrySourceCID != nil {
		putParamBytes(&b, paramRetrySourceCID, p.RetrySourceCID)
	}
	return b
}

// parseParameters decodes the TLV-encoded transport parameters received
// from the peer via the TLS extension.
func parseParameters(b []byte) (*Parameters, error) {
	p := &Parameters{}
	for len(b) > 0 {
		var id, length uint64
		n := getVarint(b, &id)
		if n == 0 {
			return nil, newCodecError(codecErrTruncated, "parameter id")
		}
		b = b[n:]
		n = getVarint(b, &length)
		if n == 0 {
			return nil, newCodecError(codecErrTruncated, "parameter length")
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return nil, newCodecError(codecErrTruncated, "parameter value")
		}
		v := b[:length]
		b = b[length:]
		switch id {
		case paramOriginalDestinationCID:
			p.OriginalDestinationCID = append([]byte(nil), v...)
		case paramMaxIdleTimeout:
			p.MaxIdleTimeout = time.Duration(decodeParamVarint(v)) * time.Millisecond
		case paramStatelessResetToken:
			p.StatelessResetToken = append([]byte(nil), v...)
		case paramMaxUDPPayloadSize:
			p.MaxUDPPayloadSize = decodeParamVarint(v)
		case paramInitialMaxData:
			p.InitialMaxData = decodeParamVarint(v)
		case paramInitialMaxStreamDataBidiLocal:
			p.InitialMaxStreamDataBidiLocal = decodeParamVarint(v)
		case paramInitialMaxStreamDataBidiRemote:
			p.InitialMaxStreamDataBidiRemote = decodeParamVarint(v)
		case paramInitialMaxStreamDataUni:
			p.InitialMaxStreamDataUni = decodeParamVarint(v)
		case paramInitialMaxStreamsBidi:
			p.InitialMaxStreamsBidi = decodeParamVarint(v)
		case paramInitialMaxStreamsUni:
			p.InitialMaxStreamsUni = decodeParamVarint(v)
		case paramAckDelayExponent:
			p.AckDelayExponent = decodeParamVarint(v)
		case paramMaxAckDelay:
			p.MaxAckDelay = time.Duration(decodeParamVarint(v)) * time.Millisecond
		case paramDisableActiveMigration:
			p.DisableActiveMigration = true
		case paramActiveConnectionIDLimit:
			p.ActiveConnectionIDLimit = decodeParamVarint(v)
		case paramInitialSourceCID:
			p.InitialSourceCID = append([]byte(nil), v...)
		case paramRetrySourceCID:
			p.RetrySourceCID = append([]byte(nil), v...)
		case paramPreferredAddress:
			// Preferred address migration is not offered by this
			// implementation; the parameter is accepted but ignored.
		}
	}
	if p.AckDelayExponent == 0 {
		p.AckDelayExponent = 3
	}
	if p.ActiveConnectionIDLimit == 0 {
		p.ActiveConnectionIDLimit = 2
	}
	return p, nil
}

func decodeParamVarint(v []byte) uint64 {
	var out uint64
	getVarint(v, &out)
	return out
}
