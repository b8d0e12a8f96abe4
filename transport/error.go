package transport

import "fmt"

// Transport error codes defined in RFC 9000 Section 20.1.
const (
	NoError                  = 0x0
	InternalError            = 0x1
	ConnectionRefused        = 0x2
	FlowControlError         = 0x3
	StreamLimitError         = 0x4
	StreamStateError         = 0x5
	FinalSizeError           = 0x6
	FrameEncodingError       = 0x7
	TransportParameterError  = 0x8
	ConnectionIDLimitError   = 0x9
	ProtocolViolation        = 0xa
	InvalidToken             = 0xb
	ApplicationError         = 0xc
	CryptoBufferExceeded     = 0xd
	KeyUpdateError           = 0xe
	AEADLimitReached         = 0xf
	NoViablePath             = 0x10
	// CryptoError is the base of the range reserved for carrying a TLS
	// alert: the transport error code is CryptoError + alert code.
	CryptoError = 0x100
)

// Error is a QUIC transport-level error, suitable for sending in a
// CONNECTION_CLOSE frame of type 0x1c.
type Error struct {
	Code   uint64
	Reason string
}

func newError(code uint64, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return errorCodeString(e.Code)
	}
	return fmt.Sprintf("%s: %s", errorCodeString(e.Code), e.Reason)
}

var errorCodeNames = map[uint64]string{
	NoError:                 "no_error",
	InternalError:           "internal_error",
	ConnectionRefused:       "connection_refused",
	FlowControlError:        "flow_control_error",
	StreamLimitError:        "stream_limit_error",
	StreamStateError:        "stream_state_error",
	FinalSizeError:          "final_size_error",
	FrameEncodingError:      "frame_encoding_error",
	TransportParameterError: "transport_parameter_error",
	ConnectionIDLimitError:  "connection_id_limit_error",
	ProtocolViolation:       "protocol_violation",
	InvalidToken:            "invalid_token",
	ApplicationError:        "application_error",
	CryptoBufferExceeded:    "crypto_buffer_exceeded",
	KeyUpdateError:          "key_update_error",
	AEADLimitReached:        "aead_limit_reached",
	NoViablePath:            "no_viable_path",
}

// errorCodeString renders a transport error code the way qlog does,
// e.g. "protocol_violation" or "crypto_error_42".
func errorCodeString(code uint64) string {
	if code >= CryptoError && code < CryptoError+0x100 {
		return fmt.Sprintf("crypto_error_%d", code-CryptoError)
	}
	if name, ok := errorCodeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown_error_%d", code)
}

var (
	errInvalidToken    = newError(InvalidToken, "invalid retry token")
	errFlowControl     = newError(FlowControlError, "flow control limit exceeded")
	errShortBuffer     = newError(InternalError, "short buffer")
	errKeyUnavailable  = newError(InternalError, "keys not available for encryption level")
	errDecryptFailed   = newError(InternalError, "packet protection decrypt failed")
	errFinalSize       = newError(FinalSizeError, "final size mismatch")
	errStreamLimit     = newError(StreamLimitError, "stream limit exceeded")
	errCIDLimit        = newError(ConnectionIDLimitError, "active_connection_id_limit exceeded")
	errCIDInUse        = newError(ProtocolViolation, "retire_prior_to retires a connection id still in use")
	errStreamClosed    = newError(StreamStateError, "stream closed for reading")
)
