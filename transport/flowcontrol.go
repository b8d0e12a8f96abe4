package transport

// flowControl tracks one direction pair of byte-accounting limits: how much
// more the peer may send us (recv side) and how much more we may send the
// peer (send side). The same type backs both the connection-wide flow
// controller and each stream's flow controller (Data Model Section 3,
// "per-stream flow-control limits max_data_sent/max_data_recvd").
type flowControl struct {
	maxRecv     uint64 // limit we have advertised to the peer
	maxRecvNext uint64 // candidate limit once the window auto-extends
	recvOffset  uint64 // cumulative bytes received

	maxSend    uint64 // limit the peer has advertised to us
	sendOffset uint64 // cumulative bytes sent
}

func (f *flowControl) init(maxRecv, maxSend uint64) {
	f.maxRecv = maxRecv
	f.maxRecvNext = maxRecv
	f.maxSend = maxSend
}

// canRecv returns how many more bytes may be received before the peer
// would violate the advertised limit.
func (f *flowControl) canRecv() uint64 {
	if f.recvOffset >= f.maxRecv {
		return 0
	}
	return f.maxRecv - f.recvOffset
}

// addRecv records n freshly received bytes and, once half of the current
// window has been consumed, computes a new candidate limit so that a
// MAX_DATA/MAX_STREAM_DATA update stays ahead of the sender (Section 4.6:
// "auto-extends limits when the consumed prefix crosses half of the
// previously granted window").
func (f *flowControl) addRecv(n int) {
	f.recvOffset += uint64(n)
	if f.recvOffset >= f.maxRecv/2 && f.maxRecvNext <= f.maxRecv {
		f.maxRecvNext = f.maxRecv + f.maxRecv/2 + uint64(n)
	}
}

// shouldUpdateMaxRecv reports whether a new MAX_DATA/MAX_STREAM_DATA is due.
func (f *flowControl) shouldUpdateMaxRecv() bool {
	return f.maxRecvNext > f.maxRecv
}

// commitMaxRecv is called once the MAX_DATA/MAX_STREAM_DATA frame carrying
// maxRecvNext has been placed into an outgoing packet.
func (f *flowControl) commitMaxRecv() {
	f.maxRecv = f.maxRecvNext
}

// setMaxSend installs a (possibly higher) limit advertised by the peer via
// MAX_DATA/MAX_STREAM_DATA. Limits never regress (RFC 9000 Section 4).
func (f *flowControl) setMaxSend(max uint64) {
	if max > f.maxSend {
		f.maxSend = max
	}
}

// canSend returns how many more bytes may be sent before hitting the peer's
// advertised limit.
func (f *flowControl) canSend() uint64 {
	if f.sendOffset >= f.maxSend {
		return 0
	}
	return f.maxSend - f.sendOffset
}

func (f *flowControl) addSend(n int) {
	f.sendOffset += uint64(n)
}

// blocked reports whether the window allows fewer than want more bytes,
// which is when a DATA_BLOCKED/STREAM_DATA_BLOCKED frame should be queued.
func (f *flowControl) blocked(want uint64) bool {
	return f.canSend() < want
}
