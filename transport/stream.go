package transport

import (
	"fmt"
)

// pendingChunk is a previously-sent range of stream data that was declared
// lost and must be retransmitted ahead of any new data (Section 4.6,
// "retransmission takes priority over new data on the same stream").
type pendingChunk struct {
	data   []byte
	offset uint64
	fin    bool
}

// sendBuffer is the outgoing half of a stream or CRYPTO buffer: an
// append-only byte queue with an offset cursor that tracks what has been
// sent, what has been acknowledged, and what must be resent after loss.
type sendBuffer struct {
	data       []byte // unacked+unsent bytes, data[0] is at offset dataOffset
	dataOffset uint64
	length     uint64 // total bytes ever written (== end offset of data once flushed)
	sendOffset uint64 // offset of the next unsent byte

	fin      bool
	finOffset uint64
	finSent  bool
	finAcked bool

	acked  rangeSet
	resend []pendingChunk
}

func (b *sendBuffer) write(p []byte) int {
	b.data = append(b.data, p...)
	b.length += uint64(len(p))
	return len(p)
}

func (b *sendBuffer) close() {
	if !b.fin {
		b.fin = true
		b.finOffset = b.length
	}
}

// complete reports whether every byte, including FIN, has been acked.
func (b *sendBuffer) complete() bool {
	return b.fin && b.finAcked
}

// push re-queues previously sent data for retransmission after it was
// declared lost by the recovery loop.
func (b *sendBuffer) push(data []byte, offset uint64, fin bool) error {
	if len(data) == 0 && !fin {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.resend = append(b.resend, pendingChunk{data: cp, offset: offset, fin: fin})
	return nil
}

// popSend returns up to max bytes of data to place into an outgoing STREAM
// or CRYPTO frame, preferring queued retransmissions over new data.
func (b *sendBuffer) popSend(max int) ([]byte, uint64, bool) {
	if max <= 0 {
		return nil, 0, false
	}
	if len(b.resend) > 0 {
		c := b.resend[0]
		if len(c.data) <= max {
			b.resend = b.resend[1:]
			return c.data, c.offset, c.fin
		}
		part := c.data[:max]
		b.resend[0] = pendingChunk{data: c.data[max:], offset: c.offset + uint64(max), fin: c.fin}
		return part, c.offset, false
	}
	avail := b.length - b.sendOffset
	if avail == 0 {
		if b.fin && !b.finSent && b.sendOffset == b.finOffset {
			b.finSent = true
			return []byte{}, b.sendOffset, true
		}
		return nil, 0, false
	}
	n := uint64(max)
	if n > avail {
		n = avail
	}
	start := b.sendOffset - b.dataOffset
	data := b.data[start : start+n]
	offset := b.sendOffset
	b.sendOffset += n
	fin := false
	if b.fin && b.sendOffset == b.finOffset {
		fin = true
		b.finSent = true
	}
	return data, offset, fin
}

// ack records offset..offset+length as acknowledged and releases any
// prefix of data that is now fully acked and need not be retained for
// retransmission.
func (b *sendBuffer) ack(offset uint64, length uint64) {
	if length == 0 {
		b.finAcked = b.finAcked || (b.fin && offset == b.finOffset)
		return
	}
	b.acked.push(offset, offset+length)
	if b.fin && offset+length >= b.finOffset {
		b.finAcked = true
	}
	n := b.acked.prefixLen(b.dataOffset)
	if n == 0 {
		return
	}
	if n > uint64(len(b.data)) {
		n = uint64(len(b.data))
	}
	b.data = b.data[n:]
	b.dataOffset += n
}

func (b *sendBuffer) String() string {
	return fmt.Sprintf("send{offset=%d length=%d sent=%d fin=%v}", b.dataOffset, b.length, b.sendOffset, b.fin)
}

// recvBuffer is the incoming half of a stream or CRYPTO buffer: an
// out-of-order reassembly window built on a rangeSet plus a contiguous
// byte store, per Section 4.6.
type recvBuffer struct {
	data       []byte // bytes received so far, data[0] is at offset dataOffset
	dataOffset uint64 // offset of the first byte in data, and of the read cursor
	readOffset uint64 // offset up to which the application has consumed data

	received rangeSet
	maxRecvOffset uint64 // highest offset seen across all frames (incl. gaps)

	finOffset uint64
	finSet    bool
	resetErr  *uint64
}

// push inserts data at offset into the reassembly window, growing the
// backing store as needed and recording the covered range.
func (b *recvBuffer) push(data []byte, offset uint64, fin bool) error {
	if b.finSet && offset+uint64(len(data)) > b.finOffset {
		return newError(FinalSizeError, "data received beyond final size")
	}
	if fin {
		if b.finSet && b.finOffset != offset+uint64(len(data)) {
			return newError(FinalSizeError, "inconsistent final size")
		}
		b.finSet = true
		b.finOffset = offset + uint64(len(data))
	}
	end := offset + uint64(len(data))
	if end > b.maxRecvOffset {
		b.maxRecvOffset = end
	}
	if len(data) == 0 {
		return nil
	}
	if offset < b.dataOffset {
		if end <= b.dataOffset {
			return nil // fully duplicate
		}
		skip := b.dataOffset - offset
		data = data[skip:]
		offset = b.dataOffset
	}
	relEnd := int(offset-b.dataOffset) + len(data)
	if relEnd > len(b.data) {
		grown := make([]byte, relEnd)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset-b.dataOffset:], data)
	b.received.push(offset, offset+uint64(len(data)))
	return nil
}

// reset records a RESET_STREAM's final size and returns how many
// previously-uncounted bytes it implies for connection-level flow control.
func (b *recvBuffer) reset(finalSize uint64) (int, error) {
	if b.finSet && b.finOffset != finalSize {
		return 0, newError(FinalSizeError, "inconsistent final size on reset")
	}
	if finalSize < b.maxRecvOffset {
		return 0, newError(FinalSizeError, "final size smaller than data already received")
	}
	extra := int(finalSize - b.maxRecvOffset)
	b.maxRecvOffset = finalSize
	b.finSet = true
	b.finOffset = finalSize
	return extra, nil
}

// readable returns the number of contiguous, unread bytes available.
func (b *recvBuffer) readable() int {
	n := b.received.prefixLen(b.dataOffset)
	avail := uint64(len(b.data))
	if n > avail {
		n = avail
	}
	return int(n)
}

// read copies up to len(p) contiguous bytes into p, advancing the read
// cursor, and reports whether the stream is finished (FIN delivered and all
// data consumed).
func (b *recvBuffer) read(p []byte) (int, bool) {
	n := b.readable()
	if n > len(p) {
		n = len(p)
	}
	copy(p, b.data[:n])
	b.data = b.data[n:]
	b.dataOffset += uint64(n)
	done := b.finSet && b.dataOffset == b.finOffset
	return n, done
}

func (b *recvBuffer) String() string {
	return fmt.Sprintf("recv{offset=%d fin=%v finOffset=%d}", b.dataOffset, b.finSet, b.finOffset)
}

// stream is the generic send+recv pair used for CRYPTO data, which needs no
// flow control or stream id.
type stream struct {
	send sendBuffer
	recv recvBuffer
}

func (s *stream) init(_ bool) {}

func (s *stream) pushRecv(data []byte, offset uint64, fin bool) error {
	return s.recv.push(data, offset, fin)
}

func (s *stream) popSend(max int) ([]byte, uint64, bool) {
	return s.send.popSend(max)
}

// Stream is one QUIC stream, identified by id, with independent
// flow-controlled send and receive halves (Section 4.6).
type Stream struct {
	id   uint64
	send sendBuffer
	recv recvBuffer

	flow     flowControl
	connFlow *flowControl

	updateMaxData bool
	readable      bool

	// resetRequested records a local Reset() call: a RESET_STREAM is queued
	// and resent on every sendFrames pass until resetAcked is true.
	resetRequested bool
	resetCode      uint64
	resetAcked     bool

	// stopRequested records a local Stop() call: a STOP_SENDING is queued
	// and resent until stopAcked is true.
	stopRequested bool
	stopCode      uint64
	stopAcked     bool
}

func newStream(id uint64) *Stream {
	return &Stream{id: id}
}

func (st *Stream) pushRecv(data []byte, offset uint64, fin bool) error {
	need := offset + uint64(len(data))
	if need > st.dataOffsetLimit() {
		return errFlowControl
	}
	return st.recv.push(data, offset, fin)
}

// dataOffsetLimit returns the highest byte offset the peer may send,
// per the stream's own MAX_STREAM_DATA accounting.
func (st *Stream) dataOffsetLimit() uint64 {
	return st.flow.maxRecv
}

func (st *Stream) popSend(max int) ([]byte, uint64, bool) {
	if st.resetRequested {
		// A reset stream sends no further STREAM data; RESET_STREAM alone
		// conveys the final size to the peer.
		return nil, 0, false
	}
	if st.connFlow != nil {
		allowed := int(st.connFlow.canSend())
		if allowed < max {
			max = allowed
		}
	}
	return st.send.popSend(max)
}

// Write queues p for sending on the stream, subject to flow control being
// applied later when frames are built.
func (st *Stream) Write(p []byte) (int, error) {
	return st.send.write(p), nil
}

// Read copies reassembled, in-order data into p.
func (st *Stream) Read(p []byte) (int, error) {
	n, done := st.recv.read(p)
	st.recv.readOffset += uint64(n)
	if n == 0 && done {
		return 0, errStreamClosed
	}
	return n, nil
}

// Close marks the send side finished, queuing a FIN with the last frame.
func (st *Stream) Close() error {
	st.send.close()
	return nil
}

// Reset abruptly terminates the send side of the stream, queuing a
// RESET_STREAM carrying errCode and the number of bytes already written
// (Section 4.6, Section 6). Further writes are not rejected, but their data
// will never reach the peer.
func (st *Stream) Reset(errCode uint64) error {
	if st.resetRequested {
		return nil
	}
	st.resetRequested = true
	st.resetCode = errCode
	st.send.resend = nil
	return nil
}

// Stop requests that the peer abandon the send side of the stream, queuing
// a STOP_SENDING carrying errCode (Section 4.6, Section 6).
func (st *Stream) Stop(errCode uint64) error {
	if st.stopRequested {
		return nil
	}
	st.stopRequested = true
	st.stopCode = errCode
	return nil
}

// ackReset clears the pending-retransmit flag once the peer has
// acknowledged the RESET_STREAM.
func (st *Stream) ackReset() {
	st.resetAcked = true
}

// ackStop clears the pending-retransmit flag once the peer has
// acknowledged the STOP_SENDING.
func (st *Stream) ackStop() {
	st.stopAcked = true
}

// ackMaxData clears the pending-update flag once a MAX_STREAM_DATA frame
// carrying the stream's current limit has been acknowledged.
func (st *Stream) ackMaxData() {
	st.updateMaxData = false
}

func (st *Stream) String() string {
	return fmt.Sprintf("stream %d %v %v", st.id, &st.send, &st.recv)
}

// isStreamBidi reports whether a stream id identifies a bidirectional
// stream, encoded in bit 0x02 of the id (RFC 9000 Section 2.1).
func isStreamBidi(id uint64) bool {
	return id&0x02 == 0
}

// isStreamLocal reports whether id was allocated by this endpoint acting
// with role isClient, encoded in bit 0x01 of the id.
func isStreamLocal(id uint64, isClient bool) bool {
	initiatedByClient := id&0x01 == 0
	return initiatedByClient == isClient
}

// streamType packs the two stream id low bits used to pick per-direction
// initial limits.
type streamType struct {
	local bool
	bidi  bool
}

// streamMap owns every stream created on a connection along with the
// counters needed to enforce and advertise MAX_STREAMS limits.
type streamMap struct {
	streams map[uint64]*Stream

	localMaxStreamsBidi  uint64
	localMaxStreamsUni   uint64
	peerMaxStreamsBidi   uint64
	peerMaxStreamsUni    uint64

	nextBidi uint64
	nextUni  uint64
}

func (m *streamMap) init(localMaxBidi, localMaxUni uint64) {
	m.streams = make(map[uint64]*Stream)
	m.localMaxStreamsBidi = localMaxBidi
	m.localMaxStreamsUni = localMaxUni
}

func (m *streamMap) get(id uint64) *Stream {
	return m.streams[id]
}

// create allocates a new Stream for id, enforcing the applicable
// MAX_STREAMS limit depending on whether id was locally or peer initiated.
func (m *streamMap) create(id uint64, local bool, bidi bool) (*Stream, error) {
	count := id >> 2
	if local {
		if bidi && count >= m.peerMaxStreamsBidi {
			return nil, errStreamLimit
		}
		if !bidi && count >= m.peerMaxStreamsUni {
			return nil, errStreamLimit
		}
	} else {
		if bidi && count >= m.localMaxStreamsBidi {
			return nil, errStreamLimit
		}
		if !bidi && count >= m.localMaxStreamsUni {
			return nil, errStreamLimit
		}
	}
	st := newStream(id)
	m.streams[id] = st
	return st, nil
}

func (m *streamMap) setPeerMaxStreamsBidi(max uint64) {
	if max > m.peerMaxStreamsBidi {
		m.peerMaxStreamsBidi = max
	}
}

func (m *streamMap) setPeerMaxStreamsUni(max uint64) {
	if max > m.peerMaxStreamsUni {
		m.peerMaxStreamsUni = max
	}
}

// hasFlushable reports whether any stream has data, a FIN, or a
// MAX_STREAM_DATA update waiting to be sent.
func (m *streamMap) hasFlushable() bool {
	for _, st := range m.streams {
		if st.resetRequested && !st.resetAcked {
			return true
		}
		if st.stopRequested && !st.stopAcked {
			return true
		}
		if st.resetRequested {
			continue // no further STREAM data once reset
		}
		if len(st.send.resend) > 0 {
			return true
		}
		if st.send.sendOffset < st.send.length {
			return true
		}
		if st.send.fin && !st.send.finSent {
			return true
		}
		if st.updateMaxData || st.flow.shouldUpdateMaxRecv() {
			return true
		}
	}
	return false
}
