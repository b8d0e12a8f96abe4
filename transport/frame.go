package transport

import (
	"fmt"
	"time"
)

// Frame type codes, RFC 9000 Section 19.
const (
	frameTypePadding            = 0x00
	frameTypePing               = 0x01
	frameTypeAck                = 0x02
	frameTypeAckECN             = 0x03
	frameTypeResetStream        = 0x04
	frameTypeStopSending        = 0x05
	frameTypeCrypto             = 0x06
	frameTypeNewToken           = 0x07
	frameTypeStream             = 0x08
	frameTypeStreamEnd          = 0x0f
	frameTypeMaxData            = 0x10
	frameTypeMaxStreamData      = 0x11
	frameTypeMaxStreamsBidi     = 0x12
	frameTypeMaxStreamsUni      = 0x13
	frameTypeDataBlocked        = 0x14
	frameTypeStreamDataBlocked  = 0x15
	frameTypeStreamsBlockedBidi = 0x16
	frameTypeStreamsBlockedUni  = 0x17
	frameTypeNewConnectionID    = 0x18
	frameTypeRetireConnectionID = 0x19
	frameTypePathChallenge      = 0x1a
	frameTypePathResponse       = 0x1b
	frameTypeConnectionClose    = 0x1c
	frameTypeApplicationClose   = 0x1d
	frameTypeHanshakeDone       = 0x1e
)

// isFrameAckEliciting reports whether receipt of a frame of this type
// obliges the receiver to eventually send an ACK (RFC 9000 Section 13.2).
func isFrameAckEliciting(typ uint64) bool {
	switch typ {
	case frameTypePadding, frameTypeAck, frameTypeAckECN,
		frameTypeConnectionClose, frameTypeApplicationClose:
		return false
	default:
		return true
	}
}

// frame is a parsed or to-be-sent QUIC frame.
type frame interface {
	encodedLen() int
	encode(b []byte) (int, error)
}

// encodeFrames serializes frames in order into b, returning the total bytes
// written or the first error encountered.
func encodeFrames(b []byte, frames []frame) (int, error) {
	off := 0
	for _, f := range frames {
		n, err := f.encode(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// outgoingPacket records the frames placed into a packet that has been (or
// is about to be) sent, so Recovery can retransmit or release them later.
type outgoingPacket struct {
	packetNumber int64
	timeSent     time.Time
	size         uint64
	inFlight     bool
	ackEliciting bool
	frames       []frame
}

func newOutgoingPacket(pn int64, now time.Time) *outgoingPacket {
	return &outgoingPacket{
		packetNumber: pn,
		timeSent:     now,
		frames:       make([]frame, 0, 4),
	}
}

func (p *outgoingPacket) addFrame(f frame) {
	p.frames = append(p.frames, f)
	if isAckElicitingFrame(f) {
		p.ackEliciting = true
	}
	if !isOnlyPadding(f) {
		p.inFlight = true
	}
}

func isAckElicitingFrame(f frame) bool {
	switch f.(type) {
	case *paddingFrame, *ackFrame, *connectionCloseFrame:
		return false
	default:
		return true
	}
}

func isOnlyPadding(f frame) bool {
	_, ok := f.(*paddingFrame)
	return ok
}

func (p *outgoingPacket) String() string {
	return fmt.Sprintf("frames=%d size=%d ack_eliciting=%v", len(p.frames), p.size, p.ackEliciting)
}

// ---- PADDING ----

type paddingFrame struct {
	length int
}

func newPaddingFrame(length int) *paddingFrame {
	return &paddingFrame{length: length}
}

func (f *paddingFrame) encodedLen() int { return f.length }

func (f *paddingFrame) encode(b []byte) (int, error) {
	if len(b) < f.length {
		return 0, newShortBufferError(f.length)
	}
	for i := 0; i < f.length; i++ {
		b[i] = 0
	}
	return f.length, nil
}

func (f *paddingFrame) decode(b []byte) (int, error) {
	n := 0
	for n < len(b) && b[n] == 0 {
		n++
	}
	f.length = n
	return n, nil
}

// ---- PING ----

type pingFrame struct{}

func (f *pingFrame) encodedLen() int { return 1 }

func (f *pingFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newShortBufferError(1)
	}
	b[0] = frameTypePing
	return 1, nil
}

func (f *pingFrame) decode(b []byte) (int, error) {
	if len(b) < 1 || b[0] != frameTypePing {
		return 0, newCodecError(codecErrMalformed, "ping")
	}
	return 1, nil
}

// ---- ACK ----

type ackFrame struct {
	largestAck    uint64
	ackDelay      uint64
	firstAckRange uint64
	ackRanges     []ackRange
	ecn           bool
	ect0, ect1, ce uint64
}

func newAckFrame(ackDelay uint64, received rangeSet) *ackFrame {
	f := &ackFrame{ackDelay: ackDelay}
	if len(received) == 0 {
		return f
	}
	last := received[len(received)-1]
	f.largestAck = last.end - 1
	f.firstAckRange = last.len() - 1
	prevSmallest := last.start
	for i := len(received) - 2; i >= 0; i-- {
		r := received[i]
		gap := prevSmallest - r.end - 1
		f.ackRanges = append(f.ackRanges, ackRange{gap: gap, length: r.len() - 1})
		prevSmallest = r.start
	}
	return f
}

func (f *ackFrame) encodedLen() int {
	n := 1 // type
	n += varintLen(f.largestAck)
	n += varintLen(f.ackDelay)
	n += varintLen(uint64(len(f.ackRanges)))
	n += varintLen(f.firstAckRange)
	for _, r := range f.ackRanges {
		n += varintLen(r.gap)
		n += varintLen(r.length)
	}
	if f.ecn {
		n += varintLen(f.ect0) + varintLen(f.ect1) + varintLen(f.ce)
	}
	return n
}

func (f *ackFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	off := 0
	if f.ecn {
		b[0] = frameTypeAckECN
	} else {
		b[0] = frameTypeAck
	}
	off++
	off += putVarint(b[off:], f.largestAck)
	off += putVarint(b[off:], f.ackDelay)
	off += putVarint(b[off:], uint64(len(f.ackRanges)))
	off += putVarint(b[off:], f.firstAckRange)
	for _, r := range f.ackRanges {
		off += putVarint(b[off:], r.gap)
		off += putVarint(b[off:], r.length)
	}
	if f.ecn {
		off += putVarint(b[off:], f.ect0)
		off += putVarint(b[off:], f.ect1)
		off += putVarint(b[off:], f.ce)
	}
	return off, nil
}

func (f *ackFrame) decode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newCodecError(codecErrTruncated, "ack")
	}
	off := 1
	f.ecn = b[0] == frameTypeAckECN
	var rangeCount uint64
	fields := []*uint64{&f.largestAck, &f.ackDelay, &rangeCount, &f.firstAckRange}
	for _, field := range fields {
		n := getVarint(b[off:], field)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "ack")
		}
		off += n
	}
	f.ackRanges = f.ackRanges[:0]
	for i := uint64(0); i < rangeCount; i++ {
		var gap, length uint64
		n := getVarint(b[off:], &gap)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "ack range gap")
		}
		off += n
		n = getVarint(b[off:], &length)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "ack range length")
		}
		off += n
		f.ackRanges = append(f.ackRanges, ackRange{gap: gap, length: length})
	}
	if f.ecn {
		for _, field := range []*uint64{&f.ect0, &f.ect1, &f.ce} {
			n := getVarint(b[off:], field)
			if n == 0 {
				return 0, newCodecError(codecErrTruncated, "ack ecn counts")
			}
			off += n
		}
	}
	return off, nil
}

// toRangeSet reconstructs the acknowledged packet-number ranges described
// by the frame, ascending. It returns nil if the ranges underflow below 0.
func (f *ackFrame) toRangeSet() rangeSet {
	if f.largestAck < f.firstAckRange {
		return nil
	}
	var ranges rangeSet
	smallest := f.largestAck - f.firstAckRange
	ranges = append(ranges, numRange{start: smallest, end: f.largestAck + 1})
	for _, r := range f.ackRanges {
		if smallest < r.gap+2 {
			return nil
		}
		largest := smallest - r.gap - 2
		if largest < r.length {
			return nil
		}
		newSmallest := largest - r.length
		ranges = append(rangeSet{{start: newSmallest, end: largest + 1}}, ranges...)
		smallest = newSmallest
	}
	return ranges
}

func (f *ackFrame) String() string {
	return fmt.Sprintf("largest=%d delay=%d first_range=%d ranges=%d", f.largestAck, f.ackDelay, f.firstAckRange, len(f.ackRanges))
}

// ---- RESET_STREAM ----

type resetStreamFrame struct {
	streamID  uint64
	errorCode uint64
	finalSize uint64
}

func newResetStreamFrame(streamID, errorCode, finalSize uint64) *resetStreamFrame {
	return &resetStreamFrame{streamID: streamID, errorCode: errorCode, finalSize: finalSize}
}

func (f *resetStreamFrame) encodedLen() int {
	return 1 + varintLen(f.streamID) + varintLen(f.errorCode) + varintLen(f.finalSize)
}

func (f *resetStreamFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeResetStream
	off := 1
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.errorCode)
	off += putVarint(b[off:], f.finalSize)
	return off, nil
}

func (f *resetStreamFrame) decode(b []byte) (int, error) {
	off := 1
	for _, field := range []*uint64{&f.streamID, &f.errorCode, &f.finalSize} {
		n := getVarint(b[off:], field)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "reset_stream")
		}
		off += n
	}
	return off, nil
}

func (f *resetStreamFrame) String() string {
	return fmt.Sprintf("stream=%d code=%d final_size=%d", f.streamID, f.errorCode, f.finalSize)
}

// ---- STOP_SENDING ----

type stopSendingFrame struct {
	streamID  uint64
	errorCode uint64
}

func newStopSendingFrame(streamID, errorCode uint64) *stopSendingFrame {
	return &stopSendingFrame{streamID: streamID, errorCode: errorCode}
}

func (f *stopSendingFrame) encodedLen() int {
	return 1 + varintLen(f.streamID) + varintLen(f.errorCode)
}

func (f *stopSendingFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeStopSending
	off := 1
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.errorCode)
	return off, nil
}

func (f *stopSendingFrame) decode(b []byte) (int, error) {
	off := 1
	for _, field := range []*uint64{&f.streamID, &f.errorCode} {
		n := getVarint(b[off:], field)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "stop_sending")
		}
		off += n
	}
	return off, nil
}

func (f *stopSendingFrame) String() string {
	return fmt.Sprintf("stream=%d code=%d", f.streamID, f.errorCode)
}

// ---- CRYPTO ----

type cryptoFrame struct {
	offset uint64
	data   []byte
}

func newCryptoFrame(data []byte, offset uint64) *cryptoFrame {
	return &cryptoFrame{data: data, offset: offset}
}

func (f *cryptoFrame) encodedLen() int {
	return 1 + varintLen(f.offset) + varintLen(uint64(len(f.data))) + len(f.data)
}

func (f *cryptoFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeCrypto
	off := 1
	off += putVarint(b[off:], f.offset)
	off += putVarint(b[off:], uint64(len(f.data)))
	off += copy(b[off:], f.data)
	return off, nil
}

func (f *cryptoFrame) decode(b []byte) (int, error) {
	off := 1
	var length uint64
	n := getVarint(b[off:], &f.offset)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "crypto offset")
	}
	off += n
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "crypto length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newCodecError(codecErrTruncated, "crypto data")
	}
	f.data = b[off : off+int(length)]
	off += int(length)
	return off, nil
}

func (f *cryptoFrame) String() string {
	return fmt.Sprintf("offset=%d length=%d", f.offset, len(f.data))
}

// ---- NEW_TOKEN ----

type newTokenFrame struct {
	token []byte
}

func newNewTokenFrame(token []byte) *newTokenFrame {
	return &newTokenFrame{token: token}
}

func (f *newTokenFrame) encodedLen() int {
	return 1 + varintLen(uint64(len(f.token))) + len(f.token)
}

func (f *newTokenFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeNewToken
	off := 1
	off += putVarint(b[off:], uint64(len(f.token)))
	off += copy(b[off:], f.token)
	return off, nil
}

func (f *newTokenFrame) decode(b []byte) (int, error) {
	off := 1
	var length uint64
	n := getVarint(b[off:], &length)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "new_token length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newCodecError(codecErrTruncated, "new_token data")
	}
	f.token = b[off : off+int(length)]
	off += int(length)
	return off, nil
}

// ---- STREAM ----

type streamFrame struct {
	streamID uint64
	offset   uint64
	data     []byte
	fin      bool
}

func newStreamFrame(streamID uint64, data []byte, offset uint64, fin bool) *streamFrame {
	return &streamFrame{streamID: streamID, data: data, offset: offset, fin: fin}
}

// streamFrame always uses the LEN bit (the length is explicit) to keep
// assembly logic simple; the OFF bit is set only for a nonzero offset, and
// the FIN bit only on the final frame.
func (f *streamFrame) typeByte() byte {
	t := byte(frameTypeStream) | 0x02 // LEN bit
	if f.offset > 0 {
		t |= 0x04 // OFF bit
	}
	if f.fin {
		t |= 0x01 // FIN bit
	}
	return t
}

func (f *streamFrame) encodedLen() int {
	n := 1 + varintLen(f.streamID)
	if f.offset > 0 {
		n += varintLen(f.offset)
	}
	n += varintLen(uint64(len(f.data))) + len(f.data)
	return n
}

func (f *streamFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = f.typeByte()
	off := 1
	off += putVarint(b[off:], f.streamID)
	if f.offset > 0 {
		off += putVarint(b[off:], f.offset)
	}
	off += putVarint(b[off:], uint64(len(f.data)))
	off += copy(b[off:], f.data)
	return off, nil
}

func (f *streamFrame) decode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newCodecError(codecErrTruncated, "stream")
	}
	typ := b[0]
	f.fin = typ&0x01 != 0
	hasLen := typ&0x02 != 0
	hasOff := typ&0x04 != 0
	off := 1
	n := getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "stream id")
	}
	off += n
	f.offset = 0
	if hasOff {
		n = getVarint(b[off:], &f.offset)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "stream offset")
		}
		off += n
	}
	var length uint64
	if hasLen {
		n = getVarint(b[off:], &length)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "stream length")
		}
		off += n
	} else {
		length = uint64(len(b) - off)
	}
	if uint64(len(b)-off) < length {
		return 0, newCodecError(codecErrTruncated, "stream data")
	}
	f.data = b[off : off+int(length)]
	off += int(length)
	return off, nil
}

func (f *streamFrame) String() string {
	return fmt.Sprintf("stream=%d offset=%d length=%d fin=%v", f.streamID, f.offset, len(f.data), f.fin)
}

// ---- MAX_DATA ----

type maxDataFrame struct {
	maximumData uint64
}

func newMaxDataFrame(max uint64) *maxDataFrame {
	return &maxDataFrame{maximumData: max}
}

func (f *maxDataFrame) encodedLen() int { return 1 + varintLen(f.maximumData) }

func (f *maxDataFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeMaxData
	return 1 + putVarint(b[1:], f.maximumData), nil
}

func (f *maxDataFrame) decode(b []byte) (int, error) {
	n := getVarint(b[1:], &f.maximumData)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "max_data")
	}
	return 1 + n, nil
}

// ---- MAX_STREAM_DATA ----

type maxStreamDataFrame struct {
	streamID    uint64
	maximumData uint64
}

func newMaxStreamDataFrame(streamID, max uint64) *maxStreamDataFrame {
	return &maxStreamDataFrame{streamID: streamID, maximumData: max}
}

func (f *maxStreamDataFrame) encodedLen() int {
	return 1 + varintLen(f.streamID) + varintLen(f.maximumData)
}

func (f *maxStreamDataFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeMaxStreamData
	off := 1
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.maximumData)
	return off, nil
}

func (f *maxStreamDataFrame) decode(b []byte) (int, error) {
	off := 1
	n := getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "max_stream_data id")
	}
	off += n
	n = getVarint(b[off:], &f.maximumData)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "max_stream_data max")
	}
	off += n
	return off, nil
}

// ---- MAX_STREAMS ----

type maxStreamsFrame struct {
	maximumStreams uint64
	bidi           bool
}

func newMaxStreamsFrame(max uint64, bidi bool) *maxStreamsFrame {
	return &maxStreamsFrame{maximumStreams: max, bidi: bidi}
}

func (f *maxStreamsFrame) encodedLen() int { return 1 + varintLen(f.maximumStreams) }

func (f *maxStreamsFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	if f.bidi {
		b[0] = frameTypeMaxStreamsBidi
	} else {
		b[0] = frameTypeMaxStreamsUni
	}
	return 1 + putVarint(b[1:], f.maximumStreams), nil
}

func (f *maxStreamsFrame) decode(b []byte) (int, error) {
	f.bidi = b[0] == frameTypeMaxStreamsBidi
	n := getVarint(b[1:], &f.maximumStreams)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "max_streams")
	}
	return 1 + n, nil
}

// ---- DATA_BLOCKED ----

type dataBlockedFrame struct {
	dataLimit uint64
}

func newDataBlockedFrame(limit uint64) *dataBlockedFrame {
	return &dataBlockedFrame{dataLimit: limit}
}

func (f *dataBlockedFrame) encodedLen() int { return 1 + varintLen(f.dataLimit) }

func (f *dataBlockedFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeDataBlocked
	return 1 + putVarint(b[1:], f.dataLimit), nil
}

func (f *dataBlockedFrame) decode(b []byte) (int, error) {
	n := getVarint(b[1:], &f.dataLimit)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "data_blocked")
	}
	return 1 + n, nil
}

// ---- STREAM_DATA_BLOCKED ----

type streamDataBlockedFrame struct {
	streamID  uint64
	dataLimit uint64
}

func newStreamDataBlockedFrame(streamID, limit uint64) *streamDataBlockedFrame {
	return &streamDataBlockedFrame{streamID: streamID, dataLimit: limit}
}

func (f *streamDataBlockedFrame) encodedLen() int {
	return 1 + varintLen(f.streamID) + varintLen(f.dataLimit)
}

func (f *streamDataBlockedFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeStreamDataBlocked
	off := 1
	off += putVarint(b[off:], f.streamID)
	off += putVarint(b[off:], f.dataLimit)
	return off, nil
}

func (f *streamDataBlockedFrame) decode(b []byte) (int, error) {
	off := 1
	n := getVarint(b[off:], &f.streamID)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "stream_data_blocked id")
	}
	off += n
	n = getVarint(b[off:], &f.dataLimit)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "stream_data_blocked limit")
	}
	off += n
	return off, nil
}

// ---- STREAMS_BLOCKED ----

type streamsBlockedFrame struct {
	streamLimit uint64
	bidi        bool
}

func newStreamsBlockedFrame(limit uint64, bidi bool) *streamsBlockedFrame {
	return &streamsBlockedFrame{streamLimit: limit, bidi: bidi}
}

func (f *streamsBlockedFrame) encodedLen() int { return 1 + varintLen(f.streamLimit) }

func (f *streamsBlockedFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	if f.bidi {
		b[0] = frameTypeStreamsBlockedBidi
	} else {
		b[0] = frameTypeStreamsBlockedUni
	}
	return 1 + putVarint(b[1:], f.streamLimit), nil
}

func (f *streamsBlockedFrame) decode(b []byte) (int, error) {
	f.bidi = b[0] == frameTypeStreamsBlockedBidi
	n := getVarint(b[1:], &f.streamLimit)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "streams_blocked")
	}
	return 1 + n, nil
}

// ---- NEW_CONNECTION_ID ----

type newConnectionIDFrame struct {
	sequenceNumber      uint64
	retirePriorTo       uint64
	connectionID        []byte
	statelessResetToken [16]byte
}

func newNewConnectionIDFrame(seq, retirePriorTo uint64, cid []byte, token [16]byte) *newConnectionIDFrame {
	return &newConnectionIDFrame{sequenceNumber: seq, retirePriorTo: retirePriorTo, connectionID: cid, statelessResetToken: token}
}

func (f *newConnectionIDFrame) encodedLen() int {
	return 1 + varintLen(f.sequenceNumber) + varintLen(f.retirePriorTo) + 1 + len(f.connectionID) + 16
}

func (f *newConnectionIDFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeNewConnectionID
	off := 1
	off += putVarint(b[off:], f.sequenceNumber)
	off += putVarint(b[off:], f.retirePriorTo)
	b[off] = byte(len(f.connectionID))
	off++
	off += copy(b[off:], f.connectionID)
	off += copy(b[off:], f.statelessResetToken[:])
	return off, nil
}

func (f *newConnectionIDFrame) decode(b []byte) (int, error) {
	off := 1
	n := getVarint(b[off:], &f.sequenceNumber)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "new_connection_id seq")
	}
	off += n
	n = getVarint(b[off:], &f.retirePriorTo)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "new_connection_id retire_prior_to")
	}
	off += n
	if off >= len(b) {
		return 0, newCodecError(codecErrTruncated, "new_connection_id cid length")
	}
	cidLen := int(b[off])
	off++
	if cidLen > MaxCIDLength || len(b) < off+cidLen+16 {
		return 0, newCodecError(codecErrMalformed, "new_connection_id")
	}
	f.connectionID = append([]byte(nil), b[off:off+cidLen]...)
	off += cidLen
	copy(f.statelessResetToken[:], b[off:off+16])
	off += 16
	return off, nil
}

func (f *newConnectionIDFrame) String() string {
	return fmt.Sprintf("seq=%d retire_prior_to=%d cid=%x", f.sequenceNumber, f.retirePriorTo, f.connectionID)
}

// ---- RETIRE_CONNECTION_ID ----

type retireConnectionIDFrame struct {
	sequenceNumber uint64
}

func newRetireConnectionIDFrame(seq uint64) *retireConnectionIDFrame {
	return &retireConnectionIDFrame{sequenceNumber: seq}
}

func (f *retireConnectionIDFrame) encodedLen() int { return 1 + varintLen(f.sequenceNumber) }

func (f *retireConnectionIDFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	b[0] = frameTypeRetireConnectionID
	return 1 + putVarint(b[1:], f.sequenceNumber), nil
}

func (f *retireConnectionIDFrame) decode(b []byte) (int, error) {
	n := getVarint(b[1:], &f.sequenceNumber)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "retire_connection_id")
	}
	return 1 + n, nil
}

// ---- PATH_CHALLENGE / PATH_RESPONSE ----

type pathChallengeFrame struct {
	data [8]byte
}

func newPathChallengeFrame(data [8]byte) *pathChallengeFrame {
	return &pathChallengeFrame{data: data}
}

func (f *pathChallengeFrame) encodedLen() int { return 9 }

func (f *pathChallengeFrame) encode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, newShortBufferError(9)
	}
	b[0] = frameTypePathChallenge
	copy(b[1:9], f.data[:])
	return 9, nil
}

func (f *pathChallengeFrame) decode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, newCodecError(codecErrTruncated, "path_challenge")
	}
	copy(f.data[:], b[1:9])
	return 9, nil
}

type pathResponseFrame struct {
	data [8]byte
}

func newPathResponseFrame(data [8]byte) *pathResponseFrame {
	return &pathResponseFrame{data: data}
}

func (f *pathResponseFrame) encodedLen() int { return 9 }

func (f *pathResponseFrame) encode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, newShortBufferError(9)
	}
	b[0] = frameTypePathResponse
	copy(b[1:9], f.data[:])
	return 9, nil
}

func (f *pathResponseFrame) decode(b []byte) (int, error) {
	if len(b) < 9 {
		return 0, newCodecError(codecErrTruncated, "path_response")
	}
	copy(f.data[:], b[1:9])
	return 9, nil
}

// ---- CONNECTION_CLOSE ----

type connectionCloseFrame struct {
	application  bool
	errorCode    uint64
	frameType    uint64 // only meaningful for transport-level closes
	reasonPhrase []byte
}

func newConnectionCloseFrame(errorCode, frameType uint64, reason []byte, application bool) *connectionCloseFrame {
	return &connectionCloseFrame{errorCode: errorCode, frameType: frameType, reasonPhrase: reason, application: application}
}

func (f *connectionCloseFrame) encodedLen() int {
	n := 1 + varintLen(f.errorCode)
	if !f.application {
		n += varintLen(f.frameType)
	}
	n += varintLen(uint64(len(f.reasonPhrase))) + len(f.reasonPhrase)
	return n
}

func (f *connectionCloseFrame) encode(b []byte) (int, error) {
	need := f.encodedLen()
	if len(b) < need {
		return 0, newShortBufferError(need)
	}
	off := 0
	if f.application {
		b[0] = frameTypeApplicationClose
	} else {
		b[0] = frameTypeConnectionClose
	}
	off++
	off += putVarint(b[off:], f.errorCode)
	if !f.application {
		off += putVarint(b[off:], f.frameType)
	}
	off += putVarint(b[off:], uint64(len(f.reasonPhrase)))
	off += copy(b[off:], f.reasonPhrase)
	return off, nil
}

func (f *connectionCloseFrame) decode(b []byte) (int, error) {
	f.application = b[0] == frameTypeApplicationClose
	off := 1
	n := getVarint(b[off:], &f.errorCode)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "connection_close code")
	}
	off += n
	if !f.application {
		n = getVarint(b[off:], &f.frameType)
		if n == 0 {
			return 0, newCodecError(codecErrTruncated, "connection_close frame_type")
		}
		off += n
	}
	var length uint64
	n = getVarint(b[off:], &length)
	if n == 0 {
		return 0, newCodecError(codecErrTruncated, "connection_close reason length")
	}
	off += n
	if uint64(len(b)-off) < length {
		return 0, newCodecError(codecErrTruncated, "connection_close reason")
	}
	f.reasonPhrase = b[off : off+int(length)]
	off += int(length)
	return off, nil
}

func (f *connectionCloseFrame) String() string {
	return fmt.Sprintf("code=%s reason=%s", errorCodeString(f.errorCode), f.reasonPhrase)
}

// ---- HANDSHAKE_DONE ----

type handshakeDoneFrame struct{}

func (f *handshakeDoneFrame) encodedLen() int { return 1 }

func (f *handshakeDoneFrame) encode(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, newShortBufferError(1)
	}
	b[0] = frameTypeHanshakeDone
	return 1, nil
}

func (f *handshakeDoneFrame) decode(b []byte) (int, error) {
	if len(b) < 1 || b[0] != frameTypeHanshakeDone {
		return 0, newCodecError(codecErrMalformed, "handshake_done")
	}
	return 1, nil
}
