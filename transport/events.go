package transport

// EventType identifies what changed on a connection since the last time
// Events was drained by the application.
type EventType uint8

const (
	// EventStream indicates a stream has new data available to Read, or
	// has been closed for reading (check Stream.Read's error).
	EventStream EventType = iota + 1
	// EventStreamReset indicates the peer sent RESET_STREAM.
	EventStreamReset
	// EventStreamStop indicates the peer sent STOP_SENDING.
	EventStreamStop
	// EventStreamComplete indicates every byte written to a stream,
	// including FIN, has been acknowledged.
	EventStreamComplete
)

func (t EventType) String() string {
	switch t {
	case EventStream:
		return "stream"
	case EventStreamReset:
		return "stream_reset"
	case EventStreamStop:
		return "stream_stop"
	case EventStreamComplete:
		return "stream_complete"
	default:
		return "unknown"
	}
}

// Event is a notification surfaced to the application via Conn.Events.
type Event struct {
	Type      EventType
	StreamID  uint64
	ErrorCode uint64
}

func newStreamRecvEvent(streamID uint64) Event {
	return Event{Type: EventStream, StreamID: streamID}
}

func newStreamResetEvent(streamID, errorCode uint64) Event {
	return Event{Type: EventStreamReset, StreamID: streamID, ErrorCode: errorCode}
}

func newStreamStopEvent(streamID, errorCode uint64) Event {
	return Event{Type: EventStreamStop, StreamID: streamID, ErrorCode: errorCode}
}

func newStreamCompleteEvent(streamID uint64) Event {
	return Event{Type: EventStreamComplete, StreamID: streamID}
}
