package transport

import "time"

// maxDatagramSize is the datagram size congestion control assumes when no
// better estimate (from peer transport parameters) is available, RFC 9002
// Section 7.2.
const maxDatagramSize = 1200

// minCongestionWindowPackets is the smallest window, in packets, congestion
// control will ever shrink to, RFC 9002 Section 7.2 (kMinimumWindow = 2 *
// max_datagram_size).
const minCongestionWindowPackets = 2

// congestionController is the pluggable sender-side congestion avoidance
// algorithm. lossRecovery drives it with byte-granular sent/acked/lost
// events; it answers with how many more bytes may currently be sent.
type congestionController interface {
	onPacketSent(size uint64)
	onAckReceived(ackedBytes uint64, now time.Time)
	onPacketLost(lostBytes uint64, now time.Time)
	congestionWindow() uint64
	bytesInFlight() uint64
}

// newRenoCC implements the NewReno algorithm described as the default in
// RFC 9002 Section 7: slow start until ssthresh, additive increase in
// congestion avoidance, multiplicative decrease on loss, with a recovery
// period that ignores further loss-driven decreases.
type newRenoCC struct {
	windowPkts    uint64 // congestion window, in max_datagram_size units
	ssthresh      uint64 // in bytes, unset == max uint64
	bytesSent     uint64
	bytesAcked    uint64
	inFlightBytes uint64

	recoveryStartTime time.Time
}

func newNewRenoCC() *newRenoCC {
	return &newRenoCC{
		windowPkts: 10, // initial window, RFC 9002 Section 7.2: min(10*MSS, max(2*MSS, 14720))
		ssthresh:   ^uint64(0),
	}
}

func (c *newRenoCC) congestionWindow() uint64 {
	return c.windowPkts * maxDatagramSize
}

func (c *newRenoCC) bytesInFlight() uint64 {
	return c.inFlightBytes
}

func (c *newRenoCC) onPacketSent(size uint64) {
	c.inFlightBytes += size
}

func (c *newRenoCC) inSlowStart() bool {
	return c.windowPkts*maxDatagramSize < c.ssthresh
}

func (c *newRenoCC) onAckReceived(ackedBytes uint64, now time.Time) {
	if ackedBytes > c.inFlightBytes {
		c.inFlightBytes = 0
	} else {
		c.inFlightBytes -= ackedBytes
	}
	if c.inCongestionRecovery(now) {
		return
	}
	if c.inSlowStart() {
		c.windowPkts += ackedBytes / maxDatagramSize
		return
	}
	// Congestion avoidance: increase by one MSS per window's worth acked.
	cwnd := c.windowPkts * maxDatagramSize
	c.bytesAcked += ackedBytes
	if c.bytesAcked >= cwnd {
		c.bytesAcked -= cwnd
		c.windowPkts++
	}
}

func (c *newRenoCC) inCongestionRecovery(sentTime time.Time) bool {
	return !c.recoveryStartTime.IsZero() && !sentTime.After(c.recoveryStartTime)
}

func (c *newRenoCC) onPacketLost(lostBytes uint64, now time.Time) {
	if c.inCongestionRecovery(now) {
		return
	}
	c.recoveryStartTime = now
	c.ssthresh = c.windowPkts * maxDatagramSize / 2
	if c.ssthresh < minCongestionWindowPackets*maxDatagramSize {
		c.ssthresh = minCongestionWindowPackets * maxDatagramSize
	}
	c.windowPkts = c.ssthresh / maxDatagramSize
}
