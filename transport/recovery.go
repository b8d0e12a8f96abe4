package transport

import "time"

// Constants from RFC 9002 Appendix A.2.
const (
	kPacketThreshold    = 3
	kTimeThresholdNum   = 9 // kTimeThreshold = 9/8
	kTimeThresholdDen   = 8
	kGranularity        = time.Millisecond
	kInitialRTT         = 333 * time.Millisecond
	kMaxProbesBeforeIdle = 2
)

// lossRecovery implements the loss detection and congestion control loop of
// RFC 9002: it tracks every in-flight packet per packet number space,
// derives RTT samples from acknowledgements, declares packets lost by
// either the packet or time threshold, and arms a probe timeout so the
// connection keeps making progress even when every packet in flight is
// lost.
type lossRecovery struct {
	sent          [packetSpaceCount][]*outgoingPacket
	ackedPackets  [packetSpaceCount][]*outgoingPacket
	lost          [packetSpaceCount][]frame

	largestAckedPacket          [packetSpaceCount]int64
	timeOfLastAckElicitingPacket [packetSpaceCount]time.Time
	lossTime                    [packetSpaceCount]time.Time

	minRTT      time.Duration
	smoothedRTT time.Duration
	rttvar      time.Duration
	latestRTT   time.Duration
	maxAckDelay time.Duration
	rttInitialized bool

	ptoCount            int
	probes              int
	lossDetectionTimer  time.Time

	cc     congestionController
	ccName string
	pacer  pacer
}

func (r *lossRecovery) init(now time.Time, ccName string) {
	r.smoothedRTT = kInitialRTT
	r.rttvar = kInitialRTT / 2
	r.maxAckDelay = 25 * time.Millisecond
	for i := range r.largestAckedPacket {
		r.largestAckedPacket[i] = -1
	}
	r.ccName = ccName
	r.cc = newCongestionController(ccName)
	r.pacer.init(now)
}

// resetForNewPath restarts congestion control and RTT estimation from
// scratch, RFC 9000 Section 9: "a new path starts without any congestion
// state". Loss detection bookkeeping (sent records, PTO count) is left
// alone since it is keyed by packet number space, not by path.
func (r *lossRecovery) resetForNewPath(now time.Time) {
	r.cc = newCongestionController(r.ccName)
	r.pacer.init(now)
	r.rttInitialized = false
	r.smoothedRTT = kInitialRTT
	r.rttvar = kInitialRTT / 2
	r.minRTT = 0
	r.ptoCount = 0
}

func (r *lossRecovery) onPacketSent(op *outgoingPacket, space packetSpace) {
	r.sent[space] = append(r.sent[space], op)
	if op.ackEliciting {
		r.timeOfLastAckElicitingPacket[space] = op.timeSent
	}
	if op.inFlight {
		r.cc.onPacketSent(op.size)
		r.pacer.onPacketSent(op.size, op.timeSent, r.cc.congestionWindow(), r.smoothedRTT)
	}
	r.setLossDetectionTimer()
}

// onAckReceived processes a newly received ACK frame's range set: it
// removes acknowledged packets from the in-flight set, updates the RTT
// estimator from the largest newly-acked packet (RFC 9002 Section 5.1),
// runs loss detection, and feeds the congestion controller.
func (r *lossRecovery) onAckReceived(acked rangeSet, ackDelay time.Duration, space packetSpace, now time.Time) {
	if acked.empty() {
		return
	}
	var newlyAcked []*outgoingPacket
	remaining := r.sent[space][:0:0]
	for _, p := range r.sent[space] {
		if acked.contains(uint64(p.packetNumber)) {
			newlyAcked = append(newlyAcked, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	r.sent[space] = remaining
	if len(newlyAcked) == 0 {
		return
	}
	largest := acked.largest()
	if largest > r.largestAckedPacket[space] {
		r.largestAckedPacket[space] = largest
	}
	var ackedBytes uint64
	for _, p := range newlyAcked {
		if p.packetNumber == largest && p.ackEliciting {
			r.updateRTT(now.Sub(p.timeSent), ackDelay, space)
		}
		if p.inFlight {
			ackedBytes += p.size
		}
	}
	r.ackedPackets[space] = append(r.ackedPackets[space], newlyAcked...)
	r.detectAndRemoveLostPackets(space, now)
	if ackedBytes > 0 {
		r.cc.onAckReceived(ackedBytes, now)
	}
	r.ptoCount = 0
	r.setLossDetectionTimer()
}

// updateRTT applies RFC 9002 Section 5.3's smoothing formula.
func (r *lossRecovery) updateRTT(rtt, ackDelay time.Duration, space packetSpace) {
	r.latestRTT = rtt
	if !r.rttInitialized {
		r.rttInitialized = true
		r.minRTT = rtt
		r.smoothedRTT = rtt
		r.rttvar = rtt / 2
		return
	}
	if rtt < r.minRTT {
		r.minRTT = rtt
	}
	adjusted := rtt
	if space == packetSpaceApplication {
		if ackDelay > r.maxAckDelay {
			ackDelay = r.maxAckDelay
		}
	} else {
		ackDelay = 0
	}
	if adjusted > r.minRTT+ackDelay {
		adjusted -= ackDelay
	}
	rttvarSample := absDuration(r.smoothedRTT - adjusted)
	r.rttvar = (3*r.rttvar + rttvarSample) / 4
	r.smoothedRTT = (7*r.smoothedRTT + adjusted) / 8
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// drainAcked calls fn for every frame carried by a packet that was
// acknowledged since the last call, then clears the list.
func (r *lossRecovery) drainAcked(space packetSpace, fn func(frame)) {
	for _, p := range r.ackedPackets[space] {
		for _, f := range p.frames {
			fn(f)
		}
	}
	r.ackedPackets[space] = r.ackedPackets[space][:0]
}

// drainLost calls fn for every frame carried by a packet declared lost
// since the last call, then clears the list.
func (r *lossRecovery) drainLost(space packetSpace, fn func(frame)) {
	for _, f := range r.lost[space] {
		fn(f)
	}
	r.lost[space] = r.lost[space][:0]
}

// detectAndRemoveLostPackets implements RFC 9002 Section 6.1: a sent
// packet is lost once a later packet is acknowledged and either the
// packet-number gap or the elapsed time exceeds threshold.
func (r *lossRecovery) detectAndRemoveLostPackets(space packetSpace, now time.Time) {
	largestAcked := r.largestAckedPacket[space]
	if largestAcked < 0 {
		return
	}
	lossDelay := maxDuration(r.smoothedRTT, r.latestRTT) * kTimeThresholdNum / kTimeThresholdDen
	if lossDelay < kGranularity {
		lossDelay = kGranularity
	}
	r.lossTime[space] = time.Time{}
	var lostBytes uint64
	var earliestLoss time.Time
	remaining := r.sent[space][:0:0]
	for _, p := range r.sent[space] {
		if p.packetNumber > largestAcked {
			remaining = append(remaining, p)
			continue
		}
		lostByTime := now.Sub(p.timeSent) >= lossDelay
		lostByCount := largestAcked-p.packetNumber >= kPacketThreshold
		if lostByTime || lostByCount {
			r.lost[space] = append(r.lost[space], p.frames...)
			if p.inFlight {
				lostBytes += p.size
			}
			continue
		}
		remaining = append(remaining, p)
		candidate := p.timeSent.Add(lossDelay)
		if earliestLoss.IsZero() || candidate.Before(earliestLoss) {
			earliestLoss = candidate
		}
	}
	r.sent[space] = remaining
	r.lossTime[space] = earliestLoss
	if lostBytes > 0 {
		r.cc.onPacketLost(lostBytes, now)
	}
}

// dropUnackedData discards all in-flight bookkeeping for space, called
// when its packet number space is dropped entirely (Section 6.2.2.2).
func (r *lossRecovery) dropUnackedData(space packetSpace) {
	r.sent[space] = nil
	r.ackedPackets[space] = nil
	r.lost[space] = nil
	r.lossTime[space] = time.Time{}
	r.timeOfLastAckElicitingPacket[space] = time.Time{}
	r.setLossDetectionTimer()
}

// setLossDetectionTimer implements the SetLossDetectionTimer pseudocode of
// RFC 9002 Appendix A.8, arming either the earliest per-space loss timer or
// a probe timeout.
func (r *lossRecovery) setLossDetectionTimer() {
	if earliestSpace, t := r.earliestLossTime(); !t.IsZero() {
		_ = earliestSpace
		r.lossDetectionTimer = t
		return
	}
	if r.bytesInFlight() == 0 {
		r.lossDetectionTimer = time.Time{}
		return
	}
	space, last := r.lastAckElicitingSpace()
	if last.IsZero() {
		r.lossDetectionTimer = time.Time{}
		return
	}
	_ = space
	r.lossDetectionTimer = last.Add(r.probeTimeout())
}

func (r *lossRecovery) earliestLossTime() (packetSpace, time.Time) {
	var best time.Time
	var bestSpace packetSpace
	for i := packetSpaceInitial; i < packetSpaceCount; i++ {
		if r.lossTime[i].IsZero() {
			continue
		}
		if best.IsZero() || r.lossTime[i].Before(best) {
			best = r.lossTime[i]
			bestSpace = i
		}
	}
	return bestSpace, best
}

func (r *lossRecovery) lastAckElicitingSpace() (packetSpace, time.Time) {
	var best time.Time
	var bestSpace packetSpace
	for i := packetSpaceInitial; i < packetSpaceCount; i++ {
		if r.timeOfLastAckElicitingPacket[i].IsZero() {
			continue
		}
		if best.IsZero() || r.timeOfLastAckElicitingPacket[i].After(best) {
			best = r.timeOfLastAckElicitingPacket[i]
			bestSpace = i
		}
	}
	return bestSpace, best
}

// onLossDetectionTimeout is RFC 9002 Appendix A.9: either declare the
// earliest-timing-out packets lost, or arm a probe.
func (r *lossRecovery) onLossDetectionTimeout(now time.Time) {
	if r.lossDetectionTimer.IsZero() || now.Before(r.lossDetectionTimer) {
		return
	}
	if space, t := r.earliestLossTime(); !t.IsZero() {
		r.detectAndRemoveLostPackets(space, now)
		r.setLossDetectionTimer()
		return
	}
	r.ptoCount++
	if r.ptoCount > kMaxProbesBeforeIdle {
		r.probes = 1
	} else {
		r.probes = 2
	}
	r.setLossDetectionTimer()
}

// probeTimeout returns the current (possibly exponentially backed off)
// probe timeout duration, RFC 9002 Section 6.2.1.
func (r *lossRecovery) probeTimeout() time.Duration {
	base := r.smoothedRTT + maxDuration(4*r.rttvar, kGranularity) + r.maxAckDelay
	for i := 0; i < r.ptoCount; i++ {
		base *= 2
	}
	return base
}

func (r *lossRecovery) bytesInFlight() uint64 {
	return r.cc.bytesInFlight()
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
