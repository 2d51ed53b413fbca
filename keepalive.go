package mqtt

// keepAlive tracks the ping clock for a connected session.
// nextOutboundPing and pendingPingresp are both absolute
// elapsed-millis deadlines; 0 means unarmed.
type keepAlive struct {
	intervalSeconds  uint16
	pingTimeoutMs    int64
	nextOutboundPing int64
	pendingPingresp  int64
	pingQueued       bool
}

func newKeepAlive(intervalSeconds uint16, pingTimeoutMs int64) *keepAlive {
	return &keepAlive{intervalSeconds: intervalSeconds, pingTimeoutMs: pingTimeoutMs}
}

// armOnConnected is called the instant the engine enters Connected.
func (k *keepAlive) armOnConnected(now int64) {
	if k.intervalSeconds == 0 {
		k.nextOutboundPing = 0
		return
	}
	k.nextOutboundPing = now + int64(k.intervalSeconds)*1000
}

// slideOnTraffic is called on every completed write and every received
// ack: any traffic counts as a ping.
func (k *keepAlive) slideOnTraffic(flushedAt int64) {
	if k.intervalSeconds == 0 {
		return
	}
	k.nextOutboundPing = flushedAt + int64(k.intervalSeconds)*1000
}

// duePing reports whether now has reached the outbound ping deadline.
// Once a Pingreq has been queued for sending, duePing stays false until
// armPingresp (called on flush) clears pingQueued, so the same deadline
// doesn't enqueue a second Pingreq while the first is still in flight.
func (k *keepAlive) duePing(now int64) bool {
	return !k.pingQueued && k.nextOutboundPing != 0 && now >= k.nextOutboundPing
}

// markPingQueued is called the instant a Pingreq operation is queued,
// before it has actually been flushed to the wire.
func (k *keepAlive) markPingQueued() {
	k.pingQueued = true
}

// armPingresp is called right after a Pingreq is flushed to the wire.
func (k *keepAlive) armPingresp(now int64) {
	half := int64(k.intervalSeconds) * 500 // keepAlive/2 in ms
	timeout := half
	if k.pingTimeoutMs > 0 && k.pingTimeoutMs < half {
		timeout = k.pingTimeoutMs
	}
	k.pendingPingresp = now + timeout
	k.nextOutboundPing = 0
	k.pingQueued = false
}

func (k *keepAlive) clearPingresp() {
	k.pendingPingresp = 0
}

func (k *keepAlive) pingrespExpired(now int64) bool {
	return k.pendingPingresp != 0 && now >= k.pendingPingresp
}

// nextDeadline returns the soonest of the two keep-alive deadlines, or
// 0 if neither is armed.
func (k *keepAlive) nextDeadline() int64 {
	switch {
	case k.nextOutboundPing != 0 && k.pendingPingresp != 0:
		return min64(k.nextOutboundPing, k.pendingPingresp)
	case k.nextOutboundPing != 0:
		return k.nextOutboundPing
	default:
		return k.pendingPingresp
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
