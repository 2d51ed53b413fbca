package mqtt

import (
	"sort"

	"github.com/webmqtt/engine/packet"
)

// operation is the engine's unit of work. binary is built once, at
// submission time, by packet.ToBinary and never rebuilt.
type operation struct {
	id          uint64
	kind        byte // packet.Kind-style MQTT control packet type
	binary      packet.Packet
	packetID    uint16 // 0 until bound
	category    operationCategory
	numAttempts int
	timeoutAt   int64 // 0 means no deadline
	flushAt     int64 // 0 means not yet flushed

	complete completionHandle
}

func (op *operation) needsPacketID() bool {
	switch op.kind {
	case SUBSCRIBE, UNSUBSCRIBE:
		return true
	case PUBLISH:
		return op.binary.(*packet.PUBLISH).QoS > 0
	default:
		return false
	}
}

// fifoQueue is a simple ordered operation list supporting the
// engine's queue operations: append, push-front (for priority
// reinsertion), peek/pop front, drain, append-all, and op-id sort (used to
// restore submission order across a session-resuming reconnect).
type fifoQueue struct {
	items []*operation
}

func (q *fifoQueue) empty() bool { return len(q.items) == 0 }

func (q *fifoQueue) pushBack(op *operation) { q.items = append(q.items, op) }

func (q *fifoQueue) pushFront(op *operation) {
	q.items = append([]*operation{op}, q.items...)
}

func (q *fifoQueue) peekFront() *operation {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *fifoQueue) popFront() *operation {
	if len(q.items) == 0 {
		return nil
	}
	op := q.items[0]
	q.items = q.items[1:]
	return op
}

// drain removes and returns every operation currently queued.
func (q *fifoQueue) drain() []*operation {
	items := q.items
	q.items = nil
	return items
}

func (q *fifoQueue) appendAll(ops []*operation) {
	q.items = append(q.items, ops...)
}

func (q *fifoQueue) sortByOpID() {
	sort.Slice(q.items, func(i, j int) bool { return q.items[i].id < q.items[j].id })
}
