package mqtt

import (
	"errors"
	"fmt"
	"math"

	"github.com/webmqtt/engine/packet"
)

// EngineState is the connection phase of the protocol engine.
type EngineState int

const (
	Disconnected EngineState = iota
	PendingConnack
	Connected
)

func (s EngineState) String() string {
	switch s {
	case PendingConnack:
		return "pending_connack"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrOperationTimeout fails an operation whose own deadline passed
	// before its ack (or write completion) arrived.
	ErrOperationTimeout = errors.New("mqtt: operation timed out")

	// ErrOfflinePolicyDropped fails an operation dropped by the
	// configured OfflineQueuePolicy, either at submission while
	// disconnected or during disconnect processing.
	ErrOfflinePolicyDropped = errors.New("mqtt: operation dropped by offline queue policy")

	// ErrConnectionClosed fails internal and user operations that
	// cannot survive a disconnect regardless of policy.
	ErrConnectionClosed = errors.New("mqtt: connection closed")
)

// Engine is the deterministic MQTT protocol state machine. It performs
// no I/O, owns no timers and spawns no goroutines: the adapter drives
// it through HandleNetworkEvent, HandleUserEvent, Service and
// NextServiceTimepoint, all carrying a caller-supplied monotonic
// elapsed-milliseconds clock. The four entry points must never be
// called concurrently.
type Engine struct {
	options Options

	state  EngineState
	halted *HaltError

	// OnPublishReceived is invoked for every inbound PUBLISH the
	// engine accepts (after inbound validation). The adapter
	// synthesizes its MessageReceived surface from this.
	OnPublishReceived func(*packet.PUBLISH)

	// OnHalted is invoked exactly once per halt, the moment the latch
	// is set. The adapter is expected to close the transport.
	OnHalted func(HaltedEvent)

	enc *encoder
	dec *decoder

	nextOpID   uint64
	operations map[uint64]*operation

	highPriorityQueue fifoQueue
	resubmitQueue     fifoQueue
	userQueue         fifoQueue

	// currentOperation is mid-encode: its bytes are partially drained
	// into the caller's buffer and the encoder holds the remainder.
	currentOperation *operation

	pendingPublishAcks    map[uint64]*operation
	pendingNonPublishAcks map[uint64]*operation

	// pendingFlushOperations holds operations whose bytes have fully
	// entered the socket buffer but whose WriteCompletion has not yet
	// arrived. Non-exclusive with the ack maps: a QoS 1 publish sits
	// in both until the write completes.
	pendingFlushOperations map[uint64]*operation

	packetIDs *packetIDAllocator
	timeouts  timeoutHeap
	keepalive *keepAlive

	settings        NegotiatedSettings
	connackDeadline int64
	connectSent     bool

	// connectSessionExpiryWasZero gates the DISCONNECT
	// sessionExpiryInterval>0 rule in the binary validator.
	connectSessionExpiryWasZero bool

	now int64
}

// NewEngine builds an engine in Disconnected state. The engine is
// inert until the adapter reports ConnectionOpened.
func NewEngine(options Options) *Engine {
	return &Engine{
		options:                options,
		state:                  Disconnected,
		enc:                    newEncoder(),
		dec:                    newDecoder(options.Version),
		nextOpID:               1,
		operations:             make(map[uint64]*operation),
		pendingPublishAcks:     make(map[uint64]*operation),
		pendingNonPublishAcks:  make(map[uint64]*operation),
		pendingFlushOperations: make(map[uint64]*operation),
		packetIDs:              newPacketIDAllocator(),
		keepalive:              newKeepAlive(options.KeepAliveIntervalSeconds, options.PingTimeoutMs),
		settings:               defaultNegotiatedSettings(options.ClientID, options.KeepAliveIntervalSeconds),
	}
}

// State reports the engine's current connection phase.
func (e *Engine) State() EngineState { return e.state }

// Halted returns the latched halt error, or nil.
func (e *Engine) Halted() *HaltError { return e.halted }

// NegotiatedSettings returns the settings fixed at the last successful
// Connack. Meaningful only in Connected.
func (e *Engine) NegotiatedSettings() NegotiatedSettings { return e.settings }

func (e *Engine) advanceClock(elapsedMillis int64) {
	if elapsedMillis > e.now {
		e.now = elapsedMillis
	}
}

// halt latches the terminal error and raises the Halted event. It does
// not close the transport; the adapter does that in response. A second
// halt while already latched is swallowed (single-shot).
func (e *Engine) halt(err *HaltError) {
	if e.halted != nil {
		return
	}
	e.halted = err
	if e.OnHalted != nil {
		e.OnHalted(HaltedEvent{Kind: err.Kind, Reason: err.Reason})
	}
}

// HandleNetworkEvent feeds a transport lifecycle event into the engine.
func (e *Engine) HandleNetworkEvent(ev *NetworkEvent) error {
	e.advanceClock(ev.ElapsedMillis)
	switch ev.Kind {
	case ConnectionOpened:
		return e.onConnectionOpened(ev.EstablishmentTimeoutMillis)
	case ConnectionClosed:
		e.onConnectionClosed()
		return nil
	case IncomingData:
		return e.onIncomingData(ev.Data)
	case WriteCompletion:
		e.onWriteCompletion()
		return nil
	default:
		return fmt.Errorf("mqtt: unknown network event kind %d", ev.Kind)
	}
}

// onConnectionOpened resets per-connection machinery, clears a halt
// latched on the previous transport, and queues the engine's own
// CONNECT. Reopening is the only thing that un-halts an engine.
func (e *Engine) onConnectionOpened(establishmentTimeoutMillis int64) error {
	if e.state != Disconnected {
		e.halt(haltf(HaltUnknown, "connection opened while %s", e.state))
		return e.halted
	}
	e.halted = nil
	e.enc.reset()
	e.dec.reset()
	e.currentOperation = nil
	e.keepalive = newKeepAlive(e.options.KeepAliveIntervalSeconds, e.options.PingTimeoutMs)

	connect := &packet.ConnectRequest{
		ClientID:                     e.options.ClientID,
		Username:                     e.options.Username,
		Password:                     e.options.Password,
		CleanStart:                   e.options.CleanStart,
		KeepAlive:                    e.options.KeepAliveIntervalSeconds,
		Will:                         e.options.Will,
		SessionExpiryIntervalSeconds: e.options.SessionExpiryIntervalSeconds,
		ReceiveMaximum:               e.options.ReceiveMaximum,
		MaximumPacketSize:            e.options.MaximumPacketSize,
	}
	if err := validateUserConnect(connect); err != nil {
		e.halt(haltf(HaltUnknown, "connect options invalid: %v", err))
		return e.halted
	}
	bin, err := packet.ToBinary(e.options.Version, connect, 0)
	if err != nil {
		e.halt(haltf(HaltUnknown, "connect conversion failed: %v", err))
		return e.halted
	}
	e.connectSessionExpiryWasZero = e.options.SessionExpiryIntervalSeconds == 0

	op := e.newOperation(CONNECT, bin, 0, nil, 0)
	e.highPriorityQueue.pushBack(op)
	e.connectSent = false
	e.connackDeadline = e.now + establishmentTimeoutMillis
	e.state = PendingConnack
	return nil
}

// HandleUserEvent submits a user operation. A validation failure fails
// only this submission; the engine state is untouched.
func (e *Engine) HandleUserEvent(ev *UserEvent) error {
	e.advanceClock(ev.ElapsedMillis)
	handle := ev.completionHandle()
	if e.halted != nil {
		handle.notifyFailure(e.halted)
		return e.halted
	}

	var (
		kind     byte
		req      any
		category operationCategory
	)
	switch ev.Kind {
	case UserPublish:
		if err := validateUserPublish(ev.Publish); err != nil {
			handle.notifyFailure(err)
			return err
		}
		kind, req = PUBLISH, ev.Publish
		category = categoryPublishQos0
		if ev.Publish.QoS > 0 {
			category = categoryPublishQosAtLeast1
		}
	case UserSubscribe:
		if err := validateUserSubscribe(ev.Subscribe); err != nil {
			handle.notifyFailure(err)
			return err
		}
		kind, req, category = SUBSCRIBE, ev.Subscribe, categorySubscribeUnsubscribe
	case UserUnsubscribe:
		if err := validateUserUnsubscribe(ev.Unsubscribe); err != nil {
			handle.notifyFailure(err)
			return err
		}
		kind, req, category = UNSUBSCRIBE, ev.Unsubscribe, categorySubscribeUnsubscribe
	case UserDisconnect:
		if err := validateUserDisconnect(ev.Disconnect); err != nil {
			handle.notifyFailure(err)
			return err
		}
		kind, req, category = DISCONNECT, ev.Disconnect, categorySubscribeUnsubscribe
	default:
		err := fmt.Errorf("mqtt: unknown user event kind %d", ev.Kind)
		handle.notifyFailure(err)
		return err
	}

	// Conversion to binary form happens here, exactly once per
	// submission. The packet id stays 0 until the operation is first
	// chosen for transmission.
	bin, err := packet.ToBinary(e.options.Version, req, 0)
	if err != nil {
		handle.notifyFailure(err)
		return err
	}

	if e.state == Disconnected {
		if ev.Kind == UserDisconnect {
			handle.notifyFailure(ErrConnectionClosed)
			return ErrConnectionClosed
		}
		if !survivesDisconnect(e.options.OfflineQueuePolicy, category) {
			handle.notifyFailure(ErrOfflinePolicyDropped)
			return ErrOfflinePolicyDropped
		}
	}

	timeout := ev.TimeoutMillis
	if timeout == 0 {
		timeout = e.options.DefaultOperationTimeoutMs
	}
	op := e.newOperation(kind, bin, category, handle, timeout)

	if kind == DISCONNECT {
		e.highPriorityQueue.pushBack(op)
	} else {
		e.userQueue.pushBack(op)
	}
	return nil
}

func (e *Engine) newOperation(kind byte, bin packet.Packet, category operationCategory, handle completionHandle, timeoutMillis int64) *operation {
	op := &operation{
		id:       e.nextOpID,
		kind:     kind,
		binary:   bin,
		category: category,
		complete: handle,
	}
	e.nextOpID++
	e.operations[op.id] = op
	if timeoutMillis > 0 {
		op.timeoutAt = e.now + timeoutMillis
		e.timeouts.push(timeoutEntry{timeoutAt: op.timeoutAt, opID: op.id})
	}
	return op
}

// Service drains due work into buf: timeout expiry, keep-alive pings,
// then queued operations encoded in priority order. The returned
// ServiceResult.ToSocket slice aliases buf and is valid only until the
// next engine call.
func (e *Engine) Service(elapsedMillis int64, buf []byte) (ServiceResult, error) {
	e.advanceClock(elapsedMillis)
	if e.halted != nil {
		return ServiceResult{}, e.halted
	}

	switch e.state {
	case Disconnected:
		return ServiceResult{}, nil
	case PendingConnack:
		if e.now >= e.connackDeadline {
			e.halt(haltf(HaltTimeout, "connack not received within establishment timeout"))
			return ServiceResult{}, e.halted
		}
	case Connected:
		if e.keepalive.pingrespExpired(e.now) {
			e.halt(haltf(HaltTimeout, "pingresp not received within ping timeout"))
			return ServiceResult{}, e.halted
		}
		e.expireOperationTimeouts()
		if e.keepalive.duePing(e.now) {
			e.enqueuePingreq()
		}
	}

	written := e.drainQueues(buf)
	if e.halted != nil {
		return ServiceResult{}, e.halted
	}
	if written == 0 {
		return ServiceResult{}, nil
	}
	return ServiceResult{ToSocket: buf[:written]}, nil
}

func (e *Engine) expireOperationTimeouts() {
	var deferred []timeoutEntry
	defer func() {
		for _, entry := range deferred {
			e.timeouts.push(entry)
		}
	}()
	for !e.timeouts.empty() {
		entry, _ := e.timeouts.peek()
		if entry.timeoutAt > e.now {
			return
		}
		e.timeouts.pop()
		op, live := e.operations[entry.opID]
		if !live || op.timeoutAt != entry.timeoutAt {
			continue
		}
		if op == e.currentOperation {
			// Bytes are partially on the wire; failing it now would
			// corrupt the stream. The entry goes back on the heap so
			// the timeout still applies on a later pass once the
			// encode completes.
			deferred = append(deferred, entry)
			continue
		}
		e.failOperation(op, ErrOperationTimeout)
	}
}

func (e *Engine) enqueuePingreq() {
	ping := &packet.PINGREQ{FixedHeader: &packet.FixedHeader{Version: e.options.Version, Kind: PINGREQ}}
	op := e.newOperation(PINGREQ, ping, 0, nil, 0)
	e.highPriorityQueue.pushFront(op)
	e.keepalive.markPingQueued()
}

// drainQueues encodes operations into buf until the buffer fills or no
// operation is eligible. Priority: high > resubmit > user.
func (e *Engine) drainQueues(buf []byte) int {
	written := 0
	for written < len(buf) && e.halted == nil {
		if e.currentOperation == nil {
			op := e.dequeueNext()
			if op == nil {
				break
			}
			if _, live := e.operations[op.id]; !live {
				// Failed while queued (operation timeout); its token
				// already fired, nothing to transmit.
				continue
			}
			if !e.startOperation(op) {
				continue
			}
		}
		status, n := e.enc.service(buf[written:])
		written += n
		if status == encodeInProgress {
			break
		}
		e.finishEncoding(e.currentOperation)
		e.currentOperation = nil
	}
	return written
}

// dequeueNext picks the next eligible operation. The receive-maximum
// gate holds QoS>=1 publishes at the head of the user queue without
// blocking the higher-priority queues.
func (e *Engine) dequeueNext() *operation {
	if op := e.highPriorityQueue.popFront(); op != nil {
		return op
	}
	if e.state != Connected {
		return nil
	}
	if op := e.resubmitQueue.peekFront(); op != nil {
		if e.publishAckCapacityExhausted(op) {
			return nil
		}
		return e.resubmitQueue.popFront()
	}
	if op := e.userQueue.peekFront(); op != nil {
		if e.publishAckCapacityExhausted(op) {
			return nil
		}
		return e.userQueue.popFront()
	}
	return nil
}

func (e *Engine) publishAckCapacityExhausted(op *operation) bool {
	return op.category == categoryPublishQosAtLeast1 &&
		len(e.pendingPublishAcks) >= int(e.settings.ReceiveMaximumFromServer)
}

// startOperation binds a packet id if the type needs one, runs the
// pre-encode binary validation and initializes the encoder. Returns
// false if the operation failed and the drain loop should continue
// with the next one.
func (e *Engine) startOperation(op *operation) bool {
	if op.needsPacketID() && op.packetID == 0 {
		id, err := e.packetIDs.allocate(op.id)
		if err != nil {
			var halt *HaltError
			if errors.As(err, &halt) {
				e.halt(halt)
				return false
			}
			e.failOperation(op, err)
			return false
		}
		op.packetID = id
		setBinaryPacketID(op.binary, id)
	}

	if err := e.validateBinaryOutbound(op); err != nil {
		e.failOperation(op, err)
		return false
	}
	if err := e.enc.initForPacket(op.binary); err != nil {
		e.failOperation(op, fmt.Errorf("mqtt: encode failed: %w", err))
		return false
	}
	op.numAttempts++
	e.currentOperation = op
	return true
}

func (e *Engine) validateBinaryOutbound(op *operation) error {
	switch pkt := op.binary.(type) {
	case *packet.PUBLISH:
		return validateBinaryPublish(pkt, e.settings)
	case *packet.SUBSCRIBE:
		return validateBinarySubscribe(pkt, e.settings)
	case *packet.UNSUBSCRIBE:
		return validateBinaryUnsubscribe(pkt, e.settings)
	case *packet.CONNECT:
		return validateBinaryConnect(pkt, e.settings)
	case *packet.DISCONNECT:
		return validateBinaryDisconnect(pkt, e.settings, e.connectSessionExpiryWasZero)
	default:
		return nil
	}
}

// finishEncoding records where a fully-encoded operation waits next:
// every operation waits for its WriteCompletion; ack-bearing ones
// additionally enter the matching ack map.
func (e *Engine) finishEncoding(op *operation) {
	e.pendingFlushOperations[op.id] = op
	switch op.kind {
	case CONNECT:
		e.connectSent = true
	case PUBLISH:
		if op.category == categoryPublishQosAtLeast1 {
			e.pendingPublishAcks[op.id] = op
		}
	case SUBSCRIBE, UNSUBSCRIBE:
		e.pendingNonPublishAcks[op.id] = op
	}
}

// onWriteCompletion is reported by the adapter once the bytes handed
// out by the previous Service call have fully left the socket buffer.
func (e *Engine) onWriteCompletion() {
	for id, op := range e.pendingFlushOperations {
		delete(e.pendingFlushOperations, id)
		op.flushAt = e.now
		e.keepalive.slideOnTraffic(e.now)

		switch op.kind {
		case PINGREQ:
			e.keepalive.armPingresp(e.now)
			e.releaseOperation(op)
		case CONNECT, PUBACK:
			e.releaseOperation(op)
		case DISCONNECT:
			e.completeOperation(op, struct{}{})
			e.halt(haltf(HaltNormal, "user disconnect"))
		case PUBLISH:
			if op.category == categoryPublishQos0 {
				e.completeOperation(op, PublishResult{})
			}
		}
	}
}

// onIncomingData decodes, validates and routes every packet in chunk.
// A decode or inbound-validation failure halts with ProtocolError.
func (e *Engine) onIncomingData(chunk []byte) error {
	if e.halted != nil {
		return e.halted
	}
	pkts, err := e.dec.decode(chunk)
	for _, pkt := range pkts {
		if verr := validateInbound(pkt); verr != nil {
			e.halt(haltf(HaltProtocolError, "%v", verr))
			return e.halted
		}
		if herr := e.routeInbound(pkt); herr != nil {
			return herr
		}
	}
	if err != nil {
		e.halt(haltf(HaltProtocolError, "decode failed: %v", err))
		return e.halted
	}
	return nil
}

func (e *Engine) routeInbound(pkt packet.Packet) error {
	if e.state == PendingConnack {
		connack, ok := pkt.(*packet.CONNACK)
		if !ok || !e.connectSent {
			e.halt(haltf(HaltProtocolError, "%s received before connack", pkt))
			return e.halted
		}
		return e.onConnack(connack)
	}

	switch p := pkt.(type) {
	case *packet.PUBLISH:
		e.onIncomingPublish(p)
	case *packet.PUBACK:
		e.onAck(p.PacketID, e.pendingPublishAcks, func(op *operation) {
			e.completeOperation(op, PublishResult{PacketID: p.PacketID})
		})
	case *packet.SUBACK:
		e.onAck(p.PacketID, e.pendingNonPublishAcks, func(op *operation) {
			e.completeOperation(op, p)
		})
	case *packet.UNSUBACK:
		e.onAck(p.PacketID, e.pendingNonPublishAcks, func(op *operation) {
			e.completeOperation(op, p)
		})
	case *packet.PINGRESP:
		e.keepalive.clearPingresp()
		e.keepalive.slideOnTraffic(e.now)
	case *packet.DISCONNECT:
		e.halt(haltf(HaltNormal, "server disconnect: 0x%02X", p.ReasonCode.Code))
		return e.halted
	case *packet.CONNACK:
		e.halt(haltf(HaltProtocolError, "connack received while %s", e.state))
		return e.halted
	default:
		e.halt(haltf(HaltProtocolError, "unexpected inbound %s", pkt))
		return e.halted
	}
	return nil
}

// onConnack is only reachable in PendingConnack with our CONNECT on the
// wire. Success fixes the negotiated settings and enters Connected;
// anything else halts with the server's reason embedded.
func (e *Engine) onConnack(connack *packet.CONNACK) error {
	if connack.ConnectReturnCode.Code != packet.CodeSuccess.Code {
		e.halt(haltf(HaltNormal, "connection rejected: 0x%02X", connack.ConnectReturnCode.Code))
		return e.halted
	}

	e.settings = negotiateFromConnack(
		e.options.ClientID,
		e.options.KeepAliveIntervalSeconds,
		e.options.SessionExpiryIntervalSeconds,
		connack,
	)
	e.state = Connected
	e.keepalive.intervalSeconds = e.settings.ServerKeepAlive
	e.keepalive.armOnConnected(e.now)

	if !e.settings.RejoinedSession {
		// No prior session on the broker: pending retransmissions are
		// demoted to first-time sends under the offline policy and
		// every stale packet-id binding is dropped. Queued operations
		// that were bound before the disconnect rebind on their next
		// transmission.
		e.packetIDs.clear()
		for _, op := range e.userQueue.items {
			if op.packetID != 0 {
				op.packetID = 0
				setBinaryPacketID(op.binary, 0)
			}
		}
		for _, op := range e.resubmitQueue.drain() {
			op.packetID = 0
			setBinaryPacketID(op.binary, 0)
			if pub, ok := op.binary.(*packet.PUBLISH); ok {
				pub.Dup = 0
			}
			if !survivesDisconnect(e.options.OfflineQueuePolicy, op.category) {
				e.failOperation(op, ErrOfflinePolicyDropped)
				continue
			}
			e.userQueue.pushBack(op)
		}
	}
	e.resubmitQueue.sortByOpID()
	e.userQueue.sortByOpID()
	return nil
}

func (e *Engine) onIncomingPublish(pub *packet.PUBLISH) {
	if pub.QoS == 1 {
		puback := &packet.PUBACK{
			FixedHeader: &packet.FixedHeader{Version: e.options.Version, Kind: PUBACK},
			PacketID:    pub.PacketID,
			ReasonCode:  packet.CodeSuccess,
		}
		op := e.newOperation(PUBACK, puback, 0, nil, 0)
		e.highPriorityQueue.pushFront(op)
	}
	if e.OnPublishReceived != nil {
		e.OnPublishReceived(pub)
	}
}

// onAck correlates an inbound ack with its pending operation. A miss
// (ack arriving after the operation timed out) is ignored, not an
// error.
func (e *Engine) onAck(packetID uint16, pending map[uint64]*operation, complete func(*operation)) {
	e.keepalive.slideOnTraffic(e.now)
	opID, ok := e.packetIDs.opFor(packetID)
	if !ok {
		return
	}
	op, ok := pending[opID]
	if !ok {
		return
	}
	delete(pending, opID)
	complete(op)
}

// onConnectionClosed runs the disconnect-time offline policy over
// every live operation: high-priority entries fail, flush-pending and
// user-queued operations filter by policy, unacked publishes go to the
// resubmit queue marked duplicate.
func (e *Engine) onConnectionClosed() {
	e.state = Disconnected
	e.connectSent = false
	policy := e.options.OfflineQueuePolicy

	for _, op := range e.highPriorityQueue.drain() {
		e.failOperation(op, ErrConnectionClosed)
	}

	// A mid-encode operation has partially left the wire; treat it
	// like a flush-pending one so policy decides its fate.
	if op := e.currentOperation; op != nil {
		e.currentOperation = nil
		e.enc.reset()
		if _, waiting := e.pendingFlushOperations[op.id]; !waiting {
			e.pendingFlushOperations[op.id] = op
		}
	}

	var preservedFlush []*operation
	for id, op := range e.pendingFlushOperations {
		delete(e.pendingFlushOperations, id)
		if _, acks := e.pendingPublishAcks[id]; acks {
			continue // handled below with the ack map
		}
		if _, acks := e.pendingNonPublishAcks[id]; acks {
			continue
		}
		if op.kind != PUBLISH && op.kind != SUBSCRIBE && op.kind != UNSUBSCRIBE {
			e.failOperation(op, ErrConnectionClosed)
			continue
		}
		if !survivesDisconnect(policy, op.category) {
			e.failOperation(op, ErrOfflinePolicyDropped)
			continue
		}
		preservedFlush = append(preservedFlush, op)
	}

	for id, op := range e.pendingNonPublishAcks {
		delete(e.pendingNonPublishAcks, id)
		if !survivesDisconnect(policy, op.category) {
			e.failOperation(op, ErrOfflinePolicyDropped)
			continue
		}
		e.userQueue.pushBack(op)
	}

	// Unacked QoS>=1 publishes are preserved unconditionally: they are
	// session state the broker may still hold, so they go back marked
	// as duplicates regardless of policy.
	for id, op := range e.pendingPublishAcks {
		delete(e.pendingPublishAcks, id)
		if pub, ok := op.binary.(*packet.PUBLISH); ok {
			pub.Dup = 1
		}
		e.resubmitQueue.pushBack(op)
	}

	kept := e.userQueue.drain()
	for _, op := range kept {
		if !survivesDisconnect(policy, op.category) {
			e.failOperation(op, ErrOfflinePolicyDropped)
			continue
		}
		e.userQueue.pushBack(op)
	}
	e.userQueue.appendAll(preservedFlush)
	e.userQueue.sortByOpID()
	e.resubmitQueue.sortByOpID()
}

// NextServiceTimepoint returns the elapsed-milliseconds timestamp at
// which the adapter should next call Service. A value <= now means
// "service immediately"; math.MaxInt64 means nothing is scheduled.
func (e *Engine) NextServiceTimepoint(elapsedMillis int64) int64 {
	e.advanceClock(elapsedMillis)
	if e.halted != nil {
		return math.MaxInt64
	}
	next := int64(math.MaxInt64)

	switch e.state {
	case PendingConnack:
		next = e.connackDeadline
		if !e.highPriorityQueue.empty() || e.currentOperation != nil {
			return e.now
		}
	case Connected:
		if !e.highPriorityQueue.empty() || !e.resubmitQueue.empty() || !e.userQueue.empty() || e.currentOperation != nil {
			return e.now
		}
		if d := e.keepalive.nextDeadline(); d != 0 && d < next {
			next = d
		}
		if entry, ok := e.timeouts.peek(); ok && entry.timeoutAt < next {
			next = entry.timeoutAt
		}
	}
	return next
}

// completeOperation fires the success callback and releases all
// engine-side state for op. A second completion of the same operation
// (e.g. queue-resident op already failed by its timeout) is a no-op so
// the single-shot handle fires exactly once.
func (e *Engine) completeOperation(op *operation, result any) {
	if _, live := e.operations[op.id]; !live {
		return
	}
	e.releaseOperation(op)
	if op.complete != nil {
		op.complete.notifySuccess(result)
	}
}

// failOperation fires the failure callback and releases all
// engine-side state for op. No-op if the operation already completed.
func (e *Engine) failOperation(op *operation, err error) {
	if _, live := e.operations[op.id]; !live {
		return
	}
	e.releaseOperation(op)
	if op.complete != nil {
		op.complete.notifyFailure(err)
	}
}

func (e *Engine) releaseOperation(op *operation) {
	e.packetIDs.release(op.id)
	delete(e.operations, op.id)
	delete(e.pendingPublishAcks, op.id)
	delete(e.pendingNonPublishAcks, op.id)
	delete(e.pendingFlushOperations, op.id)
}

// setBinaryPacketID writes the bound (or cleared) packet id into the
// wire struct, keeping the binary form in sync with the allocator.
func setBinaryPacketID(p packet.Packet, id uint16) {
	switch pkt := p.(type) {
	case *packet.PUBLISH:
		pkt.PacketID = id
	case *packet.SUBSCRIBE:
		pkt.PacketID = id
	case *packet.UNSUBSCRIBE:
		pkt.PacketID = id
	}
}
