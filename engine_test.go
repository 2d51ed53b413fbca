package mqtt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/webmqtt/engine/packet"
)

func packBytes(t *testing.T, p packet.Packet) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := p.Pack(&buf); err != nil {
		t.Fatalf("pack %s: %v", p, err)
	}
	return buf.Bytes()
}

func successConnack(version byte, sessionPresent uint8, props *packet.ConnackProps) *packet.CONNACK {
	return &packet.CONNACK{
		FixedHeader:       &packet.FixedHeader{Version: version, Kind: 0x2},
		SessionPresent:    sessionPresent,
		ConnectReturnCode: packet.CodeSuccess,
		Props:             props,
	}
}

// openConnection drives the engine through ConnectionOpened, the
// CONNECT transmission and the given CONNACK, leaving it Connected.
func openConnection(t *testing.T, e *Engine, now int64, connack *packet.CONNACK) {
	t.Helper()
	if err := e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: now, Kind: ConnectionOpened, EstablishmentTimeoutMillis: 20_000}); err != nil {
		t.Fatalf("connection opened: %v", err)
	}
	buf := make([]byte, 64*1024)
	result, err := e.Service(now, buf)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if len(result.ToSocket) == 0 || result.ToSocket[0] != 0x10 {
		t.Fatalf("expected a CONNECT on the wire, got % X", result.ToSocket)
	}
	if err := e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: now, Kind: WriteCompletion}); err != nil {
		t.Fatalf("write completion: %v", err)
	}
	if err := e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: now, Kind: IncomingData, Data: packBytes(t, connack)}); err != nil {
		t.Fatalf("connack: %v", err)
	}
	if e.State() != Connected {
		t.Fatalf("state = %s after connack, want connected", e.State())
	}
}

// wirePackets splits a service output buffer into individual MQTT
// packets by walking the fixed headers.
func wirePackets(t *testing.T, b []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(b) > 0 {
		if len(b) < 2 {
			t.Fatalf("trailing garbage on the wire: % X", b)
		}
		remaining, n, ok := peekRemainingLength(b[1:])
		if !ok {
			t.Fatalf("unterminated remaining length: % X", b)
		}
		total := 1 + n + int(remaining)
		if len(b) < total {
			t.Fatalf("truncated packet on the wire: % X", b)
		}
		out = append(out, b[:total])
		b = b[total:]
	}
	return out
}

func TestEngineConnectFlow(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION500), KeepAlive(30)))
	openConnection(t, e, 0, successConnack(packet.VERSION500, 0, &packet.ConnackProps{
		ReceiveMaximum:    10,
		MaximumPacketSize: 4096,
		ServerKeepAlive:   25,
	}))

	s := e.NegotiatedSettings()
	if s.ReceiveMaximumFromServer != 10 {
		t.Errorf("ReceiveMaximumFromServer = %d, want 10", s.ReceiveMaximumFromServer)
	}
	if s.MaximumPacketSizeToServer != 4096 {
		t.Errorf("MaximumPacketSizeToServer = %d, want 4096", s.MaximumPacketSizeToServer)
	}
	if s.ServerKeepAlive != 25 {
		t.Errorf("ServerKeepAlive = %d, want 25", s.ServerKeepAlive)
	}
	if s.RejoinedSession {
		t.Errorf("RejoinedSession = true with sessionPresent=0")
	}
}

func TestEngineConnackDefaults(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION500), KeepAlive(30)))
	openConnection(t, e, 0, successConnack(packet.VERSION500, 0, nil))

	s := e.NegotiatedSettings()
	if s.ReceiveMaximumFromServer != 65535 {
		t.Errorf("ReceiveMaximumFromServer = %d, want spec default 65535", s.ReceiveMaximumFromServer)
	}
	if !s.RetainAvailable || !s.WildcardSubscriptionsAvailable || !s.SharedSubscriptionsAvailable {
		t.Errorf("server-feature defaults should all be available: %+v", s)
	}
	if s.MaximumQoS != 2 {
		t.Errorf("MaximumQoS = %d, want spec default 2", s.MaximumQoS)
	}
}

func TestEngineConnackRejectedHaltsNormal(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	var halted []HaltedEvent
	e.OnHalted = func(ev HaltedEvent) { halted = append(halted, ev) }

	e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionOpened, EstablishmentTimeoutMillis: 20_000})
	buf := make([]byte, 4096)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	connack := &packet.CONNACK{
		FixedHeader:       &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x2},
		ConnectReturnCode: packet.ReasonCode{Code: 0x05},
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, connack)})

	if len(halted) != 1 || halted[0].Kind != HaltNormal {
		t.Fatalf("halted = %+v, want one HaltNormal", halted)
	}
	if e.State() != PendingConnack {
		t.Errorf("halt must not change state by itself; state = %s", e.State())
	}
}

func TestEngineConnackTimeoutHalts(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionOpened, EstablishmentTimeoutMillis: 5_000})
	buf := make([]byte, 4096)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	if _, err := e.Service(6_000, buf); err == nil {
		t.Fatal("service past the establishment deadline should halt")
	}
	if e.Halted() == nil || e.Halted().Kind != HaltTimeout {
		t.Fatalf("halted = %+v, want HaltTimeout", e.Halted())
	}
}

func TestEngineConnackOnlyLegalPendingConnack(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, successConnack(packet.VERSION311, 0, nil))})
	if e.Halted() == nil || e.Halted().Kind != HaltProtocolError {
		t.Fatalf("second connack should halt with protocol error, got %+v", e.Halted())
	}
}

// Scenario: receiveMaximumFromServer=2, three QoS 1 publishes. Exactly
// two go on the wire; the third stays at the head of the user queue
// until a PUBACK frees capacity.
func TestEngineReceiveMaximumGate(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION500)))
	openConnection(t, e, 0, successConnack(packet.VERSION500, 0, &packet.ConnackProps{ReceiveMaximum: 2}))

	for i := 0; i < 3; i++ {
		ev, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "a/b", QoS: 1, Payload: []byte{byte(i)}})
		if err := e.HandleUserEvent(ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	buf := make([]byte, 64*1024)
	result, err := e.Service(0, buf)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	pkts := wirePackets(t, result.ToSocket)
	if len(pkts) != 2 {
		t.Fatalf("wrote %d packets, want exactly 2 under receiveMaximum=2", len(pkts))
	}
	for i, p := range pkts {
		if p[0]>>4 != 0x3 {
			t.Fatalf("packet %d is 0x%X, want PUBLISH", i, p[0]>>4)
		}
	}
	if got := len(e.pendingPublishAcks); got != 2 {
		t.Fatalf("pendingPublishAcks = %d, want 2", got)
	}
	if e.userQueue.empty() {
		t.Fatal("third publish should still be queued")
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	// Ack the first publish: capacity frees and the third goes out.
	puback := &packet.PUBACK{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0x4},
		PacketID:    1,
		ReasonCode:  packet.CodeSuccess,
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, puback)})

	result, err = e.Service(0, buf)
	if err != nil {
		t.Fatalf("service after puback: %v", err)
	}
	pkts = wirePackets(t, result.ToSocket)
	if len(pkts) != 1 || pkts[0][0]>>4 != 0x3 {
		t.Fatalf("after puback want the third PUBLISH, got %d packets", len(pkts))
	}
	if !e.userQueue.empty() {
		t.Fatal("user queue should have drained")
	}
}

// Scenario: keepAlive=30s, no traffic. Service at t=30000 emits the
// two-byte PINGREQ and arms pendingPingresp at 30000+min(15000,
// pingTimeout).
func TestEngineKeepAlivePing(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), KeepAlive(30), PingTimeout(10_000)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	buf := make([]byte, 4096)
	result, err := e.Service(29_999, buf)
	if err != nil || len(result.ToSocket) != 0 {
		t.Fatalf("no ping expected before the deadline, got % X (%v)", result.ToSocket, err)
	}

	result, err = e.Service(30_000, buf)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if !bytes.Equal(result.ToSocket, []byte{0xC0, 0x00}) {
		t.Fatalf("wire = % X, want C0 00", result.ToSocket)
	}
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 30_000, Kind: WriteCompletion})

	if got := e.keepalive.pendingPingresp; got != 40_000 {
		t.Fatalf("pendingPingresp = %d, want 30000+min(15000,10000)=40000", got)
	}

	// Pingresp in time clears the deadline.
	pingresp := &packet.PINGRESP{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0xD}}
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 31_000, Kind: IncomingData, Data: packBytes(t, pingresp)})
	if e.keepalive.pendingPingresp != 0 {
		t.Fatal("pingresp should clear the response deadline")
	}
}

func TestEngineKeepAlivePingrespTimeoutHalts(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), KeepAlive(30), PingTimeout(10_000)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	buf := make([]byte, 4096)
	e.Service(30_000, buf)
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 30_000, Kind: WriteCompletion})

	if _, err := e.Service(40_000, buf); err == nil {
		t.Fatal("pingresp deadline expiry should halt")
	}
	if e.Halted() == nil || e.Halted().Kind != HaltTimeout {
		t.Fatalf("halted = %+v, want HaltTimeout", e.Halted())
	}
}

func TestEngineTrafficSlidesPingDeadline(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), KeepAlive(30)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	ev, _ := NewPublishEvent(20_000, &packet.PublishRequest{Topic: "a", QoS: 0, Payload: "x"})
	e.HandleUserEvent(ev)
	buf := make([]byte, 4096)
	e.Service(20_000, buf)
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 20_000, Kind: WriteCompletion})

	// The flush at t=20000 pushed the ping deadline to t=50000.
	result, _ := e.Service(30_000, buf)
	if len(result.ToSocket) != 0 {
		t.Fatalf("ping fired at the original deadline despite traffic: % X", result.ToSocket)
	}
	result, _ = e.Service(50_000, buf)
	if !bytes.Equal(result.ToSocket, []byte{0xC0, 0x00}) {
		t.Fatalf("wire = % X at slid deadline, want C0 00", result.ToSocket)
	}
}

// Scenario: ops A (QoS 1 publish), B (subscribe), C (QoS 0 publish).
// Transport closes after A and B are acks-pending; on a
// session-resuming reconnect the wire order is A' (duplicate) then B
// then C.
func TestEngineSessionResumeOrdering(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), Offline(PreserveAll)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	evA, tokA := NewPublishEvent(0, &packet.PublishRequest{Topic: "t/a", QoS: 1, Payload: "A"})
	e.HandleUserEvent(evA)
	evB, _ := NewSubscribeEvent(0, &packet.SubscribeRequest{Subscriptions: []packet.SubscriptionRequest{{TopicFilter: "t/#", MaximumQoS: 1}}})
	e.HandleUserEvent(evB)

	buf := make([]byte, 64*1024)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	// C is submitted after A and B hit the wire, then the transport
	// drops before any ack.
	evC, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "t/c", QoS: 0, Payload: "C"})
	e.HandleUserEvent(evC)

	e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionClosed})
	if e.State() != Disconnected {
		t.Fatalf("state = %s, want disconnected", e.State())
	}

	openConnection(t, e, 1_000, successConnack(packet.VERSION311, 1, nil))
	result, err := e.Service(1_000, buf)
	if err != nil {
		t.Fatalf("service after resume: %v", err)
	}
	pkts := wirePackets(t, result.ToSocket)
	if len(pkts) != 3 {
		t.Fatalf("wrote %d packets after resume, want A' B C", len(pkts))
	}
	if kind := pkts[0][0] >> 4; kind != 0x3 {
		t.Fatalf("first packet is 0x%X, want the republished PUBLISH", kind)
	}
	if dup := pkts[0][0] >> 3 & 1; dup != 1 {
		t.Fatalf("republished PUBLISH must carry the duplicate flag, header=0x%02X", pkts[0][0])
	}
	if kind := pkts[1][0] >> 4; kind != 0x8 {
		t.Fatalf("second packet is 0x%X, want SUBSCRIBE", kind)
	}
	if kind := pkts[2][0] >> 4; kind != 0x3 {
		t.Fatalf("third packet is 0x%X, want the QoS 0 PUBLISH", kind)
	}
	if dup := pkts[2][0] >> 3 & 1; dup != 0 {
		t.Fatal("fresh QoS 0 publish must not carry the duplicate flag")
	}

	// A' completes on its (re-sent) packet id.
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 1_000, Kind: WriteCompletion})
	puback := &packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x4}, PacketID: 1}
	e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 1_000, Kind: IncomingData, Data: packBytes(t, puback)})
	if !tokenDone(tokA) {
		t.Fatal("publish A should complete after the post-resume puback")
	}
}

func TestEngineSessionNotPresentDiscardsResubmitBindings(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	ev, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "t/a", QoS: 1, Payload: "A"})
	e.HandleUserEvent(ev)
	buf := make([]byte, 4096)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})
	e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionClosed})

	// The broker lost the session: the retransmission is demoted to a
	// first-time send with no duplicate flag and a fresh packet id.
	openConnection(t, e, 1_000, successConnack(packet.VERSION311, 0, nil))
	result, _ := e.Service(1_000, buf)
	pkts := wirePackets(t, result.ToSocket)
	if len(pkts) != 1 || pkts[0][0]>>4 != 0x3 {
		t.Fatalf("want a single PUBLISH, got %d packets", len(pkts))
	}
	if dup := pkts[0][0] >> 3 & 1; dup != 0 {
		t.Fatal("demoted publish must not carry the duplicate flag on a fresh session")
	}
}

func TestEngineOfflinePolicyOnClose(t *testing.T) {
	tests := []struct {
		name     string
		policy   OfflineQueuePolicy
		wantQos0 bool
		wantQos1 bool
		wantSub  bool
	}{
		{"preserve_nothing", PreserveNothing, false, false, false},
		{"fail_non_qos1", FailNonQos1PublishOnDisconnect, false, true, false},
		{"fail_qos0", FailQos0PublishOnDisconnect, false, true, true},
		{"preserve_all", PreserveAll, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), Offline(tt.policy)))
			openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

			evP0, tok0 := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", QoS: 0, Payload: "x"})
			e.HandleUserEvent(evP0)
			evP1, tok1 := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", QoS: 1, Payload: "y"})
			e.HandleUserEvent(evP1)
			evS, tokS := NewSubscribeEvent(0, &packet.SubscribeRequest{Subscriptions: []packet.SubscriptionRequest{{TopicFilter: "a"}}})
			e.HandleUserEvent(evS)

			e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionClosed})

			if tokenDone(tok0) != !tt.wantQos0 {
				t.Errorf("qos0 publish failed=%v, want %v", tokenDone(tok0), !tt.wantQos0)
			}
			if tokenDone(tokS) != !tt.wantSub {
				t.Errorf("subscribe failed=%v, want %v", tokenDone(tokS), !tt.wantSub)
			}
			if tokenDone(tok1) != !tt.wantQos1 {
				t.Errorf("qos1 publish failed=%v, want %v", tokenDone(tok1), !tt.wantQos1)
			}
		})
	}
}

func TestEngineSubmitWhileDisconnected(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))

	ev0, tok0 := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", QoS: 0, Payload: "x"})
	if err := e.HandleUserEvent(ev0); !errors.Is(err, ErrOfflinePolicyDropped) {
		t.Fatalf("offline qos0 publish err = %v, want policy drop under the default policy", err)
	}
	if _, err := tok0.wait(); !errors.Is(err, ErrOfflinePolicyDropped) {
		t.Fatalf("token err = %v, want policy drop", err)
	}

	ev1, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", QoS: 1, Payload: "y"})
	if err := e.HandleUserEvent(ev1); err != nil {
		t.Fatalf("offline qos1 publish should queue: %v", err)
	}

	// The queued publish goes out once a session exists.
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))
	buf := make([]byte, 4096)
	result, _ := e.Service(0, buf)
	pkts := wirePackets(t, result.ToSocket)
	if len(pkts) != 1 || pkts[0][0]>>4 != 0x3 {
		t.Fatalf("queued publish should flush on connect, got %d packets", len(pkts))
	}
}

func TestEngineOperationTimeout(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	ev, tok := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", QoS: 1, Payload: "x"})
	ev.TimeoutMillis = 5_000
	e.HandleUserEvent(ev)

	buf := make([]byte, 4096)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	e.Service(6_000, buf)
	if _, err := tok.wait(); !errors.Is(err, ErrOperationTimeout) {
		t.Fatalf("token err = %v, want operation timeout", err)
	}

	// A late ack for the dead operation is ignored, not an error.
	puback := &packet.PUBACK{FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x4}, PacketID: 1}
	if err := e.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: 7_000, Kind: IncomingData, Data: packBytes(t, puback)}); err != nil {
		t.Fatalf("late ack: %v", err)
	}
	if e.Halted() != nil {
		t.Fatalf("late ack must not halt: %v", e.Halted())
	}
}

func TestEngineIncomingPublishQos1Pubacks(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	var delivered []*packet.PUBLISH
	e.OnPublishReceived = func(p *packet.PUBLISH) { delivered = append(delivered, p) }
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x3, QoS: 1},
		PacketID:    7,
		Message:     &packet.Message{TopicName: "t", Content: []byte("m")},
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, pub)})

	if len(delivered) != 1 || delivered[0].Message.TopicName != "t" {
		t.Fatalf("delivered = %+v, want the publish", delivered)
	}

	buf := make([]byte, 4096)
	result, _ := e.Service(0, buf)
	if !bytes.Equal(result.ToSocket, []byte{0x40, 0x02, 0x00, 0x07}) {
		t.Fatalf("wire = % X, want PUBACK for id 7", result.ToSocket)
	}
}

func TestEngineIncomingPublishQos0NoAck(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	var delivered int
	e.OnPublishReceived = func(*packet.PUBLISH) { delivered++ }
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	pub := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x3},
		Message:     &packet.Message{TopicName: "t", Content: []byte("m")},
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, pub)})

	buf := make([]byte, 4096)
	result, _ := e.Service(0, buf)
	if delivered != 1 || len(result.ToSocket) != 0 {
		t.Fatalf("delivered=%d wire=% X, want delivery and no ack", delivered, result.ToSocket)
	}
}

func TestEngineSubscribeCompletesOnSuback(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	ev, tok := NewSubscribeEvent(0, &packet.SubscribeRequest{Subscriptions: []packet.SubscriptionRequest{{TopicFilter: "t/#", MaximumQoS: 1}}})
	e.HandleUserEvent(ev)
	buf := make([]byte, 4096)
	e.Service(0, buf)
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	suback := &packet.SUBACK{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION311, Kind: 0x9},
		PacketID:    1,
		ReasonCode:  []packet.ReasonCode{{Code: 0x01}},
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, suback)})

	got, err := tok.wait()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got.PacketID != 1 || len(got.ReasonCode) != 1 {
		t.Fatalf("suback = %+v", got)
	}
}

func TestEngineUserDisconnectHaltsNormal(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	ev, tok := NewDisconnectEvent(0, &packet.DisconnectRequest{})
	e.HandleUserEvent(ev)
	buf := make([]byte, 4096)
	result, err := e.Service(0, buf)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if !bytes.Equal(result.ToSocket, []byte{0xE0, 0x00}) {
		t.Fatalf("wire = % X, want the two-byte DISCONNECT", result.ToSocket)
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: WriteCompletion})

	if _, err := tok.wait(); err != nil {
		t.Fatalf("disconnect token: %v", err)
	}
	if e.Halted() == nil || e.Halted().Kind != HaltNormal {
		t.Fatalf("halted = %+v, want HaltNormal", e.Halted())
	}
}

func TestEngineServerDisconnectHaltsNormal(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION500)))
	openConnection(t, e, 0, successConnack(packet.VERSION500, 0, nil))

	disc := &packet.DISCONNECT{
		FixedHeader: &packet.FixedHeader{Version: packet.VERSION500, Kind: 0xE},
		ReasonCode:  packet.ReasonCode{Code: 0x8B},
	}
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: packBytes(t, disc)})
	if e.Halted() == nil || e.Halted().Kind != HaltNormal {
		t.Fatalf("halted = %+v, want HaltNormal", e.Halted())
	}
}

func TestEngineGarbageInboundHaltsProtocolError(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	// 0xF3 sets reserved flag bits, a malformed fixed header.
	e.HandleNetworkEvent(&NetworkEvent{Kind: IncomingData, Data: []byte{0xF3, 0x00}})
	if e.Halted() == nil || e.Halted().Kind != HaltProtocolError {
		t.Fatalf("halted = %+v, want HaltProtocolError", e.Halted())
	}

	// The latch is single-shot: every later entry point surfaces it.
	ev, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", Payload: "x"})
	if err := e.HandleUserEvent(ev); err == nil {
		t.Fatal("submissions after halt should fail")
	}

	// Reopening the transport is what resets the latch.
	e.HandleNetworkEvent(&NetworkEvent{Kind: ConnectionClosed})
	openConnection(t, e, 1_000, successConnack(packet.VERSION311, 0, nil))
	if e.Halted() != nil {
		t.Fatalf("reopen should clear the halt latch: %v", e.Halted())
	}
}

func TestEngineUserValidationFailsOnlyThatOperation(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311)))
	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))

	bad, badTok := NewPublishEvent(0, &packet.PublishRequest{Topic: "a/+", Payload: "x"})
	if err := e.HandleUserEvent(bad); err == nil {
		t.Fatal("wildcard topic name should fail user validation")
	}
	if _, err := badTok.wait(); err == nil {
		t.Fatal("failed submission should resolve its token")
	}

	good, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "a/b", Payload: "x"})
	if err := e.HandleUserEvent(good); err != nil {
		t.Fatalf("the engine should be unaffected: %v", err)
	}
	buf := make([]byte, 4096)
	result, _ := e.Service(0, buf)
	if len(wirePackets(t, result.ToSocket)) != 1 {
		t.Fatal("the good publish should still go out")
	}
}

func TestEngineNextServiceTimepoint(t *testing.T) {
	e := NewEngine(newOptions(ClientID("c1"), Version(packet.VERSION311), KeepAlive(30)))

	openConnection(t, e, 0, successConnack(packet.VERSION311, 0, nil))
	if next := e.NextServiceTimepoint(0); next != 30_000 {
		t.Fatalf("next = %d, want the ping deadline 30000", next)
	}

	ev, _ := NewPublishEvent(0, &packet.PublishRequest{Topic: "a", Payload: "x"})
	e.HandleUserEvent(ev)
	if next := e.NextServiceTimepoint(5); next != 5 {
		t.Fatalf("next = %d, want now while work is queued", next)
	}
}

// tokenDone reports whether a token has resolved without blocking.
func tokenDone[T any](tok *Token[T]) bool {
	select {
	case <-tok.done:
		return true
	default:
		return false
	}
}

// wait resolves a token that must already be complete; engine tests are
// single-threaded so completion is synchronous.
func (t *Token[T]) wait() (T, error) {
	<-t.done
	return t.val, t.err
}
