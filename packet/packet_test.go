package packet

import (
	"bytes"
	"testing"
)

// roundTrip packs pkt and decodes it back through the dispatcher,
// which is exactly the path the engine's codec drives.
func roundTrip(t *testing.T, version byte, pkt Packet) Packet {
	t.Helper()
	var buf bytes.Buffer
	if err := pkt.Pack(&buf); err != nil {
		t.Fatalf("pack %s: %v", kindName(pkt.Kind()), err)
	}
	out, err := Unpack(version, &buf)
	if err != nil {
		t.Fatalf("unpack %s: %v", kindName(pkt.Kind()), err)
	}
	if out.Kind() != pkt.Kind() {
		t.Fatalf("round trip changed kind: 0x%X -> 0x%X", pkt.Kind(), out.Kind())
	}
	return out
}

func TestUnpackDispatchesEveryKind(t *testing.T) {
	packets := []Packet{
		&CONNECT{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x1}, ClientID: "c"},
		&CONNACK{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x2}, ConnectReturnCode: CodeSuccess},
		&PUBLISH{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x3}, Message: &Message{TopicName: "t"}},
		&PUBACK{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x4}, PacketID: 1},
		&PUBREC{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x5}, PacketID: 1},
		&PUBREL{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x6, QoS: 1}, PacketID: 1},
		&PUBCOMP{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x7}, PacketID: 1},
		&SUBSCRIBE{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x8, QoS: 1}, PacketID: 1, Subscriptions: []Subscription{{TopicFilter: "t"}}},
		&SUBACK{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0x9}, PacketID: 1, ReasonCode: []ReasonCode{CodeGrantedQos0}},
		&UNSUBSCRIBE{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xA, QoS: 1}, PacketID: 1, Subscriptions: []Subscription{{TopicFilter: "t"}}},
		&UNSUBACK{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xB}, PacketID: 1},
		&PINGREQ{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xC}},
		&PINGRESP{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xD}},
		&DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xE}},
	}
	for _, pkt := range packets {
		roundTrip(t, VERSION311, pkt)
	}
}

func TestUnpackMalformedHeaderFlags(t *testing.T) {
	// PINGREQ with nonzero flag bits must be rejected at the header.
	_, err := Unpack(VERSION311, bytes.NewReader([]byte{0xC3, 0x00}))
	if err == nil {
		t.Fatal("nonzero reserved flags should fail")
	}
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xFF, 0xFF, 0x7F}},
		{2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}
	for _, tt := range tests {
		got, err := encodeLength(tt.value)
		if err != nil || !bytes.Equal(got, tt.want) {
			t.Errorf("encodeLength(%d) = % X, %v; want % X", tt.value, got, err, tt.want)
		}
		back, err := decodeLength(bytes.NewReader(got))
		if err != nil || back != tt.value {
			t.Errorf("decodeLength(% X) = %d, %v; want %d", got, back, err, tt.value)
		}
	}
	if _, err := encodeLength(268435456); err == nil {
		t.Error("values above the 4-byte VLI maximum should fail")
	}
	if _, err := decodeLength(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})); err == nil {
		t.Error("a fifth continuation byte should fail")
	}
}

func TestUTF8FieldHelpers(t *testing.T) {
	b := s2b("hello")
	if !bytes.Equal(b, []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}) {
		t.Fatalf("s2b = % X", b)
	}
	if got := readUTF8[string](bytes.NewBuffer(b)); got != "hello" {
		t.Fatalf("readUTF8 = %q", got)
	}
	if got := readUTF8[string](bytes.NewBuffer([]byte{0x00})); got != "" {
		t.Fatalf("truncated field should read empty, got %q", got)
	}
}
