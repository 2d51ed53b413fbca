package packet

import (
	"bytes"
	"testing"
)

// The 3.1.1 DISCONNECT is the bare two-byte fixed header; no reason
// code exists before v5.
func TestDisconnectPack311(t *testing.T) {
	var buf bytes.Buffer
	pkt := &DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION311, Kind: 0xE}}
	if err := pkt.Pack(&buf); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0xE0, 0x00}) {
		t.Fatalf("wire = % X, want E0 00", buf.Bytes())
	}
}

func TestDisconnectRoundTrip500(t *testing.T) {
	in := &DISCONNECT{
		FixedHeader: &FixedHeader{Version: VERSION500, Kind: 0xE},
		ReasonCode:  CodeDisconnectWillMessage,
		Props: &DisconnectProperties{
			SessionExpiryInterval: 3600,
			ReasonString:          "going away",
		},
	}
	out := roundTrip(t, VERSION500, in).(*DISCONNECT)

	if out.ReasonCode.Code != 0x04 {
		t.Fatalf("code = 0x%02X, want 0x04", out.ReasonCode.Code)
	}
	if out.Props.SessionExpiryInterval != 3600 || out.Props.ReasonString != "going away" {
		t.Fatalf("props: %+v", out.Props)
	}
}

// An empty v5 DISCONNECT body means normal disconnection (3.14.2.1).
func TestDisconnectUnpackEmptyBody(t *testing.T) {
	pkt := &DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION500, Kind: 0xE}}
	if err := pkt.Unpack(&bytes.Buffer{}); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if pkt.ReasonCode.Code != 0x00 {
		t.Fatalf("code = 0x%02X, want 0x00", pkt.ReasonCode.Code)
	}
}

func TestDisconnectReasonCodeTable(t *testing.T) {
	// 0x8B server shutting down is a legal server-side code.
	pkt := &DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION500, Kind: 0xE}}
	if err := pkt.Unpack(bytes.NewBuffer([]byte{0x8B})); err != nil {
		t.Fatalf("0x8B should decode: %v", err)
	}

	pkt = &DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION500, Kind: 0xE}}
	if err := pkt.Unpack(bytes.NewBuffer([]byte{0xFF})); err == nil {
		t.Fatal("0xFF is not a disconnect reason code")
	}

	bad := &DISCONNECT{FixedHeader: &FixedHeader{Version: VERSION500, Kind: 0xE}, ReasonCode: ReasonCode{Code: 0xFF}}
	if err := bad.Pack(&bytes.Buffer{}); err == nil {
		t.Fatal("packing an unknown reason code should fail")
	}
}
