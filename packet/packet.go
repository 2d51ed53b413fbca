package packet

import (
	"bytes"
	"io"
)

// Packet is one MQTT control packet in wire form.
//
// Pack writes the complete packet including the fixed header; the
// remaining length is computed from the staged variable header and
// payload. Unpack parses the variable header and payload from a buffer
// already bounded to the remaining length; the fixed header has been
// consumed by the caller.
type Packet interface {
	Kind() byte
	Unpack(*bytes.Buffer) error
	Pack(io.Writer) error
}

// Unpack reads exactly one control packet from r: fixed header first,
// then the remaining-length-bounded rest, dispatched on the type
// nibble. The version selects between v3.1.1 and v5 field layouts.
func Unpack(version byte, r io.Reader) (Packet, error) {
	fixed := &FixedHeader{Version: version}
	if err := fixed.Unpack(r); err != nil {
		return &RESERVED{FixedHeader: fixed}, err
	}

	buf := GetBuffer()
	defer PutBuffer(buf)
	if _, err := buf.ReadFrom(io.LimitReader(r, int64(fixed.RemainingLength))); err != nil {
		return nil, err
	}

	var pkt Packet
	switch fixed.Kind {
	case 0x1:
		pkt = &CONNECT{FixedHeader: fixed}
	case 0x2:
		pkt = &CONNACK{FixedHeader: fixed}
	case 0x3:
		pkt = &PUBLISH{FixedHeader: fixed}
	case 0x4:
		pkt = &PUBACK{FixedHeader: fixed}
	case 0x5:
		pkt = &PUBREC{FixedHeader: fixed}
	case 0x6:
		pkt = &PUBREL{FixedHeader: fixed}
	case 0x7:
		pkt = &PUBCOMP{FixedHeader: fixed}
	case 0x8:
		pkt = &SUBSCRIBE{FixedHeader: fixed}
	case 0x9:
		pkt = &SUBACK{FixedHeader: fixed}
	case 0xA:
		pkt = &UNSUBSCRIBE{FixedHeader: fixed}
	case 0xB:
		pkt = &UNSUBACK{FixedHeader: fixed}
	case 0xC:
		pkt = &PINGREQ{FixedHeader: fixed}
	case 0xD:
		pkt = &PINGRESP{FixedHeader: fixed}
	case 0xE:
		pkt = &DISCONNECT{FixedHeader: fixed}
	case 0xF:
		pkt = &AUTH{FixedHeader: fixed}
	default:
		return &RESERVED{FixedHeader: fixed}, ErrMalformedPacket
	}
	return pkt, pkt.Unpack(buf)
}
