package packet

import (
	"fmt"
	"io"
)

// FixedHeader is the first byte of every control packet (type in bits
// 7-4, flags in bits 3-0) plus the variable-length remaining length.
// Version is not on the wire; it threads the negotiated protocol level
// through Pack/Unpack so v5-only fields are handled per connection.
type FixedHeader struct {
	Version byte

	Kind byte `json:"Kind,omitempty"`

	// Flag bits. Only PUBLISH uses all three; for every other type the
	// flag nibble is fixed by the protocol.
	Dup    uint8 `json:"Dup,omitempty"`
	QoS    uint8 `json:"QoS,omitempty"`
	Retain uint8 `json:"Retain,omitempty"`

	RemainingLength uint32 `json:"RemainingLength,omitempty"`
}

func (pkt *FixedHeader) String() string {
	return fmt.Sprintf("%s: Len=%d", kindName(pkt.Kind), pkt.RemainingLength)
}

func (pkt *FixedHeader) Pack(w io.Writer) error {
	b := make([]byte, 1)
	b[0] |= pkt.Kind << 4
	b[0] |= pkt.Dup << 3
	b[0] |= pkt.QoS << 1
	b[0] |= pkt.Retain
	enc, err := encodeLength(pkt.RemainingLength)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, enc...))
	return err
}

func (pkt *FixedHeader) Unpack(r io.Reader) error {
	b := []byte{0x00}
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	pkt.Kind = b[0] >> 4
	pkt.Dup = b[0] & 0b00001000 >> 3
	pkt.QoS = b[0] & 0b00000110 >> 1
	pkt.Retain = b[0] & 0b00000001

	// Reserved flag nibbles must hold the values the protocol fixes
	// for them; anything else closes the connection (MQTT-2.2.2-2).
	switch pkt.Kind {
	case 0x3:
		if pkt.QoS > 2 {
			return ErrProtocolViolationQosOutOfRange
		}
	case 0x6, 0x8, 0xA:
		if pkt.Dup != 0 || pkt.QoS != 1 || pkt.Retain != 0 {
			return ErrMalformedFlags
		}
	default:
		if pkt.Dup != 0 || pkt.QoS != 0 || pkt.Retain != 0 {
			return ErrMalformedFlags
		}
	}

	var err error
	pkt.RemainingLength, err = decodeLength(r)
	return err
}
