package packet

import (
	"bytes"
	"io"
)

// PUBREC is the first response of the QoS 2 handshake (3.5). Clients
// built on this package do not drive QoS 2 delivery; PUBREC stays
// decodable so an inbound one is recognized and rejected explicitly
// rather than failing as an unknown type.
type PUBREC struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	ReasonCode ReasonCode `json:"ReasonCode,omitempty"`

	Props *PubrecProperties `json:"Properties,omitempty"`
}

func (pkt *PUBREC) Kind() byte {
	return 0x5
}

func (pkt *PUBREC) String() string {
	return kindName(0x5)
}

func (pkt *PUBREC) Pack(w io.Writer) error {
	return packAckPacket(w, pkt.FixedHeader, pkt.PacketID, pkt.ReasonCode, func() ([]byte, error) {
		if pkt.Props == nil {
			pkt.Props = &PubrecProperties{}
		}
		return packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
	})
}

func (pkt *PUBREC) Unpack(buf *bytes.Buffer) error {
	pkt.Props = &PubrecProperties{}
	var err error
	pkt.PacketID, pkt.ReasonCode, pkt.Props.ReasonString, pkt.Props.UserProperty, err = unpackAckPacket(buf, pkt.Version)
	return err
}

// PubrecProperties is the v5 PUBREC property block (3.5.2.2).
type PubrecProperties struct {
	ReasonString string
	UserProperty map[string][]string
}
