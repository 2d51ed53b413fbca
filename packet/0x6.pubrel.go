package packet

import (
	"bytes"
	"io"
)

// PUBREL is the second step of the QoS 2 handshake (3.6). Its fixed
// header carries the mandated 0b0010 flag nibble, which
// FixedHeader.Unpack enforces.
type PUBREL struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	ReasonCode ReasonCode `json:"ReasonCode,omitempty"`

	Props *PubrelProperties `json:"Properties,omitempty"`
}

func (pkt *PUBREL) Kind() byte {
	return 0x6
}

func (pkt *PUBREL) String() string {
	return kindName(0x6)
}

func (pkt *PUBREL) Pack(w io.Writer) error {
	pkt.FixedHeader.QoS = 1
	return packAckPacket(w, pkt.FixedHeader, pkt.PacketID, pkt.ReasonCode, func() ([]byte, error) {
		if pkt.Props == nil {
			pkt.Props = &PubrelProperties{}
		}
		return packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
	})
}

func (pkt *PUBREL) Unpack(buf *bytes.Buffer) error {
	pkt.Props = &PubrelProperties{}
	var err error
	pkt.PacketID, pkt.ReasonCode, pkt.Props.ReasonString, pkt.Props.UserProperty, err = unpackAckPacket(buf, pkt.Version)
	return err
}

// PubrelProperties is the v5 PUBREL property block (3.6.2.2).
type PubrelProperties struct {
	ReasonString string
	UserProperty map[string][]string
}
