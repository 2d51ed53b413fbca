package packet

import (
	"bytes"
	"io"
)

// PUBCOMP closes the QoS 2 handshake (3.7).
type PUBCOMP struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	ReasonCode ReasonCode `json:"ReasonCode,omitempty"`

	Props *PubcompProperties `json:"Properties,omitempty"`
}

func (pkt *PUBCOMP) Kind() byte {
	return 0x7
}

func (pkt *PUBCOMP) String() string {
	return kindName(0x7)
}

func (pkt *PUBCOMP) Pack(w io.Writer) error {
	return packAckPacket(w, pkt.FixedHeader, pkt.PacketID, pkt.ReasonCode, func() ([]byte, error) {
		if pkt.Props == nil {
			pkt.Props = &PubcompProperties{}
		}
		return packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
	})
}

func (pkt *PUBCOMP) Unpack(buf *bytes.Buffer) error {
	pkt.Props = &PubcompProperties{}
	var err error
	pkt.PacketID, pkt.ReasonCode, pkt.Props.ReasonString, pkt.Props.UserProperty, err = unpackAckPacket(buf, pkt.Version)
	return err
}

// PubcompProperties is the v5 PUBCOMP property block (3.7.2.2).
type PubcompProperties struct {
	ReasonString string
	UserProperty map[string][]string
}
