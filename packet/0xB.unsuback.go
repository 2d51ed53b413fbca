package packet

import (
	"bytes"
	"io"
)

// UNSUBACK answers an UNSUBSCRIBE (3.11). v3.1.1 is just the packet
// identifier; v5 adds properties and one reason code per filter.
type UNSUBACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	Props *UnsubackProperties

	ReasonCode []ReasonCode `json:"ReasonCode,omitempty"`
}

func (pkt *UNSUBACK) Kind() byte {
	return 0xB
}

func (pkt *UNSUBACK) String() string {
	return kindName(0xB)
}

func (pkt *UNSUBACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &UnsubackProperties{}
		}
		body, err := packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
		for _, reason := range pkt.ReasonCode {
			buf.WriteByte(reason.Code)
		}
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = readU16(buf)

	if pkt.Version == VERSION500 {
		pkt.Props = &UnsubackProperties{}
		block, err := readPropBlock(buf)
		if err != nil {
			return err
		}
		for block.Len() > 0 {
			id, err := decodeLength(block)
			if err != nil {
				return err
			}
			switch id {
			case propReasonString:
				pkt.Props.ReasonString = readUTF8[string](block)
			case propUserProperty:
				pkt.Props.UserProperty = unpackUserProperty(block, pkt.Props.UserProperty)
			default:
				return ErrMalformedProperties
			}
		}
		for buf.Len() > 0 {
			pkt.ReasonCode = append(pkt.ReasonCode, ReasonCode{Code: readByte(buf)})
		}
	}
	return nil
}

// UnsubackProperties is the v5 UNSUBACK property block (3.11.2.1).
type UnsubackProperties struct {
	ReasonString string
	UserProperty map[string][]string
}
