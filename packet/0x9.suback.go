package packet

import (
	"bytes"
	"io"
)

// SUBACK answers a SUBSCRIBE (3.9) with one reason code per requested
// filter, in request order. Which codes are legal depends on the
// protocol version; membership is checked by the inbound validator,
// not here.
type SUBACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	Props *SubackProperties

	ReasonCode []ReasonCode `json:"ReasonCode,omitempty"`
}

func (pkt *SUBACK) Kind() byte {
	return 0x9
}

func (pkt *SUBACK) String() string {
	return kindName(0x9)
}

func (pkt *SUBACK) Pack(w io.Writer) error {
	if len(pkt.ReasonCode) == 0 {
		return ErrMalformedReasonCode
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &SubackProperties{}
		}
		body, err := packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}
	for _, reason := range pkt.ReasonCode {
		buf.WriteByte(reason.Code)
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBACK) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = readU16(buf)

	if pkt.Version == VERSION500 {
		pkt.Props = &SubackProperties{}
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
	}

	for buf.Len() > 0 {
		pkt.ReasonCode = append(pkt.ReasonCode, ReasonCode{Code: readByte(buf)})
	}
	if len(pkt.ReasonCode) == 0 {
		return ErrMalformedReasonCode
	}
	return nil
}

// SubackProperties is the v5 SUBACK property block (3.9.2.1).
type SubackProperties struct {
	ReasonString string
	UserProperty map[string][]string
}
