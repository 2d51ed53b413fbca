package packet

import (
	"bytes"
	"io"
)

// PUBACK acknowledges a QoS 1 PUBLISH (3.4). In v3.1.1 it is just the
// packet identifier; v5 appends a reason code and properties, both of
// which may be omitted on success with no properties.
type PUBACK struct {
	*FixedHeader

	PacketID uint16

	ReasonCode ReasonCode

	Props *PubackProperties
}

func (pkt *PUBACK) Kind() byte {
	return 0x4
}

func (pkt *PUBACK) String() string {
	return kindName(0x4)
}

func (pkt *PUBACK) Pack(w io.Writer) error {
	return packAckPacket(w, pkt.FixedHeader, pkt.PacketID, pkt.ReasonCode, func() ([]byte, error) {
		if pkt.Props == nil {
			pkt.Props = &PubackProperties{}
		}
		return packAckProps(pkt.Props.ReasonString, pkt.Props.UserProperty)
	})
}

func (pkt *PUBACK) Unpack(buf *bytes.Buffer) error {
	pkt.Props = &PubackProperties{}
	var err error
	pkt.PacketID, pkt.ReasonCode, pkt.Props.ReasonString, pkt.Props.UserProperty, err = unpackAckPacket(buf, pkt.Version)
	return err
}

// PubackProperties is the v5 PUBACK property block (3.4.2.2).
type PubackProperties struct {
	ReasonString string
	UserProperty map[string][]string
}

// packAckPacket writes the shared acknowledgement layout used by
// PUBACK, PUBREC, PUBREL and PUBCOMP: packet id, then (v5 only) reason
// code and property block.
func packAckPacket(w io.Writer, fixed *FixedHeader, packetID uint16, reason ReasonCode, props func() ([]byte, error)) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(i2b(packetID))
	if fixed.Version == VERSION500 {
		buf.WriteByte(reason.Code)
		body, err := props()
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}

	fixed.RemainingLength = uint32(buf.Len())
	if err := fixed.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func packAckProps(reasonString string, userProps map[string][]string) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if reasonString != "" {
		buf.WriteByte(propReasonString)
		buf.Write(s2b(reasonString))
	}
	packUserProperties(buf, userProps)
	return bytes.Clone(buf.Bytes()), nil
}

// unpackAckPacket reads the shared acknowledgement layout. A v5 packet
// whose remaining length stops after the packet id means reason code
// 0x00 with no properties (3.4.2.1).
func unpackAckPacket(buf *bytes.Buffer, version byte) (packetID uint16, reason ReasonCode, reasonString string, userProps map[string][]string, err error) {
	packetID = readU16(buf)
	reason = CodeSuccess
	if version != VERSION500 || buf.Len() == 0 {
		return packetID, reason, "", nil, nil
	}
	reason = ReasonCode{Code: readByte(buf)}
	if buf.Len() == 0 {
		return packetID, reason, "", nil, nil
	}

	block, err := readPropBlock(buf)
	if err != nil {
		return packetID, reason, "", nil, err
	}
	for block.Len() > 0 {
		id, derr := decodeLength(block)
		if derr != nil {
			return packetID, reason, reasonString, userProps, derr
		}
		switch id {
		case propReasonString:
			reasonString = readUTF8[string](block)
		case propUserProperty:
			userProps = unpackUserProperty(block, userProps)
		default:
			return packetID, reason, reasonString, userProps, ErrMalformedProperties
		}
	}
	return packetID, reason, reasonString, userProps, nil
}
