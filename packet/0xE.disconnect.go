package packet

import (
	"bytes"
	"fmt"
	"io"
)

// DISCONNECT ends the MQTT session cleanly (3.14). The v3.1.1 wire
// form is the bare two-byte fixed header; v5 may append a reason code
// and properties, and an absent reason code means normal
// disconnection (3.14.2.1).
type DISCONNECT struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	ReasonCode ReasonCode

	Props *DisconnectProperties
}

func (pkt *DISCONNECT) Kind() byte {
	return 0xE
}

func (pkt *DISCONNECT) String() string {
	return fmt.Sprintf("%s ReasonCode=%d", kindName(0xE), pkt.ReasonCode.Code)
}

func (pkt *DISCONNECT) Pack(w io.Writer) error {
	if pkt.Dup != 0 || pkt.QoS != 0 || pkt.Retain != 0 {
		return ErrMalformedFlags
	}
	if !validDisconnectReasonCode(pkt.ReasonCode.Code) {
		return fmt.Errorf("%w: 0x%02X", ErrMalformedReasonCode, pkt.ReasonCode.Code)
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	if pkt.Version == VERSION500 {
		buf.WriteByte(pkt.ReasonCode.Code)
		if pkt.Props != nil {
			body, err := pkt.Props.pack()
			if err != nil {
				return err
			}
			if err := packPropBlock(buf, body); err != nil {
				return err
			}
		}
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *DISCONNECT) Unpack(buf *bytes.Buffer) error {
	pkt.ReasonCode = ReasonCode{Code: 0x00}
	if buf.Len() >= 1 {
		pkt.ReasonCode = ReasonCode{Code: readByte(buf)}
		if pkt.Version == VERSION500 && !validDisconnectReasonCode(pkt.ReasonCode.Code) {
			return fmt.Errorf("%w: 0x%02X", ErrMalformedReasonCode, pkt.ReasonCode.Code)
		}
	}

	if pkt.Version == VERSION500 {
		pkt.Props = &DisconnectProperties{}
		if buf.Len() > 0 {
			if err := pkt.Props.Unpack(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// validDisconnectReasonCode covers the full v5 DISCONNECT table
// (3.14.2.1), both directions.
func validDisconnectReasonCode(code uint8) bool {
	switch code {
	case 0x00, 0x04, 0x80, 0x81, 0x82, 0x83, 0x87, 0x89, 0x8B,
		0x8C, 0x8D, 0x8E, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
		0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F, 0xA0, 0xA1, 0xA2:
		return true
	default:
		return false
	}
}

// DisconnectProperties is the v5 DISCONNECT property block (3.14.2.2).
// SessionExpiryInterval is client-to-server only (MQTT-3.14.2-2); the
// inbound validator rejects it on received packets.
type DisconnectProperties struct {
	SessionExpiryInterval uint32
	ReasonString          string
	UserProperty          map[string][]string
	ServerReference       string
}

func (props *DisconnectProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.SessionExpiryInterval != 0 {
		buf.WriteByte(propSessionExpiryInterval)
		buf.Write(i4b(props.SessionExpiryInterval))
	}
	if props.ReasonString != "" {
		buf.WriteByte(propReasonString)
		buf.Write(s2b(props.ReasonString))
	}
	packUserProperties(buf, props.UserProperty)
	if props.ServerReference != "" {
		buf.WriteByte(propServerReference)
		buf.Write(s2b(props.ServerReference))
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (props *DisconnectProperties) Unpack(buf *bytes.Buffer) error {
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
		case propSessionExpiryInterval:
			props.SessionExpiryInterval = readU32(block)
		case propReasonString:
			props.ReasonString = readUTF8[string](block)
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		case propServerReference:
			props.ServerReference = readUTF8[string](block)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}
