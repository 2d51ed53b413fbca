package packet

import (
	"bytes"
	"fmt"
	"io"
)

// AUTH carries an extended authentication exchange (3.15). v5 only;
// the engine on top of this package never initiates one, but decoding
// keeps an inbound AUTH recognizable.
type AUTH struct {
	*FixedHeader

	ReasonCode ReasonCode

	Props *AuthProperties
}

func (pkt *AUTH) Kind() byte {
	return 0xF
}

func (pkt *AUTH) String() string {
	return fmt.Sprintf("%s ReasonCode=%d", kindName(0xF), pkt.ReasonCode.Code)
}

func validAuthReasonCode(code uint8) bool {
	return code == CodeSuccess.Code || code == CodeContinueAuth.Code || code == CodeReAuthenticate.Code
}

func (pkt *AUTH) Pack(w io.Writer) error {
	if pkt.Version != VERSION500 {
		return ErrUnsupportedProtocolVersion
	}
	if !validAuthReasonCode(pkt.ReasonCode.Code) {
		return fmt.Errorf("%w: 0x%02X", ErrMalformedReasonCode, pkt.ReasonCode.Code)
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	// Success with no properties may collapse to the bare fixed
	// header (3.15.2.1).
	if pkt.ReasonCode.Code != CodeSuccess.Code || pkt.Props != nil {
		buf.WriteByte(pkt.ReasonCode.Code)
		if pkt.Props == nil {
			pkt.Props = &AuthProperties{}
		}
		body, err := pkt.Props.pack()
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *AUTH) Unpack(buf *bytes.Buffer) error {
	if pkt.Version != VERSION500 {
		return ErrUnsupportedProtocolVersion
	}
	pkt.ReasonCode = CodeSuccess
	if buf.Len() == 0 {
		return nil
	}
	pkt.ReasonCode = ReasonCode{Code: readByte(buf)}
	if !validAuthReasonCode(pkt.ReasonCode.Code) {
		return fmt.Errorf("%w: 0x%02X", ErrMalformedReasonCode, pkt.ReasonCode.Code)
	}
	if buf.Len() > 0 {
		pkt.Props = &AuthProperties{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	}
	return nil
}

// AuthProperties is the v5 AUTH property block (3.15.2.2).
type AuthProperties struct {
	AuthenticationMethod string
	AuthenticationData   []byte
	ReasonString         string
	UserProperty         map[string][]string
}

func (props *AuthProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.AuthenticationMethod != "" {
		buf.WriteByte(propAuthenticationMethod)
		buf.Write(s2b(props.AuthenticationMethod))
	}
	if props.AuthenticationData != nil {
		buf.WriteByte(propAuthenticationData)
		buf.Write(s2b(props.AuthenticationData))
	}
	if props.ReasonString != "" {
		buf.WriteByte(propReasonString)
		buf.Write(s2b(props.ReasonString))
	}
	packUserProperties(buf, props.UserProperty)
	return bytes.Clone(buf.Bytes()), nil
}

func (props *AuthProperties) Unpack(buf *bytes.Buffer) error {
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
		case propAuthenticationMethod:
			props.AuthenticationMethod = readUTF8[string](block)
		case propAuthenticationData:
			props.AuthenticationData = readUTF8[[]byte](block)
		case propReasonString:
			props.ReasonString = readUTF8[string](block)
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}
