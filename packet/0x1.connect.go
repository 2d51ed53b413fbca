package packet

import (
	"bytes"
	"fmt"
	"io"
)

// protocolName is the fixed "MQTT" protocol-name field opening every
// CONNECT variable header (3.1.2.1).
var protocolName = []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}

// CONNECT is the first packet a client sends on a new network
// connection (3.1). The variable header carries the protocol name and
// level, the connect flags, the keep-alive interval and (v5) the
// connect properties; the payload carries client id, will, username
// and password in that order, gated by the flag bits.
type CONNECT struct {
	*FixedHeader

	ConnectFlags ConnectFlags

	// KeepAlive is the maximum quiet interval in seconds the client
	// promises between control packets; 0 disables the mechanism.
	KeepAlive uint16

	Props *ConnectProperties `json:"Properties,omitempty"`

	ClientID string `json:"ClientID,omitempty"`

	WillProperties *WillProperties `json:"Will,omitempty"`
	WillTopic      string
	WillPayload    []byte

	Username string `json:"Username,omitempty"`
	Password string `json:"Password,omitempty"`
}

func (pkt *CONNECT) Kind() byte {
	return 0x1
}

func (pkt *CONNECT) String() string {
	return kindName(0x1)
}

// effectiveFlags reconciles the stored connect flags with the fields
// actually present: presence bits always reflect the payload, will
// qos/retain and clean-start ride through from ConnectFlags.
func (pkt *CONNECT) effectiveFlags() uint8 {
	flags := uint8(pkt.ConnectFlags) &^ 0x01
	if pkt.Username != "" {
		flags |= 0x80
	} else {
		flags &^= 0x80 | 0x40 // no password without a username
	}
	if pkt.Password != "" && pkt.Username != "" {
		flags |= 0x40
	}
	if pkt.WillTopic != "" {
		flags |= 0x04
	} else {
		flags &^= 0x3C // will flag, qos and retain all zero
	}
	return flags
}

func (pkt *CONNECT) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(protocolName)
	buf.WriteByte(pkt.FixedHeader.Version)

	flags := pkt.effectiveFlags()
	buf.WriteByte(flags)
	buf.Write(i2b(pkt.KeepAlive))

	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &ConnectProperties{}
		}
		body, err := pkt.Props.pack()
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}

	buf.Write(s2b(pkt.ClientID))

	if flags&0x04 != 0 {
		if pkt.Version == VERSION500 {
			if pkt.WillProperties == nil {
				pkt.WillProperties = &WillProperties{}
			}
			body, err := pkt.WillProperties.pack()
			if err != nil {
				return err
			}
			if err := packPropBlock(buf, body); err != nil {
				return err
			}
		}
		buf.Write(s2b(pkt.WillTopic))
		buf.Write(s2b(pkt.WillPayload))
	}
	if flags&0x80 != 0 {
		buf.Write(s2b(pkt.Username))
	}
	if flags&0x40 != 0 {
		buf.Write(s2b(pkt.Password))
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *CONNECT) Unpack(buf *bytes.Buffer) error {
	if !bytes.Equal(buf.Next(6), protocolName) {
		return fmt.Errorf("%w: Len=%d", ErrMalformedProtocolName, pkt.RemainingLength)
	}

	pkt.Version = readByte(buf)
	pkt.ConnectFlags = ConnectFlags(readByte(buf))
	if pkt.ConnectFlags.Reserved() != 0 {
		return ErrMalformedPacket
	}
	if pkt.ConnectFlags.WillQoS() > 2 {
		return ErrProtocolViolationQosOutOfRange
	}
	if !pkt.ConnectFlags.WillFlag() && (pkt.ConnectFlags.WillRetain() || pkt.ConnectFlags.WillQoS() != 0) {
		return ErrProtocolViolation
	}
	pkt.KeepAlive = readU16(buf)

	switch pkt.Version {
	case VERSION500:
		pkt.Props = &ConnectProperties{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	case VERSION311:
	case VERSION310:
		return ErrUnsupportedProtocolVersion
	default:
		return ErrMalformedProtocolVersion
	}

	pkt.ClientID = readUTF8[string](buf)

	if pkt.ConnectFlags.WillFlag() {
		if pkt.Version == VERSION500 {
			pkt.WillProperties = &WillProperties{}
			if err := pkt.WillProperties.Unpack(buf); err != nil {
				return err
			}
		}
		pkt.WillTopic = readUTF8[string](buf)
		pkt.WillPayload = readUTF8[[]byte](buf)
		if pkt.WillTopic == "" {
			return ErrProtocolViolation
		}
	}

	if pkt.ConnectFlags.UserNameFlag() {
		pkt.Username = readUTF8[string](buf)
	} else if pkt.ConnectFlags.PasswordFlag() {
		return ErrMalformedPassword
	}
	if pkt.ConnectFlags.PasswordFlag() {
		pkt.Password = readUTF8[string](buf)
	}
	return nil
}

// ConnectProperties is the v5 CONNECT property block (3.1.2.11).
type ConnectProperties struct {
	SessionExpiryInterval      uint32
	ReceiveMaximum             uint16
	MaximumPacketSize          uint32
	TopicAliasMaximum          uint16
	RequestResponseInformation uint8
	RequestProblemInformation  uint8
	UserProperty               map[string][]string
	AuthenticationMethod       string
	AuthenticationData         []byte
}

func (props *ConnectProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.SessionExpiryInterval != 0 {
		buf.WriteByte(propSessionExpiryInterval)
		buf.Write(i4b(props.SessionExpiryInterval))
	}
	if props.ReceiveMaximum != 0 {
		buf.WriteByte(propReceiveMaximum)
		buf.Write(i2b(props.ReceiveMaximum))
	}
	if props.MaximumPacketSize != 0 {
		buf.WriteByte(propMaximumPacketSize)
		buf.Write(i4b(props.MaximumPacketSize))
	}
	if props.TopicAliasMaximum != 0 {
		buf.WriteByte(propTopicAliasMaximum)
		buf.Write(i2b(props.TopicAliasMaximum))
	}
	if props.RequestResponseInformation != 0 {
		buf.WriteByte(propRequestResponseInformation)
		buf.WriteByte(props.RequestResponseInformation)
	}
	if props.RequestProblemInformation != 0 {
		buf.WriteByte(propRequestProblemInformation)
		buf.WriteByte(props.RequestProblemInformation)
	}
	packUserProperties(buf, props.UserProperty)
	if props.AuthenticationMethod != "" {
		buf.WriteByte(propAuthenticationMethod)
		buf.Write(s2b(props.AuthenticationMethod))
	}
	if props.AuthenticationData != nil {
		buf.WriteByte(propAuthenticationData)
		buf.Write(s2b(props.AuthenticationData))
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (props *ConnectProperties) Unpack(buf *bytes.Buffer) error {
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
		case propReceiveMaximum:
			if props.ReceiveMaximum != 0 {
				return ErrProtocolErr
			}
			if props.ReceiveMaximum = readU16(block); props.ReceiveMaximum == 0 {
				return ErrProtocolErr
			}
		case propMaximumPacketSize:
			if props.MaximumPacketSize != 0 {
				return ErrProtocolErr
			}
			if props.MaximumPacketSize = readU32(block); props.MaximumPacketSize == 0 {
				return ErrProtocolErr
			}
		case propTopicAliasMaximum:
			props.TopicAliasMaximum = readU16(block)
		case propRequestResponseInformation:
			if props.RequestResponseInformation = readByte(block); props.RequestResponseInformation > 1 {
				return ErrProtocolErr
			}
		case propRequestProblemInformation:
			if props.RequestProblemInformation = readByte(block); props.RequestProblemInformation > 1 {
				return ErrProtocolErr
			}
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		case propAuthenticationMethod:
			props.AuthenticationMethod = readUTF8[string](block)
		case propAuthenticationData:
			props.AuthenticationData = readUTF8[[]byte](block)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}

// WillProperties is the property block preceding the will topic in the
// v5 CONNECT payload (3.1.3.2).
type WillProperties struct {
	WillDelayInterval      uint32 `json:"WillDelayInterval,omitempty"`
	PayloadFormatIndicator uint8  `json:"PayloadFormatIndicator,omitempty"`
	MessageExpiryInterval  uint32 `json:"MessageExpiryInterval,omitempty"`
	ContentType            string `json:"ContentType,omitempty"`
	ResponseTopic          string `json:"ResponseTopic,omitempty"`
	CorrelationData        []byte `json:"CorrelationData,omitempty"`
	UserProperty           map[string][]string
}

func (props *WillProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.PayloadFormatIndicator != 0 {
		buf.WriteByte(propPayloadFormatIndicator)
		buf.WriteByte(props.PayloadFormatIndicator)
	}
	if props.MessageExpiryInterval != 0 {
		buf.WriteByte(propMessageExpiryInterval)
		buf.Write(i4b(props.MessageExpiryInterval))
	}
	if props.ContentType != "" {
		buf.WriteByte(propContentType)
		buf.Write(s2b(props.ContentType))
	}
	if props.ResponseTopic != "" {
		buf.WriteByte(propResponseTopic)
		buf.Write(s2b(props.ResponseTopic))
	}
	if props.CorrelationData != nil {
		buf.WriteByte(propCorrelationData)
		buf.Write(s2b(props.CorrelationData))
	}
	if props.WillDelayInterval != 0 {
		buf.WriteByte(propWillDelayInterval)
		buf.Write(i4b(props.WillDelayInterval))
	}
	packUserProperties(buf, props.UserProperty)
	return bytes.Clone(buf.Bytes()), nil
}

func (props *WillProperties) Unpack(buf *bytes.Buffer) error {
	block, err := readPropBlock(buf)
	if err != nil {
		return err
	}
	seen := make(map[uint32]bool)
	for block.Len() > 0 {
		id, err := decodeLength(block)
		if err != nil {
			return err
		}
		if id != propUserProperty && seen[id] {
			return ErrProtocolErr
		}
		seen[id] = true
		switch id {
		case propPayloadFormatIndicator:
			if props.PayloadFormatIndicator = readByte(block); props.PayloadFormatIndicator > 1 {
				return ErrProtocolErr
			}
		case propMessageExpiryInterval:
			props.MessageExpiryInterval = readU32(block)
		case propContentType:
			props.ContentType = readUTF8[string](block)
		case propResponseTopic:
			props.ResponseTopic = readUTF8[string](block)
		case propCorrelationData:
			props.CorrelationData = readUTF8[[]byte](block)
		case propWillDelayInterval:
			props.WillDelayInterval = readU32(block)
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		default:
			return ErrMalformedWillProperties
		}
	}
	return nil
}

// ConnectFlags is the flag byte of the CONNECT variable header
// (3.1.2.2): bit 7 username, 6 password, 5 will retain, 4-3 will qos,
// 2 will flag, 1 clean start, 0 reserved.
type ConnectFlags uint8

func (f ConnectFlags) Reserved() uint8 {
	return uint8(f) & 0x01
}

func (f ConnectFlags) CleanStart() bool {
	return uint8(f)&0x02 != 0
}

func (f ConnectFlags) WillFlag() bool {
	return uint8(f)&0x04 != 0
}

func (f ConnectFlags) WillQoS() uint8 {
	return uint8(f) & 0x18 >> 3
}

func (f ConnectFlags) WillRetain() bool {
	return uint8(f)&0x20 != 0
}

func (f ConnectFlags) PasswordFlag() bool {
	return uint8(f)&0x40 != 0
}

func (f ConnectFlags) UserNameFlag() bool {
	return uint8(f)&0x80 != 0
}
