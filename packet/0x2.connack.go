package packet

import (
	"bytes"
	"fmt"
	"io"
)

// CONNACK acknowledges a CONNECT (3.2). The variable header is the
// session-present flag, the return code and (v5) the property block;
// there is no payload.
type CONNACK struct {
	*FixedHeader

	// SessionPresent is bit 0 of the acknowledge-flags byte: 1 when
	// the server resumed stored session state for this client id.
	SessionPresent uint8

	ConnectReturnCode ReasonCode `json:"ConnectReturnCode,omitempty"`

	Props *ConnackProps
}

func (pkt *CONNACK) Kind() byte {
	return 0x2
}

func (pkt *CONNACK) String() string {
	return fmt.Sprintf("%s ConnectReturnCode=%d", kindName(0x2), pkt.ConnectReturnCode.Code)
}

func (pkt *CONNACK) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte(pkt.SessionPresent)
	buf.WriteByte(pkt.ConnectReturnCode.Code)

	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &ConnackProps{}
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

func (pkt *CONNACK) Unpack(buf *bytes.Buffer) error {
	pkt.SessionPresent = readByte(buf)
	if pkt.SessionPresent > 1 {
		return ErrMalformedPacket
	}
	pkt.ConnectReturnCode = ReasonCode{Code: readByte(buf)}

	if pkt.Version == VERSION500 {
		pkt.Props = &ConnackProps{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	}
	return nil
}

// ConnackProps is the v5 CONNACK property block (3.2.2.3). Fields keep
// the 0-means-absent wire convention; the two properties for which 0
// is itself a protocol error additionally record presence so inbound
// validation can tell a malformed zero from an omitted property.
type ConnackProps struct {
	SessionExpiryInterval uint32

	ReceiveMaximum    uint16
	HasReceiveMaximum bool

	MaximumQoS      uint8
	RetainAvailable uint8

	MaximumPacketSize    uint32
	HasMaximumPacketSize bool

	AssignedClientID  string
	TopicAliasMaximum uint16
	ReasonString      string
	UserProperty      map[string][]string

	WildcardSubscriptionAvailable    uint8
	SubscriptionIdentifiersAvailable uint8
	SharedSubscriptionAvailable      uint8

	ServerKeepAlive     uint16
	ResponseInformation string
	ServerReference     string

	AuthenticationMethod string
	AuthenticationData   []byte
}

func (props *ConnackProps) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.SessionExpiryInterval != 0 {
		buf.WriteByte(propSessionExpiryInterval)
		buf.Write(i4b(props.SessionExpiryInterval))
	}
	if props.ReceiveMaximum != 0 || props.HasReceiveMaximum {
		buf.WriteByte(propReceiveMaximum)
		buf.Write(i2b(props.ReceiveMaximum))
	}
	if props.MaximumQoS != 0 {
		buf.WriteByte(propMaximumQoS)
		buf.WriteByte(props.MaximumQoS)
	}
	if props.RetainAvailable != 0 {
		buf.WriteByte(propRetainAvailable)
		buf.WriteByte(props.RetainAvailable)
	}
	if props.MaximumPacketSize != 0 || props.HasMaximumPacketSize {
		buf.WriteByte(propMaximumPacketSize)
		buf.Write(i4b(props.MaximumPacketSize))
	}
	if props.AssignedClientID != "" {
		buf.WriteByte(propAssignedClientID)
		buf.Write(s2b(props.AssignedClientID))
	}
	if props.TopicAliasMaximum != 0 {
		buf.WriteByte(propTopicAliasMaximum)
		buf.Write(i2b(props.TopicAliasMaximum))
	}
	if props.ReasonString != "" {
		buf.WriteByte(propReasonString)
		buf.Write(s2b(props.ReasonString))
	}
	packUserProperties(buf, props.UserProperty)
	if props.WildcardSubscriptionAvailable != 0 {
		buf.WriteByte(propWildcardSubscription)
		buf.WriteByte(props.WildcardSubscriptionAvailable)
	}
	if props.SubscriptionIdentifiersAvailable != 0 {
		buf.WriteByte(propSubscriptionIdentifiersAvail)
		buf.WriteByte(props.SubscriptionIdentifiersAvailable)
	}
	if props.SharedSubscriptionAvailable != 0 {
		buf.WriteByte(propSharedSubscription)
		buf.WriteByte(props.SharedSubscriptionAvailable)
	}
	if props.ServerKeepAlive != 0 {
		buf.WriteByte(propServerKeepAlive)
		buf.Write(i2b(props.ServerKeepAlive))
	}
	if props.ResponseInformation != "" {
		buf.WriteByte(propResponseInformation)
		buf.Write(s2b(props.ResponseInformation))
	}
	if props.ServerReference != "" {
		buf.WriteByte(propServerReference)
		buf.Write(s2b(props.ServerReference))
	}
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

func (props *ConnackProps) Unpack(buf *bytes.Buffer) error {
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
			props.ReceiveMaximum = readU16(block)
			props.HasReceiveMaximum = true
		case propMaximumQoS:
			props.MaximumQoS = readByte(block)
		case propRetainAvailable:
			props.RetainAvailable = readByte(block)
		case propMaximumPacketSize:
			props.MaximumPacketSize = readU32(block)
			props.HasMaximumPacketSize = true
		case propAssignedClientID:
			props.AssignedClientID = readUTF8[string](block)
		case propTopicAliasMaximum:
			props.TopicAliasMaximum = readU16(block)
		case propReasonString:
			props.ReasonString = readUTF8[string](block)
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		case propWildcardSubscription:
			props.WildcardSubscriptionAvailable = readByte(block)
		case propSubscriptionIdentifiersAvail:
			props.SubscriptionIdentifiersAvailable = readByte(block)
		case propSharedSubscription:
			props.SharedSubscriptionAvailable = readByte(block)
		case propServerKeepAlive:
			props.ServerKeepAlive = readU16(block)
		case propResponseInformation:
			props.ResponseInformation = readUTF8[string](block)
		case propServerReference:
			props.ServerReference = readUTF8[string](block)
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
