package packet

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Message is the application-level content of a PUBLISH: the topic it
// was published to and the opaque payload bytes. A zero-length payload
// is legal.
type Message struct {
	TopicName string
	Content   []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("%s # %s", m.TopicName, m.Content)
}

// PUBLISH transports an application message in either direction (3.3).
// Dup, QoS and Retain live in the fixed-header flag bits; the packet
// identifier is present only for QoS 1 and 2.
type PUBLISH struct {
	*FixedHeader

	PacketID uint16

	Message *Message

	Props *PublishProperties
}

func (pkt *PUBLISH) Kind() byte {
	return 0x3
}

func (pkt *PUBLISH) String() string {
	return fmt.Sprintf("%s QoS=%d", kindName(0x3), pkt.QoS)
}

func validTopicName(name string) error {
	if name == "" {
		return fmt.Errorf("topic name cannot be empty [MQTT-3.3.2-1]")
	}
	if strings.ContainsAny(name, "+#") {
		return fmt.Errorf("topic name cannot contain wildcard characters [MQTT-3.3.2-2]")
	}
	return nil
}

func (pkt *PUBLISH) Pack(w io.Writer) error {
	if pkt.FixedHeader.QoS > 2 {
		return ErrProtocolViolationQosOutOfRange
	}
	if err := validTopicName(pkt.Message.TopicName); err != nil {
		return err
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(s2b(pkt.Message.TopicName))
	if pkt.FixedHeader.QoS > 0 {
		if pkt.PacketID == 0 {
			return fmt.Errorf("packet identifier must be greater than 0 for QoS > 0 [MQTT-2.3.1-1]")
		}
		buf.Write(i2b(pkt.PacketID))
	}
	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &PublishProperties{}
		}
		body, err := pkt.Props.pack()
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}
	buf.Write(pkt.Message.Content)

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *PUBLISH) Unpack(buf *bytes.Buffer) error {
	topic := readUTF8[string](buf)
	if err := validTopicName(topic); err != nil {
		return err
	}
	pkt.Message = &Message{TopicName: topic}

	if pkt.FixedHeader.QoS > 0 {
		pkt.PacketID = readU16(buf)
		if pkt.PacketID == 0 {
			return fmt.Errorf("packet identifier must be greater than 0 for QoS > 0 [MQTT-2.3.1-1]")
		}
	}

	if pkt.Version == VERSION500 {
		pkt.Props = &PublishProperties{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	}

	pkt.Message.Content = bytes.Clone(buf.Bytes())
	return nil
}

// PublishProperties is the v5 PUBLISH property block (3.3.2.3).
type PublishProperties struct {
	PayloadFormatIndicator uint8
	MessageExpiryInterval  uint32
	TopicAlias             uint16
	ResponseTopic          string
	CorrelationData        []byte
	UserProperty           map[string][]string

	// SubscriptionIdentifier repeats when a message matched several
	// subscriptions; only ever set on server-to-client publishes.
	SubscriptionIdentifier []uint32

	ContentType string
}

func (props *PublishProperties) pack() ([]byte, error) {
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
	if props.TopicAlias != 0 {
		buf.WriteByte(propTopicAlias)
		buf.Write(i2b(props.TopicAlias))
	}
	if props.ResponseTopic != "" {
		buf.WriteByte(propResponseTopic)
		buf.Write(s2b(props.ResponseTopic))
	}
	if props.CorrelationData != nil {
		buf.WriteByte(propCorrelationData)
		buf.Write(s2b(props.CorrelationData))
	}
	packUserProperties(buf, props.UserProperty)
	for _, id := range props.SubscriptionIdentifier {
		buf.WriteByte(propSubscriptionIdentifier)
		enc, err := encodeLength(id)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	if props.ContentType != "" {
		buf.WriteByte(propContentType)
		buf.Write(s2b(props.ContentType))
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (props *PublishProperties) Unpack(buf *bytes.Buffer) error {
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
		case propPayloadFormatIndicator:
			if props.PayloadFormatIndicator = readByte(block); props.PayloadFormatIndicator > 1 {
				return ErrProtocolErr
			}
		case propMessageExpiryInterval:
			props.MessageExpiryInterval = readU32(block)
		case propTopicAlias:
			if props.TopicAlias != 0 {
				return ErrProtocolErr
			}
			if props.TopicAlias = readU16(block); props.TopicAlias == 0 {
				return ErrProtocolErr
			}
		case propResponseTopic:
			props.ResponseTopic = readUTF8[string](block)
		case propCorrelationData:
			props.CorrelationData = readUTF8[[]byte](block)
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		case propSubscriptionIdentifier:
			sid, err := decodeLength(block)
			if err != nil {
				return err
			}
			if sid == 0 {
				return ErrProtocolErr
			}
			props.SubscriptionIdentifier = append(props.SubscriptionIdentifier, sid)
		case propContentType:
			props.ContentType = readUTF8[string](block)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}
