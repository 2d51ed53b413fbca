package packet

import (
	"bytes"
	"io"
)

// SUBSCRIBE asks the server for one or more subscriptions (3.8). The
// payload is a list of topic filters, each followed by its options
// byte; the fixed-header flag nibble is the mandated 0b0010.
type SUBSCRIBE struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	Props *SubscribeProperties

	Subscriptions []Subscription `json:"Subscription,omitempty"`
}

// Subscription is one topic filter plus its subscription options
// (3.8.3.1): bits 1-0 maximum qos, bit 2 no-local, bit 3
// retain-as-published, bits 5-4 retain handling.
type Subscription struct {
	TopicFilter       string
	MaximumQoS        uint8
	NoLocal           uint8
	RetainAsPublished uint8
	RetainHandling    uint8
}

func (s Subscription) options() byte {
	return s.RetainHandling<<4 | s.RetainAsPublished<<3 | s.NoLocal<<2 | s.MaximumQoS
}

func (pkt *SUBSCRIBE) Kind() byte {
	return 0x8
}

func (pkt *SUBSCRIBE) String() string {
	return kindName(0x8)
}

func (pkt *SUBSCRIBE) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &SubscribeProperties{}
		}
		body, err := pkt.Props.pack()
		if err != nil {
			return err
		}
		if err := packPropBlock(buf, body); err != nil {
			return err
		}
	}
	for _, subscription := range pkt.Subscriptions {
		if subscription.TopicFilter == "" {
			return ErrProtocolViolation
		}
		buf.Write(s2b(subscription.TopicFilter))
		buf.WriteByte(subscription.options())
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = readU16(buf)

	if pkt.Version == VERSION500 {
		pkt.Props = &SubscribeProperties{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	}

	for buf.Len() != 0 {
		subscription := Subscription{TopicFilter: readUTF8[string](buf)}
		options := readByte(buf)
		subscription.MaximumQoS = options & 0b00000011
		if subscription.MaximumQoS > 2 {
			return ErrProtocolViolationQosOutOfRange
		}
		subscription.NoLocal = options & 0b00000100 >> 2
		subscription.RetainAsPublished = options & 0b00001000 >> 3
		subscription.RetainHandling = options & 0b00110000 >> 4
		if options&0b11000000 != 0 {
			return ErrMalformedFlags
		}
		pkt.Subscriptions = append(pkt.Subscriptions, subscription)
	}
	if len(pkt.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	return nil
}

// SubscribeProperties is the v5 SUBSCRIBE property block (3.8.2.1).
// UserProperty repeats like on every other packet type.
type SubscribeProperties struct {
	SubscriptionIdentifier uint32
	UserProperty           map[string][]string
}

func (props *SubscribeProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if props.SubscriptionIdentifier != 0 {
		buf.WriteByte(propSubscriptionIdentifier)
		enc, err := encodeLength(props.SubscriptionIdentifier)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	packUserProperties(buf, props.UserProperty)
	return bytes.Clone(buf.Bytes()), nil
}

func (props *SubscribeProperties) Unpack(buf *bytes.Buffer) error {
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
		case propSubscriptionIdentifier:
			if props.SubscriptionIdentifier != 0 {
				return ErrProtocolErr
			}
			if props.SubscriptionIdentifier, err = decodeLength(block); err != nil {
				return err
			}
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}
