package packet

import (
	"bytes"
	"io"
)

// UNSUBSCRIBE removes subscriptions (3.10). The payload is a bare list
// of topic filters; Subscriptions reuses the Subscription type with
// only TopicFilter populated.
type UNSUBSCRIBE struct {
	*FixedHeader

	PacketID uint16

	Props *UnsubscribeProperties

	Subscriptions []Subscription
}

func (pkt *UNSUBSCRIBE) Kind() byte {
	return 0xA
}

func (pkt *UNSUBSCRIBE) String() string {
	return kindName(0xA)
}

func (pkt *UNSUBSCRIBE) Pack(w io.Writer) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.Write(i2b(pkt.PacketID))
	if pkt.Version == VERSION500 {
		if pkt.Props == nil {
			pkt.Props = &UnsubscribeProperties{}
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
	}

	pkt.FixedHeader.RemainingLength = uint32(buf.Len())
	if err := pkt.FixedHeader.Pack(w); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (pkt *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	pkt.PacketID = readU16(buf)

	if pkt.Version == VERSION500 {
		pkt.Props = &UnsubscribeProperties{}
		if err := pkt.Props.Unpack(buf); err != nil {
			return err
		}
	}

	for buf.Len() != 0 {
		pkt.Subscriptions = append(pkt.Subscriptions, Subscription{TopicFilter: readUTF8[string](buf)})
	}
	if len(pkt.Subscriptions) == 0 {
		return ErrProtocolViolation
	}
	return nil
}

// UnsubscribeProperties is the v5 UNSUBSCRIBE property block (3.10.2.1):
// user properties only.
type UnsubscribeProperties struct {
	UserProperty map[string][]string
}

func (props *UnsubscribeProperties) pack() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	packUserProperties(buf, props.UserProperty)
	return bytes.Clone(buf.Bytes()), nil
}

func (props *UnsubscribeProperties) Unpack(buf *bytes.Buffer) error {
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
		case propUserProperty:
			props.UserProperty = unpackUserProperty(block, props.UserProperty)
		default:
			return ErrMalformedProperties
		}
	}
	return nil
}
