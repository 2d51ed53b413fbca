package packet

import "bytes"

// MQTT 5 property identifiers (2.2.2.2 Property).
const (
	propPayloadFormatIndicator      = 0x01
	propMessageExpiryInterval       = 0x02
	propContentType                 = 0x03
	propResponseTopic               = 0x08
	propCorrelationData             = 0x09
	propSubscriptionIdentifier      = 0x0B
	propSessionExpiryInterval       = 0x11
	propAssignedClientID            = 0x12
	propServerKeepAlive             = 0x13
	propAuthenticationMethod        = 0x15
	propAuthenticationData          = 0x16
	propRequestProblemInformation   = 0x17
	propWillDelayInterval           = 0x18
	propRequestResponseInformation  = 0x19
	propResponseInformation         = 0x1A
	propServerReference             = 0x1C
	propReasonString                = 0x1F
	propReceiveMaximum              = 0x21
	propTopicAliasMaximum           = 0x22
	propTopicAlias                  = 0x23
	propMaximumQoS                  = 0x24
	propRetainAvailable             = 0x25
	propUserProperty                = 0x26
	propMaximumPacketSize           = 0x27
	propWildcardSubscription        = 0x28
	propSubscriptionIdentifiersAvail = 0x29
	propSharedSubscription          = 0x2A
)

// UserProperty is one name/value pair of the repeatable 0x26 property.
// Properties structs store the pairs as map[string][]string; this type
// only exists for decoding a single occurrence.
type UserProperty struct {
	Name  string
	Value string
}

// packUserProperties appends one 0x26 entry per name/value pair.
func packUserProperties(buf *bytes.Buffer, props map[string][]string) {
	for name, values := range props {
		for _, value := range values {
			buf.WriteByte(propUserProperty)
			buf.Write(s2b(name))
			buf.Write(s2b(value))
		}
	}
}

// unpackUserProperty reads one pair into the map, allocating it on
// first use.
func unpackUserProperty(buf *bytes.Buffer, props map[string][]string) map[string][]string {
	if props == nil {
		props = make(map[string][]string)
	}
	name := readUTF8[string](buf)
	value := readUTF8[string](buf)
	props[name] = append(props[name], value)
	return props
}

// packPropBlock prefixes the staged property bytes with their
// variable-length size, the form every v5 packet embeds.
func packPropBlock(buf *bytes.Buffer, body []byte) error {
	n, err := encodeLength(len(body))
	if err != nil {
		return err
	}
	buf.Write(n)
	buf.Write(body)
	return nil
}

// readPropBlock consumes the length-prefixed property block and
// returns it as its own buffer so per-packet loops can run until
// empty instead of tracking consumed byte counts.
func readPropBlock(buf *bytes.Buffer) (*bytes.Buffer, error) {
	n, err := decodeLength(buf)
	if err != nil {
		return nil, err
	}
	if int(n) > buf.Len() {
		return nil, ErrMalformedProperties
	}
	return bytes.NewBuffer(buf.Next(int(n))), nil
}
