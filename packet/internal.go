package packet

import "errors"

// ErrUnsupportedPayloadType is returned by ToBinary when a publish or
// will payload is neither []byte, string, nor a PayloadMarshaler.
var ErrUnsupportedPayloadType = errors.New("packet: unsupported payload type")

// This file defines the request packet forms: the shapes accepted at
// the engine's API boundary, before conversion to the wire structs.
// Strings stay as Go strings and payloads stay dynamic (string,
// []byte, or anything implementing PayloadMarshaler); len(s) already
// is the UTF-8 byte length, so nothing needs a second pass over the
// text fields. What is genuinely one-way is payload normalization
// (arbitrary Go value -> concrete []byte) and property propagation,
// both performed once by ToBinary.

// PayloadMarshaler lets a caller hand the engine a structured value
// (e.g. a JSON-tagged struct) as a publish payload instead of raw
// bytes. Implemented by callers, not by this package.
type PayloadMarshaler interface {
	MarshalPayload() ([]byte, error)
}

// UserPropertyPair is one user-property name/value pair, the internal
// form's equivalent of MQTT 5's repeatable User Property.
type UserPropertyPair struct {
	Name  string
	Value string
}

// WillMessage describes a CONNECT's optional will.
type WillMessage struct {
	Topic                string
	Payload              any
	QoS                  uint8
	Retain               bool
	DelayInterval        uint32
	MessageExpiryInterval uint32
	ContentType          string
	ResponseTopic        string
	CorrelationData      []byte
	UserProperties       []UserPropertyPair
}

// ConnectRequest is the internal form of a CONNECT submission.
type ConnectRequest struct {
	ClientID     string
	Username     string
	Password     string
	CleanStart   bool
	KeepAlive    uint16
	Will         *WillMessage

	SessionExpiryIntervalSeconds uint32
	ReceiveMaximum               uint16
	MaximumPacketSize            uint32
	TopicAliasMaximum            uint16
	RequestResponseInformation   bool
	RequestProblemInformation    bool
	UserProperties               []UserPropertyPair
}

// PublishRequest is the internal form of a user-submitted PUBLISH.
// Payload accepts string, []byte, or a PayloadMarshaler; ToBinary
// normalizes it into a []byte exactly once.
type PublishRequest struct {
	Topic  string
	QoS    uint8
	Retain bool
	Dup    bool
	Payload any

	PayloadFormatIndicator uint8
	MessageExpiryInterval  uint32
	TopicAlias             uint16
	ResponseTopic          string
	CorrelationData        []byte
	ContentType            string
	UserProperties         []UserPropertyPair

	// SubscriptionIdentifiers is never legal on an outbound publish;
	// present only so an inbound PUBLISH can be surfaced symmetrically
	// through the same struct.
	SubscriptionIdentifiers []uint32
}

// SubscriptionRequest is one topic filter + options within a
// SubscribeRequest.
type SubscriptionRequest struct {
	TopicFilter       string
	MaximumQoS        uint8
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    uint8
}

// SubscribeRequest is the internal form of a user-submitted SUBSCRIBE.
type SubscribeRequest struct {
	Subscriptions          []SubscriptionRequest
	SubscriptionIdentifier uint32
	UserProperties         []UserPropertyPair
}

// UnsubscribeRequest is the internal form of a user-submitted
// UNSUBSCRIBE.
type UnsubscribeRequest struct {
	TopicFilters   []string
	UserProperties []UserPropertyPair
}

// DisconnectRequest is the internal form of a user-submitted
// DISCONNECT.
type DisconnectRequest struct {
	ReasonCode                   uint8
	SessionExpiryIntervalSeconds uint32
	ReasonString                 string
	UserProperties               []UserPropertyPair
}

func marshalPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case PayloadMarshaler:
		return p.MarshalPayload()
	default:
		return nil, ErrUnsupportedPayloadType
	}
}

func userPropertyMap(pairs []UserPropertyPair) map[string][]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		m[p.Name] = append(m[p.Name], p.Value)
	}
	return m
}
