package mqtt

import (
	"fmt"

	"github.com/webmqtt/engine/packet"
	"github.com/webmqtt/engine/topic"
)

// ValidationError is raised by any of the three validators. Stage
// decides the blast radius: user and binary validation fail only the
// submitted operation, inbound validation halts the connection.
type ValidationError struct {
	Stage   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mqtt: %s validation: %s", e.Stage, e.Message)
}

func userErr(format string, args ...any) *ValidationError {
	return &ValidationError{Stage: "user", Message: fmt.Sprintf(format, args...)}
}

// validateUserPublish checks a submitted PublishRequest. MQTT-5-only
// fields are never rejected in 3.1.1 mode, just silently ignored: the
// conversion to wire form never reads them when version != VERSION500.
func validateUserPublish(req *packet.PublishRequest) error {
	if err := topic.ValidateName(req.Topic); err != nil {
		return userErr("%v", err)
	}
	if req.QoS > 2 {
		return userErr("qos %d out of range 0-2", req.QoS)
	}
	if req.QoS == 2 {
		return userErr("qos 2 publish is not supported (no PUBREC/PUBREL/PUBCOMP exchange)")
	}
	if req.PayloadFormatIndicator > 1 {
		return userErr("payloadFormatIndicator %d out of range 0-1", req.PayloadFormatIndicator)
	}
	if len(req.SubscriptionIdentifiers) > 0 {
		return userErr("outbound publish must not set subscription identifiers")
	}
	for _, p := range req.UserProperties {
		if p.Name == "" {
			return userErr("user property name must not be empty")
		}
	}
	return nil
}

func validateUserSubscribe(req *packet.SubscribeRequest) error {
	if len(req.Subscriptions) == 0 {
		return userErr("subscribe must include at least one topic filter")
	}
	for _, s := range req.Subscriptions {
		if _, err := topic.ValidateFilter(s.TopicFilter); err != nil {
			return userErr("%v", err)
		}
		if s.MaximumQoS > 2 {
			return userErr("subscription maximumQos %d out of range 0-2", s.MaximumQoS)
		}
		if s.RetainHandling > 2 {
			return userErr("retainHandling %d out of range 0-2", s.RetainHandling)
		}
	}
	return nil
}

func validateUserUnsubscribe(req *packet.UnsubscribeRequest) error {
	if len(req.TopicFilters) == 0 {
		return userErr("unsubscribe must include at least one topic filter")
	}
	for _, f := range req.TopicFilters {
		if _, err := topic.ValidateFilter(f); err != nil {
			return userErr("%v", err)
		}
	}
	return nil
}

func validateUserConnect(req *packet.ConnectRequest) error {
	if req.Will != nil {
		if err := topic.ValidateName(req.Will.Topic); err != nil {
			return userErr("will: %v", err)
		}
		if req.Will.QoS > 2 {
			return userErr("will qos %d out of range 0-2", req.Will.QoS)
		}
	}
	return nil
}

func validateUserDisconnect(req *packet.DisconnectRequest) error {
	switch req.ReasonCode {
	case 0x00, 0x04, 0x80, 0x81, 0x82, 0x83, 0x93, 0x94, 0x96, 0x97, 0x98, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F, 0xA0, 0xA1, 0xA2:
		return nil
	default:
		return userErr("disconnect reason code 0x%02X is not a client-sendable value", req.ReasonCode)
	}
}
