package mqtt

import (
	"fmt"

	"github.com/webmqtt/engine/packet"
)

func inboundErr(format string, args ...any) *ValidationError {
	return &ValidationError{Stage: "inbound", Message: fmt.Sprintf(format, args...)}
}

// validateInbound checks a packet just decoded off the wire. Any
// failure here halts the engine with HaltProtocolError; unlike the
// user/binary validators, there is no single operation to fail in
// isolation.
func validateInbound(p packet.Packet) error {
	switch pkt := p.(type) {
	case *packet.PUBLISH:
		return validateInboundPublish(pkt)
	case *packet.CONNACK:
		return validateInboundConnack(pkt)
	case *packet.DISCONNECT:
		return validateInboundDisconnect(pkt)
	case *packet.PUBACK:
		return validateInboundPuback(pkt)
	case *packet.SUBACK:
		return validateInboundSuback(pkt)
	case *packet.UNSUBACK:
		return validateInboundUnsuback(pkt)
	default:
		return nil
	}
}

func validateInboundPublish(pkt *packet.PUBLISH) error {
	if pkt.QoS > 2 {
		return inboundErr("publish qos %d out of range 0-2", pkt.QoS)
	}
	if pkt.QoS > 0 && pkt.PacketID == 0 {
		return inboundErr("qos %d publish missing packet id", pkt.QoS)
	}
	if pkt.Message == nil || pkt.Message.TopicName == "" {
		return inboundErr("publish topic name must not be empty (unresolved topic alias is not supported)")
	}
	return nil
}

// validConnackReturnCode reports the legal CONNACK return codes per
// protocol version: v3.1.1 defines 0x00-0x05 (3.2.2.3), v5 the reason codes of
// table 3-1.
func validConnackReturnCode(version byte, code uint8) bool {
	if version != packet.VERSION500 {
		return code <= 0x05
	}
	switch code {
	case 0x00, 0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
		0x88, 0x89, 0x8A, 0x8C, 0x8F, 0x90, 0x93, 0x94, 0x95,
		0x97, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9F:
		return true
	default:
		return false
	}
}

// validPubackReasonCode checks table 3-4. v3.1.1 PUBACK has no reason code
// byte; its decoded code is always 0x00.
func validPubackReasonCode(version byte, code uint8) bool {
	if version != packet.VERSION500 {
		return code == 0x00
	}
	switch code {
	case 0x00, 0x10, 0x80, 0x83, 0x87, 0x90, 0x91, 0x97, 0x99:
		return true
	default:
		return false
	}
}

// validSubackReasonCode: granted-qos plus failure 0x80 in v3.1.1 (3.9.3),
// the full table 3-8 in v5.
func validSubackReasonCode(version byte, code uint8) bool {
	switch code {
	case 0x00, 0x01, 0x02, 0x80:
		return true
	}
	if version != packet.VERSION500 {
		return false
	}
	switch code {
	case 0x83, 0x87, 0x8F, 0x91, 0x97, 0x9E, 0xA1, 0xA2:
		return true
	default:
		return false
	}
}

// validUnsubackReasonCode checks table 3-9; v3.1.1 UNSUBACK has no payload.
func validUnsubackReasonCode(code uint8) bool {
	switch code {
	case 0x00, 0x11, 0x80, 0x83, 0x87, 0x8F:
		return true
	default:
		return false
	}
}

func validateInboundConnack(pkt *packet.CONNACK) error {
	if !validConnackReturnCode(pkt.Version, pkt.ConnectReturnCode.Code) {
		return inboundErr("connack return code 0x%02X is not a known value", pkt.ConnectReturnCode.Code)
	}
	if pkt.SessionPresent != 0 && pkt.ConnectReturnCode.Code != packet.CodeSuccess.Code {
		return inboundErr("connack sessionPresent set without a success reason code")
	}
	if props := pkt.Props; props != nil {
		if props.HasReceiveMaximum && props.ReceiveMaximum == 0 {
			return inboundErr("connack receiveMaximum must be positive when present")
		}
		if props.HasMaximumPacketSize && props.MaximumPacketSize == 0 {
			return inboundErr("connack maximumPacketSize must be positive when present")
		}
		if props.MaximumQoS > 1 {
			return inboundErr("connack maximumQos %d out of range 0-1", props.MaximumQoS)
		}
	}
	return nil
}

func validateInboundPuback(pkt *packet.PUBACK) error {
	if pkt.PacketID == 0 {
		return inboundErr("puback missing packet id")
	}
	if !validPubackReasonCode(pkt.Version, pkt.ReasonCode.Code) {
		return inboundErr("puback reason code 0x%02X is not a known value", pkt.ReasonCode.Code)
	}
	return nil
}

func validateInboundSuback(pkt *packet.SUBACK) error {
	if pkt.PacketID == 0 {
		return inboundErr("suback missing packet id")
	}
	for _, reason := range pkt.ReasonCode {
		if !validSubackReasonCode(pkt.Version, reason.Code) {
			return inboundErr("suback reason code 0x%02X is not a known value", reason.Code)
		}
	}
	return nil
}

func validateInboundUnsuback(pkt *packet.UNSUBACK) error {
	if pkt.PacketID == 0 {
		return inboundErr("unsuback missing packet id")
	}
	for _, reason := range pkt.ReasonCode {
		if !validUnsubackReasonCode(reason.Code) {
			return inboundErr("unsuback reason code 0x%02X is not a known value", reason.Code)
		}
	}
	return nil
}

func validateInboundDisconnect(pkt *packet.DISCONNECT) error {
	if pkt.Props != nil && pkt.Props.SessionExpiryInterval > 0 {
		return inboundErr("inbound disconnect must not carry sessionExpiryInterval")
	}
	return nil
}
