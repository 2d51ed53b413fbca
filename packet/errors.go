package packet

import "fmt"

// ReasonCode pairs an MQTT reason-code byte with its standard name.
// It doubles as an error value for decode-time protocol violations.
type ReasonCode struct {
	Code   uint8
	Reason string
}

func (rc ReasonCode) Error() string {
	return fmt.Sprintf("%d:%s", rc.Code, rc.Reason)
}

// Success-range codes (0x00-0x19).
var (
	CodeSuccess               = ReasonCode{Code: 0x00, Reason: "success"}
	CodeGrantedQos0           = ReasonCode{Code: 0x00, Reason: "granted qos 0"}
	CodeGrantedQos1           = ReasonCode{Code: 0x01, Reason: "granted qos 1"}
	CodeGrantedQos2           = ReasonCode{Code: 0x02, Reason: "granted qos 2"}
	CodeDisconnectWillMessage = ReasonCode{Code: 0x04, Reason: "disconnect with will message"}
	CodeNoMatchingSubscribers = ReasonCode{Code: 0x10, Reason: "no matching subscribers"}
	CodeNoSubscriptionExisted = ReasonCode{Code: 0x11, Reason: "no subscription existed"}
	CodeContinueAuth          = ReasonCode{Code: 0x18, Reason: "continue authentication"}
	CodeReAuthenticate        = ReasonCode{Code: 0x19, Reason: "re-authenticate"}
)

// Decode-time protocol violations, surfaced as errors from Unpack.
var (
	ErrMalformedPacket          = ReasonCode{Code: 0x81, Reason: "malformed packet"}
	ErrMalformedProtocolName    = ReasonCode{Code: 0x81, Reason: "malformed packet: protocol name"}
	ErrMalformedProtocolVersion = ReasonCode{Code: 0x81, Reason: "malformed packet: protocol version"}
	ErrMalformedFlags           = ReasonCode{Code: 0x81, Reason: "malformed packet: flags"}
	ErrMalformedPassword        = ReasonCode{Code: 0x81, Reason: "malformed packet: password"}
	ErrMalformedReasonCode      = ReasonCode{Code: 0x81, Reason: "malformed packet: reason code"}
	ErrMalformedProperties      = ReasonCode{Code: 0x81, Reason: "malformed packet: properties"}
	ErrMalformedWillProperties  = ReasonCode{Code: 0x81, Reason: "malformed packet: will properties"}

	ErrProtocolErr                    = ReasonCode{Code: 0x82, Reason: "protocol error"}
	ErrProtocolViolation              = ReasonCode{Code: 0x82, Reason: "protocol violation"}
	ErrProtocolViolationQosOutOfRange = ReasonCode{Code: 0x82, Reason: "protocol violation: qos out of range"}

	ErrUnsupportedProtocolVersion = ReasonCode{Code: 0x84, Reason: "unsupported protocol version"}
	ErrPacketTooLarge             = ReasonCode{Code: 0x95, Reason: "packet too large"}
)
