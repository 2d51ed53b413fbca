package mqtt

import "github.com/webmqtt/engine/packet"

// NegotiatedSettings is fixed once at a successful Connack and held for
// the life of the connection. Derived from the outbound Connect and
// the inbound Connack, with MQTT 5 spec defaults applied when the
// server omits a field.
type NegotiatedSettings struct {
	MaximumQoS                        uint8
	SessionExpiryInterval             uint32
	ReceiveMaximumFromServer          uint16
	MaximumPacketSizeToServer         uint32
	TopicAliasMaximumToServer         uint16
	TopicAliasMaximumToClient         uint16
	ServerKeepAlive                   uint16
	RetainAvailable                   bool
	WildcardSubscriptionsAvailable    bool
	SubscriptionIdentifiersAvailable  bool
	SharedSubscriptionsAvailable      bool
	RejoinedSession                   bool
	ClientID                          string
}

// defaultNegotiatedSettings are the MQTT 5 spec defaults that apply
// when the server's Connack omits a property (§3.2.2.3 of the MQTT 5
// spec). MaximumPacketSizeToServer of 0 here means "no explicit cap
// beyond the protocol's own VLI-encodable maximum" and is treated that
// way by validate_binary.go.
func defaultNegotiatedSettings(clientID string, keepAlive uint16) NegotiatedSettings {
	return NegotiatedSettings{
		MaximumQoS:                       2,
		ReceiveMaximumFromServer:         65535,
		MaximumPacketSizeToServer:        0,
		TopicAliasMaximumToServer:        0,
		TopicAliasMaximumToClient:        0,
		ServerKeepAlive:                  keepAlive,
		RetainAvailable:                  true,
		WildcardSubscriptionsAvailable:   true,
		SubscriptionIdentifiersAvailable: true,
		SharedSubscriptionsAvailable:     true,
		ClientID:                         clientID,
	}
}

// negotiateFromConnack folds a CONNACK's properties onto the defaults
// derived from the Connect the engine sent. Only called in
// PendingConnack, on a Success reason code.
func negotiateFromConnack(clientID string, keepAlive uint16, sessionExpiry uint32, connack *packet.CONNACK) NegotiatedSettings {
	s := defaultNegotiatedSettings(clientID, keepAlive)
	s.SessionExpiryInterval = sessionExpiry
	s.RejoinedSession = connack.SessionPresent != 0

	props := connack.Props
	if props == nil {
		return s
	}
	if props.ReceiveMaximum != 0 {
		s.ReceiveMaximumFromServer = props.ReceiveMaximum
	}
	if props.MaximumPacketSize != 0 {
		s.MaximumPacketSizeToServer = props.MaximumPacketSize
	}
	if props.TopicAliasMaximum != 0 {
		s.TopicAliasMaximumToServer = props.TopicAliasMaximum
	}
	// MaximumQoS follows the same 0-means-absent convention as the
	// bool-like bytes below: only an explicit 1 lowers the default of 2,
	// so a server that sends an explicit 0 is read as the default.
	s.MaximumQoS = 2
	if props.MaximumQoS == 1 {
		s.MaximumQoS = 1
	}
	// The wire struct represents these as bare 0/1 bytes with no
	// presence flag, so an absent property and an explicit "disabled"
	// are indistinguishable here; treat 0 as "use the protocol default"
	// and 1 as an explicit override, which only loses information for a
	// server that actively disables a feature MQTT 5 defaults to on.
	if props.RetainAvailable == 1 {
		s.RetainAvailable = true
	}
	if props.WildcardSubscriptionAvailable == 1 {
		s.WildcardSubscriptionsAvailable = true
	}
	if props.SharedSubscriptionAvailable == 1 {
		s.SharedSubscriptionsAvailable = true
	}
	if props.ServerKeepAlive != 0 {
		s.ServerKeepAlive = props.ServerKeepAlive
	}
	if props.AssignedClientID != "" {
		s.ClientID = props.AssignedClientID
	}
	return s
}
