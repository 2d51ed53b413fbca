package mqtt

import (
	"fmt"

	"github.com/webmqtt/engine/packet"
	"github.com/webmqtt/engine/topic"
)

func binaryErr(format string, args ...any) *ValidationError {
	return &ValidationError{Stage: "binary", Message: fmt.Sprintf(format, args...)}
}

// encodedLength packs p into a pooled scratch buffer purely to measure
// its wire size.
func encodedLength(p packet.Packet) (int, error) {
	buf := packet.GetBuffer()
	defer packet.PutBuffer(buf)
	if err := p.Pack(buf); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// validateBinaryPublish applies the pre-encode checks to an
// already-built binary PUBLISH, against the settings negotiated at
// connect time.
func validateBinaryPublish(pub *packet.PUBLISH, settings NegotiatedSettings) error {
	if len(pub.Message.TopicName) > 65535 {
		return binaryErr("topic name exceeds 65535 bytes")
	}
	if pub.QoS == 0 && pub.PacketID != 0 {
		return binaryErr("qos 0 publish must not carry a packet id")
	}
	if pub.QoS > 0 && pub.PacketID == 0 {
		return binaryErr("qos %d publish requires a nonzero packet id", pub.QoS)
	}
	if pub.QoS == 0 && pub.Dup != 0 {
		return binaryErr("qos 0 publish must not set the duplicate flag")
	}
	if pub.QoS > settings.MaximumQoS {
		return binaryErr("publish qos %d exceeds negotiated maximumQos %d", pub.QoS, settings.MaximumQoS)
	}
	if pub.Retain != 0 && !settings.RetainAvailable {
		return binaryErr("retain set but not supported by the server")
	}
	if pub.Props != nil {
		if pub.Props.TopicAlias != 0 {
			if settings.TopicAliasMaximumToServer == 0 || pub.Props.TopicAlias > settings.TopicAliasMaximumToServer {
				return binaryErr("topic alias %d exceeds negotiated maximum %d", pub.Props.TopicAlias, settings.TopicAliasMaximumToServer)
			}
		}
		if len(pub.Props.SubscriptionIdentifier) > 0 {
			return binaryErr("outbound publish must not set subscription identifiers")
		}
	}

	n, err := encodedLength(pub)
	if err != nil {
		return binaryErr("pack failed: %v", err)
	}
	if settings.MaximumPacketSizeToServer != 0 && n > int(settings.MaximumPacketSizeToServer) {
		return binaryErr("encoded length %d exceeds established maximum packet size %d", n, settings.MaximumPacketSizeToServer)
	}
	return nil
}

func validateBinarySubscribe(sub *packet.SUBSCRIBE, settings NegotiatedSettings) error {
	if sub.PacketID == 0 {
		return binaryErr("subscribe requires a nonzero packet id")
	}
	for _, s := range sub.Subscriptions {
		shared, err := topic.ValidateFilter(s.TopicFilter)
		if err != nil {
			return binaryErr("%v", err)
		}
		if shared != nil {
			if !settings.SharedSubscriptionsAvailable {
				return binaryErr("shared subscription %q not supported by the server", s.TopicFilter)
			}
			if s.NoLocal != 0 {
				return binaryErr("shared subscription %q must not set noLocal", s.TopicFilter)
			}
		}
		if topic.IsWildcard(s.TopicFilter) && !settings.WildcardSubscriptionsAvailable {
			return binaryErr("wildcard filter %q not supported by the server", s.TopicFilter)
		}
	}
	return checkEncodedLength(sub, settings)
}

func validateBinaryUnsubscribe(unsub *packet.UNSUBSCRIBE, settings NegotiatedSettings) error {
	if unsub.PacketID == 0 {
		return binaryErr("unsubscribe requires a nonzero packet id")
	}
	return checkEncodedLength(unsub, settings)
}

func validateBinaryConnect(conn *packet.CONNECT, settings NegotiatedSettings) error {
	return checkEncodedLength(conn, settings)
}

func validateBinaryDisconnect(disc *packet.DISCONNECT, settings NegotiatedSettings, connectSessionExpiryWasZero bool) error {
	if disc.Props != nil && disc.Props.SessionExpiryInterval > 0 && connectSessionExpiryWasZero {
		return binaryErr("disconnect sessionExpiryInterval>0 forbidden when connect negotiated session-expiry 0")
	}
	return checkEncodedLength(disc, settings)
}

func checkEncodedLength(p packet.Packet, settings NegotiatedSettings) error {
	n, err := encodedLength(p)
	if err != nil {
		return binaryErr("pack failed: %v", err)
	}
	if settings.MaximumPacketSizeToServer != 0 && n > int(settings.MaximumPacketSizeToServer) {
		return binaryErr("encoded length %d exceeds established maximum packet size %d", n, settings.MaximumPacketSizeToServer)
	}
	return nil
}
