package packet

// ToBinary performs the one-shot, one-way conversion from an internal
// request form to the binary wire struct. It is called exactly once
// per submitted operation, immediately before the operation enters a
// queue, per the "done exactly once" invariant: repeating it would
// recompute payload normalization and property packing for no reason.
func ToBinary(version byte, req any, packetID uint16) (Packet, error) {
	switch r := req.(type) {
	case *ConnectRequest:
		return connectToBinary(version, r)
	case *PublishRequest:
		return publishToBinary(version, r, packetID)
	case *SubscribeRequest:
		return subscribeToBinary(version, r, packetID)
	case *UnsubscribeRequest:
		return unsubscribeToBinary(version, r, packetID)
	case *DisconnectRequest:
		return disconnectToBinary(version, r)
	default:
		return nil, ErrUnsupportedPayloadType
	}
}

func connectToBinary(version byte, r *ConnectRequest) (*CONNECT, error) {
	var flags uint8
	if r.CleanStart {
		flags |= 0x02
	}
	if r.Username != "" {
		flags |= 0x80
	}
	if r.Password != "" {
		flags |= 0x40
	}
	pkt := &CONNECT{
		FixedHeader: &FixedHeader{Version: version, Kind: 0x1},
		ClientID:    r.ClientID,
		Username:    r.Username,
		Password:    r.Password,
		KeepAlive:   r.KeepAlive,
	}
	if r.Will != nil {
		flags |= 0x04
		flags |= (r.Will.QoS & 0x3) << 3
		if r.Will.Retain {
			flags |= 0x20
		}
		payload, err := marshalPayload(r.Will.Payload)
		if err != nil {
			return nil, err
		}
		pkt.WillTopic = r.Will.Topic
		pkt.WillPayload = payload
		if version == VERSION500 {
			pkt.WillProperties = &WillProperties{
				WillDelayInterval:     r.Will.DelayInterval,
				MessageExpiryInterval: r.Will.MessageExpiryInterval,
				ContentType:           r.Will.ContentType,
				ResponseTopic:         r.Will.ResponseTopic,
				CorrelationData:       r.Will.CorrelationData,
				UserProperty:          userPropertyMap(r.Will.UserProperties),
			}
		}
	}
	pkt.ConnectFlags = ConnectFlags(flags)
	if version == VERSION500 {
		pkt.Props = &ConnectProperties{
			SessionExpiryInterval:      r.SessionExpiryIntervalSeconds,
			ReceiveMaximum:             r.ReceiveMaximum,
			MaximumPacketSize:          r.MaximumPacketSize,
			TopicAliasMaximum:          r.TopicAliasMaximum,
			RequestResponseInformation: s2i2(r.RequestResponseInformation),
			RequestProblemInformation:  s2i2(r.RequestProblemInformation),
			UserProperty:               userPropertyMap(r.UserProperties),
		}
	}
	return pkt, nil
}

func publishToBinary(version byte, r *PublishRequest, packetID uint16) (*PUBLISH, error) {
	payload, err := marshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	pkt := &PUBLISH{
		FixedHeader: &FixedHeader{
			Version: version,
			Kind:    0x3,
			Dup:     s2i2(r.Dup),
			QoS:     r.QoS,
			Retain:  s2i2(r.Retain),
		},
		Message: &Message{TopicName: r.Topic, Content: payload},
	}
	if r.QoS > 0 {
		pkt.PacketID = packetID
	}
	if version == VERSION500 {
		pkt.Props = &PublishProperties{
			PayloadFormatIndicator: r.PayloadFormatIndicator,
			MessageExpiryInterval:  r.MessageExpiryInterval,
			TopicAlias:             r.TopicAlias,
			ResponseTopic:          r.ResponseTopic,
			CorrelationData:        r.CorrelationData,
			ContentType:            r.ContentType,
			UserProperty:           userPropertyMap(r.UserProperties),
		}
	}
	return pkt, nil
}

func subscribeToBinary(version byte, r *SubscribeRequest, packetID uint16) (*SUBSCRIBE, error) {
	pkt := &SUBSCRIBE{
		FixedHeader: &FixedHeader{Version: version, Kind: 0x8, QoS: 1},
		PacketID:    packetID,
	}
	for _, s := range r.Subscriptions {
		pkt.Subscriptions = append(pkt.Subscriptions, Subscription{
			TopicFilter:       s.TopicFilter,
			MaximumQoS:        s.MaximumQoS,
			NoLocal:           s2i2(s.NoLocal),
			RetainAsPublished: s2i2(s.RetainAsPublished),
			RetainHandling:    s.RetainHandling,
		})
	}
	if version == VERSION500 {
		pkt.Props = &SubscribeProperties{
			SubscriptionIdentifier: r.SubscriptionIdentifier,
			UserProperty:           userPropertyMap(r.UserProperties),
		}
	}
	return pkt, nil
}

func unsubscribeToBinary(version byte, r *UnsubscribeRequest, packetID uint16) (*UNSUBSCRIBE, error) {
	pkt := &UNSUBSCRIBE{
		FixedHeader: &FixedHeader{Version: version, Kind: 0xA, QoS: 1},
		PacketID:    packetID,
	}
	for _, f := range r.TopicFilters {
		pkt.Subscriptions = append(pkt.Subscriptions, Subscription{TopicFilter: f})
	}
	if version == VERSION500 {
		pkt.Props = &UnsubscribeProperties{UserProperty: userPropertyMap(r.UserProperties)}
	}
	return pkt, nil
}

func disconnectToBinary(version byte, r *DisconnectRequest) (*DISCONNECT, error) {
	pkt := &DISCONNECT{
		FixedHeader: &FixedHeader{Version: version, Kind: 0xE},
		ReasonCode:  ReasonCode{Code: r.ReasonCode},
	}
	if version == VERSION500 {
		pkt.Props = &DisconnectProperties{
			SessionExpiryInterval: r.SessionExpiryIntervalSeconds,
			ReasonString:          r.ReasonString,
			UserProperty:          userPropertyMap(r.UserProperties),
		}
	}
	return pkt, nil
}

func s2i2(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
