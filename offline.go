package mqtt

// OfflineQueuePolicy governs which not-yet-acked operations survive a
// disconnect instead of being failed immediately.
type OfflineQueuePolicy int

const (
	// PreserveNothing drops every pending operation on disconnect.
	PreserveNothing OfflineQueuePolicy = iota
	// FailNonQos1PublishOnDisconnect keeps QoS>=1 publishes, drops
	// everything else (QoS 0 publishes and subscribe/unsubscribe).
	FailNonQos1PublishOnDisconnect
	// FailQos0PublishOnDisconnect is the default: keeps QoS>=1
	// publishes and subscribe/unsubscribe, drops only QoS 0 publishes.
	FailQos0PublishOnDisconnect
	// PreserveAcknowledged is an alias of FailQos0PublishOnDisconnect,
	// kept distinct so callers can name their intent either way.
	PreserveAcknowledged
	// PreserveAll keeps every pending operation, including QoS 0
	// publishes.
	PreserveAll
)

// operationCategory classifies a pending operation for offline-policy
// purposes.
type operationCategory int

const (
	categoryPublishQos0 operationCategory = iota
	categoryPublishQosAtLeast1
	categorySubscribeUnsubscribe
)

// survivesDisconnect reports whether an operation of the given category
// is preserved (vs. failed) under policy.
func survivesDisconnect(policy OfflineQueuePolicy, cat operationCategory) bool {
	switch policy {
	case PreserveNothing:
		return false
	case FailNonQos1PublishOnDisconnect:
		return cat == categoryPublishQosAtLeast1
	case FailQos0PublishOnDisconnect, PreserveAcknowledged:
		return cat != categoryPublishQos0
	case PreserveAll:
		return true
	default:
		return cat != categoryPublishQos0
	}
}
