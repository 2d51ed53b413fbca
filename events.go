package mqtt

import (
	"context"

	"github.com/webmqtt/engine/packet"
)

// completionHandle is the engine's view of a submitter's result
// handler: a capability to complete exactly once. Token[T] implements
// it; the engine itself never knows the concrete T.
type completionHandle interface {
	notifySuccess(result any)
	notifyFailure(err error)
}

// Token is a single-shot, concurrency-safe completion handle returned
// to the submitter of a user operation. Exactly one of notifySuccess
// or notifyFailure ever fires.
type Token[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newToken[T any]() *Token[T] {
	return &Token[T]{done: make(chan struct{})}
}

func (t *Token[T]) notifySuccess(result any) {
	if v, ok := result.(T); ok {
		t.val = v
	}
	close(t.done)
}

func (t *Token[T]) notifyFailure(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until the operation completes or ctx is done, whichever
// comes first.
func (t *Token[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// PublishResult is delivered to the submitter of a Publish operation.
type PublishResult struct {
	PacketID uint16
}

// NetworkEventKind tags the one-of variants of NetworkEvent.
type NetworkEventKind int

const (
	ConnectionOpened NetworkEventKind = iota
	ConnectionClosed
	IncomingData
	WriteCompletion
)

// NetworkEvent is handed to Engine.HandleNetworkEvent by the adapter.
type NetworkEvent struct {
	ElapsedMillis int64
	Kind          NetworkEventKind

	// EstablishmentTimeoutMillis is set on ConnectionOpened: the
	// deadline (relative to ElapsedMillis) by which a Connack must
	// arrive or the engine halts with HaltTimeout.
	EstablishmentTimeoutMillis int64

	// Data is set on IncomingData.
	Data []byte
}

// UserEventKind tags the one-of variants of UserEvent.
type UserEventKind int

const (
	UserPublish UserEventKind = iota
	UserSubscribe
	UserUnsubscribe
	UserDisconnect
)

// UserEvent is handed to Engine.HandleUserEvent by the adapter. Exactly
// one of the typed request fields is set, matching Kind.
type UserEvent struct {
	ElapsedMillis int64
	Kind          UserEventKind

	Publish     *packet.PublishRequest
	Subscribe   *packet.SubscribeRequest
	Unsubscribe *packet.UnsubscribeRequest
	Disconnect  *packet.DisconnectRequest

	// TimeoutMillis, if non-zero, is the operation's own deadline in
	// milliseconds from submission; 0 means Options'
	// DefaultOperationTimeoutMs applies (no deadline if that is 0 too).
	TimeoutMillis int64

	publishToken     *Token[PublishResult]
	subscribeToken   *Token[*packet.SUBACK]
	unsubscribeToken *Token[*packet.UNSUBACK]
	disconnectToken  *Token[struct{}]
}

// NewPublishEvent builds a UserEvent submitting a publish, returning
// the token the caller waits on for completion.
func NewPublishEvent(elapsedMillis int64, req *packet.PublishRequest) (*UserEvent, *Token[PublishResult]) {
	tok := newToken[PublishResult]()
	return &UserEvent{ElapsedMillis: elapsedMillis, Kind: UserPublish, Publish: req, publishToken: tok}, tok
}

// NewSubscribeEvent builds a UserEvent submitting a subscribe.
func NewSubscribeEvent(elapsedMillis int64, req *packet.SubscribeRequest) (*UserEvent, *Token[*packet.SUBACK]) {
	tok := newToken[*packet.SUBACK]()
	return &UserEvent{ElapsedMillis: elapsedMillis, Kind: UserSubscribe, Subscribe: req, subscribeToken: tok}, tok
}

// NewUnsubscribeEvent builds a UserEvent submitting an unsubscribe.
func NewUnsubscribeEvent(elapsedMillis int64, req *packet.UnsubscribeRequest) (*UserEvent, *Token[*packet.UNSUBACK]) {
	tok := newToken[*packet.UNSUBACK]()
	return &UserEvent{ElapsedMillis: elapsedMillis, Kind: UserUnsubscribe, Unsubscribe: req, unsubscribeToken: tok}, tok
}

// NewDisconnectEvent builds a UserEvent submitting a disconnect.
func NewDisconnectEvent(elapsedMillis int64, req *packet.DisconnectRequest) (*UserEvent, *Token[struct{}]) {
	tok := newToken[struct{}]()
	return &UserEvent{ElapsedMillis: elapsedMillis, Kind: UserDisconnect, Disconnect: req, disconnectToken: tok}, tok
}

func (e *UserEvent) completionHandle() completionHandle {
	switch e.Kind {
	case UserPublish:
		return e.publishToken
	case UserSubscribe:
		return e.subscribeToken
	case UserUnsubscribe:
		return e.unsubscribeToken
	case UserDisconnect:
		return e.disconnectToken
	default:
		return nil
	}
}

// ServiceResult is returned by Engine.Service.
type ServiceResult struct {
	// ToSocket is the slice of buf that was filled with outbound bytes,
	// or nil if nothing was written this call.
	ToSocket []byte
}

// HaltedEvent is surfaced once, the moment the engine enters its
// terminal halted state.
type HaltedEvent struct {
	Kind   HaltKind
	Reason string
}
