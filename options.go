package mqtt

import (
	"fmt"

	"github.com/golang-io/requests"
	"github.com/webmqtt/engine/packet"
)

// Options configures an Engine and the adapter that drives it.
type Options struct {
	URL      string
	ClientID string
	Version  byte

	CleanStart bool
	Username   string
	Password   string
	Will       *packet.WillMessage

	KeepAliveIntervalSeconds uint16
	PingTimeoutMs            int64

	SessionExpiryIntervalSeconds uint32
	ReceiveMaximum               uint16 // advertised to the server, inbound direction
	MaximumPacketSize            uint32

	EstablishmentTimeoutMs    int64
	DefaultOperationTimeoutMs int64

	OfflineQueuePolicy OfflineQueuePolicy

	Subscriptions []packet.SubscriptionRequest
}

type Option func(*Options)

func newOptions(opts ...Option) Options {
	options := Options{
		URL:                       "mqtt://127.0.0.1:1883",
		ClientID:                  "mqtt-" + requests.GenId(),
		Version:                   packet.VERSION311,
		CleanStart:                true,
		KeepAliveIntervalSeconds:  60,
		PingTimeoutMs:             10_000,
		ReceiveMaximum:            65535,
		EstablishmentTimeoutMs:    20_000,
		DefaultOperationTimeoutMs: 20_000,
		OfflineQueuePolicy:        FailQos0PublishOnDisconnect,
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

func URL(url string) Option {
	return func(o *Options) { o.URL = url }
}

func ClientID(id string) Option {
	return func(o *Options) { o.ClientID = id }
}

func Credentials(username, password string) Option {
	return func(o *Options) { o.Username, o.Password = username, password }
}

func CleanStart(clean bool) Option {
	return func(o *Options) { o.CleanStart = clean }
}

func KeepAlive(seconds uint16) Option {
	return func(o *Options) { o.KeepAliveIntervalSeconds = seconds }
}

func PingTimeout(ms int64) Option {
	return func(o *Options) { o.PingTimeoutMs = ms }
}

func SessionExpiryInterval(seconds uint32) Option {
	return func(o *Options) { o.SessionExpiryIntervalSeconds = seconds }
}

func ReceiveMaximum(n uint16) Option {
	return func(o *Options) { o.ReceiveMaximum = n }
}

func MaximumPacketSize(n uint32) Option {
	return func(o *Options) { o.MaximumPacketSize = n }
}

func EstablishmentTimeout(ms int64) Option {
	return func(o *Options) { o.EstablishmentTimeoutMs = ms }
}

func DefaultOperationTimeout(ms int64) Option {
	return func(o *Options) { o.DefaultOperationTimeoutMs = ms }
}

func Offline(policy OfflineQueuePolicy) Option {
	return func(o *Options) { o.OfflineQueuePolicy = policy }
}

func WillMessage(will *packet.WillMessage) Option {
	return func(o *Options) { o.Will = will }
}

func Subscription(subscription ...packet.SubscriptionRequest) Option {
	return func(o *Options) {
		o.Subscriptions = append(o.Subscriptions, subscription...)
	}
}

func Version[T ~string | ~byte](version T) Option {
	return func(o *Options) {
		switch v := any(version).(type) {
		case byte:
			o.Version = v
		case string:
			switch v {
			case "5.0.0":
				o.Version = packet.VERSION500
			case "3.1.1":
				o.Version = packet.VERSION311
			default:
				panic(fmt.Errorf("version = %s not support", v))
			}
		}
	}
}
