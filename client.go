package mqtt

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"net/url"

	"github.com/webmqtt/engine/packet"
)

// A Client wraps an Engine and its transport adapter into a
// promise-flavored API: every submission returns a Token the caller
// waits on. The Client is safe for concurrent use; the adapter
// serializes all engine access internally.
type Client struct {
	// URL is the broker endpoint parsed from Options.URL. Schemes:
	// mqtt/tcp, mqtts/tls, ws, wss.
	URL *url.URL

	options Options
	engine  *Engine
	adapter *adapter

	onMessage func(*packet.Message)
}

// New builds a Client. It does not touch the network; call Connect.
func New(opts ...Option) *Client {
	options := newOptions(opts...)
	u, err := url.Parse(options.URL)
	if err != nil {
		panic(err)
	}
	engine := NewEngine(options)
	c := &Client{
		URL:     u,
		options: options,
		engine:  engine,
		adapter: newAdapter(engine, options),
	}
	engine.OnPublishReceived = c.deliver
	log.Printf("[CLIENT_CREATED] MQTT client created - ClientID: %s, Server: %s", options.ClientID, options.URL)
	return c
}

// ID returns the client identifier, including a server-assigned one
// once connected.
func (c *Client) ID() string {
	return c.engine.NegotiatedSettings().ClientID
}

// Stat exposes the client's Prometheus collectors for registration.
func (c *Client) Stat() *Stat {
	return c.adapter.stat
}

// DialContext overrides plain TCP dialing, mirroring the hook on
// net/http's Transport.
func (c *Client) DialContext(fn func(ctx context.Context, network, addr string) (net.Conn, error)) {
	c.adapter.DialContext = fn
}

// TLSClientConfig sets the TLS configuration used for mqtts/wss.
func (c *Client) TLSClientConfig(cfg *tls.Config) {
	c.adapter.TLSClientConfig = cfg
}

// OnMessage registers the handler invoked for every application
// message the broker delivers. Must be set before Connect.
func (c *Client) OnMessage(fn func(*packet.Message)) {
	c.onMessage = fn
}

func (c *Client) deliver(pub *packet.PUBLISH) {
	c.adapter.stat.MessagesReceived.Inc()
	if c.onMessage == nil {
		return
	}
	go c.onMessage(pub.Message)
}

// Connect dials the broker, attaches the engine to the connection and
// blocks until the session is established or ctx expires. The engine
// keeps running in the background after Connect returns; the returned
// error only covers establishment.
func (c *Client) Connect(ctx context.Context) error {
	log.Printf("client attempting to dial: client_id=%s, server=%s", c.options.ClientID, c.URL.Host)
	rwc, err := c.adapter.dial(ctx, c.URL)
	if err != nil {
		log.Printf("client dial failed: client_id=%s, server=%s, error=%v", c.options.ClientID, c.URL.Host, err)
		return err
	}
	log.Printf("client dialed successfully: client_id=%s, server=%s", c.options.ClientID, c.URL.Host)

	c.adapter.stat.ActiveConnections.Inc()
	attached := make(chan error, 1)
	go func() {
		attached <- c.adapter.attach(context.WithoutCancel(ctx), rwc)
		c.adapter.stat.ActiveConnections.Dec()
	}()

	select {
	case <-ctx.Done():
		rwc.Close()
		return ctx.Err()
	case err := <-attached:
		return err
	case <-c.adapter.connected:
		log.Printf("client connected successfully: client_id=%s, server=%s", c.ID(), c.URL.Host)
		return nil
	}
}

// Publish submits an application message. The returned token resolves
// when the broker acks it (QoS 1) or the bytes flush (QoS 0).
func (c *Client) Publish(req *packet.PublishRequest) (*Token[PublishResult], error) {
	ev, tok := NewPublishEvent(c.adapter.elapsed(), req)
	if err := c.adapter.submit(ev); err != nil {
		return nil, err
	}
	return tok, nil
}

// Subscribe submits a subscription request.
func (c *Client) Subscribe(req *packet.SubscribeRequest) (*Token[*packet.SUBACK], error) {
	ev, tok := NewSubscribeEvent(c.adapter.elapsed(), req)
	if err := c.adapter.submit(ev); err != nil {
		return nil, err
	}
	return tok, nil
}

// Unsubscribe submits an unsubscription request.
func (c *Client) Unsubscribe(req *packet.UnsubscribeRequest) (*Token[*packet.UNSUBACK], error) {
	ev, tok := NewUnsubscribeEvent(c.adapter.elapsed(), req)
	if err := c.adapter.submit(ev); err != nil {
		return nil, err
	}
	return tok, nil
}

// Disconnect submits a clean DISCONNECT. Once its bytes flush the
// engine halts normally and the adapter closes the transport.
func (c *Client) Disconnect(req *packet.DisconnectRequest) (*Token[struct{}], error) {
	log.Printf("client attempting to disconnect: client_id=%s", c.ID())
	ev, tok := NewDisconnectEvent(c.adapter.elapsed(), req)
	if err := c.adapter.submit(ev); err != nil {
		return nil, err
	}
	return tok, nil
}

// Close tears the transport down without a DISCONNECT exchange. Live
// operations are failed or preserved per the offline queue policy.
func (c *Client) Close() error {
	log.Printf("[CLIENT_CLOSED] MQTT client closed - ClientID: %s", c.ID())
	c.adapter.mu.Lock()
	rwc := c.adapter.rwc
	c.adapter.mu.Unlock()
	if rwc != nil {
		return rwc.Close()
	}
	return nil
}
