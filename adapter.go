package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

// adapter owns everything the engine refuses to: the socket, the
// timers and the goroutines. It serializes every engine entry point
// behind one mutex and supplies the monotonic elapsed-milliseconds
// clock the engine's events carry.
type adapter struct {
	engine  *Engine
	options Options

	// DialContext optionally overrides plain TCP dialing.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// TLSClientConfig is used for mqtts/tls/wss schemes.
	TLSClientConfig *tls.Config

	mu    sync.Mutex
	rwc   net.Conn
	epoch time.Time

	// wake nudges the service loop when a user submission or inbound
	// packet may have created work before the scheduled timepoint.
	wake chan struct{}

	connected chan struct{} // closed on transition to Connected
	haltedEv  chan HaltedEvent

	stat *Stat
}

func newAdapter(engine *Engine, options Options) *adapter {
	a := &adapter{
		engine:    engine,
		options:   options,
		epoch:     time.Now(),
		wake:      make(chan struct{}, 1),
		connected: make(chan struct{}),
		haltedEv:  make(chan HaltedEvent, 1),
		stat:      newStat(),
	}
	engine.OnHalted = func(ev HaltedEvent) {
		a.stat.Halts.WithLabelValues(ev.Kind.String()).Inc()
		select {
		case a.haltedEv <- ev:
		default:
		}
	}
	return a
}

func (a *adapter) elapsed() int64 {
	return time.Since(a.epoch).Milliseconds()
}

func (a *adapter) nudge() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// dial opens the underlying transport. Scheme handling matches the
// upstream client: tcp/mqtt plain, tls/mqtts via crypto/tls, ws/wss as
// binary-frame websocket with the mqtt subprotocol.
func (a *adapter) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	scheme, addr := u.Scheme, u.Host
	if a.DialContext != nil && (scheme == "tcp" || scheme == "mqtt") {
		con, err := a.DialContext(ctx, "tcp", addr)
		if con == nil && err == nil {
			err = errors.New("mqtt: DialContext hook returned (nil, nil)")
		}
		return con, err
	}
	switch scheme {
	case "mqtt", "tcp":
		return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	case "mqtts", "tls":
		return tls.DialWithDialer(&net.Dialer{}, "tcp", addr, a.TLSClientConfig)
	case "ws", "wss":
		path := u.Path
		if path == "" {
			path = "/mqtt"
		}
		loc := &url.URL{Scheme: scheme, Host: addr, Path: path}
		originScheme := "http"
		if scheme == "wss" {
			originScheme = "https"
		}
		origin := &url.URL{Scheme: originScheme, Host: addr}

		cfg, err := websocket.NewConfig(loc.String(), origin.String())
		if err != nil {
			return nil, err
		}
		cfg.Protocol = []string{"mqtt"}
		if scheme == "wss" {
			cfg.TlsConfig = a.TLSClientConfig
		}
		ws, err := websocket.DialConfig(cfg)
		if err != nil {
			return nil, err
		}
		ws.PayloadType = websocket.BinaryFrame
		return ws, nil
	default:
		return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	}
}

// attach hands an established connection to the engine and starts the
// read pump and service loop. It returns when the connection dies or
// ctx is cancelled.
func (a *adapter) attach(ctx context.Context, rwc net.Conn) error {
	a.mu.Lock()
	a.rwc = rwc
	err := a.engine.HandleNetworkEvent(&NetworkEvent{
		ElapsedMillis:              a.elapsed(),
		Kind:                       ConnectionOpened,
		EstablishmentTimeoutMillis: a.options.EstablishmentTimeoutMs,
	})
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.nudge()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.readPump(ctx, rwc)
	})
	group.Go(func() error {
		return a.serviceLoop(ctx, rwc)
	})
	group.Go(func() error {
		select {
		case <-ctx.Done():
		case ev := <-a.haltedEv:
			log.Printf("[ENGINE_HALTED] kind=%s, reason=%s", ev.Kind, ev.Reason)
		}
		return rwc.Close()
	})
	err = group.Wait()

	a.mu.Lock()
	a.rwc = nil
	a.engine.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: a.elapsed(), Kind: ConnectionClosed})
	a.mu.Unlock()
	return err
}

// readPump copies socket reads into IncomingData events. The engine
// tolerates any fragmentation, so the read size here is arbitrary.
func (a *adapter) readPump(ctx context.Context, rwc net.Conn) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := rwc.Read(buf)
		if n > 0 {
			a.stat.ByteReceived.Add(float64(n))
			a.mu.Lock()
			herr := a.engine.HandleNetworkEvent(&NetworkEvent{
				ElapsedMillis: a.elapsed(),
				Kind:          IncomingData,
				Data:          buf[:n],
			})
			state := a.engine.State()
			a.mu.Unlock()
			if state == Connected {
				a.markConnected()
			}
			a.nudge()
			if herr != nil {
				return herr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("mqtt: connection closed by peer")
			}
			return err
		}
	}
}

func (a *adapter) markConnected() {
	select {
	case <-a.connected:
	default:
		close(a.connected)
	}
}

// serviceLoop drives Engine.Service at the cadence the engine asks
// for, writing whatever it emits and acknowledging completed writes.
func (a *adapter) serviceLoop(ctx context.Context, rwc net.Conn) error {
	buf := make([]byte, 64*1024)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-a.wake:
		}

		a.mu.Lock()
		result, err := a.engine.Service(a.elapsed(), buf)
		a.mu.Unlock()
		if err != nil {
			return err
		}
		if out := result.ToSocket; len(out) > 0 {
			if _, werr := rwc.Write(out); werr != nil {
				return werr
			}
			a.stat.ByteSent.Add(float64(len(out)))
			a.mu.Lock()
			a.engine.HandleNetworkEvent(&NetworkEvent{ElapsedMillis: a.elapsed(), Kind: WriteCompletion})
			a.mu.Unlock()
		}

		a.mu.Lock()
		next := a.engine.NextServiceTimepoint(a.elapsed())
		a.mu.Unlock()
		wait := time.Duration(next-a.elapsed()) * time.Millisecond
		if wait < 0 {
			wait = 0
		}
		if wait > time.Minute {
			wait = time.Minute
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
	}
}

// submit hands a user event to the engine and wakes the service loop.
func (a *adapter) submit(ev *UserEvent) error {
	a.mu.Lock()
	err := a.engine.HandleUserEvent(ev)
	a.mu.Unlock()
	a.nudge()
	return err
}
