package wrshare

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// ErrNotConnected is returned by BrokerClient.Send while no registered link
// to the broker exists. Callers translate it to their own unavailability
// signal; nothing is queued.
var ErrNotConnected = errors.New("not connected to broker")

// brokerClientEvents receives link lifecycle and traffic callbacks from a
// BrokerClient. OnEnvelope is called from the link's single read pump, so
// implementations that need out-of-order completion must hand work off
// themselves.
type brokerClientEvents interface {
	OnEnvelope(env *Envelope)
	OnUp()
	OnDown(err error)
}

// BrokerClient maintains one registered WebSocket link to the broker on
// behalf of an adapter role. On any link loss it redials after a fixed delay,
// forever. Both the ingress adapter and the egress executor run on top of it;
// only the role (and for ingress, the client identifier) differs.
type BrokerClient struct {
	*asyncobj.Helper

	url       string
	role      Role
	clientID  string
	retry     time.Duration
	keepAlive time.Duration
	events    brokerClientEvents

	mu   sync.Mutex
	link *Link
}

// newBrokerClient prepares a client for the given role. brokerURL accepts
// http(s), ws(s), or a bare host:port.
func newBrokerClient(log logger.Logger, brokerURL string, role Role, clientID string, retry, keepAlive time.Duration, events brokerClientEvents) (*BrokerClient, error) {
	wsURL, err := normalizeBrokerURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	c := &BrokerClient{
		url:       wsURL,
		role:      role,
		clientID:  clientID,
		retry:     retry,
		keepAlive: keepAlive,
		events:    events,
	}
	c.Helper = asyncobj.NewHelper(log.ForkLogStr("brokerlink"), c)
	return c, nil
}

// Start launches the connection loop and returns immediately.
func (c *BrokerClient) Start(ctx context.Context) error {
	return c.DoOnceActivate(func() error {
		shutdownOnContext(ctx, c)
		c.ILogf("connecting to %s as %q", c.url, c.role)
		go c.connectionLoop(ctx)
		if c.keepAlive > 0 {
			go c.keepAliveLoop()
		}
		return nil
	}, true)
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// should take completionError as an advisory completion value, actually shut
// down, then return the real completion value.
func (c *BrokerClient) HandleOnceShutdown(completionErr error) error {
	c.mu.Lock()
	link := c.link
	c.link = nil
	c.mu.Unlock()
	if link != nil {
		link.Close()
	}
	return completionErr
}

// Close shuts the client down and returns the final completion code.
func (c *BrokerClient) Close() error {
	return c.Helper.Close()
}

// Connected reports whether a registered link currently exists.
func (c *BrokerClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Send writes an envelope on the current link. Returns ErrNotConnected when
// the link is down; the relay never buffers traffic it cannot carry.
func (c *BrokerClient) Send(env *Envelope) error {
	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if link == nil {
		return ErrNotConnected
	}
	return link.WriteEnvelope(env)
}

// connectionLoop dials, registers, pumps envelopes until the link drops, then
// sleeps the fixed retry interval and repeats, until shutdown. The backoff
// is pinned (Min == Max) so reconnect timing stays observably fixed.
func (c *BrokerClient) connectionLoop(ctx context.Context) {
	b := &backoff.Backoff{Min: c.retry, Max: c.retry}
	for !c.IsStartedShutdown() {
		err := c.connectOnce(ctx)
		if c.IsStartedShutdown() {
			break
		}
		if err != nil {
			c.DLogf("connection error: %s", err)
		}
		c.events.OnDown(err)
		d := b.Duration()
		c.ILogf("retrying in %s...", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			c.StartShutdown(ctx.Err())
		}
	}
}

// connectOnce runs a single dial-register-pump cycle and returns the error
// that ended it.
func (c *BrokerClient) connectOnce(ctx context.Context) error {
	d := websocket.Dialer{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 45 * time.Second,
		Subprotocols:     []string{ProtocolVersion},
	}
	wsConn, _, err := d.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	link := NewLink(c.Helper, wsConn, "link")
	defer link.Close()

	reg := &Envelope{Type: TypeRegister, Role: c.role, ClientID: c.clientID}
	if err := link.WriteEnvelope(reg); err != nil {
		return err
	}
	ack, err := link.ReadEnvelope()
	if err != nil {
		return err
	}
	if ack.Type != TypeRegistered {
		return c.Errorf("broker refused registration: %s", ack.Error)
	}
	if c.role == RoleIngress && ack.ClientID != "" {
		c.clientID = ack.ClientID
	}

	c.mu.Lock()
	c.link = link
	c.mu.Unlock()
	c.ILogf("registered with broker as %q", c.role)
	c.events.OnUp()

	defer func() {
		c.mu.Lock()
		if c.link == link {
			c.link = nil
		}
		c.mu.Unlock()
	}()

	for {
		env, err := link.ReadEnvelope()
		if err != nil {
			if isMalformed(err) {
				c.WLogf("dropping malformed message from broker: %s", err)
				continue
			}
			c.ILogf("disconnected")
			return err
		}
		c.events.OnEnvelope(env)
	}
}

// keepAliveLoop sends websocket pings on the live link at the configured
// interval.
func (c *BrokerClient) keepAliveLoop() {
	t := time.NewTicker(c.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-c.ShutdownDoneChan():
			return
		case <-t.C:
			c.mu.Lock()
			link := c.link
			c.mu.Unlock()
			if link != nil {
				link.WritePing(time.Now().Add(c.keepAlive))
			}
		}
	}
}
