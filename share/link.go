package wrshare

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sammck-go/logger"
)

// Link wraps one WebSocket connection to or from the broker, framing
// envelopes onto it. Reads are owned by a single pump goroutine per link;
// writes may come from any goroutine and are serialized here, since the
// underlying websocket permits only one concurrent writer.
type Link struct {
	logger.Logger
	ws *websocket.Conn

	// role and id are fixed once the register handshake completes.
	role Role
	id   string

	// gen is the registration generation assigned by the broker registry to
	// egress links. A replaced egress link keeps its old generation, which no
	// longer matches the registry, so its late traffic is provably ignored.
	gen uint64

	stale atomic.Bool

	wmu    sync.Mutex
	closed atomic.Bool
}

// NewLink wraps an established websocket connection.
func NewLink(log logger.Logger, ws *websocket.Conn, name string) *Link {
	return &Link{
		Logger: log.ForkLogStr(name),
		ws:     ws,
	}
}

// Role returns the role declared at registration, or "" before that.
func (l *Link) Role() Role { return l.role }

// ID returns the connection identifier, or "" before registration.
func (l *Link) ID() string { return l.id }

// Gen returns the registration generation (egress links only).
func (l *Link) Gen() uint64 { return l.gen }

// MarkStale marks a replaced egress link inert. Traffic from a stale link is
// ignored no matter what its generation claims.
func (l *Link) MarkStale() { l.stale.Store(true) }

// IsStale reports whether the link has been replaced.
func (l *Link) IsStale() bool { return l.stale.Load() }

// RemoteAddr describes the peer for diagnostics.
func (l *Link) RemoteAddr() string {
	return l.ws.RemoteAddr().String()
}

// ReadEnvelope blocks for the next message on the link. A dead connection is
// reported as an ordinary error; an undecodable payload is reported as a
// *MalformedEnvelopeError with the connection still usable.
func (l *Link) ReadEnvelope() (*Envelope, error) {
	_, data, err := l.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(data)
}

// WriteEnvelope sends one envelope on the link. Safe for concurrent use.
func (l *Link) WriteEnvelope(env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.ws.WriteMessage(websocket.TextMessage, data)
}

// WritePing sends a websocket-level keepalive ping.
func (l *Link) WritePing(deadline time.Time) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

// SetReadLimit caps the size of inbound messages.
func (l *Link) SetReadLimit(n int64) {
	l.ws.SetReadLimit(n)
}

// Close tears down the underlying connection. Idempotent.
func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.ws.Close()
}
