package wrshare

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// BrokerConfig configures a relay broker.
type BrokerConfig struct {
	// ListenAddr is the host:port the broker accepts connections on.
	ListenAddr string

	// MaxEnvelopeBytes caps a single inbound wire message. Defaults to
	// DefaultMaxBodyBytes plus framing headroom.
	MaxEnvelopeBytes int64

	// Debug enables debug logging and per-request logging of the HTTP
	// listener.
	Debug bool
}

// Broker is the rendezvous process pairing ingress and egress traffic. It
// accepts WebSocket connections, classifies each by the register envelope it
// must open with, and then routes request envelopes toward the single egress
// connection and response envelopes back to the ingress connection whose
// correlation ID they carry.
type Broker struct {
	*asyncobj.Helper
	config     *BrokerConfig
	httpServer *HTTPServer
	registry   *Registry
	pending    *PendingTable
	metrics    *brokerMetrics
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{ProtocolVersion},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewBroker creates a broker that is not yet listening.
func NewBroker(config *BrokerConfig) (*Broker, error) {
	logLevel := logger.LogLevelInfo
	if config.Debug {
		logLevel = logger.LogLevelDebug
	}
	log, err := logger.New(
		logger.WithLogLevel(logLevel),
		logger.WithPrefix("broker"),
	)
	if err != nil {
		return nil, err
	}
	if config.MaxEnvelopeBytes <= 0 {
		config.MaxEnvelopeBytes = DefaultMaxBodyBytes + 64*1024
	}
	registry := NewRegistry()
	pending := NewPendingTable()
	b := &Broker{
		config:     config,
		httpServer: NewHTTPServer(log),
		registry:   registry,
		pending:    pending,
		metrics:    newBrokerMetrics(registry, pending),
	}
	b.Helper = asyncobj.NewHelper(log, b)
	return b, nil
}

// Run listens on the configured address and serves until ctx is cancelled or
// Close is called.
func (b *Broker) Run(ctx context.Context) error {
	if err := b.httpServer.Listen(b.config.ListenAddr); err != nil {
		return err
	}
	return b.serve(ctx)
}

// Addr returns the bound listen address once Run or Listen has bound it.
func (b *Broker) Addr() string {
	return b.httpServer.Addr()
}

// Listen binds the configured address without serving, so callers can learn
// the bound port before traffic starts.
func (b *Broker) Listen() error {
	return b.httpServer.Listen(b.config.ListenAddr)
}

// Serve accepts connections on a previously bound listener until shutdown.
func (b *Broker) Serve(ctx context.Context) error {
	return b.serve(ctx)
}

func (b *Broker) serve(ctx context.Context) error {
	err := b.DoOnceActivate(func() error {
		shutdownOnContext(ctx, b)
		b.ILogf("listening on %s", b.Addr())
		return nil
	}, true)
	if err != nil {
		return err
	}

	h := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.handleHTTP(ctx, w, r)
	}))
	if b.config.Debug {
		h = requestlog.Wrap(h)
	}
	return b.httpServer.Serve(ctx, h)
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// should take completionError as an advisory completion value, actually shut
// down, then return the real completion value.
func (b *Broker) HandleOnceShutdown(completionErr error) error {
	err := b.httpServer.Close()
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Close shuts the broker down and returns the final completion code.
func (b *Broker) Close() error {
	return b.Helper.Close()
}

// handleHTTP dispatches inbound HTTP: websocket upgrades become relay
// connections; everything else gets the health, version, and metrics
// endpoints.
func (b *Broker) handleHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		protocol := r.Header.Get("Sec-WebSocket-Protocol")
		if protocol != ProtocolVersion {
			b.ILogf("connection offering unsupported protocol %q, expected %q", protocol, ProtocolVersion)
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.DLogf("failed to upgrade to websocket: %s", err)
			return
		}
		go func() {
			b.handleConnection(ctx, wsConn)
			wsConn.Close()
		}()
		return
	}

	switch r.URL.Path {
	case "/health":
		w.Write([]byte("OK\n"))
	case "/version":
		w.Write([]byte(BuildVersion + "\n"))
	case "/metrics":
		b.metrics.handler().ServeHTTP(w, r)
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

// handleConnection owns one relay connection from registration to
// disconnect. The first message must be a valid register envelope; anything
// else terminates the connection.
func (b *Broker) handleConnection(ctx context.Context, wsConn *websocket.Conn) {
	link := NewLink(b.Helper, wsConn, fmt.Sprintf("conn(%s)", wsConn.RemoteAddr()))
	link.SetReadLimit(b.config.MaxEnvelopeBytes)
	defer link.Close()

	env, err := link.ReadEnvelope()
	if err != nil || env.Type != TypeRegister {
		reason := "connection closed before registration"
		if err == nil {
			reason = fmt.Sprintf("first message was %q, expected %q", env.Type, TypeRegister)
		} else if isMalformed(err) {
			reason = err.Error()
		}
		link.DLogf("rejecting connection: %s", reason)
		link.WriteEnvelope(NewErrorEnvelope("", reason))
		return
	}

	link.role = env.Role
	switch env.Role {
	case RoleEgress:
		b.runEgressConnection(link)
	case RoleIngress:
		link.id = env.ClientID
		if link.id == "" {
			link.id = NewConnID()
		}
		b.runIngressConnection(link)
	}
}

// runEgressConnection installs the link as the single egress connection and
// pumps its envelopes until disconnect.
func (b *Broker) runEgressConnection(link *Link) {
	if replaced := b.registry.SetEgress(link); replaced != nil {
		b.ILogf("egress connection replaced; traffic from %s is now ignored", replaced.RemoteAddr())
	}
	link.WriteEnvelope(&Envelope{Type: TypeRegistered, Role: RoleEgress})
	b.ILogf("egress registered from %s", link.RemoteAddr())

	for {
		env, err := link.ReadEnvelope()
		if err != nil {
			if isMalformed(err) {
				b.metrics.dropped.WithLabelValues(dropReasonMalformed).Inc()
				link.WLogf("dropping malformed message: %s", err)
				link.WriteEnvelope(NewErrorEnvelope("", err.Error()))
				continue
			}
			break
		}
		switch env.Type {
		case TypeResponse, TypeError:
			b.routeResponse(link, env)
		default:
			b.metrics.dropped.WithLabelValues(dropReasonBadRole).Inc()
			link.DLogf("ignoring %q envelope from egress connection", env.Type)
		}
	}

	// The broker only drops its registry slot here. In-flight pending
	// entries are left for the ingress-side timeout to clean up.
	if b.registry.ClearEgress(link) {
		b.ILogf("egress disconnected; requests will be refused until a new egress registers")
	} else {
		b.DLogf("stale egress connection from %s closed", link.RemoteAddr())
	}
}

// runIngressConnection adds the link to the ingress set and pumps its
// envelopes until disconnect, then purges every pending entry it owns.
func (b *Broker) runIngressConnection(link *Link) {
	if replaced := b.registry.AddIngress(link); replaced != nil {
		b.WLogf("ingress id %q re-registered; previous connection orphaned", link.ID())
	}
	link.WriteEnvelope(&Envelope{Type: TypeRegistered, Role: RoleIngress, ClientID: link.ID()})
	b.ILogf("ingress %q registered from %s", link.ID(), link.RemoteAddr())

	for {
		env, err := link.ReadEnvelope()
		if err != nil {
			if isMalformed(err) {
				b.metrics.dropped.WithLabelValues(dropReasonMalformed).Inc()
				link.WLogf("dropping malformed message: %s", err)
				link.WriteEnvelope(NewErrorEnvelope("", err.Error()))
				continue
			}
			break
		}
		switch env.Type {
		case TypeRequest:
			b.routeRequest(link, env)
		default:
			b.metrics.dropped.WithLabelValues(dropReasonBadRole).Inc()
			link.DLogf("ignoring %q envelope from ingress connection", env.Type)
		}
	}

	b.registry.RemoveIngress(link)
	if purged := b.pending.PurgeOwner(link); purged > 0 {
		b.ILogf("ingress %q disconnected; purged %d pending request(s)", link.ID(), purged)
	} else {
		b.ILogf("ingress %q disconnected", link.ID())
	}
}

// ErrTargetUnavailable is the error message relayed to ingress callers while
// no egress connection is registered.
const ErrTargetUnavailable = "target unavailable"

// routeRequest forwards a request envelope from an ingress connection to the
// current egress connection, recording the correlation ID as pending. With no
// egress registered, the sender gets an immediate error envelope and the
// pending table is never touched.
func (b *Broker) routeRequest(sender *Link, env *Envelope) {
	egress := b.registry.Egress()
	if egress == nil {
		b.metrics.dropped.WithLabelValues(dropReasonNoEgress).Inc()
		sender.WriteEnvelope(NewErrorEnvelope(env.RequestID, ErrTargetUnavailable))
		return
	}

	if env.RequestID == "" {
		env.RequestID = NewRequestID()
	}
	if !b.pending.Add(env.RequestID, sender) {
		b.metrics.dropped.WithLabelValues(dropReasonUnmatched).Inc()
		sender.WLogf("duplicate correlation ID %q refused", env.RequestID)
		sender.WriteEnvelope(NewErrorEnvelope(env.RequestID, "duplicate correlation ID"))
		return
	}

	if err := egress.WriteEnvelope(env); err != nil {
		// The egress link died under us; undo the pending entry and answer
		// as if no egress were registered.
		b.pending.Take(env.RequestID)
		b.metrics.dropped.WithLabelValues(dropReasonNoEgress).Inc()
		b.DLogf("forward to egress failed: %s", err)
		sender.WriteEnvelope(NewErrorEnvelope(env.RequestID, ErrTargetUnavailable))
		return
	}
	b.metrics.requestsRelayed.Inc()
	b.DLogf("relayed request %s %s (id %s)", env.Method, env.Path, env.RequestID)
}

// routeResponse relays a response or error envelope back to the ingress
// connection that owns its correlation ID. Only the current egress connection
// may answer; traffic from a stale or replaced egress is dropped with a
// diagnostic, never surfaced to any client.
func (b *Broker) routeResponse(sender *Link, env *Envelope) {
	if !b.registry.IsCurrentEgress(sender) {
		b.metrics.dropped.WithLabelValues(dropReasonStaleEgress).Inc()
		sender.DLogf("dropping %q envelope from stale egress connection", env.Type)
		return
	}
	if env.RequestID == "" {
		b.metrics.dropped.WithLabelValues(dropReasonUnmatched).Inc()
		sender.DLogf("dropping %q envelope without correlation ID", env.Type)
		return
	}
	owner, ok := b.pending.Take(env.RequestID)
	if !ok {
		b.metrics.dropped.WithLabelValues(dropReasonUnmatched).Inc()
		sender.DLogf("no pending entry for correlation ID %q (duplicate or late response)", env.RequestID)
		return
	}
	if err := owner.WriteEnvelope(env); err != nil {
		b.DLogf("delivery to ingress %q failed: %s", owner.ID(), err)
		return
	}
	b.metrics.responsesRelayed.Inc()
}

func isMalformed(err error) bool {
	_, ok := err.(*MalformedEnvelopeError)
	return ok
}
