package wrshare

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/requestlog"
	"github.com/jpillora/sizestr"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// IngressConfig configures an ingress adapter.
type IngressConfig struct {
	// ListenAddr is the host:port the adapter accepts local HTTP traffic on.
	ListenAddr string

	// BrokerURL locates the relay broker. http(s), ws(s), or host:port.
	BrokerURL string

	// ClientID optionally names this adapter's broker connection. Empty lets
	// the broker assign one.
	ClientID string

	// RequestTimeout bounds the wait for a response envelope. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RetryInterval is the fixed delay between broker reconnect attempts.
	// Defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	// KeepAlive is the websocket ping interval on the broker link. 0
	// disables pings.
	KeepAlive time.Duration

	// MaxBodyBytes caps accepted request bodies. Defaults to
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Debug enables debug logging and per-request logging.
	Debug bool
}

// Ingress accepts ordinary HTTP requests and gets them answered through the
// relay as if the target API were reachable locally. Each accepted request
// becomes a request envelope with a fresh correlation ID; the handler then
// waits for the matching response envelope, the matching error envelope, or
// the local timeout, whichever comes first.
type Ingress struct {
	*asyncobj.Helper
	config     *IngressConfig
	httpServer *HTTPServer
	client     *BrokerClient
	calls      *CallTable
}

// NewIngress creates an ingress adapter that is not yet listening.
func NewIngress(config *IngressConfig) (*Ingress, error) {
	logLevel := logger.LogLevelInfo
	if config.Debug {
		logLevel = logger.LogLevelDebug
	}
	log, err := logger.New(
		logger.WithLogLevel(logLevel),
		logger.WithPrefix("ingress"),
	)
	if err != nil {
		return nil, err
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	ing := &Ingress{
		config:     config,
		httpServer: NewHTTPServer(log),
		calls:      NewCallTable(),
	}
	ing.Helper = asyncobj.NewHelper(log, ing)
	ing.client, err = newBrokerClient(log, config.BrokerURL, RoleIngress, config.ClientID,
		config.RetryInterval, config.KeepAlive, ing)
	if err != nil {
		return nil, err
	}
	return ing, nil
}

// Run listens on the configured address, maintains the broker link, and
// serves until ctx is cancelled or Close is called.
func (ing *Ingress) Run(ctx context.Context) error {
	if err := ing.httpServer.Listen(ing.config.ListenAddr); err != nil {
		return err
	}
	return ing.serve(ctx)
}

// Addr returns the bound local listen address.
func (ing *Ingress) Addr() string {
	return ing.httpServer.Addr()
}

// Listen binds the local address without serving yet.
func (ing *Ingress) Listen() error {
	return ing.httpServer.Listen(ing.config.ListenAddr)
}

// Serve runs the adapter on a previously bound listener until shutdown.
func (ing *Ingress) Serve(ctx context.Context) error {
	return ing.serve(ctx)
}

func (ing *Ingress) serve(ctx context.Context) error {
	err := ing.DoOnceActivate(func() error {
		shutdownOnContext(ctx, ing)
		if err := ing.client.Start(ctx); err != nil {
			return err
		}
		ing.ILogf("listening on %s, relaying via %s", ing.Addr(), ing.config.BrokerURL)
		return nil
	}, true)
	if err != nil {
		return err
	}
	h := http.Handler(ing)
	if ing.config.Debug {
		h = requestlog.Wrap(h)
	}
	return ing.httpServer.Serve(ctx, h)
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// should take completionError as an advisory completion value, actually shut
// down, then return the real completion value.
func (ing *Ingress) HandleOnceShutdown(completionErr error) error {
	err := ing.client.Close()
	if err2 := ing.httpServer.Close(); err == nil {
		err = err2
	}
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Close shuts the adapter down and returns the final completion code.
func (ing *Ingress) Close() error {
	return ing.Helper.Close()
}

// ServeHTTP proxies one inbound HTTP request through the relay. Requests
// arriving while the broker link is down are refused immediately with 503 —
// nothing is queued or buffered.
func (ing *Ingress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ing.client.Connected() {
		writeJSONError(w, http.StatusServiceUnavailable, "not connected to relay broker")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ing.config.MaxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	id := NewRequestID()
	call := ing.calls.Create(id)
	if call == nil {
		writeJSONError(w, http.StatusInternalServerError, "correlation ID collision")
		return
	}

	env := &Envelope{
		Type:      TypeRequest,
		RequestID: id,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		Headers:   HeadersFromHTTP(r.Header),
		Body:      body,
	}
	if err := ing.client.Send(env); err != nil {
		ing.calls.Cancel(id)
		writeJSONError(w, http.StatusServiceUnavailable, "not connected to relay broker")
		return
	}
	ing.DLogf("sent request %s %s (id %s, body %s)", r.Method, r.URL.Path, id, sizestr.ToString(int64(len(body))))

	timer := time.NewTimer(ing.config.RequestTimeout)
	defer timer.Stop()

	select {
	case outcome := <-call.Done:
		ing.writeOutcome(w, outcome)
	case <-timer.C:
		if ing.calls.Cancel(id) {
			ing.WLogf("request %s timed out after %s", id, ing.config.RequestTimeout)
			writeJSONError(w, http.StatusGatewayTimeout, "relay timeout")
			return
		}
		// A response or error envelope won the race just as the timer
		// fired; it is already buffered.
		ing.writeOutcome(w, <-call.Done)
	}
}

// writeOutcome copies an egress result onto the local HTTP response: status,
// headers and body verbatim for responses, a 500 with a JSON error body for
// egress-reported failures.
func (ing *Ingress) writeOutcome(w http.ResponseWriter, outcome CallOutcome) {
	if outcome.Err != "" {
		// No registered egress is a transient availability condition, not a
		// target failure; callers see it the same way as a missing broker
		// link.
		status := http.StatusInternalServerError
		if outcome.Err == ErrTargetUnavailable {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, outcome.Err)
		return
	}
	// The relayed Content-Length no longer matches once the egress side has
	// normalized a structured body; the local server recomputes it.
	outcome.Headers.StripHopHeaders()
	outcome.Headers.CopyToHTTP(w.Header())
	w.WriteHeader(outcome.StatusCode)
	if len(outcome.Body) > 0 {
		w.Write(outcome.Body)
	}
}

// OnEnvelope resolves the waiting call for each response or error envelope.
// Envelopes whose correlation ID has already been resolved or timed out are
// dropped with a diagnostic.
func (ing *Ingress) OnEnvelope(env *Envelope) {
	switch env.Type {
	case TypeResponse:
		ok := ing.calls.Resolve(env.RequestID, CallOutcome{
			StatusCode: env.StatusCode,
			Headers:    env.Headers,
			Body:       env.Body,
		})
		if !ok {
			ing.DLogf("unmatched response for correlation ID %q dropped", env.RequestID)
		}
	case TypeError:
		if env.RequestID == "" {
			ing.DLogf("broker error: %s", env.Error)
			return
		}
		if !ing.calls.Resolve(env.RequestID, CallOutcome{Err: env.Error}) {
			ing.DLogf("unmatched error for correlation ID %q dropped", env.RequestID)
		}
	default:
		ing.DLogf("ignoring %q envelope from broker", env.Type)
	}
}

// OnUp is called when the broker link registers.
func (ing *Ingress) OnUp() {
	ing.ILogf("broker link up (%d call(s) waiting)", ing.calls.Len())
}

// OnDown is called when the broker link drops. Outstanding calls are left to
// hit their own timeouts rather than being failed eagerly; see the package
// documentation for this known limitation.
func (ing *Ingress) OnDown(err error) {
	if err != nil {
		ing.WLogf("broker link down: %s", err)
	}
}

// writeJSONError answers an HTTP request with a JSON error body.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := jsonMarshal(map[string]string{"error": msg})
	w.Write(data)
}
