package wrshare

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/sizestr"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
)

// EgressConfig configures an egress executor.
type EgressConfig struct {
	// BrokerURL locates the relay broker. http(s), ws(s), or host:port.
	BrokerURL string

	// TargetBaseURL is the base URL of the real API; relayed paths and query
	// strings are resolved against it.
	TargetBaseURL string

	// RequestTimeout bounds each call against the real target. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RetryInterval is the fixed delay between broker reconnect attempts.
	// Defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	// KeepAlive is the websocket ping interval on the broker link. 0
	// disables pings.
	KeepAlive time.Duration

	// Debug enables debug logging.
	Debug bool
}

// Egress executes relayed requests against the real target API. For each
// request envelope it builds the target URL from the configured base, strips
// hop-specific headers, performs the call, and sends back a response envelope
// under the same correlation ID. Target failures become error envelopes;
// they are never silently dropped.
type Egress struct {
	*asyncobj.Helper
	config     *EgressConfig
	client     *BrokerClient
	httpClient *http.Client
	baseURL    *url.URL
}

// NewEgress creates an egress executor that is not yet connected.
func NewEgress(config *EgressConfig) (*Egress, error) {
	logLevel := logger.LogLevelInfo
	if config.Debug {
		logLevel = logger.LogLevelDebug
	}
	log, err := logger.New(
		logger.WithLogLevel(logLevel),
		logger.WithPrefix("egress"),
	)
	if err != nil {
		return nil, err
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	base, err := url.Parse(config.TargetBaseURL)
	if err != nil {
		return nil, err
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, log.Errorf("target base URL %q needs a scheme and host", config.TargetBaseURL)
	}
	eg := &Egress{
		config:  config,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
	eg.Helper = asyncobj.NewHelper(log, eg)
	eg.client, err = newBrokerClient(log, config.BrokerURL, RoleEgress, "",
		config.RetryInterval, config.KeepAlive, eg)
	if err != nil {
		return nil, err
	}
	return eg, nil
}

// Run maintains the broker link and executes relayed requests until ctx is
// cancelled or Close is called.
func (eg *Egress) Run(ctx context.Context) error {
	err := eg.DoOnceActivate(func() error {
		shutdownOnContext(ctx, eg)
		eg.ILogf("executing against %s, relaying via %s", eg.config.TargetBaseURL, eg.config.BrokerURL)
		return eg.client.Start(ctx)
	}, true)
	if err != nil {
		return err
	}
	return eg.WaitShutdown()
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It
// should take completionError as an advisory completion value, actually shut
// down, then return the real completion value.
func (eg *Egress) HandleOnceShutdown(completionErr error) error {
	err := eg.client.Close()
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

// Close shuts the executor down and returns the final completion code.
func (eg *Egress) Close() error {
	return eg.Helper.Close()
}

// OnEnvelope executes each relayed request in its own goroutine, so slow
// target calls never block later requests: responses may complete out of
// order, and the broker pairs them back up by correlation ID.
func (eg *Egress) OnEnvelope(env *Envelope) {
	switch env.Type {
	case TypeRequest:
		go eg.execute(env)
	case TypeError:
		eg.DLogf("broker error: %s", env.Error)
	default:
		eg.DLogf("ignoring %q envelope from broker", env.Type)
	}
}

// OnUp is called when the broker link registers.
func (eg *Egress) OnUp() {
	eg.ILogf("broker link up")
}

// OnDown is called when the broker link drops.
func (eg *Egress) OnDown(err error) {
	if err != nil {
		eg.WLogf("broker link down: %s", err)
	}
}

// execute performs one real call and reports its result under the request's
// correlation ID.
func (eg *Egress) execute(env *Envelope) {
	result, err := eg.callTarget(env)
	if err != nil {
		eg.WLogf("request %s failed: %s", env.RequestID, err)
		result = NewErrorEnvelope(env.RequestID, err.Error())
	}
	if err := eg.client.Send(result); err != nil {
		eg.DLogf("could not deliver result for request %s: %s", env.RequestID, err)
	}
}

// callTarget issues the real HTTP call described by a request envelope.
func (eg *Egress) callTarget(env *Envelope) (*Envelope, error) {
	u := eg.targetURL(env.Path, env.Query)

	var bodyReader io.Reader
	if len(env.Body) > 0 {
		bodyReader = bytes.NewReader(env.Body)
	}
	req, err := http.NewRequest(env.Method, u, bodyReader)
	if err != nil {
		return nil, err
	}

	headers := env.Headers
	headers.StripHopHeaders()
	headers.CopyToHTTP(req.Header)

	eg.DLogf("-> %s %s (id %s)", env.Method, u, env.RequestID)
	resp, err := eg.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	body = NormalizeJSONBody(resp.Header.Get("Content-Type"), body)
	eg.DLogf("<- %d (id %s, body %s)", resp.StatusCode, env.RequestID, sizestr.ToString(int64(len(body))))

	return &Envelope{
		Type:       TypeResponse,
		RequestID:  env.RequestID,
		StatusCode: resp.StatusCode,
		Headers:    HeadersFromHTTP(resp.Header),
		Body:       body,
	}, nil
}

// targetURL resolves a relayed path and query against the configured base
// URL. The base's own path prefix, if any, is preserved.
func (eg *Egress) targetURL(path string, query url.Values) string {
	u := *eg.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
