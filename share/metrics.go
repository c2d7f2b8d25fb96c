package wrshare

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// brokerMetrics instruments one broker instance. Each broker owns its own
// registry so several brokers can coexist in one process (tests do this).
type brokerMetrics struct {
	registry *prometheus.Registry

	requestsRelayed  prometheus.Counter
	responsesRelayed prometheus.Counter
	dropped          *prometheus.CounterVec
	pendingSize      prometheus.GaugeFunc
	ingressConns     prometheus.GaugeFunc
	egressUp         prometheus.GaugeFunc
}

func newBrokerMetrics(registry *Registry, pending *PendingTable) *brokerMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	m := &brokerMetrics{
		registry: reg,
		requestsRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsrelay_requests_relayed_total",
			Help: "Request envelopes forwarded to the egress connection.",
		}),
		responsesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsrelay_responses_relayed_total",
			Help: "Response and error envelopes relayed back to an ingress connection.",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wsrelay_envelopes_dropped_total",
			Help: "Envelopes dropped by the broker, by reason.",
		}, []string{"reason"}),
		pendingSize: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wsrelay_pending_requests",
			Help: "Correlation IDs awaiting a response in the broker table.",
		}, func() float64 { return float64(pending.Len()) }),
		ingressConns: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wsrelay_ingress_connections",
			Help: "Live registered ingress connections.",
		}, func() float64 { return float64(registry.IngressCount()) }),
		egressUp: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "wsrelay_egress_connected",
			Help: "1 while an egress connection is registered, else 0.",
		}, func() float64 {
			if registry.Egress() != nil {
				return 1
			}
			return 0
		}),
	}
	return m
}

// Drop reasons used with the dropped counter.
const (
	dropReasonNoEgress    = "no_egress"
	dropReasonStaleEgress = "stale_egress"
	dropReasonUnmatched   = "unmatched_id"
	dropReasonBadRole     = "bad_role"
	dropReasonMalformed   = "malformed"
)

func (m *brokerMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
