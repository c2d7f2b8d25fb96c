// Package wrshare implements the wsrelay tunneling protocol and its three
// roles.
//
// wsrelay tunnels ordinary HTTP traffic between two networks that cannot
// reach each other directly. A Relay Broker is the rendezvous point,
// reachable by both sides. An Ingress Adapter accepts plain HTTP requests
// on one network and forwards them to the broker as request envelopes over
// a single WebSocket connection. An Egress Executor sits next to the real
// target API on the other network, holds its own WebSocket connection to
// the broker, replays each request envelope against the target, and sends
// the result back as a response envelope. The broker pairs requests with
// responses by correlation ID.
//
// Both adapters dial outward to the broker, so neither protected network
// needs an inbound route. The broker accepts at most one live egress
// connection (last registration wins) and any number of ingress
// connections.
package wrshare

// ProtocolVersion is offered by dialers as the WebSocket subprotocol and
// verified by the broker before upgrading. Connections offering a different
// protocol are refused.
const ProtocolVersion = "wsrelay-v1"

// BuildVersion is replaced at link time for release builds.
var BuildVersion = "0.0.0-src"
