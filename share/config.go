package wrshare

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Defaults shared by the three roles. All of them can be overridden through
// each role's Config.
const (
	// DefaultRequestTimeout bounds one relayed round trip: the ingress
	// adapter's wait for a response envelope, and the egress executor's call
	// against the real target.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRetryInterval is the fixed delay between reconnect attempts to
	// the broker. There is deliberately no backoff growth and no retry cap;
	// adapters redial forever.
	DefaultRetryInterval = 5 * time.Second

	// DefaultMaxBodyBytes caps the request body the ingress adapter accepts.
	DefaultMaxBodyBytes = 10 << 20
)

var hostHasPort = regexp.MustCompile(`:\d+$`)

// normalizeBrokerURL turns a configured broker address into a websocket URL:
// applies the default scheme and port, and swaps http(s) for ws(s).
func normalizeBrokerURL(server string) (string, error) {
	if !strings.HasPrefix(server, "http") && !strings.HasPrefix(server, "ws") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	if !hostHasPort.MatchString(u.Host) {
		if u.Scheme == "https" || u.Scheme == "wss" {
			u.Host += ":443"
		} else {
			u.Host += ":80"
		}
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	return u.String(), nil
}
