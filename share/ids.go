package wrshare

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/xid"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a fresh correlation ID. IDs are ULIDs drawn from a
// monotonic source, so they are unique for the life of the process and are
// never reused while a prior request is still pending.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewConnID returns a broker-assigned identifier for an ingress connection
// that did not declare its own.
func NewConnID() string {
	return xid.New().String()
}
