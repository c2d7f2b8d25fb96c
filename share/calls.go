package wrshare

import (
	"sync"
)

// CallOutcome is the terminal result of one relayed call as seen by the
// ingress adapter: a real response from the target, or an error reported by
// the egress side. Timeouts are decided by the waiting handler, not recorded
// here.
type CallOutcome struct {
	// Err is non-empty when the egress side reported a failure; the
	// response fields below are then unset.
	Err string

	StatusCode int
	Headers    Headers
	Body       []byte
}

// Call is one in-flight relayed request on the ingress side. Exactly one of
// three things resolves it: a matching response envelope, a matching error
// envelope, or the local timeout — whichever happens first wins and the
// others find the entry already gone.
type Call struct {
	ID string

	// Done receives the outcome if a response or error envelope wins the
	// race. Buffered so resolution never blocks on the waiting handler.
	Done chan CallOutcome
}

// CallTable is the ingress-local pending table: correlation ID to waiting
// call. At most one entry exists per ID, and every entry is removed exactly
// once.
type CallTable struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// NewCallTable returns an empty table.
func NewCallTable() *CallTable {
	return &CallTable{
		calls: make(map[string]*Call),
	}
}

// Create registers a fresh correlation ID and returns its call handle.
// Returns nil if the ID is already pending; the generator guarantees that
// never happens in practice.
func (t *CallTable) Create(id string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.calls[id]; dup {
		return nil
	}
	c := &Call{
		ID:   id,
		Done: make(chan CallOutcome, 1),
	}
	t.calls[id] = c
	return c
}

// Resolve delivers an outcome to the call waiting on id and removes the
// entry. Returns false if no such entry exists — a late or duplicate
// delivery after the race was already decided — in which case the outcome is
// dropped.
func (t *CallTable) Resolve(id string, outcome CallOutcome) bool {
	t.mu.Lock()
	c, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	c.Done <- outcome
	return true
}

// Cancel removes the entry without delivering an outcome. The timing-out
// handler calls this; false means a resolution won the race first and the
// outcome is already sitting in the call's Done channel.
func (t *CallTable) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[id]; !ok {
		return false
	}
	delete(t.calls, id)
	return true
}

// Len returns the number of calls still waiting.
func (t *CallTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
