package wrshare

import (
	"sync"
)

// PendingTable is the broker's map from correlation ID to the ingress link
// waiting on it. An ID is present exactly while its request envelope has been
// forwarded to egress and no response or error has been relayed back. Entries
// never expire here on their own — the ingress side owns the timeout — but
// entries whose owner disconnects are purged so the table stays bounded.
type PendingTable struct {
	mu     sync.Mutex
	owners map[string]*Link
}

// NewPendingTable returns an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{
		owners: make(map[string]*Link),
	}
}

// Add records id as pending for owner. A duplicate correlation ID is refused;
// IDs are never reused while still pending.
func (t *PendingTable) Add(id string, owner *Link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.owners[id]; dup {
		return false
	}
	t.owners[id] = owner
	return true
}

// Take removes id and returns its owner. Removal happens exactly once: a
// second Take for the same ID reports absence, which the broker logs and
// drops as a duplicate or late response.
func (t *PendingTable) Take(id string) (*Link, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.owners[id]
	if ok {
		delete(t.owners, id)
	}
	return owner, ok
}

// PurgeOwner removes every entry owned by the given link and returns how many
// were dropped. Called when an ingress connection closes: there is nowhere
// left to deliver a late response.
func (t *PendingTable) PurgeOwner(owner *Link) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, l := range t.owners {
		if l == owner {
			delete(t.owners, id)
			n++
		}
	}
	return n
}

// Len returns the number of in-flight correlation IDs.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owners)
}
