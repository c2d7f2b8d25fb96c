package wrshare

import (
	"sync"
)

// Registry is the broker's bookkeeping of live connections: a single egress
// slot plus the set of ingress links keyed by connection identifier. All
// mutation happens under one mutex so concurrent registration and disconnect
// events are serialized against each other.
type Registry struct {
	mu sync.Mutex

	egress    *Link
	egressGen uint64
	nextGen   uint64

	ingress map[string]*Link
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ingress: make(map[string]*Link),
	}
}

// SetEgress installs l as the current egress connection, replacing any prior
// one: last registration wins. The replaced link, if any, is marked stale and
// returned so the caller can log it; it is not closed — its future traffic is
// simply ignored. l is stamped with a fresh registration generation.
func (r *Registry) SetEgress(l *Link) (replaced *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.egress
	if replaced != nil {
		replaced.MarkStale()
	}
	r.nextGen++
	l.gen = r.nextGen
	r.egress = l
	r.egressGen = r.nextGen
	return replaced
}

// Egress returns the currently registered egress link, or nil.
func (r *Registry) Egress() *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.egress
}

// IsCurrentEgress reports whether l is the live egress connection. A stale
// link or one whose generation no longer matches the slot fails the check
// even if it is still open.
func (r *Registry) IsCurrentEgress(l *Link) bool {
	if l == nil || l.IsStale() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.egress == l && r.egressGen == l.gen
}

// ClearEgress empties the egress slot, but only if l still owns it. The
// disconnect of a replaced link must not knock out its successor.
func (r *Registry) ClearEgress(l *Link) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.egress != l || r.egressGen != l.gen {
		return false
	}
	r.egress = nil
	r.egressGen = 0
	return true
}

// AddIngress records a registered ingress link under its identifier. If the
// identifier is already taken the previous link is returned and replaced.
func (r *Registry) AddIngress(l *Link) (replaced *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.ingress[l.id]
	r.ingress[l.id] = l
	return replaced
}

// RemoveIngress drops the link from the ingress set, but only if it still
// owns its identifier.
func (r *Registry) RemoveIngress(l *Link) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ingress[l.id] != l {
		return false
	}
	delete(r.ingress, l.id)
	return true
}

// IngressCount returns the number of live ingress connections.
func (r *Registry) IngressCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ingress)
}
