package wrshare

import (
	"testing"
)

func TestPendingTableAddTakeOnce(t *testing.T) {
	tab := NewPendingTable()
	owner := &Link{role: RoleIngress, id: "a"}

	if !tab.Add("req-1", owner) {
		t.Fatalf("fresh correlation ID refused")
	}
	if tab.Add("req-1", owner) {
		t.Errorf("duplicate correlation ID accepted")
	}
	if tab.Len() != 1 {
		t.Fatalf("expected 1 pending entry, got %d", tab.Len())
	}

	got, ok := tab.Take("req-1")
	if !ok || got != owner {
		t.Fatalf("Take returned (%v, %v), want the owning link", got, ok)
	}
	if _, ok := tab.Take("req-1"); ok {
		t.Errorf("second Take of the same ID succeeded")
	}
	if tab.Len() != 0 {
		t.Errorf("table not empty after Take, %d entries", tab.Len())
	}
}

func TestPendingTablePurgeOwner(t *testing.T) {
	tab := NewPendingTable()
	a := &Link{role: RoleIngress, id: "a"}
	b := &Link{role: RoleIngress, id: "b"}

	tab.Add("a-1", a)
	tab.Add("a-2", a)
	tab.Add("b-1", b)

	if n := tab.PurgeOwner(a); n != 2 {
		t.Fatalf("PurgeOwner dropped %d entries, want 2", n)
	}
	if _, ok := tab.Take("a-1"); ok {
		t.Errorf("purged entry still present")
	}
	if _, ok := tab.Take("b-1"); !ok {
		t.Errorf("unrelated owner's entry lost in purge")
	}
	if n := tab.PurgeOwner(a); n != 0 {
		t.Errorf("second purge dropped %d entries, want 0", n)
	}
}
