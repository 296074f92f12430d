package tc

import "testing"

func withNetworkDisabled(t *testing.T) {
	t.Helper()
	old := Enabled
	Enabled = false
	t.Cleanup(func() { Enabled = old })
}

func TestQdiscNoopWhenNetworkDisabled(t *testing.T) {
	withNetworkDisabled(t)

	q := &Qdisc{Links: []string{"does-not-exist0"}, Handle: 0x10000, DefClass: 0x100}
	if err := q.Create(); err != nil {
		t.Fatalf("Create with network disabled should be a no-op, got %v", err)
	}
	if err := q.Remove(); err != nil {
		t.Fatalf("Remove with network disabled should be a no-op, got %v", err)
	}
}

func TestTclassNoopWhenNetworkDisabled(t *testing.T) {
	withNetworkDisabled(t)

	q := &Qdisc{Links: []string{"does-not-exist0"}, Handle: 0x10000}
	tclass := &Tclass{Handle: 0x10001, ParentQdisc: q}
	if err := tclass.Create(1, 1000, 2000); err != nil {
		t.Fatalf("Create with network disabled should be a no-op, got %v", err)
	}
	if err := tclass.Remove(); err != nil {
		t.Fatalf("Remove with network disabled should be a no-op, got %v", err)
	}
	if stats, err := tclass.Stat(StatBytes); err != nil || len(stats) != 0 {
		t.Fatalf("Stat with network disabled should be a no-op with no counters, got %v, %v", stats, err)
	}
}

func TestFilterNoopWhenNetworkDisabled(t *testing.T) {
	withNetworkDisabled(t)

	q := &Qdisc{Links: []string{"does-not-exist0"}, Handle: 0x10000}
	f := &Filter{Parent: q}
	if err := f.Create(); err != nil {
		t.Fatalf("Create with network disabled should be a no-op, got %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Fatalf("Remove with network disabled should be a no-op, got %v", err)
	}
}

func TestTclassGetParentTieBreak(t *testing.T) {
	q := &Qdisc{Links: []string{"eth0"}, Handle: 0x10000}
	direct := &Tclass{Handle: 0x10001, ParentQdisc: q}
	if got := direct.GetParent(); got != q.Handle {
		t.Fatalf("GetParent() with ParentQdisc = 0x%x, want qdisc handle 0x%x", got, q.Handle)
	}

	nested := &Tclass{Handle: 0x10002, ParentTclass: direct}
	if got := nested.GetParent(); got != direct.Handle {
		t.Fatalf("GetParent() with ParentTclass = 0x%x, want parent tclass handle 0x%x", got, direct.Handle)
	}
}

func TestTclassGetLinkDelegates(t *testing.T) {
	q := &Qdisc{Links: []string{"eth0", "eth1"}, Handle: 0x10000}
	direct := &Tclass{Handle: 0x10001, ParentQdisc: q}
	nested := &Tclass{Handle: 0x10002, ParentTclass: direct}

	links := nested.GetLink()
	if len(links) != 2 || links[0] != "eth0" || links[1] != "eth1" {
		t.Fatalf("GetLink() via nested parent = %v, want [eth0 eth1]", links)
	}
}

func TestFilterGetLinkDelegatesToParent(t *testing.T) {
	q := &Qdisc{Links: []string{"eth0"}, Handle: 0x10000}
	f := &Filter{Parent: q}
	if got := f.Parent.GetLink(); len(got) != 1 || got[0] != "eth0" {
		t.Fatalf("Filter.Parent.GetLink() = %v", got)
	}
	if got := f.Parent.ParentHandle(); got != q.Handle {
		t.Fatalf("Filter.Parent.ParentHandle() = 0x%x, want 0x%x", got, q.Handle)
	}
}
