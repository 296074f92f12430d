package property

import (
	"path/filepath"
	"testing"

	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/kvstore"
	"github.com/oceanweave/portod/pkg/value"
)

func openStore(t *testing.T) *kvstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kv.db")
	store, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRegistry() *value.Registry {
	r := value.NewRegistry()
	r.Register(&value.Descriptor{
		Name:        "command",
		Kind:        value.KindString,
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "memory_limit",
		Kind:        value.KindUint,
		Default:     func() string { return "0" },
		Writable:    []value.State{value.StateStopped},
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "root_pid",
		Kind:        value.KindInt,
		Flags:       value.SuperuserOnly,
		Default:     func() string { return "0" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "hostname",
		Kind:        value.KindString,
		Flags:       value.ParentReadOnly,
		Default:     func() string { return "" },
		StrictParse: true,
	})
	return r
}

func TestCreateWritesExplicitSlots(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "a", reg, credential.Credential{Uid: 1000, Gid: 1000})

	if err := h.VariantSet().Set("command", "/bin/sleep"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := h.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}

	records, err := store.Load("a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 1 || records[0].Key != "command" || records[0].Value != "/bin/sleep" {
		t.Fatalf("records = %+v", records)
	}
}

func TestRestoreReplaysRecordsAndDiscardsUnknown(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()

	if err := store.CreateNode("b", []kvstore.Record{
		{Key: "command", Value: "/bin/true"},
		{Key: "no_longer_registered", Value: "whatever"},
	}); err != nil {
		t.Fatalf("seed node: %v", err)
	}

	h := NewHolder(store, "b", reg, credential.Credential{})
	if err := h.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := h.VariantSet().GetString("command")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "/bin/true" {
		t.Fatalf("command = %q, want /bin/true", got)
	}
}

func TestSetRejectsNonWritableState(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "c", reg, credential.Credential{})
	h.StateFunc = func() value.State { return value.StateRunning }

	if err := h.Set("memory_limit", "1G", true); err == nil {
		t.Fatal("expected InvalidState error, got nil")
	}
}

func TestSetRejectsSuperuserOnlyWithoutPrivilege(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "d", reg, credential.Credential{})

	if err := h.Set("root_pid", "42", false); err == nil {
		t.Fatal("expected PermissionDenied error, got nil")
	}
	if err := h.Set("root_pid", "42", true); err != nil {
		t.Fatalf("Set with privileged=true should succeed, got %v", err)
	}
}

func TestSetRejectsParentReadOnlyWhileShared(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "e", reg, credential.Credential{})
	h.SharesParentNamespace = func() bool { return true }

	if err := h.Set("hostname", "child", true); err == nil {
		t.Fatal("expected PermissionDenied error while namespace is shared, got nil")
	}

	h.SharesParentNamespace = func() bool { return false }
	if err := h.Set("hostname", "child", true); err != nil {
		t.Fatalf("Set should succeed once namespace is no longer shared, got %v", err)
	}
}

func TestSetAppendsIncrementally(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "f", reg, credential.Credential{})

	if err := h.Set("command", "/bin/a", true); err != nil {
		t.Fatalf("Set 1: %v", err)
	}
	if err := h.Set("command", "/bin/b", true); err != nil {
		t.Fatalf("Set 2: %v", err)
	}

	records, err := store.Load("f")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 incremental appends, got %d: %+v", len(records), records)
	}
	if records[1].Value != "/bin/b" {
		t.Fatalf("latest append = %+v, want /bin/b", records[1])
	}
}

func TestSyncCompactsToOneRecordPerKey(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	h := NewHolder(store, "g", reg, credential.Credential{})

	if err := h.Set("command", "/bin/a", true); err != nil {
		t.Fatalf("Set 1: %v", err)
	}
	if err := h.Set("command", "/bin/b", true); err != nil {
		t.Fatalf("Set 2: %v", err)
	}
	if err := h.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	records, err := store.Load("g")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 1 || records[0].Value != "/bin/b" {
		t.Fatalf("records after Sync = %+v, want one record with /bin/b", records)
	}
}

func TestPermittedRootBypasses(t *testing.T) {
	store := openStore(t)
	reg := testRegistry()
	owner := credential.Credential{Uid: 1000, Gid: 1000}
	h := NewHolder(store, "h", reg, owner)

	if !h.Permitted(credential.Credential{Uid: 0}) {
		t.Fatal("root should bypass ownership check")
	}
	if !h.Permitted(owner) {
		t.Fatal("matching credential should be permitted")
	}
	if h.Permitted(credential.Credential{Uid: 2000, Gid: 2000}) {
		t.Fatal("mismatched non-root credential should not be permitted")
	}
}

func TestSetLeavesSlotUnchangedWhenAppendFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	store, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	reg := testRegistry()
	h := NewHolder(store, "i", reg, credential.Credential{})

	if err := h.Set("command", "/bin/a", true); err != nil {
		t.Fatalf("Set 1: %v", err)
	}

	// Close the backing store so the next Append fails at the storage
	// layer, simulating a disk write failure.
	if err := store.Close(); err != nil {
		t.Fatalf("store.Close: %v", err)
	}

	if err := h.Set("command", "/bin/b", true); err == nil {
		t.Fatal("expected Set to fail once the backing store is closed")
	}

	got, err := h.VariantSet().GetString("command")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "/bin/a" {
		t.Fatalf("in-memory slot = %q, want unchanged /bin/a after failed Append", got)
	}
}

func TestSetParentWiresInheritance(t *testing.T) {
	store := openStore(t)
	reg := value.NewRegistry()
	reg.Register(&value.Descriptor{
		Name:        "cwd",
		Kind:        value.KindString,
		Flags:       value.ParentDefault,
		Default:     func() string { return "/" },
		StrictParse: true,
	})

	parent := NewHolder(store, "parent", reg, credential.Credential{})
	if err := parent.VariantSet().Set("cwd", "/srv"); err != nil {
		t.Fatalf("parent Set: %v", err)
	}

	child := NewHolder(store, "parent/child", reg, credential.Credential{})
	child.SetParent(parent)

	got, err := child.VariantSet().GetString("cwd")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if got != "/srv" {
		t.Fatalf("cwd = %q, want inherited /srv", got)
	}
}
