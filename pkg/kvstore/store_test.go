package kvstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "portod.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndLoadOrdering(t *testing.T) {
	s := openTestStore(t)

	if err := s.Append("a/b", "cpu_limit", "50"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append("a/b", "memory_limit", "1G"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append("a/b", "cpu_limit", "75"); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := s.Load("a/b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Key != "cpu_limit" || records[0].Value != "50" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[2].Key != "cpu_limit" || records[2].Value != "75" {
		t.Fatalf("unexpected last record, later pair should come last: %+v", records[2])
	}
}

func TestCreateNodeThenSyncCompacts(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateNode("x", []Record{{Key: "cpu_limit", Value: "50"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Append("x", "cpu_limit", "60"); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, _ := s.Load("x")
	if len(records) != 2 {
		t.Fatalf("expected 2 records before sync, got %d", len(records))
	}

	if err := s.Sync("x", []Record{{Key: "cpu_limit", Value: "60"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	records, _ = s.Load("x")
	if len(records) != 1 || records[0].Value != "60" {
		t.Fatalf("expected compacted single record, got %+v", records)
	}
}

func TestRemoveAndExists(t *testing.T) {
	s := openTestStore(t)
	if err := s.Append("y", "k", "v"); err != nil {
		t.Fatalf("append: %v", err)
	}
	ok, err := s.Exists("y")
	if err != nil || !ok {
		t.Fatalf("expected node to exist: %v %v", ok, err)
	}
	if err := s.Remove("y"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ok, err = s.Exists("y")
	if err != nil || ok {
		t.Fatalf("expected node to be absent after remove: %v %v", ok, err)
	}
}

func TestNamesEnumeratesNodes(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"a", "a/b", "c"} {
		if err := s.Append(name, "k", "v"); err != nil {
			t.Fatalf("append %s: %v", name, err)
		}
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %v", names)
	}
}
