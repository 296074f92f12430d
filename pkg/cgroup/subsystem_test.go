package cgroup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeCgroupRoot points mountInfoPath at a single-line mountinfo whose
// mountpoint is a fresh temp directory, so GetKnob/SetKnob/Create/Remove
// exercise real file I/O without a real cgroup filesystem.
func fakeCgroupRoot(t *testing.T, subsystem string) string {
	t.Helper()
	root := t.TempDir()
	withFakeMountInfo(t, "23 18 0:19 / "+root+" rw,nosuid - cgroup cgroup rw,"+subsystem+"\n")
	return root
}

func TestGenericCreateGetSetAttach(t *testing.T) {
	root := fakeCgroupRoot(t, "cpuset")
	g := newGenericSubsystem("cpuset")
	cg := &Cgroup{Subsystem: "cpuset", Path: "/porto/a"}

	if err := g.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !cg.Exists() {
		t.Fatal("expected cgroup to exist after Create")
	}
	if err := g.SetKnob(cg, "cpuset.cpus", "0-1"); err != nil {
		t.Fatalf("SetKnob: %v", err)
	}
	got, err := g.GetKnob(cg, "cpuset.cpus")
	if err != nil {
		t.Fatalf("GetKnob: %v", err)
	}
	if got != "0-1" {
		t.Fatalf("GetKnob = %q, want %q", got, "0-1")
	}

	procsPath := filepath.Join(root, "porto/a/cgroup.procs")
	if err := g.Attach(cg, 4242); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	data, err := os.ReadFile(procsPath)
	if err != nil {
		t.Fatalf("read cgroup.procs: %v", err)
	}
	if string(data) != "4242" {
		t.Fatalf("cgroup.procs = %q, want %q", data, "4242")
	}
}

func TestGenericRemoveAbsentIsNoop(t *testing.T) {
	fakeCgroupRoot(t, "blkio")
	g := newGenericSubsystem("blkio")
	cg := &Cgroup{Subsystem: "blkio", Path: "/porto/never-created"}

	if err := g.Remove(cg); err != nil {
		t.Fatalf("Remove of never-created cgroup should be a no-op, got %v", err)
	}
}

func TestGenericRemoveDeletesDir(t *testing.T) {
	root := fakeCgroupRoot(t, "devices")
	g := newGenericSubsystem("devices")
	cg := &Cgroup{Subsystem: "devices", Path: "/porto/b"}

	if err := g.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/b/tasks"), []byte(""), 0644); err != nil {
		t.Fatalf("seed tasks file: %v", err)
	}
	if err := g.Remove(cg); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if cg.Exists() {
		t.Fatal("expected cgroup dir to be gone after Remove")
	}
}

func TestMemorySubsystemCreateSetsHierarchy(t *testing.T) {
	root := fakeCgroupRoot(t, "memory")
	m := newMemorySubsystem()
	cg := &Cgroup{Subsystem: "memory", Path: "/porto/c"}

	if err := m.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "porto/c/memory.use_hierarchy"))
	if err != nil {
		t.Fatalf("read memory.use_hierarchy: %v", err)
	}
	if string(data) != "1" {
		t.Fatalf("memory.use_hierarchy = %q, want %q", data, "1")
	}
}

func TestMemorySubsystemUsage(t *testing.T) {
	root := fakeCgroupRoot(t, "memory")
	m := newMemorySubsystem()
	cg := &Cgroup{Subsystem: "memory", Path: "/porto/d"}
	if err := m.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/d/memory.usage_in_bytes"), []byte("1048576\n"), 0644); err != nil {
		t.Fatalf("seed usage file: %v", err)
	}
	got, err := m.Usage(cg)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if got != 1048576 {
		t.Fatalf("Usage = %d, want 1048576", got)
	}
}

func TestMemorySubsystemUsageCorrupted(t *testing.T) {
	root := fakeCgroupRoot(t, "memory")
	m := newMemorySubsystem()
	cg := &Cgroup{Subsystem: "memory", Path: "/porto/e"}
	if err := m.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/e/memory.usage_in_bytes"), []byte("not-a-number"), 0644); err != nil {
		t.Fatalf("seed usage file: %v", err)
	}
	if _, err := m.Usage(cg); err == nil {
		t.Fatal("expected error for corrupted memory.usage_in_bytes")
	}
}

func TestCPUAcctUsage(t *testing.T) {
	root := fakeCgroupRoot(t, "cpuacct")
	c := newCPUAcctSubsystem()
	cg := &Cgroup{Subsystem: "cpuacct", Path: "/porto/f"}
	if err := c.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/f/cpuacct.usage"), []byte("99\n"), 0644); err != nil {
		t.Fatalf("seed cpuacct.usage: %v", err)
	}
	got, err := c.Usage(cg)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if got != 99 {
		t.Fatalf("Usage = %d, want 99", got)
	}
}

func TestFreezerFreezeUnfreeze(t *testing.T) {
	root := fakeCgroupRoot(t, "freezer")
	f := newFreezerSubsystem()
	cg := &Cgroup{Subsystem: "freezer", Path: "/porto/g"}
	if err := f.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/g/freezer.state"), []byte("THAWED"), 0644); err != nil {
		t.Fatalf("seed freezer.state: %v", err)
	}

	if err := f.Freeze(cg); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "porto/g/freezer.state"))
	if err != nil || string(data) != "FROZEN" {
		t.Fatalf("freezer.state = %q, %v; want FROZEN", data, err)
	}

	if err := f.Unfreeze(cg); err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	data, err = os.ReadFile(filepath.Join(root, "porto/g/freezer.state"))
	if err != nil || string(data) != "THAWED" {
		t.Fatalf("freezer.state = %q, %v; want THAWED", data, err)
	}
}

func TestFreezerWaitTimeout(t *testing.T) {
	root := fakeCgroupRoot(t, "freezer")
	f := newFreezerSubsystem()
	cg := &Cgroup{Subsystem: "freezer", Path: "/porto/h"}
	if err := f.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	oldInterval, oldTimeout := WaitInterval, WaitTimeout
	WaitInterval = time.Millisecond
	WaitTimeout = 10 * time.Millisecond
	t.Cleanup(func() { WaitInterval, WaitTimeout = oldInterval, oldTimeout })

	// freezer.state never reports FROZEN (stuck at THAWED): waitState must
	// give up after WaitTimeout rather than block forever. waitState is
	// called directly because Freeze would itself write FROZEN into the
	// plain file standing in for the knob.
	if err := os.WriteFile(filepath.Join(root, "porto/h/freezer.state"), []byte("THAWED"), 0644); err != nil {
		t.Fatalf("seed freezer.state: %v", err)
	}
	if err := f.waitState(cg, "FROZEN"); err == nil {
		t.Fatal("expected FreezerTimeout error")
	}
}

func TestCgroupTasks(t *testing.T) {
	root := fakeCgroupRoot(t, "memory")
	m := newMemorySubsystem()
	cg := &Cgroup{Subsystem: "memory", Path: "/porto/tasks-test"}
	if err := m.Create(cg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "porto/tasks-test/tasks"), []byte("10\n20\n"), 0644); err != nil {
		t.Fatalf("seed tasks file: %v", err)
	}
	pids, err := cg.Tasks()
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(pids) != 2 || pids[0] != 10 || pids[1] != 20 {
		t.Fatalf("Tasks = %v, want [10 20]", pids)
	}
}

func TestGetReturnsSingletonPerName(t *testing.T) {
	a := Get("memory")
	b := Get("memory")
	if a != b {
		t.Fatal("Get(\"memory\") should return the same cached adapter")
	}
	if _, ok := Get("memory").(*memorySubsystem); !ok {
		t.Fatal("Get(\"memory\") should return a *memorySubsystem")
	}
	if _, ok := Get("cpuset").(*generic); !ok {
		t.Fatal("Get(\"cpuset\") should fall back to *generic")
	}
}
