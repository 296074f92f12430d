package cgroup

import (
	"os"
	"path/filepath"
	"testing"
)

func withFakeMountInfo(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mountinfo")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write fake mountinfo: %v", err)
	}
	old := mountInfoPath
	mountInfoPath = path
	t.Cleanup(func() { mountInfoPath = old })
}

const fakeMountInfo = `` +
	`23 18 0:19 / /sys/fs/cgroup/memory rw,nosuid - cgroup cgroup rw,memory` + "\n" +
	`24 18 0:20 / /sys/fs/cgroup/freezer rw,nosuid - cgroup cgroup rw,freezer` + "\n" +
	`25 18 0:21 / /sys/fs/cgroup/cpu,cpuacct rw,nosuid - cgroup cgroup rw,cpu,cpuacct` + "\n"

func TestFindMountpointMatches(t *testing.T) {
	withFakeMountInfo(t, fakeMountInfo)

	if got := findMountpoint("memory"); got != "/sys/fs/cgroup/memory" {
		t.Fatalf("memory mountpoint = %q", got)
	}
	if got := findMountpoint("cpuacct"); got != "/sys/fs/cgroup/cpu,cpuacct" {
		t.Fatalf("cpuacct mountpoint = %q", got)
	}
}

func TestFindMountpointMissing(t *testing.T) {
	withFakeMountInfo(t, fakeMountInfo)

	if got := findMountpoint("devices"); got != "" {
		t.Fatalf("expected empty mountpoint, got %q", got)
	}
}

func TestResolvePathWithoutAutoCreate(t *testing.T) {
	withFakeMountInfo(t, fakeMountInfo)

	got, err := resolvePath("memory", "/porto/test1", false)
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	want := "/sys/fs/cgroup/memory/porto/test1"
	if got != want {
		t.Fatalf("resolvePath = %q, want %q", got, want)
	}
}

func TestResolvePathAutoCreate(t *testing.T) {
	withFakeMountInfo(t, "23 18 0:19 / "+t.TempDir()+" rw,nosuid - cgroup cgroup rw,memory\n")

	root := findMountpoint("memory")
	if root == "" {
		t.Fatal("expected mountpoint")
	}
	got, err := resolvePath("memory", "/porto/nested/leaf", true)
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("expected created dir %s: %v", got, err)
	}
}

func TestResolvePathNoMountpoint(t *testing.T) {
	withFakeMountInfo(t, fakeMountInfo)

	if _, err := resolvePath("devices", "/porto/test1", false); err == nil {
		t.Fatal("expected error for missing subsystem mountpoint")
	}
}

func TestJoinPath(t *testing.T) {
	cases := []struct{ root, rel, want string }{
		{"/sys/fs/cgroup/memory", "", "/sys/fs/cgroup/memory"},
		{"/sys/fs/cgroup/memory", "/", "/sys/fs/cgroup/memory"},
		{"/sys/fs/cgroup/memory", "/porto/a", "/sys/fs/cgroup/memory/porto/a"},
		{"/sys/fs/cgroup/memory", "porto/a", "/sys/fs/cgroup/memory/porto/a"},
	}
	for _, c := range cases {
		if got := joinPath(c.root, c.rel); got != c.want {
			t.Fatalf("joinPath(%q,%q) = %q, want %q", c.root, c.rel, got, c.want)
		}
	}
}
