package cgroup

import (
	"bufio"
	"os"
	"strings"

	"github.com/oceanweave/portod/pkg/errkind"
	log "github.com/sirupsen/logrus"
)

const mountPointField = 4

// mountInfoPath is overridden in tests to point at a fake mountinfo file.
var mountInfoPath = "/proc/self/mountinfo"

// findMountpoint scans /proc/self/mountinfo for the cgroup v1 mount
// carrying subsystem, the way the teacher's
// pkg/cglimit/subsystems/cgpath_util.go does.
func findMountpoint(subsystem string) string {
	f, err := os.Open(mountInfoPath)
	if err != nil {
		log.WithError(err).Error("read /proc/self/mountinfo")
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), " ")
		if len(fields) <= mountPointField {
			continue
		}
		opts := strings.Split(fields[len(fields)-1], ",")
		for _, opt := range opts {
			if opt == subsystem {
				return fields[mountPointField]
			}
		}
	}
	return ""
}

// resolvePath returns the absolute cgroup directory for (subsystem,
// relPath), creating intermediate directories if autoCreate is set.
func resolvePath(subsystem, relPath string, autoCreate bool) (string, error) {
	root := findMountpoint(subsystem)
	if root == "" {
		return "", errkind.Newf(errkind.Storage, "no mountpoint for cgroup subsystem %q", subsystem)
	}
	abs := joinPath(root, relPath)
	if !autoCreate {
		return abs, nil
	}
	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", errkind.Wrapf(errkind.Storage, err, "stat cgroup dir %s", abs)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return "", errkind.Wrapf(errkind.Storage, err, "create cgroup dir %s", abs)
		}
	}
	return abs, nil
}

func joinPath(root, rel string) string {
	if rel == "" || rel == "/" {
		return root
	}
	return root + "/" + strings.TrimPrefix(rel, "/")
}
