// Package cgroup implements the cgroup subsystem adapter of spec.md
// §4.4: a polymorphic interface over per-subsystem knob reads/writes,
// with specialised logic for memory, freezer and cpu/cpuacct
// accounting. Grounded directly on original_source/subsystem.cpp and
// cgroup.cpp (TSubsystem::Get's factory switch, TCgroup's knob I/O), and
// on the teacher's pkg/cglimit/subsystems package for the Go-idiomatic
// knob file I/O (os.WriteFile/os.ReadFile, pkg/errors wrapping).
package cgroup

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// removeRetryInterval and removeTimeout bound the SIGKILL sweep
// killLingeringTasks performs before a cgroup directory is removed,
// mirroring original_source/cgroup.cpp's CGROUP_REMOVE_TIMEOUT_S loop.
var (
	removeRetryInterval = 100 * time.Millisecond
	removeTimeout       = 5 * time.Second
)

// killLingeringTasks is best-effort: a container should already have
// been asked to exit (see pkg/container's Stop), so anything still
// attached here gets SIGKILLed rather than blocking teardown forever.
func killLingeringTasks(cg *Cgroup, dir string) {
	deadline := time.Now().Add(removeTimeout)
	for {
		pids, err := cg.tasks()
		if err != nil || len(pids) == 0 {
			return
		}
		for _, pid := range pids {
			if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
				log.WithError(err).Warnf("cgroup %s: kill lingering task %d", dir, pid)
			}
		}
		if time.Now().After(deadline) {
			log.Warnf("cgroup %s: tasks still present after %s, removing anyway", dir, removeTimeout)
			return
		}
		time.Sleep(removeRetryInterval)
	}
}

// Cgroup is a (subsystem, relative path) handle — spec.md §3's "Cgroup
// handle". Path is relative to the subsystem's mountpoint, e.g.
// "/a/b" for container "a/b". It carries no behaviour of its own;
// every operation goes through the matching Subsystem adapter.
type Cgroup struct {
	Subsystem string
	Path      string
}

func (cg *Cgroup) dir(autoCreate bool) (string, error) {
	return resolvePath(cg.Subsystem, cg.Path, autoCreate)
}

// tasks returns the pids currently attached to the cgroup, used
// internally by Remove's SIGKILL sweep.
func (cg *Cgroup) tasks() ([]int, error) {
	dir, err := cg.dir(false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dir + "/tasks")
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}
	var pids []int
	for _, line := range strings.Split(raw, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Exists reports whether the cgroup directory has been created.
func (cg *Cgroup) Exists() bool {
	dir, err := cg.dir(false)
	if err != nil {
		return false
	}
	_, err = os.Stat(dir)
	return err == nil
}

// Tasks returns the pids currently attached to the cgroup. Used by
// pkg/holder's restore-time reconciliation to tell a live orphan
// (re-adopt) from a stale empty one (clean up).
func (cg *Cgroup) Tasks() ([]int, error) {
	return cg.tasks()
}
