package cgroup

import (
	"os"
	"strconv"

	"github.com/oceanweave/portod/pkg/errkind"
)

// generic is the fallback Subsystem used for any subsystem without
// specialised logic (cpuset, devices, blkio, …) — spec.md §4.4's
// "a generic adapter otherwise".
type generic struct {
	name string
}

func newGenericSubsystem(name string) *generic {
	return &generic{name: name}
}

func (g *generic) Name() string { return g.name }

func (g *generic) GetKnob(cg *Cgroup, knob string) (string, error) {
	dir, err := cg.dir(false)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(dir + "/" + knob)
	if err != nil {
		return "", errkind.Wrapf(errkind.Storage, err, "read knob %s/%s", dir, knob)
	}
	s := string(data)
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s, nil
}

func (g *generic) SetKnob(cg *Cgroup, knob, value string) error {
	dir, err := cg.dir(false)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dir+"/"+knob, []byte(value), 0644); err != nil {
		return errkind.Wrapf(errkind.Storage, err, "write knob %s/%s", dir, knob)
	}
	return nil
}

func (g *generic) Attach(cg *Cgroup, pid int) error {
	return g.SetKnob(cg, "cgroup.procs", strconv.Itoa(pid))
}

func (g *generic) Create(cg *Cgroup) error {
	_, err := cg.dir(true)
	return err
}

func (g *generic) Remove(cg *Cgroup) error {
	dir, err := cg.dir(false)
	if err != nil {
		// Never created (no mountpoint or directory): nothing to do.
		return nil
	}
	killLingeringTasks(cg, dir)
	if err := os.RemoveAll(dir); err != nil {
		return errkind.Wrapf(errkind.Storage, err, "remove cgroup dir %s", dir)
	}
	return nil
}
