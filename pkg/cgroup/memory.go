package cgroup

import (
	"strconv"

	"github.com/oceanweave/portod/pkg/errkind"
)

// memorySubsystem adds hierarchy-mode setup on Create and a usage
// reader, per spec.md §4.4: "The memory subsystem handle additionally
// toggles hierarchy mode on creation" and
// original_source/subsystem.cpp's TMemorySubsystem.
type memorySubsystem struct {
	*generic
}

func newMemorySubsystem() *memorySubsystem {
	return &memorySubsystem{generic: newGenericSubsystem("memory")}
}

func (m *memorySubsystem) Create(cg *Cgroup) error {
	if err := m.generic.Create(cg); err != nil {
		return err
	}
	return m.SetKnob(cg, "memory.use_hierarchy", "1")
}

// Usage parses memory.usage_in_bytes.
func (m *memorySubsystem) Usage(cg *Cgroup) (uint64, error) {
	raw, err := m.GetKnob(cg, "memory.usage_in_bytes")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errkind.Wrapf(errkind.Corrupted, err, "memory.usage_in_bytes %q", raw)
	}
	return v, nil
}
