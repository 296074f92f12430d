package cgroup

import "sync"

// Subsystem is the per-subsystem adapter spec.md §4.4 requires: a small
// polymorphic interface over knob reads/writes, attach, create and
// remove, with specialised behaviour layered on top for some
// subsystems.
type Subsystem interface {
	Name() string
	GetKnob(cg *Cgroup, knob string) (string, error)
	SetKnob(cg *Cgroup, knob, value string) error
	Attach(cg *Cgroup, pid int) error
	Create(cg *Cgroup) error
	Remove(cg *Cgroup) error
}

var (
	registryMu sync.Mutex
	registry   = map[string]Subsystem{}
)

// Get returns the singleton adapter for name, constructing the
// specialised memory/freezer/cpu/cpuacct adapter or a generic one
// otherwise — TSubsystem::Get's factory switch in
// original_source/subsystem.cpp.
func Get(name string) Subsystem {
	registryMu.Lock()
	defer registryMu.Unlock()

	if s, ok := registry[name]; ok {
		return s
	}

	var s Subsystem
	switch name {
	case "memory":
		s = newMemorySubsystem()
	case "freezer":
		s = newFreezerSubsystem()
	case "cpu":
		s = newCPUSubsystem()
	case "cpuacct":
		s = newCPUAcctSubsystem()
	default:
		s = newGenericSubsystem(name)
	}
	registry[name] = s
	return s
}
