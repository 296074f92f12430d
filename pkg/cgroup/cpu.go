package cgroup

// cpuSubsystem is a thin specialisation over generic: plain
// cfs_quota_us/cfs_period_us/shares knob writes need no extra logic, but
// the factory names it distinctly per spec.md §4.4's enumeration
// ("memory, freezer, cpu, cpuacct").
type cpuSubsystem struct {
	*generic
}

func newCPUSubsystem() *cpuSubsystem {
	return &cpuSubsystem{generic: newGenericSubsystem("cpu")}
}
