package cgroup

import (
	"strconv"

	"github.com/oceanweave/portod/pkg/errkind"
)

// cpuacctSubsystem adds a cpuacct.usage reader, per
// original_source/subsystem.cpp's TCpuacctSubsystem.
type cpuacctSubsystem struct {
	*generic
}

func newCPUAcctSubsystem() *cpuacctSubsystem {
	return &cpuacctSubsystem{generic: newGenericSubsystem("cpuacct")}
}

// Usage parses cpuacct.usage (cumulative CPU time in nanoseconds).
func (c *cpuacctSubsystem) Usage(cg *Cgroup) (uint64, error) {
	raw, err := c.GetKnob(cg, "cpuacct.usage")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errkind.Wrapf(errkind.Corrupted, err, "cpuacct.usage %q", raw)
	}
	return v, nil
}
