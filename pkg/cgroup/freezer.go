package cgroup

import (
	"strings"
	"time"

	"github.com/oceanweave/portod/pkg/errkind"
)

// WaitInterval and WaitTimeout bound the freezer.state poll loop — the
// sole blocking primitive in the lifecycle (spec.md §5), mirroring
// original_source/subsystem.cpp's FREEZER_WAIT_TIMEOUT_S. Overridable
// from pkg/config at startup.
var (
	WaitInterval = 100 * time.Millisecond
	WaitTimeout  = 60 * time.Second
)

// freezerSubsystem implements the FROZEN/THAWED transition plus its
// bounded wait loop, per spec.md §4.3/§4.4 and
// original_source/subsystem.cpp's TFreezerSubsystem.
type freezerSubsystem struct {
	*generic
}

func newFreezerSubsystem() *freezerSubsystem {
	return &freezerSubsystem{generic: newGenericSubsystem("freezer")}
}

// Freeze writes FROZEN and waits for the kernel to confirm it.
func (f *freezerSubsystem) Freeze(cg *Cgroup) error {
	if err := f.SetKnob(cg, "freezer.state", "FROZEN"); err != nil {
		return err
	}
	return f.waitState(cg, "FROZEN")
}

// Unfreeze writes THAWED and waits for the kernel to confirm it.
func (f *freezerSubsystem) Unfreeze(cg *Cgroup) error {
	if err := f.SetKnob(cg, "freezer.state", "THAWED"); err != nil {
		return err
	}
	return f.waitState(cg, "THAWED")
}

// waitState polls freezer.state at WaitInterval until it matches state
// or WaitTimeout elapses, in which case it returns FreezerTimeout.
func (f *freezerSubsystem) waitState(cg *Cgroup, state string) error {
	deadline := time.Now().Add(WaitTimeout)
	for {
		s, err := f.GetKnob(cg, "freezer.state")
		if err == nil && strings.TrimSpace(s) == state {
			return nil
		}
		if time.Now().After(deadline) {
			return errkind.Newf(errkind.FreezerTimeout, "freezer %s did not reach %s within %s", cg.Path, state, WaitTimeout)
		}
		time.Sleep(WaitInterval)
	}
}
