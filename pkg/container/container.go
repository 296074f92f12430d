// Package container implements the lifecycle state machine of spec.md
// §4.3: Stopped/Running/Paused/Dead/Meta with Start/Stop/Pause/Resume/
// Kill/Destroy, each a single mutex-guarded operation against the
// container's cgroup handles, optional tc projection and property
// holder. Grounded on original_source/rpc.cpp's per-operation shape and
// moby-moby/container/state.go's mutex-guarded state idiom, adapted to
// the five named states spec.md requires instead of moby's overlapping
// boolean flags.
package container

import (
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oceanweave/portod/pkg/cgroup"
	"github.com/oceanweave/portod/pkg/errkind"
	"github.com/oceanweave/portod/pkg/launcher"
	"github.com/oceanweave/portod/pkg/property"
	"github.com/oceanweave/portod/pkg/tc"
	"github.com/oceanweave/portod/pkg/value"
	log "github.com/sirupsen/logrus"
)

// DefaultSubsystems lists the cgroup subsystems every container acquires
// a handle in on Start, per spec.md §4.4's named specialisations.
var DefaultSubsystems = []string{"memory", "freezer", "cpu", "cpuacct"}

// StopGracePeriod and StopPollInterval bound Stop's wait for the payload
// to exit on its own before escalating to the freeze+sigkill+thaw
// pattern, the way FreezerSubsystem's own WaitInterval/WaitTimeout bound
// the Pause/Resume poll.
var (
	StopGracePeriod = 10 * time.Second
	StopPollInterval = 100 * time.Millisecond
)

type freezer interface {
	cgroup.Subsystem
	Freeze(cg *cgroup.Cgroup) error
	Unfreeze(cg *cgroup.Cgroup) error
}

// tcProjection is the materialised (qdisc, class, filter) triple spec.md
// §3 calls the "traffic-control projection" — present only while
// networking is enabled and the container has a non-zero tc handle.
type tcProjection struct {
	tclass *tc.Tclass
	filter *tc.Filter
}

// Container is one supervised payload: name, parent back-reference,
// lifecycle state, owning credential, property holder, cgroup handles
// and an optional tc projection — spec.md §3's Container fields.
type Container struct {
	mu sync.Mutex

	Name   string
	Parent *Container

	state value.State
	pid   int
	exitStatus int

	Props *property.Holder
	// Data is the read-only data-value.VariantSet backing getdata/
	// datalist ("state", "root_pid", "exit_status", "memory_usage",
	// "cpu_usage"), kept separate from Props since data slots are
	// written by the container itself rather than by client SetProperty
	// calls. pkg/holder constructs it against the data registry and
	// hands it in.
	Data *value.VariantSet

	cgroups map[string]*cgroup.Cgroup
	tc      *tcProjection

	children map[string]bool

	// RootQdisc, when non-nil and tc.Enabled, is the shared daemon-wide
	// HTB root qdisc this container's class hangs off of. Left nil,
	// Start skips tc materialisation entirely — not every container
	// needs a network projection.
	RootQdisc *tc.Qdisc
	// TcHandle is this container's HTB class handle, allocated by
	// pkg/holder at creation time. Zero means "no tc projection".
	TcHandle uint32

	// Collaborators, overridable in tests so the lifecycle state machine
	// can be exercised without a real kernel.
	Subsystem func(name string) cgroup.Subsystem
	Launch    func(spec launcher.Spec) (pid int, err error)
	Signal    func(pid int, sig syscall.Signal) error
	Alive     func(pid int) bool
}

// New constructs a Stopped container named name, owned by props's
// credential, with its data slots backed by data. Callers (pkg/holder)
// are responsible for wiring Parent, RootQdisc and TcHandle afterwards.
func New(name string, props *property.Holder, data *value.VariantSet) *Container {
	c := &Container{
		Name:      name,
		state:     value.StateStopped,
		Props:     props,
		Data:      data,
		cgroups:   make(map[string]*cgroup.Cgroup),
		children:  make(map[string]bool),
		Subsystem: cgroup.Get,
		Launch:    launcher.Launch,
		Signal:    syscall.Kill,
		Alive:     defaultAlive,
	}
	props.StateFunc = c.State
	props.SharesParentNamespace = func() bool { return false }
	c.syncData()
	return c
}

// syncData writes the lifecycle-derived data slots ("state", "root_pid",
// "exit_status") from current in-memory state. Called with c.mu held (or
// during construction, before c is shared) after every transition.
func (c *Container) syncData() {
	if c.Data == nil {
		return
	}
	_ = c.Data.SetRaw("state", c.state.String())
	_ = c.Data.SetRaw("root_pid", strconv.Itoa(c.pid))
	_ = c.Data.SetRaw("exit_status", strconv.Itoa(c.exitStatus))
}

// RefreshStats polls memory.usage_in_bytes and cpuacct.usage off the
// container's cgroup handles (when present) and writes them into Data,
// per spec.md §4.7's getdata/datalist. Missing handles (container not
// Running, or the injected Subsystem fake doesn't implement a usage
// reader) leave the prior value in place rather than erroring — a stat
// read failure shouldn't fail the whole getdata call.
func (c *Container) RefreshStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Data == nil {
		return
	}

	if cg, ok := c.cgroups["memory"]; ok {
		if usage, ok := c.Subsystem("memory").(interface {
			Usage(*cgroup.Cgroup) (uint64, error)
		}); ok {
			if v, err := usage.Usage(cg); err == nil {
				_ = c.Data.SetRaw("memory_usage", formatUint(v))
			}
		}
	}
	if cg, ok := c.cgroups["cpuacct"]; ok {
		if usage, ok := c.Subsystem("cpuacct").(interface {
			Usage(*cgroup.Cgroup) (uint64, error)
		}); ok {
			if v, err := usage.Usage(cg); err == nil {
				_ = c.Data.SetRaw("cpu_usage", formatUint(v))
			}
		}
	}
}

func defaultAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// State returns the container's current lifecycle state.
func (c *Container) State() value.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pid returns the payload's pid, or 0 if not running.
func (c *Container) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// AddChild / RemoveChild / HasChildren back the *ContainerAlreadyExists*
// and *Busy* checks pkg/holder performs on create/destroy.
func (c *Container) AddChild(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[name] = true
}

func (c *Container) RemoveChild(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.children, name)
}

func (c *Container) HasChildren() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children) > 0
}

func (c *Container) cgroupPath() string {
	if strings.HasPrefix(c.Name, "/") {
		return c.Name
	}
	return "/" + c.Name
}

// Start acquires a cgroup handle per subsystem, writes the knobs derived
// from properties, materialises the tc projection if configured, and
// launches the payload; a container with no command enters Meta without
// launching anything. Failure at any step unwinds earlier steps in
// reverse order, leaving the container Stopped — spec.md §4.3's Start.
func (c *Container) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != value.StateStopped {
		return errkind.Newf(errkind.InvalidState, "cannot Start container %q from state %s", c.Name, c.state)
	}

	var created []string
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			name := created[i]
			if err := c.Subsystem(name).Remove(c.cgroups[name]); err != nil {
				log.WithError(err).Warnf("container %s: rollback remove cgroup %s", c.Name, name)
			}
			delete(c.cgroups, name)
		}
	}

	path := c.cgroupPath()
	for _, name := range DefaultSubsystems {
		cg := &cgroup.Cgroup{Subsystem: name, Path: path}
		if err := c.Subsystem(name).Create(cg); err != nil {
			rollback()
			return errkind.Wrapf(errkind.Storage, err, "create %s cgroup for %s", name, c.Name)
		}
		c.cgroups[name] = cg
		created = append(created, name)
	}

	if err := c.writeCgroupKnobs(); err != nil {
		rollback()
		return err
	}

	if err := c.materialiseTc(); err != nil {
		rollback()
		return err
	}

	// Meta vs. Running on Start is our own resolution of an open
	// question spec.md leaves unanswered (it names Meta as a lifecycle
	// state but never says what event reaches it): a container with no
	// command configured is treated as a metacontainer, grouping its
	// children without supervising a payload of its own.
	if command, _ := c.Props.VariantSet().GetString("command"); command == "" {
		c.state = value.StateMeta
		c.syncData()
		return nil
	}

	spec, err := c.buildLaunchSpec()
	if err != nil {
		c.teardownTc()
		rollback()
		return err
	}

	pid, err := c.Launch(spec)
	if err != nil {
		c.teardownTc()
		rollback()
		return errkind.Wrap(errkind.Unknown, err, "launch payload")
	}

	for _, name := range DefaultSubsystems {
		if err := c.Subsystem(name).Attach(c.cgroups[name], pid); err != nil {
			_ = c.Signal(pid, syscall.SIGKILL)
			c.teardownTc()
			rollback()
			return errkind.Wrapf(errkind.Storage, err, "attach pid %d to %s cgroup", pid, name)
		}
	}

	c.pid = pid
	c.state = value.StateRunning
	c.syncData()
	return nil
}

func (c *Container) writeCgroupKnobs() error {
	vs := c.Props.VariantSet()

	if limit, err := vs.GetUint("memory_limit"); err == nil && limit > 0 {
		if err := c.Subsystem("memory").SetKnob(c.cgroups["memory"], "memory.limit_in_bytes", formatUint(limit)); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "write memory.limit_in_bytes for %s", c.Name)
		}
	}
	if shares, err := vs.GetUint("cpu_limit"); err == nil && shares > 0 {
		if err := c.Subsystem("cpu").SetKnob(c.cgroups["cpu"], "cpu.shares", formatUint(shares)); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "write cpu.shares for %s", c.Name)
		}
	}
	return nil
}

func (c *Container) materialiseTc() error {
	if c.RootQdisc == nil || c.TcHandle == 0 || !tc.Enabled {
		return nil
	}
	vs := c.Props.VariantSet()
	rate, _ := vs.GetUint("net_guarantee")
	ceil, _ := vs.GetUint("net_ceil")
	if ceil == 0 {
		ceil = rate
	}

	tclass := &tc.Tclass{Handle: c.TcHandle, ParentQdisc: c.RootQdisc}
	if err := tclass.Create(1, rate, ceil); err != nil {
		return errkind.Wrapf(errkind.Storage, err, "create tclass for %s", c.Name)
	}
	filter := &tc.Filter{Parent: tclass}
	if err := filter.Create(); err != nil {
		_ = tclass.Remove()
		return errkind.Wrapf(errkind.Storage, err, "create tc filter for %s", c.Name)
	}
	c.tc = &tcProjection{tclass: tclass, filter: filter}
	return nil
}

func (c *Container) teardownTc() {
	if c.tc == nil {
		return
	}
	if err := c.tc.filter.Remove(); err != nil {
		log.WithError(err).Warnf("container %s: remove tc filter", c.Name)
	}
	if err := c.tc.tclass.Remove(); err != nil {
		log.WithError(err).Warnf("container %s: remove tclass", c.Name)
	}
	c.tc = nil
}

func (c *Container) buildLaunchSpec() (launcher.Spec, error) {
	vs := c.Props.VariantSet()
	command, _ := vs.GetString("command")
	cwd, _ := vs.GetString("cwd")
	root, _ := vs.GetString("root")
	hostname, _ := vs.GetString("hostname")
	isolate, _ := vs.GetBool("isolate")
	rlimits, _ := vs.GetRlimitMap("rlimit")
	binds, _ := vs.GetBindList("bind")

	return launcher.Spec{
		Command:    command,
		Cwd:        cwd,
		Root:       root,
		Hostname:   hostname,
		Credential: c.Props.Owner(),
		Isolate:    isolate,
		Rlimits:    rlimits,
		Binds:      binds,
	}, nil
}

// Stop signals the payload, waits up to StopGracePeriod, escalates via
// freeze+sigkill+thaw if it's still alive, tears down the tc projection
// and cgroup handles, and always transitions to Stopped — even when
// teardown hits errors, which are logged but never block the
// transition, per spec.md §4.3's Stop.
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case value.StateRunning, value.StatePaused, value.StateDead, value.StateMeta:
	default:
		return errkind.Newf(errkind.InvalidState, "cannot Stop container %q from state %s", c.Name, c.state)
	}

	if c.pid != 0 {
		if err := c.Signal(c.pid, syscall.SIGTERM); err != nil {
			log.WithError(err).Warnf("container %s: SIGTERM pid %d", c.Name, c.pid)
		}
		if !c.waitExit(StopGracePeriod) {
			c.killViaFreezer()
		}
	}

	c.teardownTc()
	for name, cg := range c.cgroups {
		if err := c.Subsystem(name).Remove(cg); err != nil {
			log.WithError(err).Warnf("container %s: remove %s cgroup", c.Name, name)
		}
	}
	c.cgroups = make(map[string]*cgroup.Cgroup)

	c.pid = 0
	c.state = value.StateStopped
	c.syncData()
	return nil
}

func (c *Container) waitExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !c.Alive(c.pid) {
			return true
		}
		time.Sleep(StopPollInterval)
	}
	return !c.Alive(c.pid)
}

// killViaFreezer freezes the cgroup, SIGKILLs the payload while frozen
// (so it can't dodge the signal by handling/ignoring it), then thaws so
// the kernel actually delivers the queued kill and reaps the process —
// the escalation path spec.md §4.3's Stop calls out explicitly.
func (c *Container) killViaFreezer() {
	fz, ok := c.Subsystem("freezer").(freezer)
	cg, hasCg := c.cgroups["freezer"]
	if !ok || !hasCg {
		_ = c.Signal(c.pid, syscall.SIGKILL)
		return
	}
	if err := fz.Freeze(cg); err != nil {
		log.WithError(err).Warnf("container %s: freeze before kill", c.Name)
	}
	if err := c.Signal(c.pid, syscall.SIGKILL); err != nil {
		log.WithError(err).Warnf("container %s: SIGKILL pid %d", c.Name, c.pid)
	}
	if err := fz.Unfreeze(cg); err != nil {
		log.WithError(err).Warnf("container %s: thaw after kill", c.Name)
	}
}

// Pause freezes the payload: writes FROZEN to the freezer knob and polls
// until the kernel confirms it.
func (c *Container) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != value.StateRunning {
		return errkind.Newf(errkind.InvalidState, "cannot Pause container %q from state %s", c.Name, c.state)
	}
	fz, ok := c.Subsystem("freezer").(freezer)
	cg, hasCg := c.cgroups["freezer"]
	if !ok || !hasCg {
		return errkind.Newf(errkind.Unknown, "no freezer handle for %s", c.Name)
	}
	if err := fz.Freeze(cg); err != nil {
		return err
	}
	c.state = value.StatePaused
	c.syncData()
	return nil
}

// Resume thaws a previously paused payload.
func (c *Container) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != value.StatePaused {
		return errkind.Newf(errkind.InvalidState, "cannot Resume container %q from state %s", c.Name, c.state)
	}
	fz, ok := c.Subsystem("freezer").(freezer)
	cg, hasCg := c.cgroups["freezer"]
	if !ok || !hasCg {
		return errkind.Newf(errkind.Unknown, "no freezer handle for %s", c.Name)
	}
	if err := fz.Unfreeze(cg); err != nil {
		return err
	}
	c.state = value.StateRunning
	c.syncData()
	return nil
}

// Kill sends sig to the payload. It does not change state by itself; a
// subsequent payload exit (reported via MarkExited) drives the
// transition to Dead, per spec.md §4.3's Kill.
func (c *Container) Kill(sig syscall.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pid == 0 {
		return errkind.Newf(errkind.InvalidState, "container %q has no running payload", c.Name)
	}
	return c.Signal(c.pid, sig)
}

// MarkExited records that the payload has terminated, transitioning a
// Running container to Dead. Called by whatever reaps the pid (SIGCHLD
// handler or wait4 loop) outside this package.
func (c *Container) MarkExited(exitStatus int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != value.StateRunning && c.state != value.StateMeta {
		return
	}
	c.exitStatus = exitStatus
	c.state = value.StateDead
	c.syncData()
}

// Destroy refuses if any child container exists, stops the container if
// it isn't already Stopped, and removes its persistence node. Detaching
// from the holder's name map is the caller's responsibility, per spec.md
// §4.6's note that the shared reference must be dropped before the
// parent/child graph is traversed.
func (c *Container) Destroy() error {
	if c.HasChildren() {
		return errkind.Newf(errkind.Busy, "container %q has children", c.Name)
	}
	if c.State() != value.StateStopped {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	return c.Props.Remove()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// AdoptRunning marks a container Running without going through Start, for
// pkg/holder's restore_all: a cgroup directory that survived a daemon
// restart with live tasks attached is presumed to still host its payload,
// and is re-adopted rather than relaunched. The pid is left 0 since the
// original launcher pipe is gone; Stop still works: with no pid to
// signal, the attached tasks are killed by each subsystem's Remove, which
// SIGKILLs lingering tasks before deleting the cgroup directory.
func (c *Container) AdoptRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != value.StateStopped {
		return
	}
	path := c.cgroupPath()
	for _, name := range DefaultSubsystems {
		c.cgroups[name] = &cgroup.Cgroup{Subsystem: name, Path: path}
	}
	c.state = value.StateRunning
	c.syncData()
}
