// Package holder implements the container holder of spec.md §4.6: the
// name-to-container registry, its create/get/destroy/list operations,
// and the startup restore_all reconciliation. original_source/rpc.hpp
// takes a TContainerHolder& parameter but never defines it (no
// holder.cpp/holder.hpp is present in the pack), so the registry shape
// here — parent-name resolution by stripping the last path segment,
// depth-ordered restore — is grounded on spec.md §4.6 itself and on
// moby-moby/volume/store/store.go's mutex-guarded name→object map, not
// on any original TContainerHolder implementation.
package holder

import (
	"sort"
	"strings"
	"sync"

	"github.com/oceanweave/portod/pkg/cgroup"
	"github.com/oceanweave/portod/pkg/container"
	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/errkind"
	"github.com/oceanweave/portod/pkg/kvstore"
	"github.com/oceanweave/portod/pkg/property"
	"github.com/oceanweave/portod/pkg/tc"
	"github.com/oceanweave/portod/pkg/value"
	log "github.com/sirupsen/logrus"
)

// Holder owns the name→container map every other package reaches
// containers through. Nothing outside this package constructs a
// container.Container directly.
type Holder struct {
	mu      sync.Mutex
	store   *kvstore.Store
	props   *value.Registry
	data    *value.Registry
	order   []string
	byName  map[string]*container.Container

	// RootQdisc, when non-nil, is handed to every container so its tc
	// projection can hang a class off a shared root — nil disables tc
	// projection materialisation daemon-wide.
	RootQdisc *tc.Qdisc

	nextTcHandle uint32

	// OrphanPolicy overrides restore_all's default adopt-iff-tasks
	// disposition per subsystem ("adopt", "destroy", or "auto");
	// cmd/portod wires it to the [orphans] table of portod.toml via
	// config.Config.OrphanPolicy. Nil means every subsystem is "auto".
	OrphanPolicy func(subsystem string) string
}

// New constructs an empty holder backed by store, with property
// descriptors from propertySet and data descriptors from dataSet — each
// container constructed by Create/restoreOne gets its own data
// value.VariantSet built against dataSet, backing getdata/datalist.
func New(store *kvstore.Store, propertySet, dataSet *value.Registry) *Holder {
	return &Holder{
		store:        store,
		props:        propertySet,
		data:         dataSet,
		byName:       make(map[string]*container.Container),
		nextTcHandle: 0x20000,
	}
}

func parentName(name string) string {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return ""
	}
	return name[:i]
}

// Create registers a new container. Fails with ContainerAlreadyExists if
// name is taken; resolves the parent by stripping the last path segment
// (root containers have none); stamps the owning credential, persists
// the container's initial (empty) node, and inserts it into the map.
func (h *Holder) Create(name string, cred credential.Credential) (*container.Container, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.byName[name]; exists {
		return nil, errkind.Newf(errkind.ContainerAlreadyExists, "container %q already exists", name)
	}

	var parent *container.Container
	if pn := parentName(name); pn != "" {
		p, ok := h.byName[pn]
		if !ok {
			return nil, errkind.Newf(errkind.ContainerDoesNotExist, "parent container %q does not exist", pn)
		}
		parent = p
	}

	props := property.NewHolder(h.store, name, h.props, cred)
	c := container.New(name, props, value.NewVariantSet(h.data))
	c.Parent = parent
	if parent != nil {
		props.SetParent(parent.Props)
		parent.AddChild(name)
	}
	c.RootQdisc = h.RootQdisc
	if h.RootQdisc != nil {
		h.nextTcHandle++
		c.TcHandle = h.nextTcHandle
	}

	if err := props.Create(); err != nil {
		if parent != nil {
			parent.RemoveChild(name)
		}
		return nil, err
	}

	h.byName[name] = c
	h.order = append(h.order, name)
	return c, nil
}

// Get returns the container named name, or ok=false if there is none.
func (h *Holder) Get(name string) (*container.Container, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byName[name]
	return c, ok
}

// Destroy resolves name, refuses with Busy if it has children, runs
// lifecycle Destroy (which stops the container first if needed and
// removes its persistence node), then erases it from the map and its
// parent's child set. The container reference used for the HasChildren
// check and the Destroy call itself is the only one this function
// holds — it never retains it past return, matching spec.md §4.6's
// requirement that the holder's own hold be dropped before the
// child/parent graph is traversed during destruction.
func (h *Holder) Destroy(name string) error {
	h.mu.Lock()
	c, ok := h.byName[name]
	h.mu.Unlock()
	if !ok {
		return errkind.Newf(errkind.ContainerDoesNotExist, "container %q does not exist", name)
	}

	if err := c.Destroy(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byName, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	if c.Parent != nil {
		c.Parent.RemoveChild(name)
	}
	return nil
}

// List enumerates every container name in creation order.
func (h *Holder) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// depth counts path segments, used to sort restore_all's reconstruction
// order so parents always exist before their children.
func depth(name string) int {
	if name == "" {
		return 0
	}
	return strings.Count(name, "/") + 1
}

// RestoreAll enumerates persisted nodes, sorts them shallowest-first,
// reconstructs each container in Stopped state and replays its node,
// then reconciles observable kernel state: an orphaned cgroup with live
// tasks is re-adopted (kept as the container's handle, state inferred
// Running), one with no tasks is removed as garbage — spec.md §4.6's
// restore_all and SPEC_FULL.md §6.6's reconciliation policy.
func (h *Holder) RestoreAll() error {
	names, err := h.store.Names()
	if err != nil {
		return err
	}
	sort.Slice(names, func(i, j int) bool {
		return depth(names[i]) < depth(names[j])
	})

	for _, name := range names {
		if err := h.restoreOne(name); err != nil {
			log.WithError(err).Errorf("restore container %q", name)
		}
	}
	return nil
}

func (h *Holder) restoreOne(name string) error {
	h.mu.Lock()
	if _, exists := h.byName[name]; exists {
		h.mu.Unlock()
		return nil
	}

	var parent *container.Container
	if pn := parentName(name); pn != "" {
		parent = h.byName[pn]
	}
	h.mu.Unlock()

	props := property.NewHolder(h.store, name, h.props, credential.Credential{})
	c := container.New(name, props, value.NewVariantSet(h.data))
	c.Parent = parent
	if parent != nil {
		props.SetParent(parent.Props)
		parent.AddChild(name)
	}
	c.RootQdisc = h.RootQdisc

	if err := props.Restore(); err != nil {
		return err
	}

	h.mu.Lock()
	h.byName[name] = c
	h.order = append(h.order, name)
	h.mu.Unlock()

	h.reconcileKernelState(c)
	return nil
}

// reconcileKernelState inspects whatever cgroup directories survived a
// daemon restart for this container. Per subsystem, OrphanPolicy
// decides the disposition: "adopt" and "destroy" are forced,
// "auto" (the default) adopts iff the cgroup still has attached tasks
// and destroys an empty one.
func (h *Holder) reconcileKernelState(c *container.Container) {
	path := "/" + strings.TrimPrefix(c.Name, "/")
	live := false
	for _, name := range container.DefaultSubsystems {
		cg := &cgroup.Cgroup{Subsystem: name, Path: path}
		if !cg.Exists() {
			continue
		}

		policy := "auto"
		if h.OrphanPolicy != nil {
			policy = h.OrphanPolicy(name)
		}

		adopt := false
		switch policy {
		case "adopt":
			adopt = true
		case "destroy":
			adopt = false
		default:
			pids, err := cg.Tasks()
			if err != nil {
				log.WithError(err).Warnf("restore %q: read %s tasks", c.Name, name)
				continue
			}
			adopt = len(pids) > 0
		}

		if adopt {
			live = true
			continue
		}
		if err := cgroup.Get(name).Remove(cg); err != nil {
			log.WithError(err).Warnf("restore %q: remove orphaned %s cgroup", c.Name, name)
		}
	}
	if live {
		c.AdoptRunning()
	}
}
