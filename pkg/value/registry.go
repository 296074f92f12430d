package value

import (
	"sync"

	"github.com/oceanweave/portod/pkg/errkind"
)

// Flag is a bitmask of descriptor behaviours.
type Flag uint32

const (
	// Hidden suppresses the descriptor from propertylist/datalist.
	Hidden Flag = 1 << iota
	// SuperuserOnly means only a privileged credential may set it.
	SuperuserOnly
	// ParentDefault means an unset slot inherits from the nearest live
	// ancestor with an explicit value, falling back to the static default.
	ParentDefault
	// ParentReadOnly means the value can't change while the container
	// shares the relevant namespace with its parent.
	ParentReadOnly
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// SideEffect runs after a value is parsed/validated but before it is
// stored, e.g. to reconfigure a tc class when a bandwidth property
// changes. owner is whatever was last passed to the VariantSet's
// SetOwner, or nil if SetOwner was never called.
type SideEffect func(owner interface{}, raw string) error

// Descriptor is a registry entry shared across every container.
type Descriptor struct {
	Name string
	Kind Kind
	Desc string
	Flags Flag

	// Writable lists the lifecycle states in which this value may be
	// set. An empty slice means writable in every state.
	Writable []State

	// Default produces the descriptor's static default value, computed
	// lazily rather than stored as a literal (mirrors the original
	// property.hpp's default-producer pattern).
	Default func() string

	// StrictParse controls whether a typed-accessor parse failure is
	// surfaced as an error (true) or logged and swallowed in favour of
	// a zero value (false). Defaults to true for properties, false for
	// data, decided at registration time (see SPEC_FULL.md §6.1).
	StrictParse bool

	// OnSet is an optional side-effect hook invoked by Set, after
	// validation and before the slot is stored.
	OnSet SideEffect
}

func (d *Descriptor) writableIn(s State) bool {
	if len(d.Writable) == 0 {
		return true
	}
	for _, w := range d.Writable {
		if w == s {
			return true
		}
	}
	return false
}

func (d *Descriptor) defaultValue() string {
	if d.Default == nil {
		return ""
	}
	return d.Default()
}

// Registry is a process-scope set of descriptors, populated once at
// startup by registration calls. The property set and the data set are
// each one Registry instance, constructed explicitly and passed in
// rather than reached for as a package-level global (see SPEC_FULL.md's
// "Ambient global registries" note).
type Registry struct {
	mu    sync.Mutex
	order []string
	descs map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]*Descriptor)}
}

// Register adds a descriptor, preserving insertion order. Registering
// the same name twice is a programmer error and panics, since it can
// only happen during startup wiring.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descs[d.Name]; exists {
		panic("value: duplicate descriptor " + d.Name)
	}
	r.descs[d.Name] = d
	r.order = append(r.order, d.Name)
}

// Names returns every descriptor name in insertion order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// VisibleNames returns every non-Hidden descriptor name in insertion
// order, for propertylist/datalist responses.
func (r *Registry) VisibleNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if !r.descs[name].Flags.Has(Hidden) {
			out = append(out, name)
		}
	}
	return out
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descs[name]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "no such value %q", name)
	}
	return d, nil
}
