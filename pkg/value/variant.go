package value

import (
	"strconv"
	"sync"

	"github.com/oceanweave/portod/pkg/errkind"
	log "github.com/sirupsen/logrus"
)

// Slot is the per (container, descriptor) storage cell: either default
// (no local override) or explicit with a stored string form.
type Slot struct {
	Explicit bool
	Raw      string
}

// VariantSet is the per-container mapping from descriptor to slot,
// described in spec.md §3 ("Variant set"). It chains to its parent's
// VariantSet for parent-default inheritance; the chain is wired up by
// whoever owns the containers (pkg/property), never discovered by
// VariantSet itself, so this package never has to know about containers.
type VariantSet struct {
	registry *Registry
	parent   *VariantSet
	owner    interface{}

	mu    sync.RWMutex
	slots map[string]Slot
}

// NewVariantSet returns an empty variant set over registry.
func NewVariantSet(registry *Registry) *VariantSet {
	return &VariantSet{registry: registry, slots: make(map[string]Slot)}
}

// SetParent wires the ancestor VariantSet consulted for parent-default
// inheritance. Root containers leave this nil.
func (vs *VariantSet) SetParent(parent *VariantSet) {
	vs.parent = parent
}

// SetOwner records the opaque value passed to a descriptor's SideEffect
// hook when Set runs against this variant set.
func (vs *VariantSet) SetOwner(owner interface{}) {
	vs.owner = owner
}

func (vs *VariantSet) descriptor(name string) (*Descriptor, error) {
	return vs.registry.Get(name)
}

// IsDefault reports whether name has no local override.
func (vs *VariantSet) IsDefault(name string) (bool, error) {
	if _, err := vs.descriptor(name); err != nil {
		return false, err
	}
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	slot, ok := vs.slots[name]
	return !ok || !slot.Explicit, nil
}

// GetRaw returns the stored string form, or the descriptor's own static
// default if the slot is default. It never consults the parent.
func (vs *VariantSet) GetRaw(name string) (string, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return "", err
	}
	vs.mu.RLock()
	slot, ok := vs.slots[name]
	vs.mu.RUnlock()
	if ok && slot.Explicit {
		return slot.Raw, nil
	}
	return d.defaultValue(), nil
}

// SetRaw overwrites the slot without parsing/validating or running the
// side-effect hook. Used by restore, which replays previously-validated
// values.
func (vs *VariantSet) SetRaw(name, raw string) error {
	if _, err := vs.descriptor(name); err != nil {
		return err
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.slots[name] = Slot{Explicit: true, Raw: raw}
	return nil
}

// Set parses/validates raw via the descriptor's kind, runs the
// side-effect hook if any, then stores it.
func (vs *VariantSet) Set(name, raw string) error {
	d, err := vs.descriptor(name)
	if err != nil {
		return err
	}
	if err := validate(d.Kind, raw); err != nil {
		return err
	}
	if d.OnSet != nil {
		if err := d.OnSet(vs.owner, raw); err != nil {
			return err
		}
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.slots[name] = Slot{Explicit: true, Raw: raw}
	return nil
}

// resolveInherited walks the parent chain looking for the nearest
// ancestor with an explicit value for name. Returns ok=false if none of
// the ancestors (including the root) has one.
func (vs *VariantSet) resolveInherited(name string) (string, bool) {
	for p := vs.parent; p != nil; p = p.parent {
		p.mu.RLock()
		slot, ok := p.slots[name]
		p.mu.RUnlock()
		if ok && slot.Explicit {
			return slot.Raw, true
		}
	}
	return "", false
}

// typedRaw implements the shared resolution rule behind every typed
// accessor: explicit local value; else, if parent-default, the nearest
// ancestor's explicit value; else the descriptor's static default.
func (vs *VariantSet) typedRaw(d *Descriptor, name string) string {
	vs.mu.RLock()
	slot, ok := vs.slots[name]
	vs.mu.RUnlock()
	if ok && slot.Explicit {
		return slot.Raw
	}
	if d.Flags.Has(ParentDefault) {
		if raw, found := vs.resolveInherited(name); found {
			return raw
		}
	}
	return d.defaultValue()
}

// logOrFail implements the Open Question decision in SPEC_FULL.md §6.1:
// a parse failure during a typed accessor is surfaced for StrictParse
// descriptors and swallowed (logged, zero value returned) otherwise.
func logOrFail(d *Descriptor, err error) error {
	if err == nil {
		return nil
	}
	if d.StrictParse {
		return err
	}
	log.WithField("value", d.Name).Errorf("can't parse value: %s", err)
	return nil
}

// GetString is the typed accessor for KindString (and, loosely, any
// kind — the raw form is always a valid string).
func (vs *VariantSet) GetString(name string) (string, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return "", err
	}
	return vs.typedRaw(d, name), nil
}

// GetBool is the typed accessor for KindBool.
func (vs *VariantSet) GetBool(name string) (bool, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return false, err
	}
	raw := vs.typedRaw(d, name)
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, logOrFail(d, errkind.Wrapf(errkind.InvalidValue, err, "bool %q", raw))
	}
	return v, nil
}

// GetInt is the typed accessor for KindInt.
func (vs *VariantSet) GetInt(name string) (int64, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return 0, err
	}
	raw := vs.typedRaw(d, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, logOrFail(d, errkind.Wrapf(errkind.InvalidValue, err, "int %q", raw))
	}
	return v, nil
}

// GetUint is the typed accessor for KindUint. It accepts both a plain
// integer and a human size ("1G") so memory_limit-style descriptors read
// back cleanly either way.
func (vs *VariantSet) GetUint(name string) (uint64, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return 0, err
	}
	raw := vs.typedRaw(d, name)
	if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return v, nil
	}
	n, err := ParseSize(raw)
	if err != nil {
		return 0, logOrFail(d, err)
	}
	return uint64(n), nil
}

// GetRlimitMap is the typed accessor for KindRlimitMap.
func (vs *VariantSet) GetRlimitMap(name string) (map[string]Rlimit, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return nil, err
	}
	raw := vs.typedRaw(d, name)
	m, err := ParseRlimitMap(raw)
	if err != nil {
		return nil, logOrFail(d, err)
	}
	return m, nil
}

// GetBindList is the typed accessor for KindBindList.
func (vs *VariantSet) GetBindList(name string) ([]BindMount, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return nil, err
	}
	raw := vs.typedRaw(d, name)
	list, err := ParseBindList(raw)
	if err != nil {
		return nil, logOrFail(d, err)
	}
	return list, nil
}

// GetNetConfig is the typed accessor for KindNetConfig.
func (vs *VariantSet) GetNetConfig(name string) (NetConfig, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return NetConfig{}, err
	}
	raw := vs.typedRaw(d, name)
	nc, err := ParseNetConfig(raw)
	if err != nil {
		return NetConfig{}, logOrFail(d, err)
	}
	return nc, nil
}

// Writable reports whether name may be written while the container is in
// state s.
func (vs *VariantSet) Writable(name string, s State) (bool, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return false, err
	}
	return d.writableIn(s), nil
}

// Flags returns the descriptor's flag set.
func (vs *VariantSet) Flags(name string) (Flag, error) {
	d, err := vs.descriptor(name)
	if err != nil {
		return 0, err
	}
	return d.Flags, nil
}

// Explicit returns every (name, raw) pair with an explicit override, in
// registry order — used by the property holder to write a fresh
// persistence node on Create/Sync.
func (vs *VariantSet) Explicit() []struct{ Name, Raw string } {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	var out []struct{ Name, Raw string }
	for _, name := range vs.registry.Names() {
		if slot, ok := vs.slots[name]; ok && slot.Explicit {
			out = append(out, struct{ Name, Raw string }{name, slot.Raw})
		}
	}
	return out
}
