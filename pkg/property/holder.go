// Package property implements the property holder of spec.md §4.2: a
// per-container wrapper around a value.VariantSet and a kvstore.Store
// node, responsible for Create/Restore/Set/Sync and the ownership
// permission check. Grounded on original_source/property.hpp's
// TPropertyHolder.
package property

import (
	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/errkind"
	"github.com/oceanweave/portod/pkg/kvstore"
	"github.com/oceanweave/portod/pkg/value"
	log "github.com/sirupsen/logrus"
)

// Holder wraps one container's VariantSet and its persistence node.
// StateFunc and SharesParentNamespace are supplied by pkg/container at
// construction time so this package never has to import it.
type Holder struct {
	store *kvstore.Store
	name  string
	vs    *value.VariantSet
	owner credential.Credential

	// StateFunc reports the container's current lifecycle state, used by
	// Set's writable-state check.
	StateFunc func() value.State

	// SharesParentNamespace reports whether the container currently
	// shares the relevant namespace with its parent, used by Set's
	// parent-read-only check. Nil means never shared (root containers).
	SharesParentNamespace func() bool
}

// NewHolder constructs a property holder for container name, backed by
// registry and store, owned by owner.
func NewHolder(store *kvstore.Store, name string, registry *value.Registry, owner credential.Credential) *Holder {
	return &Holder{
		store: store,
		name:  name,
		vs:    value.NewVariantSet(registry),
		owner: owner,
	}
}

// VariantSet returns the underlying variant set, for callers (the
// container's Start/Stop) that need typed accessors directly.
func (h *Holder) VariantSet() *value.VariantSet {
	return h.vs
}

// SetParent wires the ancestor variant set consulted for
// parent-default inheritance, mirroring the parent back-reference
// pkg/holder maintains between containers.
func (h *Holder) SetParent(parent *Holder) {
	if parent == nil {
		return
	}
	h.vs.SetParent(parent.vs)
}

// Owner returns the credential this container was created with.
func (h *Holder) Owner() credential.Credential {
	return h.owner
}

// Permitted reports whether caller may modify this container's
// properties: caller is root, or caller matches the owning credential.
func (h *Holder) Permitted(caller credential.Credential) bool {
	return credential.Permitted(caller, h.owner)
}

func (h *Holder) explicitRecords() []kvstore.Record {
	pairs := h.vs.Explicit()
	records := make([]kvstore.Record, 0, len(pairs))
	for _, p := range pairs {
		records = append(records, kvstore.Record{Key: p.Name, Value: p.Raw})
	}
	return records
}

// Create writes every explicit slot to the store as a fresh node.
func (h *Holder) Create() error {
	if err := h.store.CreateNode(h.name, h.explicitRecords()); err != nil {
		return err
	}
	return nil
}

// Restore replays a previously-persisted node: for each (key, value)
// record, call SetRaw on the variant set. Unknown keys (properties no
// longer registered) are discarded with a warning rather than failing
// the restore. Record corruption surfaced by the store itself (bad JSON)
// propagates as errkind.Corrupted.
func (h *Holder) Restore() error {
	records, err := h.store.Load(h.name)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := h.vs.SetRaw(rec.Key, rec.Value); err != nil {
			log.WithField("container", h.name).Warnf("discarding unknown property %q on restore", rec.Key)
			continue
		}
	}
	return nil
}

// Set validates and applies one property change: the container must be
// in a state in which the descriptor is writable; a superuser-only
// descriptor requires privileged; a parent-read-only descriptor can't
// change while the namespace is shared with the parent. On success the
// change is appended to the store incrementally (not a full Sync).
func (h *Holder) Set(name, raw string, privileged bool) error {
	writable, err := h.vs.Writable(name, h.state())
	if err != nil {
		return err
	}
	if !writable {
		return errkind.Newf(errkind.InvalidState, "property %q is not writable in state %s", name, h.state())
	}

	flags, err := h.vs.Flags(name)
	if err != nil {
		return err
	}
	if flags.Has(value.SuperuserOnly) && !privileged {
		return errkind.Newf(errkind.PermissionDenied, "property %q requires superuser privilege", name)
	}
	if flags.Has(value.ParentReadOnly) && h.sharesParentNamespace() {
		return errkind.Newf(errkind.PermissionDenied, "property %q is read-only while namespace is shared with parent", name)
	}

	// Persist before mutating the in-memory slot: if Append fails, the
	// slot must stay exactly as it was on disk rather than diverge from
	// it.
	if err := h.store.Append(h.name, name, raw); err != nil {
		return err
	}
	return h.vs.Set(name, raw)
}

// Sync rewrites the persistence node from the current slot set,
// compacting away superseded incremental appends.
func (h *Holder) Sync() error {
	return h.store.Sync(h.name, h.explicitRecords())
}

// Remove deletes this container's persistence node entirely, called by
// Destroy.
func (h *Holder) Remove() error {
	return h.store.Remove(h.name)
}

func (h *Holder) state() value.State {
	if h.StateFunc == nil {
		return value.StateStopped
	}
	return h.StateFunc()
}

func (h *Holder) sharesParentNamespace() bool {
	if h.SharesParentNamespace == nil {
		return false
	}
	return h.SharesParentNamespace()
}
