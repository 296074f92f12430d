// Package volume implements the volume holder collaborator spec.md §6
// places outside the core: an in-memory, mutex-guarded name→record map
// that the RPC dispatcher forwards its three volume RPCs (create,
// destroy, list) to. Grounded on
// moby-moby/volume/store/store.go's VolumeStore shape, simplified since
// the core never inspects a volume's driver-side contents — only its
// name, path and credential.
package volume

import (
	"sort"
	"sync"

	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/errkind"
)

// Volume is the record the holder stores per name. Path is opaque to
// the core; it is whatever the backing driver reports.
type Volume struct {
	Name    string
	Path    string
	Backend string
	Owner   credential.Credential
}

// Store is the mutex-guarded name→Volume map.
type Store struct {
	mu   sync.Mutex
	vols map[string]*Volume
}

// New returns an empty volume store.
func New() *Store {
	return &Store{vols: make(map[string]*Volume)}
}

// Create registers name, or returns the existing record if it's already
// present — matching VolumeStore.Create's find-or-create semantics.
func (s *Store) Create(name, backend string, owner credential.Credential) (*Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vols[name]; ok {
		return v, nil
	}
	v := &Volume{Name: name, Path: "/var/lib/portod/volumes/" + name, Backend: backend, Owner: owner}
	s.vols[name] = v
	return v, nil
}

// Destroy removes name, or returns VolumeDoesNotExist if it was never
// created.
func (s *Store) Destroy(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vols[name]; !ok {
		return errkind.Newf(errkind.VolumeDoesNotExist, "volume %q does not exist", name)
	}
	delete(s.vols, name)
	return nil
}

// Get returns the record for name, if any.
func (s *Store) Get(name string) (*Volume, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vols[name]
	return v, ok
}

// List enumerates every known volume name.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.vols))
	for name := range s.vols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
