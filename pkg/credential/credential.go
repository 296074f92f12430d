// Package credential holds the (uid, gid) owning credential every
// container is stamped with at creation, and the root-bypass permission
// check spec.md §4.2 and §4.7 both rely on. Grounded on
// original_source/rpc.hpp's TCred and the teacher's SO_PEERCRED reads in
// moby-moby/api/server/authn_unix.go (the pack's only peer-credential
// idiom).
package credential

// Credential identifies the client a request or a container creation
// came from.
type Credential struct {
	Uid uint32
	Gid uint32
}

// IsRoot reports whether this credential bypasses ownership checks.
func (c Credential) IsRoot() bool {
	return c.Uid == 0
}

// Permitted reports whether caller may act on behalf of owner: either
// caller is root, or the two credentials match exactly.
func Permitted(caller, owner Credential) bool {
	return caller.IsRoot() || caller == owner
}
