// Package tc implements the traffic-control adapter of spec.md §4.5:
// idempotent qdisc/class/filter management over one or more netlink
// links, backed by github.com/vishvananda/netlink instead of the
// original_source/qdisc.cpp TNl* wrappers around a hand-rolled netlink
// encoder. Grounded on the teacher's own netlink usage in
// pkg/network/bridge_driver.go and brige_core.go.
package tc

import "github.com/vishvananda/netlink"

// Enabled mirrors config().network().enabled() from
// original_source/qdisc.cpp: every Create/Remove/Stat in this package is
// a successful no-op while it is false. Set once at daemon startup from
// pkg/config.
var Enabled = true

// Link wraps the subset of netlink.Link this package touches, resolved
// once by name. TQdisc/TTclass/TFilter in the original all work over a
// vector of attached links; here a container's network scope is the
// (possibly empty) set of LinkByName lookups the caller resolved.
func resolveLinks(names []string) ([]netlink.Link, error) {
	links := make([]netlink.Link, 0, len(names))
	for _, name := range names {
		link, err := netlink.LinkByName(name)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}
