package tc

import (
	"github.com/vishvananda/netlink"

	"github.com/oceanweave/portod/pkg/errkind"
)

// Qdisc owns a root HTB qdisc and a default class handle, installed on
// every link in Links. Create/Remove iterate every link, per
// original_source/qdisc.cpp's TQdisc.
type Qdisc struct {
	Links    []string
	Handle   uint32
	DefClass uint32
}

func (q *Qdisc) netlinkHandle(link netlink.Link) *netlink.Htb {
	attrs := netlink.QdiscAttrs{
		LinkIndex: link.Attrs().Index,
		Handle:    netlink.MakeHandle(uint16(q.Handle>>16), uint16(q.Handle)),
		Parent:    netlink.HANDLE_ROOT,
	}
	htb := netlink.NewHtb(attrs)
	htb.Defcls = uint32(q.DefClass)
	return htb
}

// Create installs the root HTB qdisc on every link. A no-op when
// networking is globally disabled.
func (q *Qdisc) Create() error {
	if !Enabled {
		return nil
	}
	links, err := resolveLinks(q.Links)
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		if err := netlink.QdiscAdd(q.netlinkHandle(link)); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "create qdisc on %s", link.Attrs().Name)
		}
	}
	return nil
}

// Remove deletes the root HTB qdisc from every link. A no-op when
// networking is globally disabled.
func (q *Qdisc) Remove() error {
	if !Enabled {
		return nil
	}
	links, err := resolveLinks(q.Links)
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		if err := netlink.QdiscDel(q.netlinkHandle(link)); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "remove qdisc on %s", link.Attrs().Name)
		}
	}
	return nil
}

// GetLink returns the set of links this qdisc is installed on.
func (q *Qdisc) GetLink() []string {
	return q.Links
}

// ParentHandle is the handle a Filter attaches itself under when this
// qdisc is its parent — the qdisc's own handle, per
// original_source/qdisc.cpp's `Parent->GetHandle()`.
func (q *Qdisc) ParentHandle() uint32 {
	return q.Handle
}
