package tc

import (
	"github.com/vishvananda/netlink"

	"github.com/oceanweave/portod/pkg/errkind"
)

// Filter attaches a cgroup-classid filter to Parent's handle on every
// link Parent is installed on, the way original_source/qdisc.cpp's
// TFilter wraps TNlCgFilter. Priority 1 matches the original's fixed
// filter priority.
type Filter struct {
	Parent interface {
		GetLink() []string
		ParentHandle() uint32
	}
}

const filterPriority = 1

func (f *Filter) filterAttrs(link netlink.Link) netlink.FilterAttrs {
	return netlink.FilterAttrs{
		LinkIndex: link.Attrs().Index,
		Parent:    f.Parent.ParentHandle(),
		Priority:  filterPriority,
		Protocol:  0,
	}
}

func (f *Filter) exists(link netlink.Link) (bool, error) {
	filters, err := netlink.FilterList(link, f.Parent.ParentHandle())
	if err != nil {
		return false, err
	}
	for _, filt := range filters {
		if _, ok := filt.(*netlink.Cgroup); ok {
			return true, nil
		}
	}
	return false, nil
}

// Create attaches the cgroup-classid filter to every link. A no-op when
// networking is globally disabled.
func (f *Filter) Create() error {
	if !Enabled {
		return nil
	}
	links, err := resolveLinks(f.Parent.GetLink())
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		filter := &netlink.Cgroup{FilterAttrs: f.filterAttrs(link)}
		if err := netlink.FilterAdd(filter); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "create cgroup filter on %s", link.Attrs().Name)
		}
	}
	return nil
}

// Remove deletes the filter from every link where exists reports one
// present, making repeated teardown safe. A no-op when networking is
// globally disabled.
func (f *Filter) Remove() error {
	if !Enabled {
		return nil
	}
	links, err := resolveLinks(f.Parent.GetLink())
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		ok, err := f.exists(link)
		if err != nil {
			return errkind.Wrapf(errkind.Storage, err, "check cgroup filter on %s", link.Attrs().Name)
		}
		if !ok {
			continue
		}
		filter := &netlink.Cgroup{FilterAttrs: f.filterAttrs(link)}
		if err := netlink.FilterDel(filter); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "remove cgroup filter on %s", link.Attrs().Name)
		}
	}
	return nil
}
