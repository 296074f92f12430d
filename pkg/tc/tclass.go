package tc

import (
	"github.com/vishvananda/netlink"

	"github.com/oceanweave/portod/pkg/errkind"
)

// TclassStat names one of the per-link HTB class counters Stat can read.
type TclassStat int

const (
	StatBytes TclassStat = iota
	StatPackets
	StatDrops
)

// Tclass is an HTB class hung off either a parent Qdisc or a parent
// Tclass — never both, per original_source/qdisc.cpp's TTclass. GetParent
// resolves which one supplies the parent handle.
type Tclass struct {
	Handle      uint32
	ParentQdisc *Qdisc
	ParentTclass *Tclass

	Prio uint32
	Rate uint64
	Ceil uint64
}

// GetLink delegates to whichever parent supplies the link set, mirroring
// TTclass::GetLink's fallthrough to ParentQdisc or ParentTclass.
func (t *Tclass) GetLink() []string {
	if t.ParentQdisc != nil {
		return t.ParentQdisc.GetLink()
	}
	return t.ParentTclass.GetLink()
}

// GetParent resolves the parent handle: the owning qdisc's handle if
// this class hangs directly off a qdisc, else the parent tclass's own
// handle. Returns 0 (meaningless) when networking is disabled, matching
// the original's early-return shape.
func (t *Tclass) GetParent() uint32 {
	if !Enabled {
		return 0
	}
	if t.ParentQdisc != nil {
		return t.ParentQdisc.Handle
	}
	return t.ParentTclass.Handle
}

// ParentHandle is the handle a Filter attaches itself under when this
// class is its parent — the class's own handle.
func (t *Tclass) ParentHandle() uint32 {
	return t.Handle
}

func (t *Tclass) classAttrs(link netlink.Link) netlink.ClassAttrs {
	return netlink.ClassAttrs{
		LinkIndex: link.Attrs().Index,
		Parent:    t.GetParent(),
		Handle:    t.Handle,
	}
}

// exists reports whether this class is already installed on link.
func (t *Tclass) exists(link netlink.Link) (bool, error) {
	classes, err := netlink.ClassList(link, t.GetParent())
	if err != nil {
		return false, err
	}
	for _, c := range classes {
		if c.Attrs().Handle == t.Handle {
			return true, nil
		}
	}
	return false, nil
}

// Create installs an HTB class with the given priority, rate and
// ceiling on every link. A no-op when networking is globally disabled.
func (t *Tclass) Create(prio uint32, rate, ceil uint64) error {
	if !Enabled {
		return nil
	}
	t.Prio, t.Rate, t.Ceil = prio, rate, ceil

	links, err := resolveLinks(t.GetLink())
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		class := netlink.NewHtbClass(t.classAttrs(link), netlink.HtbClassAttrs{
			Rate:    rate,
			Ceil:    ceil,
			Buffer:  0,
			Cbuffer: 0,
			Prio:    prio,
		})
		if err := netlink.ClassAdd(class); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "create tclass 0x%x on %s", t.Handle, link.Attrs().Name)
		}
	}
	return nil
}

// Remove deletes the HTB class from every link the class's own exists
// check reports present on, making repeated teardown safe. A no-op when
// networking is globally disabled.
func (t *Tclass) Remove() error {
	if !Enabled {
		return nil
	}
	links, err := resolveLinks(t.GetLink())
	if err != nil {
		return errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	for _, link := range links {
		ok, err := t.exists(link)
		if err != nil {
			return errkind.Wrapf(errkind.Storage, err, "check tclass 0x%x on %s", t.Handle, link.Attrs().Name)
		}
		if !ok {
			continue
		}
		class := netlink.NewHtbClass(t.classAttrs(link), netlink.HtbClassAttrs{})
		if err := netlink.ClassDel(class); err != nil {
			return errkind.Wrapf(errkind.Storage, err, "remove tclass 0x%x on %s", t.Handle, link.Attrs().Name)
		}
	}
	return nil
}

// Stat reads the requested per-link counter for this class, keyed by
// link name — TTclass::GetStat in original_source/qdisc.cpp.
func (t *Tclass) Stat(stat TclassStat) (map[string]uint64, error) {
	if !Enabled {
		return map[string]uint64{}, nil
	}
	links, err := resolveLinks(t.GetLink())
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "resolve tc links")
	}
	out := make(map[string]uint64, len(links))
	for _, link := range links {
		classes, err := netlink.ClassList(link, t.GetParent())
		if err != nil {
			return nil, errkind.Wrapf(errkind.Storage, err, "list classes on %s", link.Attrs().Name)
		}
		for _, c := range classes {
			if c.Attrs().Handle != t.Handle {
				continue
			}
			statistics := c.Attrs().Statistics
			if statistics == nil {
				continue
			}
			switch stat {
			case StatBytes:
				out[link.Attrs().Name] = statistics.Basic.Bytes
			case StatPackets:
				out[link.Attrs().Name] = uint64(statistics.Basic.Packets)
			case StatDrops:
				out[link.Attrs().Name] = uint64(statistics.Queue.Drops)
			}
		}
	}
	return out, nil
}
