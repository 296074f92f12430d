package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/oceanweave/portod/pkg/errkind"
)

// Kind identifies the shape of a descriptor's stored value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindUint
	KindRlimitMap
	KindBindList
	KindNetConfig
)

// Rlimit is one entry of a parsed rlimit-map value.
type Rlimit struct {
	Soft uint64
	Hard uint64
}

// BindMount is one entry of a parsed bind-list value.
type BindMount struct {
	Source   string
	Dest     string
	ReadOnly bool
}

// NetConfig is a parsed net-config value.
type NetConfig struct {
	Bridge string
	IP     string
	MTU    int
}

// ParseRlimitMap parses "NAME=soft:hard;NAME=soft:hard" into a map.
func ParseRlimitMap(raw string) (map[string]Rlimit, error) {
	out := map[string]Rlimit{}
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			return nil, errkind.Newf(errkind.InvalidValue, "malformed rlimit entry %q", entry)
		}
		bounds := strings.SplitN(kv[1], ":", 2)
		if len(bounds) != 2 {
			return nil, errkind.Newf(errkind.InvalidValue, "malformed rlimit bounds %q", kv[1])
		}
		soft, err := strconv.ParseUint(bounds[0], 10, 64)
		if err != nil {
			return nil, errkind.Wrapf(errkind.InvalidValue, err, "rlimit soft bound %q", bounds[0])
		}
		hard, err := strconv.ParseUint(bounds[1], 10, 64)
		if err != nil {
			return nil, errkind.Wrapf(errkind.InvalidValue, err, "rlimit hard bound %q", bounds[1])
		}
		out[strings.ToUpper(kv[0])] = Rlimit{Soft: soft, Hard: hard}
	}
	return out, nil
}

func formatRlimitMap(m map[string]Rlimit) string {
	parts := make([]string, 0, len(m))
	for name, rl := range m {
		parts = append(parts, fmt.Sprintf("%s=%d:%d", name, rl.Soft, rl.Hard))
	}
	return strings.Join(parts, ";")
}

// ParseBindList parses a ';'-separated list of "src:dst[:ro]" triples.
func ParseBindList(raw string) ([]BindMount, error) {
	var out []BindMount
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) < 2 {
			return nil, errkind.Newf(errkind.InvalidValue, "malformed bind entry %q", entry)
		}
		bm := BindMount{Source: fields[0], Dest: fields[1]}
		if len(fields) > 2 && fields[2] == "ro" {
			bm.ReadOnly = true
		}
		out = append(out, bm)
	}
	return out, nil
}

func formatBindList(binds []BindMount) string {
	parts := make([]string, 0, len(binds))
	for _, bm := range binds {
		if bm.ReadOnly {
			parts = append(parts, fmt.Sprintf("%s:%s:ro", bm.Source, bm.Dest))
		} else {
			parts = append(parts, fmt.Sprintf("%s:%s", bm.Source, bm.Dest))
		}
	}
	return strings.Join(parts, ";")
}

// ParseNetConfig parses "bridge=portod0,ip=dhcp,mtu=1500" into a NetConfig.
func ParseNetConfig(raw string) (NetConfig, error) {
	var nc NetConfig
	if raw == "" {
		return nc, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			return nc, errkind.Newf(errkind.InvalidValue, "malformed net-config entry %q", entry)
		}
		switch strings.ToLower(kv[0]) {
		case "bridge":
			nc.Bridge = kv[1]
		case "ip":
			nc.IP = kv[1]
		case "mtu":
			mtu, err := strconv.Atoi(kv[1])
			if err != nil {
				return nc, errkind.Wrapf(errkind.InvalidValue, err, "net-config mtu %q", kv[1])
			}
			nc.MTU = mtu
		default:
			return nc, errkind.Newf(errkind.InvalidValue, "unknown net-config key %q", kv[0])
		}
	}
	return nc, nil
}

func formatNetConfig(nc NetConfig) string {
	parts := make([]string, 0, 3)
	if nc.Bridge != "" {
		parts = append(parts, "bridge="+nc.Bridge)
	}
	if nc.IP != "" {
		parts = append(parts, "ip="+nc.IP)
	}
	if nc.MTU != 0 {
		parts = append(parts, fmt.Sprintf("mtu=%d", nc.MTU))
	}
	return strings.Join(parts, ",")
}

// ParseSize parses a human size ("1G", "512m", "100") into bytes, the way
// the value system validates memory_limit-style uint descriptors.
func ParseSize(raw string) (int64, error) {
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, errkind.Wrapf(errkind.InvalidValue, err, "size %q", raw)
	}
	return n, nil
}

// validate runs the kind-appropriate parser purely to check raw is
// well-formed; used by Set before the slot is stored.
func validate(kind Kind, raw string) error {
	switch kind {
	case KindString:
		return nil
	case KindBool:
		_, err := strconv.ParseBool(raw)
		if err != nil {
			return errkind.Wrapf(errkind.InvalidValue, err, "bool %q", raw)
		}
		return nil
	case KindInt:
		_, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errkind.Wrapf(errkind.InvalidValue, err, "int %q", raw)
		}
		return nil
	case KindUint:
		if _, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return nil
		}
		// fall back to human-size parsing (memory_limit and friends)
		if _, err := ParseSize(raw); err != nil {
			return err
		}
		return nil
	case KindRlimitMap:
		_, err := ParseRlimitMap(raw)
		return err
	case KindBindList:
		_, err := ParseBindList(raw)
		return err
	case KindNetConfig:
		_, err := ParseNetConfig(raw)
		return err
	default:
		return errkind.Newf(errkind.InvalidValue, "unknown value kind %d", kind)
	}
}
