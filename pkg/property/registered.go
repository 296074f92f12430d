package property

import "github.com/oceanweave/portod/pkg/value"

// NewPropertySet builds the client-writable property registry every
// container's Holder is constructed against — the Go equivalent of
// original_source/property.hpp's extern propertySet, populated here by
// RegisterProperties() rather than at static-init time.
func NewPropertySet() *value.Registry {
	r := value.NewRegistry()

	r.Register(&value.Descriptor{
		Name:        "command",
		Kind:        value.KindString,
		Desc:        "command line executed as the container's payload",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "cwd",
		Kind:        value.KindString,
		Desc:        "working directory for the payload",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "/" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "root",
		Kind:        value.KindString,
		Desc:        "root filesystem path the payload is launched against",
		Flags:       value.ParentDefault | value.ParentReadOnly,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "/" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "user",
		Kind:        value.KindString,
		Desc:        "user the payload runs as",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "group",
		Kind:        value.KindString,
		Desc:        "group the payload runs as",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "hostname",
		Kind:        value.KindString,
		Desc:        "hostname visible inside the payload's namespace",
		Flags:       value.ParentReadOnly,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "isolate",
		Kind:        value.KindBool,
		Desc:        "give the payload its own network namespace",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "true" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "memory_limit",
		Kind:        value.KindUint,
		Desc:        "memory.limit_in_bytes ceiling, 0 means unlimited",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "0" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "cpu_limit",
		Kind:        value.KindUint,
		Desc:        "cpu.shares weight, 0 means the cgroup default",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "0" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "rlimit",
		Kind:        value.KindRlimitMap,
		Desc:        "per-resource soft:hard rlimit overrides",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "bind",
		Kind:        value.KindBindList,
		Desc:        "bind mounts exposed to the payload",
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "net",
		Kind:        value.KindNetConfig,
		Desc:        "network configuration materialised as a tc projection",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "net_guarantee",
		Kind:        value.KindUint,
		Desc:        "guaranteed tc class rate, in bytes/s",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "0" },
		StrictParse: true,
	})
	r.Register(&value.Descriptor{
		Name:        "net_ceil",
		Kind:        value.KindUint,
		Desc:        "tc class ceiling rate, in bytes/s",
		Flags:       value.ParentDefault,
		Writable:    []value.State{value.StateStopped},
		Default:     func() string { return "0" },
		StrictParse: true,
	})

	return r
}

// NewDataSet builds the read-only data registry: descriptors the
// container updates itself (via SetRaw) as its lifecycle progresses,
// never through a client Set. StrictParse is false throughout, per
// SPEC_FULL.md §6.1 — a malformed data slot should read back as a zero
// value and a log line, not fail the whole getdata call.
func NewDataSet() *value.Registry {
	r := value.NewRegistry()

	r.Register(&value.Descriptor{
		Name:    "state",
		Kind:    value.KindString,
		Desc:    "current lifecycle state",
		Default: func() string { return value.StateStopped.String() },
	})
	r.Register(&value.Descriptor{
		Name:    "root_pid",
		Kind:    value.KindInt,
		Desc:    "payload pid, 0 if not running",
		Default: func() string { return "0" },
	})
	r.Register(&value.Descriptor{
		Name:    "exit_status",
		Kind:    value.KindInt,
		Desc:    "payload exit status from the last run",
		Default: func() string { return "0" },
	})
	r.Register(&value.Descriptor{
		Name:    "memory_usage",
		Kind:    value.KindUint,
		Desc:    "memory.usage_in_bytes as of the last stat",
		Default: func() string { return "0" },
	})
	r.Register(&value.Descriptor{
		Name:    "cpu_usage",
		Kind:    value.KindUint,
		Desc:    "cpuacct.usage as of the last stat, in nanoseconds",
		Default: func() string { return "0" },
	})

	return r
}
