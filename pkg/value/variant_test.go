package value

import "testing"

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "memory_limit",
		Kind:        KindUint,
		Flags:       ParentDefault,
		Default:     func() string { return "0" },
		StrictParse: true,
	})
	r.Register(&Descriptor{
		Name:  "hidden_thing",
		Kind:  KindString,
		Flags: Hidden,
		Default: func() string {
			return ""
		},
	})
	r.Register(&Descriptor{
		Name:    "cpu_limit",
		Kind:    KindUint,
		Default: func() string { return "100" },
		Writable: []State{StateStopped},
	})
	return r
}

func TestIsDefaultAndSet(t *testing.T) {
	r := newTestRegistry()
	vs := NewVariantSet(r)

	def, err := vs.IsDefault("memory_limit")
	if err != nil || !def {
		t.Fatalf("expected default slot, got def=%v err=%v", def, err)
	}

	if err := vs.Set("memory_limit", "1G"); err != nil {
		t.Fatalf("set: %v", err)
	}
	def, _ = vs.IsDefault("memory_limit")
	if def {
		t.Fatalf("expected explicit slot after Set")
	}
	raw, err := vs.GetRaw("memory_limit")
	if err != nil || raw != "1G" {
		t.Fatalf("get_raw = %q, %v", raw, err)
	}
}

func TestParentDefaultInheritance(t *testing.T) {
	r := newTestRegistry()
	parent := NewVariantSet(r)
	child := NewVariantSet(r)
	child.SetParent(parent)

	if err := parent.Set("memory_limit", "1G"); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	def, err := child.IsDefault("memory_limit")
	if err != nil || !def {
		t.Fatalf("expected child default slot, got def=%v err=%v", def, err)
	}

	got, err := child.GetUint("memory_limit")
	if err != nil {
		t.Fatalf("get_uint: %v", err)
	}
	want, _ := ParseSize("1G")
	if got != uint64(want) {
		t.Fatalf("child inherited %d, want %d", got, want)
	}

	// get_raw never walks the parent chain.
	raw, err := child.GetRaw("memory_limit")
	if err != nil || raw != "0" {
		t.Fatalf("get_raw should ignore parent, got %q, %v", raw, err)
	}
}

func TestTypedAccessorSwallowsNonStrict(t *testing.T) {
	r := NewRegistry()
	r.Register(&Descriptor{
		Name:        "loose",
		Kind:        KindUint,
		Default:     func() string { return "0" },
		StrictParse: false,
	})
	vs := NewVariantSet(r)
	if err := vs.SetRaw("loose", "not-a-number"); err != nil {
		t.Fatalf("set_raw: %v", err)
	}
	v, err := vs.GetUint("loose")
	if err != nil {
		t.Fatalf("expected swallowed error, got %v", err)
	}
	if v != 0 {
		t.Fatalf("expected zero value, got %d", v)
	}
}

func TestTypedAccessorSurfacesStrict(t *testing.T) {
	r := newTestRegistry()
	vs := NewVariantSet(r)
	if err := vs.SetRaw("memory_limit", "not-a-number"); err != nil {
		t.Fatalf("set_raw: %v", err)
	}
	if _, err := vs.GetUint("memory_limit"); err == nil {
		t.Fatalf("expected strict parse error")
	}
}

func TestVisibleNamesExcludesHidden(t *testing.T) {
	r := newTestRegistry()
	names := r.VisibleNames()
	for _, n := range names {
		if n == "hidden_thing" {
			t.Fatalf("hidden descriptor leaked into VisibleNames: %v", names)
		}
	}
}

func TestStructuredKindsRoundTrip(t *testing.T) {
	rl, err := ParseRlimitMap("NOFILE=1024:4096;NPROC=512:512")
	if err != nil {
		t.Fatalf("parse rlimit: %v", err)
	}
	if rl["NOFILE"].Soft != 1024 || rl["NOFILE"].Hard != 4096 {
		t.Fatalf("unexpected rlimit: %+v", rl)
	}
	back := formatRlimitMap(rl)
	rl2, err := ParseRlimitMap(back)
	if err != nil || len(rl2) != len(rl) {
		t.Fatalf("round trip failed: %v %v", rl2, err)
	}

	binds, err := ParseBindList("/src:/dst:ro;/a:/b")
	if err != nil {
		t.Fatalf("parse binds: %v", err)
	}
	if len(binds) != 2 || !binds[0].ReadOnly || binds[1].ReadOnly {
		t.Fatalf("unexpected binds: %+v", binds)
	}
	if formatBindList(binds) == "" {
		t.Fatalf("expected non-empty formatted bind list")
	}

	nc, err := ParseNetConfig("bridge=portod0,ip=dhcp,mtu=1500")
	if err != nil {
		t.Fatalf("parse net config: %v", err)
	}
	if nc.Bridge != "portod0" || nc.IP != "dhcp" || nc.MTU != 1500 {
		t.Fatalf("unexpected net config: %+v", nc)
	}
	if formatNetConfig(nc) == "" {
		t.Fatalf("expected non-empty formatted net config")
	}
}

func TestWritableStates(t *testing.T) {
	r := newTestRegistry()
	vs := NewVariantSet(r)
	ok, err := vs.Writable("cpu_limit", StateStopped)
	if err != nil || !ok {
		t.Fatalf("expected writable while stopped: %v %v", ok, err)
	}
	ok, err = vs.Writable("cpu_limit", StateRunning)
	if err != nil || ok {
		t.Fatalf("expected not writable while running: %v %v", ok, err)
	}
}
