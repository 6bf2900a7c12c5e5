package hash

import "testing"

func TestSetGetCompoundPath(t *testing.T) {
	h := New()
	h.Set("a.b.c", int32(42))

	v, ok := h.Get("a.b.c")
	if !ok {
		t.Fatalf("expected a.b.c to resolve")
	}
	if v.(int32) != 42 {
		t.Fatalf("got %v, want 42", v)
	}

	nested, err := h.GetHash("a.b")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if nested.Keys()[0] != "c" {
		t.Fatalf("unexpected nested keys: %v", nested.Keys())
	}
}

func TestOrderingPreserved(t *testing.T) {
	h := New()
	h.Set("z", 1)
	h.Set("a", 2)
	h.Set("m", 3)

	want := []string{"z", "a", "m"}
	got := h.Keys()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEraseRemovesSubtree(t *testing.T) {
	h := New()
	h.Set("a.b.c", "x")
	h.Set("a.b.d", "y")

	if !h.Erase("a.b") {
		t.Fatalf("expected erase to succeed")
	}
	if h.Has("a.b.c") {
		t.Fatalf("expected a.b.c to be gone")
	}
	if h.Has("a") {
		// "a" itself remains as an empty Hash node.
		nested, err := h.GetHash("a")
		if err != nil {
			t.Fatalf("GetHash(a): %v", err)
		}
		if nested.Len() != 0 {
			t.Fatalf("expected a to be empty, got %v", nested.Keys())
		}
	}
}

func TestAttributesUniquePerNode(t *testing.T) {
	h := New()
	h.Set("temp", 3.5)
	if err := h.SetAttribute("temp", "unit", "degC"); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	if err := h.SetAttribute("temp", "unit", "degF"); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	attrs, err := h.Attributes("temp")
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if len(attrs.Keys()) != 1 {
		t.Fatalf("expected exactly one attribute key, got %v", attrs.Keys())
	}
	v, _ := attrs.Get("unit")
	if v != "degF" {
		t.Fatalf("got %v, want degF (last write wins)", v)
	}
}

func TestMergeReplaceLeavesAtomic(t *testing.T) {
	a := New()
	a.Set("x", []int32{1, 2, 3})
	b := New()
	b.Set("x", []int32{9})

	a.Merge(b, ReplaceAttributes)
	v, _ := a.Get("x")
	got := v.([]int32)
	if len(got) != 1 || got[0] != 9 {
		t.Fatalf("expected leaf overwrite, got %v", got)
	}
}

func TestMergeNestedRecursive(t *testing.T) {
	a := New()
	a.Set("dev.interfaces.eth0", "up")
	a.Set("dev.name", "cam1")

	b := New()
	b.Set("dev.interfaces.eth1", "down")

	a.Merge(b, ReplaceAttributes)

	if v, _ := a.Get("dev.name"); v != "cam1" {
		t.Fatalf("expected dev.name preserved, got %v", v)
	}
	if v, _ := a.Get("dev.interfaces.eth0"); v != "up" {
		t.Fatalf("expected dev.interfaces.eth0 preserved, got %v", v)
	}
	if v, _ := a.Get("dev.interfaces.eth1"); v != "down" {
		t.Fatalf("expected dev.interfaces.eth1 merged in, got %v", v)
	}
}

func TestMergeAttributePolicies(t *testing.T) {
	a := New()
	a.Set("x", 1)
	_ = a.SetAttribute("x", "ts", "t0")
	_ = a.SetAttribute("x", "keep", "mine")

	b := New()
	b.Set("x", 2)
	_ = b.SetAttribute("x", "ts", "t1")

	keep := a.Clone()
	keep.Merge(b, KeepAttributes)
	attrs, _ := keep.Attributes("x")
	if v, _ := attrs.Get("ts"); v != "t0" {
		t.Fatalf("KeepAttributes should not overwrite ts, got %v", v)
	}

	replace := a.Clone()
	replace.Merge(b, ReplaceAttributes)
	attrs, _ = replace.Attributes("x")
	if _, ok := attrs.Get("keep"); ok {
		t.Fatalf("ReplaceAttributes should drop unrelated existing attributes")
	}

	merged := a.Clone()
	merged.Merge(b, MergeAttributes)
	attrs, _ = merged.Attributes("x")
	if v, _ := attrs.Get("ts"); v != "t1" {
		t.Fatalf("MergeAttributes should let incoming ts win, got %v", v)
	}
	if v, _ := attrs.Get("keep"); v != "mine" {
		t.Fatalf("MergeAttributes should preserve unrelated attributes, got %v", v)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := New()
	a.Set("a.b", "x")
	clone := a.Clone()
	clone.Set("a.b", "y")

	if v, _ := a.Get("a.b"); v != "x" {
		t.Fatalf("mutating clone affected original: %v", v)
	}
}

func TestDeepEqual(t *testing.T) {
	a := New()
	a.Set("x", int32(1))
	_ = a.SetAttribute("x", "unit", "mm")

	b := a.Clone()
	if !a.DeepEqual(b) {
		t.Fatalf("expected clone to be deep-equal")
	}

	_ = b.SetAttribute("x", "unit", "cm")
	if a.DeepEqual(b) {
		t.Fatalf("expected attribute change to break deep equality")
	}
	if !a.Equal(b) {
		t.Fatalf("expected shallow Equal to ignore attributes")
	}
}

func TestPathsDepthFirst(t *testing.T) {
	h := New()
	h.Set("a.b", 1)
	h.Set("a.c", 2)
	h.Set("d", 3)

	got := h.Paths()
	want := []string{"a.b", "a.c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
