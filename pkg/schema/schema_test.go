package schema

import (
	"testing"

	"github.com/newtron-network/karabo/pkg/state"
)

func TestLeafElementAttributes(t *testing.T) {
	s := New("TestDevice")
	s.Key("speed").Leaf(ValueFloat).
		DisplayedName("Speed").
		Reconfigurable().
		Assignment(AssignmentOptional).
		DefaultValue(1.0).
		MinInc(0).
		MaxInc(100).
		AllowedStates(state.ON, state.OFF)

	if !s.Has("speed") {
		t.Fatalf("expected speed to exist")
	}
	vt, ok := s.ValueType("speed")
	if !ok || vt != ValueFloat {
		t.Fatalf("got valueType %v", vt)
	}
	mode, _ := s.AccessMode("speed")
	if mode != AccessReconfigurable {
		t.Fatalf("got accessMode %v", mode)
	}
	bounds := s.NumericBounds("speed")
	if bounds.MinInc == nil || *bounds.MinInc != 0 || bounds.MaxInc == nil || *bounds.MaxInc != 100 {
		t.Fatalf("bad bounds: %+v", bounds)
	}
	allowed, ok := s.AllowedStates("speed")
	if !ok || !allowed.Allows(state.ON) || allowed.Allows(state.MOVING) {
		t.Fatalf("bad allowedStates: %+v", allowed)
	}
}

func TestSlotElement(t *testing.T) {
	s := New("TestDevice")
	s.Key("start").Slot().AllowedStates(state.OFF).RequiredAccessLevel(AccessLevelOperator)

	if !s.IsSlot("start") {
		t.Fatalf("expected start to be a slot")
	}
	lvl, ok := s.RequiredAccessLevel("start")
	if !ok || lvl != AccessLevelOperator {
		t.Fatalf("got %v", lvl)
	}
}

func TestNodeElementNesting(t *testing.T) {
	s := New("TestDevice")
	s.Key("motor").Node()
	s.Key("motor.current").Leaf(ValueFloat).ReadOnly()

	nt, ok := s.NodeType("motor")
	if !ok || nt != NodeTypeNode {
		t.Fatalf("got %v", nt)
	}
	if !s.Has("motor.current") {
		t.Fatalf("expected nested leaf to exist")
	}
}

func TestOverwriteElementPreservesUntouchedAttributes(t *testing.T) {
	s := New("TestDevice")
	s.Key("speed").Leaf(ValueFloat).DisplayedName("Speed").MaxInc(100)

	b, err := s.OverwriteElement("speed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.MaxInc(50)

	name, _ := s.DisplayedName("speed")
	if name != "Speed" {
		t.Fatalf("expected untouched displayedName to survive, got %q", name)
	}
	bounds := s.NumericBounds("speed")
	if bounds.MaxInc == nil || *bounds.MaxInc != 50 {
		t.Fatalf("expected overwritten maxInc, got %+v", bounds.MaxInc)
	}
}

func TestOverwriteElementMissingPathErrors(t *testing.T) {
	s := New("TestDevice")
	if _, err := s.OverwriteElement("nope"); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestFilteredPathsByAccessModeAndState(t *testing.T) {
	s := New("TestDevice")
	s.Key("speed").Leaf(ValueFloat).Reconfigurable().AllowedStates(state.ON)
	s.Key("status").Leaf(ValueString).ReadOnly()

	writeView := s.WithFilter(Filter{Mode: AccessReconfigurable, State: state.ON})
	paths := writeView.FilteredPaths()
	if len(paths) != 1 || paths[0] != "speed" {
		t.Fatalf("got %v", paths)
	}

	offView := s.WithFilter(Filter{Mode: AccessReconfigurable, State: state.OFF})
	if len(offView.FilteredPaths()) != 0 {
		t.Fatalf("expected no paths allowed in OFF")
	}
}
