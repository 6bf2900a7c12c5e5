package deviceclass

import (
	"context"
	"testing"

	"github.com/newtron-network/karabo/pkg/device"
	"github.com/newtron-network/karabo/pkg/schema"
)

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("Unregistered"); ok {
		t.Fatalf("expected no match for an unregistered classId")
	}
}

func TestRegistryLookupHit(t *testing.T) {
	r := NewRegistry()
	r.Register("Camera", func(s *schema.Schema) {
		s.Key("gain").Leaf(schema.ValueDouble).Reconfigurable()
	})
	fn, ok := r.Lookup("Camera")
	if !ok {
		t.Fatalf("expected a match for a registered classId")
	}
	if fn == nil {
		t.Fatalf("expected a non-nil ExpectedParameters function")
	}
}

func TestGenericBuildsUsableSchema(t *testing.T) {
	minInc := 0.0
	maxInc := 1.0
	def := 0.5
	expected := Generic([]ParameterSpec{
		{
			Path:          "exposureTime",
			ValueType:     "DOUBLE",
			DisplayedName: "Exposure Time",
			AccessMode:    "reconfigurable",
			Assignment:    "optional",
			DefaultValue:  def,
			AllowedStates: []string{"READY"},
			MinInc:        &minInc,
			MaxInc:        &maxInc,
			Unit:          "s",
		},
	})

	d, err := device.New(context.Background(), "dev1", "Generic", nil, expected, nil)
	if err != nil {
		t.Fatalf("unexpected error constructing device from a generic schema: %v", err)
	}

	snap := d.Snapshot()
	got, ok := snap.Get("exposureTime")
	if !ok {
		t.Fatalf("expected default value to be seeded from the generic spec")
	}
	if got != def {
		t.Fatalf("expected default 0.5, got %v", got)
	}
}
