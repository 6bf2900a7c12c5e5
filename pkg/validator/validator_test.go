package validator

import (
	"testing"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/state"
)

func testSchema() *schema.Schema {
	s := schema.New("TestDevice")
	s.Key("exposureTime").Leaf(schema.ValueFloat).
		Reconfigurable().
		MinInc(0).
		MaxInc(10).
		AllowedStates(state.State("READY"))
	s.Key("name").Leaf(schema.ValueString).Reconfigurable()
	s.Key("temp").Leaf(schema.ValueFloat).ReadOnly().AlarmHigh(80, true).WarnHigh(60)
	return s
}

func TestValidateRejectsWrongState(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("ACQUIRING"))

	candidate := hash.New()
	candidate.Set("exposureTime", 0.5)

	_, errs, _ := v.Validate(s, candidate)
	if len(errs) == 0 {
		t.Fatalf("expected a state-rejection error")
	}
}

func TestValidateAcceptsInAllowedState(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("READY"))

	candidate := hash.New()
	candidate.Set("exposureTime", 0.5)

	out, errs, _ := v.Validate(s, candidate)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got, _ := out.Get("exposureTime")
	if got != 0.5 {
		t.Fatalf("got %v", got)
	}
}

func TestValidateRejectsReadOnlyExternally(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("READY"))

	candidate := hash.New()
	candidate.Set("temp", 50.0)

	_, errs, _ := v.Validate(s, candidate)
	if len(errs) == 0 {
		t.Fatalf("expected read-only rejection")
	}
}

func TestValidateUnknownKeyErrors(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("READY"))

	candidate := hash.New()
	candidate.Set("bogus", 1)

	_, errs, _ := v.Validate(s, candidate)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
}

func TestValidateBoundsRejected(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("READY"))

	candidate := hash.New()
	candidate.Set("exposureTime", 99.0)

	_, errs, _ := v.Validate(s, candidate)
	if len(errs) == 0 {
		t.Fatalf("expected bounds error")
	}
}

func TestAlarmDeltaAddAndClear(t *testing.T) {
	s := testSchema()
	v := New(ModeInternal, state.State("READY"))

	hot := hash.New()
	hot.Set("temp", 85.0)
	_, _, delta := v.Validate(s, hot)
	if _, ok := delta.ToAdd["temp.alarm"]; !ok {
		t.Fatalf("expected temp.alarm in toAdd, got %+v", delta.ToAdd)
	}

	cool := hash.New()
	cool.Set("temp", 20.0)
	_, _, delta2 := v.Validate(s, cool)
	if _, ok := delta2.ToClear["temp.alarm"]; !ok {
		t.Fatalf("expected temp.alarm in toClear, got %+v", delta2.ToClear)
	}
}

func TestValidateIdempotent(t *testing.T) {
	s := testSchema()
	v := New(ModeExternal, state.State("READY"))

	candidate := hash.New()
	candidate.Set("exposureTime", 1.0)
	candidate.Set("name", "foo")

	once, errs1, _ := v.Validate(s, candidate)
	if len(errs1) != 0 {
		t.Fatalf("unexpected errors: %v", errs1)
	}

	v2 := New(ModeExternal, state.State("READY"))
	twice, errs2, _ := v2.Validate(s, once)
	if len(errs2) != 0 {
		t.Fatalf("unexpected errors on second pass: %v", errs2)
	}
	if !once.Equal(twice) {
		t.Fatalf("validate(S, validate(S,x)) != validate(S,x)")
	}
}

func TestValidateMandatoryMissing(t *testing.T) {
	s := schema.New("TestDevice")
	s.Key("id").Leaf(schema.ValueString).Assignment(schema.AssignmentMandatory)

	applied := hash.New()
	errs := CheckMandatory(s, applied)
	if len(errs) != 1 {
		t.Fatalf("expected one missing-mandatory error, got %v", errs)
	}
}
