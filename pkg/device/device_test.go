package device

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/karerrors"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/state"
)

func testExpected(s *schema.Schema) {
	s.Key("exposureTime").Leaf(schema.ValueFloat).
		Reconfigurable().
		DefaultValue(1.0).
		AllowedStates(state.State("READY"))
	s.Key("name").Leaf(schema.ValueString).Reconfigurable().DefaultValue("unnamed")
}

func TestReconfigureRejectedByState(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.UpdateState(ctx, state.State("ACQUIRING"))

	candidate := hash.New()
	candidate.Set("exposureTime", 0.5)

	ok, reason, err := d.SlotReconfigure(ctx, "alice", candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection, got success")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty rejection reason")
	}

	snap := d.Snapshot()
	got, _ := snap.Get("exposureTime")
	if got != 1.0 {
		t.Fatalf("expected parameter to remain at default 1.0, got %v", got)
	}
}

func TestReconfigureAppliesInAllowedState(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.UpdateState(ctx, state.State("READY"))

	candidate := hash.New()
	candidate.Set("exposureTime", 0.75)

	ok, _, err := d.SlotReconfigure(ctx, "alice", candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
	snap := d.Snapshot()
	got, _ := snap.Get("exposureTime")
	if got != 0.75 {
		t.Fatalf("got %v", got)
	}
}

func TestSlotReconfigureGuardedByLock(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.UpdateState(ctx, state.State("READY"))

	if got := d.LockedBy(); got != "" {
		t.Fatalf("expected device to start unlocked, got holder %q", got)
	}

	claim := hash.New()
	claim.Set("lockedBy", "alice")
	ok, reason, err := d.SlotReconfigure(ctx, "alice", claim)
	if err != nil || !ok {
		t.Fatalf("expected alice to claim the lock, got ok=%v reason=%q err=%v", ok, reason, err)
	}
	if got := d.LockedBy(); got != "alice" {
		t.Fatalf("expected lockedBy=alice, got %q", got)
	}

	candidate := hash.New()
	candidate.Set("exposureTime", 0.5)

	ok, reason, err = d.SlotReconfigure(ctx, "bob", candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected bob's reconfigure to be rejected while alice holds the lock")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty rejection reason")
	}
	snap := d.Snapshot()
	if got, _ := snap.Get("exposureTime"); got != 1.0 {
		t.Fatalf("expected exposureTime to remain at default 1.0, got %v", got)
	}

	ok, _, err = d.SlotReconfigure(ctx, "alice", candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected alice's own reconfigure to succeed while she holds the lock")
	}

	d.clearLock()
	if got := d.LockedBy(); got != "" {
		t.Fatalf("expected clearLock to reset lockedBy, got %q", got)
	}

	ok, _, err = d.SlotReconfigure(ctx, "bob", candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected bob's reconfigure to succeed once the lock is cleared")
	}
}

func TestSlotReconfigureEmptyHashSuppressesReply(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, reason, err := d.SlotReconfigure(ctx, "alice", hash.New())
	if ok || reason != "" {
		t.Fatalf("expected (false, \"\"), got (%v, %q)", ok, reason)
	}
	if !errors.Is(err, karerrors.ErrSuppressReply) {
		t.Fatalf("expected ErrSuppressReply, got %v", err)
	}
}

func TestAppendSchemaAddsNewParameter(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, "dev1", "TestDevice", nil, testExpected, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delta := schema.New("TestDevice")
	delta.Key("gain").Leaf(schema.ValueFloat).Reconfigurable().DefaultValue(2.0)
	d.AppendSchema(ctx, delta)

	if !d.Schema().Has("gain") {
		t.Fatalf("expected injected schema element to appear in full schema")
	}
}

func TestConstructionRejectsUnknownParameter(t *testing.T) {
	ctx := context.Background()
	config := hash.New()
	config.Set("bogus", 1)

	if _, err := New(ctx, "dev1", "TestDevice", nil, testExpected, config); err == nil {
		t.Fatalf("expected construction to fail on unknown parameter")
	}
}
