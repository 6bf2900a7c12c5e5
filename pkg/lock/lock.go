// Package lock implements Karabo's cooperative distributed device lock:
// a three-step protocol — query the target device's own lockedBy
// property, claim it by reconfiguring that property, then re-verify
// ownership actually stuck — driven over the same SignalSlotable
// request/reply fabric every other device call uses. Grounded on
// core/Lock.cc's lock_impl/unlock_impl (see
// _examples/original_source/src/karabo/core/Lock.cc): the lock is not
// a side-channel key/value store, it is ordinary request/reply traffic
// against the locked device's slotGetConfiguration/slotReconfigure/
// slotClearLock slots.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/karerrors"
)

// DefaultQueryTimeout bounds each of the three request steps; the
// original's lockQueryTimeout defaults to 5s.
const DefaultQueryTimeout = 5 * time.Second

// Lock represents a granted device lock, held over ss against
// deviceId. The zero value is not valid; obtain one via Acquire.
// Release (or losing the race a concurrent Valid check detects) is the
// only way to give it up — there is no local cache of validity besides
// the "released" flag guarding double-release.
type Lock struct {
	ss        *fabric.SignalSlotable
	deviceID  string
	holder    string
	queryTO   time.Duration
	released  bool
}

// DeviceID returns the locked device's id.
func (l *Lock) DeviceID() string { return l.deviceID }

// Holder returns the id that holds this lock.
func (l *Lock) Holder() string { return l.holder }

// Acquire runs the three-step protocol against deviceId over ss,
// claiming the lock as holder:
//  1. request slotGetConfiguration, read lockedBy; fail if held by
//     someone else (recursive allows re-claiming a lock already held
//     by holder itself — core/Lock.cc:68-69).
//  2. request slotReconfigure({lockedBy: holder}).
//  3. request slotGetConfiguration again and verify lockedBy == holder,
//     closing the race window between steps 1 and 2 against a
//     concurrent claimant.
func Acquire(ctx context.Context, ss *fabric.SignalSlotable, deviceID, holder string, recursive bool) (*Lock, error) {
	l := &Lock{ss: ss, deviceID: deviceID, holder: holder, queryTO: DefaultQueryTimeout}

	existing, err := l.lockedBy(ctx)
	if err != nil {
		return nil, &karerrors.LockError{DeviceID: deviceID, Reason: err.Error()}
	}
	if existing != "" && !(recursive && existing == holder) {
		return nil, &karerrors.LockError{DeviceID: deviceID, Reason: fmt.Sprintf("locked by %s", existing)}
	}

	claim := hash.New()
	claim.Set("lockedBy", holder)
	if _, err := ss.Request(ctx, deviceID, "slotReconfigure", claim, l.queryTO); err != nil {
		return nil, &karerrors.LockError{DeviceID: deviceID, Reason: err.Error()}
	}

	got, err := l.lockedBy(ctx)
	if err != nil {
		return nil, &karerrors.LockError{DeviceID: deviceID, Reason: err.Error()}
	}
	if got != holder {
		return nil, &karerrors.LockError{DeviceID: deviceID, Reason: fmt.Sprintf("lost race during re-verification, now locked by %s", got)}
	}

	return l, nil
}

func (l *Lock) lockedBy(ctx context.Context) (string, error) {
	cfg, err := l.ss.Request(ctx, l.deviceID, "slotGetConfiguration", hash.New(), l.queryTO)
	if err != nil {
		return "", err
	}
	v, _ := cfg.Get("lockedBy")
	holder, _ := v.(string)
	return holder, nil
}

// Valid re-queries lockedBy against the device live, returning false if
// the lock has since been stolen, cleared, or released. Not a cached
// flag (core/Lock.cc's valid()).
func (l *Lock) Valid(ctx context.Context) bool {
	if l == nil || l.released {
		return false
	}
	got, err := l.lockedBy(ctx)
	return err == nil && got == l.holder
}

// Release clears the lock via a fire-and-forget slotClearLock call —
// no wait, no reply, matching core/Lock.cc's unlock_impl. Safe to call
// multiple times or on a nil Lock.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	return l.ss.Call(ctx, l.deviceID, "slotClearLock", hash.New())
}
