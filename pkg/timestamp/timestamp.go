// Package timestamp implements Karabo's Timestamp: an (epoch-seconds,
// attoseconds) pair plus an extrapolated train id derived from the most
// recent time-server tick.
package timestamp

import (
	"fmt"
	"sync"
	"time"
)

const attosecondsPerSecond = 1_000_000_000_000_000_000
const attosecondsPerNano = 1_000_000_000

// Timestamp is a single point in time plus the train id attached to it.
type Timestamp struct {
	Sec            uint64
	Attoseconds    uint64 // 0 <= Attoseconds < 1e18
	TrainID        uint64
}

// Now returns the current wall-clock time as a Timestamp with TrainID 0;
// callers needing an extrapolated train id should use Extrapolator.Actual.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp (TrainID 0).
func FromTime(t time.Time) Timestamp {
	sec := uint64(t.Unix())
	atto := uint64(t.Nanosecond()) * attosecondsPerNano
	return Timestamp{Sec: sec, Attoseconds: atto}
}

// ToTime converts back to a time.Time, dropping sub-nanosecond precision.
func (ts Timestamp) ToTime() time.Time {
	nanos := int64(ts.Attoseconds / attosecondsPerNano)
	return time.Unix(int64(ts.Sec), nanos).UTC()
}

// String renders "sec.attoseconds@trainId".
func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%018d@%d", ts.Sec, ts.Attoseconds, ts.TrainID)
}

// nanosSinceEpoch returns a signed nanosecond count usable for delta math
// between two timestamps that may straddle Attoseconds=0.
func nanosSinceEpoch(sec uint64, atto uint64) int64 {
	return int64(sec)*1_000_000_000 + int64(atto/attosecondsPerNano)
}

// Extrapolator tracks the most recent time-server tick
// (id, sec, frac, period) and extrapolates train ids forward or backward
// from it. It is safe for concurrent use, matching the device runtime's
// m_timeChangeMutex-guarded fields.
//
// The tick period is sometimes described loosely as "microseconds", but
// a 100000-unit period producing a 2500-tick extrapolation over a 250ms
// gap is only arithmetically consistent if the period is
// nanoseconds-per-tick. Period is therefore stored and applied in
// nanoseconds, matching that worked example.
type Extrapolator struct {
	mu      sync.Mutex
	id      uint64
	sec     uint64
	atto    uint64
	period  uint64 // nanoseconds per train tick; 0 means "no extrapolation"
	started bool
}

// NewExtrapolator returns an Extrapolator with no tick received yet.
func NewExtrapolator() *Extrapolator {
	return &Extrapolator{}
}

// Tick records a new time-server tick. For every integer in
// (previous id, id], the device runtime is expected to invoke its
// onTimeUpdate hook once id has actually changed — Tick itself only
// updates state; the caller (pkg/device) is responsible for invoking
// that hook the appropriate number of times using the returned range.
func (e *Extrapolator) Tick(id, sec, atto, periodNanos uint64) (fromExclusive, toInclusive uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fromExclusive = e.id
	if !e.started {
		fromExclusive = id - 1
	}
	e.id = id
	e.sec = sec
	e.atto = atto
	e.period = periodNanos
	e.started = true
	return fromExclusive, id
}

// Actual returns the current wall-clock time extrapolated to a train id.
func (e *Extrapolator) Actual() Timestamp {
	return e.At(time.Now())
}

// At extrapolates the train id for the given wall-clock instant.
func (e *Extrapolator) At(t time.Time) Timestamp {
	ts := FromTime(t)
	return e.Extrapolate(ts)
}

// Extrapolate returns ts with TrainID computed by extending from the last
// received tick using the configured period. If no tick has been received
// yet, TrainID is left at 0.
func (e *Extrapolator) Extrapolate(ts Timestamp) Timestamp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.period == 0 {
		return ts
	}
	deltaNanos := nanosSinceEpoch(ts.Sec, ts.Attoseconds) - nanosSinceEpoch(e.sec, e.atto)
	ticks := deltaNanos / int64(e.period)
	ts.TrainID = uint64(int64(e.id) + ticks)
	return ts
}

// Snapshot returns the four raw fields, for diagnostics and slotGetTime.
func (e *Extrapolator) Snapshot() (id, sec, atto, periodNanos uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id, e.sec, e.atto, e.period
}
