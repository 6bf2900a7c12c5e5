package timestamp

import "testing"

// TestTrainIDExtrapolation feeds a tick at id=100 with period=100000
// (nanoseconds, see Extrapolator doc comment),
// then query 250ms later and expect id 100+2500.
func TestTrainIDExtrapolation(t *testing.T) {
	e := NewExtrapolator()
	e.Tick(100, 1700000000, 0, 100000)

	later := Timestamp{Sec: 1700000000, Attoseconds: 250_000_000 * attosecondsPerNano}
	got := e.Extrapolate(later)

	if got.TrainID != 2600 {
		t.Fatalf("got trainId %d, want 2600 (100 + 2500)", got.TrainID)
	}
}

func TestExtrapolateBeforeAnyTick(t *testing.T) {
	e := NewExtrapolator()
	ts := Timestamp{Sec: 1000, Attoseconds: 0}
	got := e.Extrapolate(ts)
	if got.TrainID != 0 {
		t.Fatalf("expected TrainID 0 with no tick received, got %d", got.TrainID)
	}
}

func TestExtrapolateBackward(t *testing.T) {
	e := NewExtrapolator()
	e.Tick(500, 2000, 0, 1_000_000) // 1ms per tick

	earlier := Timestamp{Sec: 1999, Attoseconds: 0} // 1s earlier = 1000 ticks back
	got := e.Extrapolate(earlier)
	if int64(got.TrainID) != 500-1000 {
		t.Fatalf("got %d, want %d", got.TrainID, int64(500)-1000)
	}
}

func TestFromTimeRoundTrip(t *testing.T) {
	ts := Now()
	back := ts.ToTime()
	roundTripped := FromTime(back)
	if roundTripped.Sec != ts.Sec {
		t.Fatalf("seconds did not round-trip: %d vs %d", roundTripped.Sec, ts.Sec)
	}
}
