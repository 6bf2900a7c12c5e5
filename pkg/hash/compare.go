package hash

import (
	"bytes"
	"reflect"
	"time"
)

// scalarOrSliceEqual compares two leaf values (scalars, []byte, or
// homogeneous slices of scalars). time.Time is compared with Equal since
// == is unreliable across monotonic-clock readings.
func scalarOrSliceEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ba, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ba, bb)
	}
	return reflect.DeepEqual(a, b)
}

// ValuesEqual reports whether two leaf values are equal under the same
// rules Hash.Equal uses internally. Exported for callers (the device
// runtime's change-detection) that need to compare a candidate value
// against the currently stored one without round-tripping through a
// full Hash.
func ValuesEqual(a, b any) bool {
	return scalarOrSliceEqual(a, b)
}
