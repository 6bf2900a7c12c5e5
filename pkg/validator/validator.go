// Package validator implements Karabo's Validator: schema-driven
// coercion and constraint checking of a candidate Hash, producing a
// validated Hash plus an alarm delta.
package validator

import (
	"fmt"
	"reflect"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/karerrors"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/state"
)

// Mode selects which accessMode a leaf must satisfy to be writable
// through this Validator — the device runtime keeps one Validator per
// mode (internal "set" calls bypass accessMode, external "reconfigure"
// calls enforce it).
type Mode int

const (
	// ModeInternal accepts writes to any accessMode (used for the
	// device's own internal parameter updates).
	ModeInternal Mode = iota
	// ModeExternal accepts only schema.AccessReconfigurable and
	// schema.AccessInitOnly leaves (the latter only when AllowInitOnly
	// is set — used at construction time).
	ModeExternal
)

// AlarmSeverity names the two alarm-range crossing kinds.
type AlarmSeverity string

const (
	SeverityWarn  AlarmSeverity = "WARN"
	SeverityAlarm AlarmSeverity = "ALARM"
)

// AlarmEntry is one element of a Delta's toAdd/toClear maps, keyed by
// "path.alarmType" where alarmType is "alarm" or "warn" (e.g.
// "temp.alarm").
type AlarmEntry struct {
	Severity AlarmSeverity
	Value    float64
}

// Delta is the per-validation alarm delta: paths whose value newly
// crosses into an alarm/warn range (ToAdd) and paths that left one
// (ToClear). It is always produced, even when validation fails, so the
// device runtime can still react to crossed thresholds on a partially
// applied config — a Validator call always yields a delta.
type Delta struct {
	ToAdd   map[string]AlarmEntry
	ToClear map[string]AlarmEntry
}

func newDelta() *Delta {
	return &Delta{ToAdd: map[string]AlarmEntry{}, ToClear: map[string]AlarmEntry{}}
}

// Validator validates candidate Hashes against a Schema.
type Validator struct {
	Mode          Mode
	AllowInitOnly bool
	CurrentState  state.State

	// prevAlarms tracks which alarm keys were active as of the last
	// call, so toClear can be computed incrementally across repeated
	// validations of the same device's parameter stream.
	prevAlarms map[string]AlarmEntry
}

// New returns a Validator in the given mode, evaluated against
// currentState for AllowedStates checks.
func New(mode Mode, currentState state.State) *Validator {
	return &Validator{Mode: mode, CurrentState: currentState, prevAlarms: map[string]AlarmEntry{}}
}

// Validate checks candidate against s, returning a validated Hash
// (coerced values, defaults not injected — defaults are the device
// runtime's job at construction) plus any errors and the alarm delta.
// A non-empty errors slice means candidate should not be applied.
func (v *Validator) Validate(s *schema.Schema, candidate *hash.Hash) (*hash.Hash, []error, *Delta) {
	var errs []error
	out := hash.New()
	delta := newDelta()

	for _, key := range candidate.Keys() {
		v.validatePath(s, candidate, key, out, &errs, delta)
	}

	v.computeClears(delta)
	return out, errs, delta
}

func (v *Validator) validatePath(s *schema.Schema, candidate *hash.Hash, path string, out *hash.Hash, errs *[]error, delta *Delta) {
	raw, _ := candidate.Get(path)

	if nested, ok := raw.(*hash.Hash); ok {
		if !s.Has(path) {
			*errs = append(*errs, karerrors.NewParameterError(path, "unknown parameter"))
			return
		}
		nt, _ := s.NodeType(path)
		if nt != schema.NodeTypeNode {
			*errs = append(*errs, karerrors.NewParameterError(path, "not a node element"))
			return
		}
		out.Set(path, nested.Clone())
		return
	}

	if !s.Has(path) {
		*errs = append(*errs, karerrors.NewParameterError(path, "unknown parameter"))
		return
	}

	if mode, ok := s.AccessMode(path); ok {
		if v.Mode == ModeExternal {
			switch mode {
			case schema.AccessReconfigurable:
			case schema.AccessInitOnly:
				if !v.AllowInitOnly {
					*errs = append(*errs, karerrors.NewParameterError(path, "init-only parameter cannot be reconfigured"))
					return
				}
			case schema.AccessReadOnly:
				*errs = append(*errs, karerrors.NewParameterError(path, "read-only parameter cannot be set"))
				return
			}
		}
	}

	if allowed, ok := s.AllowedStates(path); ok && !allowed.Allows(v.CurrentState) {
		*errs = append(*errs, karerrors.NewParameterError(path, fmt.Sprintf("not allowed in state %s", v.CurrentState)))
		return
	}

	coerced, err := coerce(s, path, raw)
	if err != nil {
		*errs = append(*errs, karerrors.NewParameterError(path, err.Error()))
		return
	}

	if err := checkOptions(s, path, coerced); err != nil {
		*errs = append(*errs, karerrors.NewParameterError(path, err.Error()))
		return
	}
	if err := checkBounds(s, path, coerced); err != nil {
		*errs = append(*errs, karerrors.NewParameterError(path, err.Error()))
		return
	}
	if err := checkSize(s, path, coerced); err != nil {
		*errs = append(*errs, karerrors.NewParameterError(path, err.Error()))
		return
	}

	out.Set(path, coerced)
	v.evaluateAlarms(s, path, coerced, delta)
}

// computeClears diffs v.prevAlarms against delta.ToAdd: anything active
// before that is not re-added this round has left its range.
func (v *Validator) computeClears(delta *Delta) {
	for key, entry := range v.prevAlarms {
		if _, stillActive := delta.ToAdd[key]; !stillActive {
			delta.ToClear[key] = entry
		}
	}
	next := map[string]AlarmEntry{}
	for key, entry := range delta.ToAdd {
		next[key] = entry
	}
	v.prevAlarms = next
}

// CheckMandatory reports errors for every mandatory leaf in s that is
// absent from applied (used once, at device construction, against the
// fully merged configuration Hash).
func CheckMandatory(s *schema.Schema, applied *hash.Hash) []error {
	var errs []error
	for _, path := range s.Paths() {
		assignment, ok := s.Assignment(path)
		if !ok || assignment != schema.AssignmentMandatory {
			continue
		}
		if !applied.Has(path) {
			errs = append(errs, karerrors.NewParameterError(path, "mandatory parameter not supplied"))
		}
	}
	return errs
}

func coerce(s *schema.Schema, path string, raw any) (any, error) {
	vt, ok := s.ValueType(path)
	if !ok {
		return raw, nil
	}
	switch vt {
	case schema.ValueBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case schema.ValueString:
		if str, ok := raw.(string); ok {
			return str, nil
		}
	case schema.ValueBytes:
		if b, ok := raw.([]byte); ok {
			return b, nil
		}
	case schema.ValueInt8, schema.ValueInt16, schema.ValueInt32, schema.ValueInt64,
		schema.ValueUInt8, schema.ValueUInt16, schema.ValueUInt32, schema.ValueUInt64:
		if i, ok := losslessInt(raw); ok {
			return i, nil
		}
	case schema.ValueFloat, schema.ValueDouble:
		if f, ok := losslessFloat(raw); ok {
			return f, nil
		}
	default:
		return raw, nil
	}
	return nil, fmt.Errorf("value %v (%T) cannot be coerced to %s", raw, raw, vt)
}

func losslessInt(raw any) (int64, bool) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u <= 1<<63-1 {
			return int64(u), true
		}
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

func losslessFloat(raw any) (float64, bool) {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func checkOptions(s *schema.Schema, path string, v any) error {
	opts, ok := s.Options(path)
	if !ok || len(opts) == 0 {
		return nil
	}
	for _, o := range opts {
		if reflect.DeepEqual(o, v) {
			return nil
		}
	}
	return fmt.Errorf("value %v not in allowed options %v", v, opts)
}

func checkBounds(s *schema.Schema, path string, v any) error {
	b := s.NumericBounds(path)
	if b.MinInc == nil && b.MaxInc == nil && b.MinExc == nil && b.MaxExc == nil {
		return nil
	}
	f, ok := losslessFloat(v)
	if !ok {
		return nil
	}
	if b.MinInc != nil && f < *b.MinInc {
		return fmt.Errorf("value %v below minInc %v", f, *b.MinInc)
	}
	if b.MaxInc != nil && f > *b.MaxInc {
		return fmt.Errorf("value %v above maxInc %v", f, *b.MaxInc)
	}
	if b.MinExc != nil && f <= *b.MinExc {
		return fmt.Errorf("value %v at or below minExc %v", f, *b.MinExc)
	}
	if b.MaxExc != nil && f >= *b.MaxExc {
		return fmt.Errorf("value %v at or above maxExc %v", f, *b.MaxExc)
	}
	return nil
}

func checkSize(s *schema.Schema, path string, v any) error {
	minSize, maxSize := s.SizeBounds(path)
	if minSize == nil && maxSize == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	n := rv.Len()
	if minSize != nil && n < *minSize {
		return fmt.Errorf("size %d below minSize %d", n, *minSize)
	}
	if maxSize != nil && n > *maxSize {
		return fmt.Errorf("size %d above maxSize %d", n, *maxSize)
	}
	return nil
}

func evaluateOne(low, high *float64, f float64, severity AlarmSeverity, key string, delta *Delta) {
	if low != nil && f <= *low {
		delta.ToAdd[key] = AlarmEntry{Severity: severity, Value: f}
	}
	if high != nil && f >= *high {
		delta.ToAdd[key] = AlarmEntry{Severity: severity, Value: f}
	}
}

func (v *Validator) evaluateAlarms(s *schema.Schema, path string, value any, delta *Delta) {
	f, ok := losslessFloat(value)
	if !ok {
		return
	}
	a := s.Alarms(path)
	evaluateOne(a.AlarmLow, a.AlarmHigh, f, SeverityAlarm, path+".alarm", delta)
	evaluateOne(a.WarnLow, a.WarnHigh, f, SeverityWarn, path+".warn", delta)
}
