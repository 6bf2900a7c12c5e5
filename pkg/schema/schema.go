package schema

import (
	"fmt"

	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/state"
)

// Filter restricts which elements FilteredPaths lists, by accessMode
// and/or current device state.
type Filter struct {
	// Mode, if non-empty, restricts the listing to elements whose
	// accessMode matches (READ -> read-only, WRITE -> reconfigurable,
	// INIT -> init-only). Empty means unfiltered.
	Mode AccessMode
	// State, if non-empty, restricts the listing to elements whose
	// allowedStates (if any) contains State.
	State state.State
}

// Schema is a Hash carrying reserved descriptor attributes. The zero value
// is not usable; construct with New.
type Schema struct {
	ClassID string
	h       *hash.Hash
	filter  Filter
}

// New returns an empty Schema for the given class id.
func New(classID string) *Schema {
	return &Schema{ClassID: classID, h: hash.New()}
}

// WithFilter returns a shallow copy of s whose FilteredPaths applies
// filter (element builders do not consult it). Used to produce the state-dependent schema views the device
// runtime caches per current state.
func (s *Schema) WithFilter(filter Filter) *Schema {
	return &Schema{ClassID: s.ClassID, h: s.h, filter: filter}
}

// Hash exposes the underlying descriptor tree (read-only by convention;
// callers should go through Validator/Device rather than mutate it
// directly once frozen).
func (s *Schema) Hash() *hash.Hash { return s.h }

// Has reports whether path has an element.
func (s *Schema) Has(path string) bool { return s.h.Has(path) }

// Paths returns every leaf element path in declaration order. A Node
// element is listed only while it has no children; once children are
// declared under it, only their paths appear.
func (s *Schema) Paths() []string { return s.h.Paths() }

func (s *Schema) passesFilter(path string) bool {
	if s.filter.Mode != "" {
		mode, _ := s.AccessMode(path)
		if mode != s.filter.Mode {
			return false
		}
	}
	if s.filter.State != "" {
		allowed, _ := s.AllowedStates(path)
		if !allowed.Allows(s.filter.State) {
			return false
		}
	}
	return true
}

// FilteredPaths returns the leaf paths that pass the schema's active
// filter (see WithFilter).
func (s *Schema) FilteredPaths() []string {
	var out []string
	for _, p := range s.Paths() {
		if s.passesFilter(p) {
			out = append(out, p)
		}
	}
	return out
}

// --- typed attribute accessors -------------------------------------------------

func (s *Schema) strAttr(path, key string) (string, bool) {
	v, ok := s.h.GetAttribute(path, key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// NodeType returns the element's node kind.
func (s *Schema) NodeType(path string) (NodeType, bool) {
	v, ok := s.strAttr(path, attrNodeType)
	return NodeType(v), ok
}

// ValueType returns the leaf's primitive value kind.
func (s *Schema) ValueType(path string) (ValueType, bool) {
	v, ok := s.strAttr(path, attrValueType)
	return ValueType(v), ok
}

// AccessMode returns the leaf's access mode.
func (s *Schema) AccessMode(path string) (AccessMode, bool) {
	v, ok := s.strAttr(path, attrAccessMode)
	return AccessMode(v), ok
}

// Assignment returns the leaf's assignment requirement.
func (s *Schema) Assignment(path string) (Assignment, bool) {
	v, ok := s.strAttr(path, attrAssignment)
	return Assignment(v), ok
}

// DefaultValue returns the leaf's configured default, if any.
func (s *Schema) DefaultValue(path string) (any, bool) {
	return s.h.GetAttribute(path, attrDefaultValue)
}

// Options returns the leaf's enumerated legal values.
func (s *Schema) Options(path string) ([]any, bool) {
	v, ok := s.h.GetAttribute(path, attrOptions)
	if !ok {
		return nil, false
	}
	opts, ok := v.([]any)
	return opts, ok
}

// AllowedStates returns the set of states in which the leaf may be
// written / the slot may be called. Empty means always allowed.
func (s *Schema) AllowedStates(path string) (state.Set, bool) {
	v, ok := s.h.GetAttribute(path, attrAllowedStates)
	if !ok {
		return state.Set{}, false
	}
	return allowedStatesFromAttr(v), true
}

// RequiredAccessLevel returns the minimum operator privilege needed.
func (s *Schema) RequiredAccessLevel(path string) (AccessLevel, bool) {
	v, ok := s.h.GetAttribute(path, attrAccessLevel)
	if !ok {
		return AccessLevelObserver, false
	}
	lvl, ok := v.(AccessLevel)
	return lvl, ok
}

// DisplayType returns the UI display-type hint.
func (s *Schema) DisplayType(path string) (DisplayType, bool) {
	v, ok := s.strAttr(path, attrDisplayType)
	return DisplayType(v), ok
}

// IsSlot reports whether path is a callable command rather than a
// parameter (DisplayType == "Slot").
func (s *Schema) IsSlot(path string) bool {
	dt, ok := s.DisplayType(path)
	return ok && dt == SlotDisplayType
}

// ChannelPaths returns every node path tagged as an InputChannel or
// OutputChannel, in schema order, so the device runtime can (re)create
// channel objects after schema injection.
func (s *Schema) ChannelPaths() (inputs, outputs []string) {
	for _, path := range s.Paths() {
		dt, ok := s.DisplayType(path)
		if !ok {
			continue
		}
		switch dt {
		case InputChannelDisplayType:
			inputs = append(inputs, path)
		case OutputChannelDisplayType:
			outputs = append(outputs, path)
		}
	}
	return inputs, outputs
}

// Bounds holds the four optional numeric range attributes.
type Bounds struct {
	MinInc, MaxInc, MinExc, MaxExc *float64
}

// NumericBounds returns the leaf's min/max constraints.
func (s *Schema) NumericBounds(path string) Bounds {
	get := func(key string) *float64 {
		v, ok := s.h.GetAttribute(path, key)
		if !ok {
			return nil
		}
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		return &f
	}
	return Bounds{
		MinInc: get(attrMinInc),
		MaxInc: get(attrMaxInc),
		MinExc: get(attrMinExc),
		MaxExc: get(attrMaxExc),
	}
}

// SizeBounds returns the leaf's min/max element-count constraints for
// sequence-valued leaves.
func (s *Schema) SizeBounds(path string) (minSize, maxSize *int) {
	get := func(key string) *int {
		v, ok := s.h.GetAttribute(path, key)
		if !ok {
			return nil
		}
		i, ok := v.(int)
		if !ok {
			return nil
		}
		return &i
	}
	return get(attrMinSize), get(attrMaxSize)
}

// AlarmThresholds returns the leaf's alarm/warn bounds, nil where unset.
type AlarmThresholds struct {
	AlarmLow, AlarmHigh, WarnLow, WarnHigh *float64
	NeedsAckLow, NeedsAckHigh              bool
}

// Alarms returns the leaf's alarm-range configuration.
func (s *Schema) Alarms(path string) AlarmThresholds {
	get := func(key string) *float64 {
		v, ok := s.h.GetAttribute(path, key)
		if !ok {
			return nil
		}
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		return &f
	}
	needsAck := func(key string) bool {
		v, ok := s.h.GetAttribute(path, key)
		if !ok {
			return false
		}
		b, _ := v.(bool)
		return b
	}
	return AlarmThresholds{
		AlarmLow:      get(attrAlarmLow),
		AlarmHigh:     get(attrAlarmHigh),
		WarnLow:       get(attrWarnLow),
		WarnHigh:      get(attrWarnHigh),
		NeedsAckLow:   needsAck(attrAlarmNeedsAck + "Low"),
		NeedsAckHigh:  needsAck(attrAlarmNeedsAck + "High"),
	}
}

// DisplayedName returns the element's human-readable name.
func (s *Schema) DisplayedName(path string) (string, bool) { return s.strAttr(path, attrDisplayedName) }

// Description returns the element's description.
func (s *Schema) Description(path string) (string, bool) { return s.strAttr(path, attrDescription) }

// Unit returns the element's physical unit, if any.
func (s *Schema) Unit(path string) (string, bool) { return s.strAttr(path, attrUnit) }

// Merge appends every element of other into s (used to build a device's
// full schema from static + injected schemas). Later elements win on
// path collision, matching Hash.Merge's leaf-overwrite semantics.
func (s *Schema) Merge(other *Schema) {
	if other == nil {
		return
	}
	s.h.Merge(other.h, hash.ReplaceAttributes)
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	return &Schema{ClassID: s.ClassID, h: s.h.Clone(), filter: s.filter}
}

// OverwriteElement locates an existing path and returns an ElementBuilder
// scoped to it for replacing selected attributes only — it does not
// reset attributes that the caller doesn't touch. Errors if path does
// not already exist.
func (s *Schema) OverwriteElement(path string) (*ElementBuilder, error) {
	if !s.h.Has(path) {
		return nil, fmt.Errorf("schema: OVERWRITE_ELEMENT: %q does not exist", path)
	}
	return &ElementBuilder{schema: s, path: path}, nil
}
