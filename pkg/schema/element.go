package schema

import "github.com/newtron-network/karabo/pkg/state"

// ElementBuilder is a fluent builder for one schema element (leaf, node,
// or slot), scoped to a single path within a Schema. Each setter returns
// the builder so calls chain; terminal construction happens implicitly —
// every setter writes straight through to the underlying Hash, matching
// how Karabo's expectedParameters functions build schemas incrementally
// rather than through a deferred commit step.
type ElementBuilder struct {
	schema *Schema
	path   string
}

// Path exposes the element's path.
func (b *ElementBuilder) Path() string { return b.path }

func (b *ElementBuilder) set(key string, value any) *ElementBuilder {
	_ = b.schema.h.SetAttribute(b.path, key, value)
	return b
}

// Key begins (or continues) building the element at path, nested under
// the parent implied by the path's separators. The leaf itself is
// materialized as an empty value so attributes have somewhere to attach;
// callers finish with one of Leaf/Node/Slot to fix its nodeType.
func (s *Schema) Key(path string) *ElementBuilder {
	if !s.h.Has(path) {
		s.h.Set(path, nil)
	}
	return &ElementBuilder{schema: s, path: path}
}

// Leaf marks the element as a LEAF_ELEMENT of the given value type.
func (b *ElementBuilder) Leaf(vt ValueType) *ElementBuilder {
	return b.set(attrNodeType, string(NodeTypeLeaf)).set(attrValueType, string(vt))
}

// Node marks the element as a NODE_ELEMENT — a grouping container whose
// children are declared with further Key calls at nested paths.
func (b *ElementBuilder) Node() *ElementBuilder {
	return b.set(attrNodeType, string(NodeTypeNode))
}

// Slot marks the element as a callable command (DisplayType "Slot") — an
// RPC-callable operation represented as a leaf tagged with a display
// hint rather than a separate element kind.
func (b *ElementBuilder) Slot() *ElementBuilder {
	return b.Leaf(ValueHash).set(attrDisplayType, string(SlotDisplayType))
}

// DisplayedName sets the human-readable label.
func (b *ElementBuilder) DisplayedName(name string) *ElementBuilder {
	return b.set(attrDisplayedName, name)
}

// Description sets the descriptive text.
func (b *ElementBuilder) Description(desc string) *ElementBuilder {
	return b.set(attrDescription, desc)
}

// AccessMode sets whether the element is init-only, reconfigurable, or
// read-only.
func (b *ElementBuilder) AccessMode(m AccessMode) *ElementBuilder {
	return b.set(attrAccessMode, string(m))
}

// InitOnly is shorthand for AccessMode(AccessInitOnly).
func (b *ElementBuilder) InitOnly() *ElementBuilder { return b.AccessMode(AccessInitOnly) }

// Reconfigurable is shorthand for AccessMode(AccessReconfigurable).
func (b *ElementBuilder) Reconfigurable() *ElementBuilder { return b.AccessMode(AccessReconfigurable) }

// ReadOnly is shorthand for AccessMode(AccessReadOnly).
func (b *ElementBuilder) ReadOnly() *ElementBuilder { return b.AccessMode(AccessReadOnly) }

// Assignment sets whether the element is optional/mandatory/internal.
func (b *ElementBuilder) Assignment(a Assignment) *ElementBuilder {
	return b.set(attrAssignment, string(a))
}

// DefaultValue sets the default applied when the element is not supplied
// at construction.
func (b *ElementBuilder) DefaultValue(v any) *ElementBuilder {
	return b.set(attrDefaultValue, v)
}

// Options restricts the leaf to one of the given legal values.
func (b *ElementBuilder) Options(opts ...any) *ElementBuilder {
	return b.set(attrOptions, opts)
}

// MinInc sets an inclusive lower numeric bound.
func (b *ElementBuilder) MinInc(v float64) *ElementBuilder { return b.set(attrMinInc, v) }

// MaxInc sets an inclusive upper numeric bound.
func (b *ElementBuilder) MaxInc(v float64) *ElementBuilder { return b.set(attrMaxInc, v) }

// MinExc sets an exclusive lower numeric bound.
func (b *ElementBuilder) MinExc(v float64) *ElementBuilder { return b.set(attrMinExc, v) }

// MaxExc sets an exclusive upper numeric bound.
func (b *ElementBuilder) MaxExc(v float64) *ElementBuilder { return b.set(attrMaxExc, v) }

// MinSize sets the minimum element count for a sequence-valued leaf.
func (b *ElementBuilder) MinSize(n int) *ElementBuilder { return b.set(attrMinSize, n) }

// MaxSize sets the maximum element count for a sequence-valued leaf.
func (b *ElementBuilder) MaxSize(n int) *ElementBuilder { return b.set(attrMaxSize, n) }

// AllowedStates restricts writes/slot calls to the given device states.
// An empty list means "always allowed" per state.Set's zero value.
func (b *ElementBuilder) AllowedStates(states ...state.State) *ElementBuilder {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return b.set(attrAllowedStates, names)
}

// RequiredAccessLevel sets the minimum operator privilege needed to
// write the leaf or call the slot.
func (b *ElementBuilder) RequiredAccessLevel(level AccessLevel) *ElementBuilder {
	return b.set(attrAccessLevel, level)
}

// DisplayType sets a free-form UI display hint.
func (b *ElementBuilder) DisplayType(dt DisplayType) *ElementBuilder {
	return b.set(attrDisplayType, string(dt))
}

// Unit sets the physical unit label.
func (b *ElementBuilder) Unit(u string) *ElementBuilder { return b.set(attrUnit, u) }

// MetricPrefix sets an SI metric prefix hint (e.g. "milli", "kilo") used
// when rendering Unit.
func (b *ElementBuilder) MetricPrefix(p string) *ElementBuilder { return b.set(attrMetricPrefix, p) }

// AlarmLow sets the low alarm threshold, optionally requiring
// acknowledgement before it auto-clears.
func (b *ElementBuilder) AlarmLow(v float64, needsAck bool) *ElementBuilder {
	b.set(attrAlarmLow, v)
	return b.set(attrAlarmNeedsAck+"Low", needsAck)
}

// AlarmHigh sets the high alarm threshold, optionally requiring
// acknowledgement before it auto-clears.
func (b *ElementBuilder) AlarmHigh(v float64, needsAck bool) *ElementBuilder {
	b.set(attrAlarmHigh, v)
	return b.set(attrAlarmNeedsAck+"High", needsAck)
}

// WarnLow sets the low warning threshold.
func (b *ElementBuilder) WarnLow(v float64) *ElementBuilder { return b.set(attrWarnLow, v) }

// WarnHigh sets the high warning threshold.
func (b *ElementBuilder) WarnHigh(v float64) *ElementBuilder { return b.set(attrWarnHigh, v) }

// Tags attaches free-form classification tags.
func (b *ElementBuilder) Tags(tags ...string) *ElementBuilder { return b.set(attrTags, tags) }

// Alias sets an alternate name used by legacy clients.
func (b *ElementBuilder) Alias(alias string) *ElementBuilder { return b.set(attrAlias, alias) }

// Commit is a no-op provided for readability at call sites that prefer an
// explicit terminal method; every setter above already writes through.
func (b *ElementBuilder) Commit() *ElementBuilder { return b }
