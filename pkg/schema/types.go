// Package schema implements Karabo's Schema: a Hash carrying reserved
// attributes that describe contract rather than content — node kind,
// value kind, access mode, constraints, and state/access-level filters.
package schema

import (
	"fmt"
	"strings"

	"github.com/newtron-network/karabo/pkg/state"
)

// NodeType classifies a schema element.
type NodeType string

const (
	NodeTypeLeaf           NodeType = "leaf"
	NodeTypeNode           NodeType = "node"
	NodeTypeListOfNodes    NodeType = "list-of-nodes"
	NodeTypeChoiceOfNodes  NodeType = "choice-of-nodes"
)

// ValueType names one of the primitive value kinds a leaf may carry.
type ValueType string

const (
	ValueInt8      ValueType = "INT8"
	ValueInt16     ValueType = "INT16"
	ValueInt32     ValueType = "INT32"
	ValueInt64     ValueType = "INT64"
	ValueUInt8     ValueType = "UINT8"
	ValueUInt16    ValueType = "UINT16"
	ValueUInt32    ValueType = "UINT32"
	ValueUInt64    ValueType = "UINT64"
	ValueFloat     ValueType = "FLOAT"
	ValueDouble    ValueType = "DOUBLE"
	ValueBool      ValueType = "BOOL"
	ValueString    ValueType = "STRING"
	ValueBytes     ValueType = "BYTES"
	ValueTimestamp ValueType = "TIMESTAMP"
	ValueHash      ValueType = "HASH"
)

// AccessMode constrains who may write a leaf and when.
type AccessMode string

const (
	AccessInitOnly      AccessMode = "init-only"
	AccessReconfigurable AccessMode = "reconfigurable"
	AccessReadOnly      AccessMode = "read-only"
)

// Assignment declares whether a leaf must be supplied at construction.
type Assignment string

const (
	AssignmentOptional  Assignment = "optional"
	AssignmentMandatory Assignment = "mandatory"
	AssignmentInternal  Assignment = "internal"
)

// DisplayType is a UI hint; "Slot" marks a callable command.
type DisplayType string

// InputChannelDisplayType and OutputChannelDisplayType mark a node
// element as a pipeline channel endpoint (an InputChannel/OutputChannel)
// rather than a plain grouping node.
const (
	InputChannelDisplayType  DisplayType = "InputChannel"
	OutputChannelDisplayType DisplayType = "OutputChannel"
)

// SlotDisplayType is the reserved DisplayType value marking a leaf as a
// callable slot rather than a parameter.
const SlotDisplayType DisplayType = "Slot"

// AccessLevel is the totally-ordered operator privilege lattice.
type AccessLevel int

const (
	AccessLevelObserver AccessLevel = iota
	AccessLevelUser
	AccessLevelOperator
	AccessLevelExpert
	AccessLevelAdmin
)

// String renders the access level name.
func (l AccessLevel) String() string {
	switch l {
	case AccessLevelObserver:
		return "observer"
	case AccessLevelUser:
		return "user"
	case AccessLevelOperator:
		return "operator"
	case AccessLevelExpert:
		return "expert"
	case AccessLevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseAccessLevel maps a configuration-file level name (observer, user,
// operator, expert, admin — case-insensitive) to its AccessLevel value.
func ParseAccessLevel(name string) (AccessLevel, error) {
	switch strings.ToLower(name) {
	case "observer":
		return AccessLevelObserver, nil
	case "user":
		return AccessLevelUser, nil
	case "operator":
		return AccessLevelOperator, nil
	case "expert":
		return AccessLevelExpert, nil
	case "admin":
		return AccessLevelAdmin, nil
	default:
		return 0, fmt.Errorf("schema: unknown access level %q", name)
	}
}

// reserved attribute key names, kept unexported so all access to them goes
// through the typed builder/getter methods below.
const (
	attrNodeType       = "nodeType"
	attrValueType      = "valueType"
	attrAccessMode     = "accessMode"
	attrAssignment     = "assignment"
	attrDefaultValue   = "defaultValue"
	attrOptions        = "options"
	attrMinInc         = "minInc"
	attrMaxInc         = "maxInc"
	attrMinExc         = "minExc"
	attrMaxExc         = "maxExc"
	attrMinSize        = "minSize"
	attrMaxSize        = "maxSize"
	attrAllowedStates  = "allowedStates"
	attrAccessLevel    = "requiredAccessLevel"
	attrDisplayType    = "displayType"
	attrAlarmLow       = "alarmLow"
	attrAlarmHigh      = "alarmHigh"
	attrWarnLow        = "warnLow"
	attrWarnHigh       = "warnHigh"
	attrAlarmNeedsAck  = "alarmNeedsAckLow" // base; High variant suffixed
	attrUnit           = "unit"
	attrMetricPrefix   = "metricPrefix"
	attrDisplayedName  = "displayedName"
	attrDescription    = "description"
	attrTags           = "tags"
	attrAlias          = "alias"
)

func allowedStatesFromAttr(v any) state.Set {
	names, _ := v.([]string)
	states := make([]state.State, 0, len(names))
	for _, n := range names {
		states = append(states, state.State(n))
	}
	return state.NewSet(states...)
}
