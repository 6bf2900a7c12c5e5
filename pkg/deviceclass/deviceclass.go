// Package deviceclass provides the device-server's compiled-in class
// registry and the fallback path for classes described entirely by a
// server configuration document rather than by Go code.
//
// A "real" device class registers an device.ExpectedParameters function
// at init time (see Register); an ad-hoc class — one that only ever
// shows up in a server.yaml's devices[].parameters list — gets its
// schema built on the fly by Generic.
package deviceclass

import (
	"github.com/newtron-network/karabo/pkg/device"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/state"
)

// ParameterSpec describes one schema leaf declaratively, the shape a
// server configuration's YAML document uses for classes that have no
// compiled-in device.ExpectedParameters of their own.
type ParameterSpec struct {
	Path           string   `yaml:"path"`
	ValueType      string   `yaml:"valueType"`
	DisplayedName  string   `yaml:"displayedName,omitempty"`
	Description    string   `yaml:"description,omitempty"`
	AccessMode     string   `yaml:"accessMode,omitempty"`
	Assignment     string   `yaml:"assignment,omitempty"`
	DefaultValue   any      `yaml:"defaultValue,omitempty"`
	AllowedStates  []string `yaml:"allowedStates,omitempty"`
	MinInc         *float64 `yaml:"minInc,omitempty"`
	MaxInc         *float64 `yaml:"maxInc,omitempty"`
	Unit           string   `yaml:"unit,omitempty"`
}

// Registry maps a compiled-in classId to the device.ExpectedParameters
// function that builds its static schema. Concrete device classes call
// Register from an init() in their own package; this package only
// supplies the lookup table and the Generic fallback.
type Registry struct {
	classes map[string]device.ExpectedParameters
}

// NewRegistry returns an empty registry. Device servers build one at
// startup and populate it by importing the concrete device-class
// packages they host (each of which calls Register in its own init()).
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]device.ExpectedParameters)}
}

// Register associates a classId with the function that builds its
// static schema. Safe to call from an init() function.
func (r *Registry) Register(classID string, expected device.ExpectedParameters) {
	r.classes[classID] = expected
}

// Lookup returns the registered ExpectedParameters for classID, or
// false if no compiled-in class matches (the caller should fall back
// to Generic against the configuration's inline parameter list).
func (r *Registry) Lookup(classID string) (device.ExpectedParameters, bool) {
	fn, ok := r.classes[classID]
	return fn, ok
}

// Generic builds a device.ExpectedParameters from a server
// configuration's inline parameter list — the path a device server
// takes for a classId it has no compiled-in schema for. Every spec
// becomes a single schema leaf; unrecognized valueType/accessMode/
// assignment names are stored as given rather than rejected, so a
// misconfigured class still constructs. The validator applies no
// coercion for an unrecognized valueType and no access check for an
// unrecognized accessMode.
func Generic(specs []ParameterSpec) device.ExpectedParameters {
	return func(s *schema.Schema) {
		for _, p := range specs {
			el := s.Key(p.Path).Leaf(schema.ValueType(p.ValueType))
			if p.DisplayedName != "" {
				el.DisplayedName(p.DisplayedName)
			}
			if p.Description != "" {
				el.Description(p.Description)
			}
			if p.AccessMode != "" {
				el.AccessMode(schema.AccessMode(p.AccessMode))
			}
			if p.Assignment != "" {
				el.Assignment(schema.Assignment(p.Assignment))
			}
			if p.DefaultValue != nil {
				el.DefaultValue(p.DefaultValue)
			}
			if len(p.AllowedStates) > 0 {
				states := make([]state.State, len(p.AllowedStates))
				for i, name := range p.AllowedStates {
					states[i] = state.State(name)
				}
				el.AllowedStates(states...)
			}
			if p.MinInc != nil {
				el.MinInc(*p.MinInc)
			}
			if p.MaxInc != nil {
				el.MaxInc(*p.MaxInc)
			}
			if p.Unit != "" {
				el.Unit(p.Unit)
			}
		}
	}
}
