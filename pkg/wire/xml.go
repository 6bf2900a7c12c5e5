package wire

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/newtron-network/karabo/pkg/schema"
)

// schemaXML / elementXML represent a schema as a flat list of elements
// carrying their path and attributes, rather than a deeply nested
// document, so a GUI client can render it as a table without recursive
// descent.
type schemaXML struct {
	XMLName  xml.Name      `xml:"schema"`
	ClassID  string        `xml:"classId,attr"`
	Elements []elementXML  `xml:"element"`
}

type elementXML struct {
	Path          string `xml:"path,attr"`
	NodeType      string `xml:"nodeType,attr,omitempty"`
	ValueType     string `xml:"valueType,attr,omitempty"`
	AccessMode    string `xml:"accessMode,attr,omitempty"`
	DisplayedName string `xml:"displayedName,attr,omitempty"`
	Description   string `xml:"description,attr,omitempty"`
	DisplayType   string `xml:"displayType,attr,omitempty"`
	Unit          string `xml:"unit,attr,omitempty"`
}

// EncodeSchemaXML renders s as a pretty-printed XML document for GUI /
// karabo-ctl schema-dump consumption.
func EncodeSchemaXML(s *schema.Schema) ([]byte, error) {
	doc := schemaXML{ClassID: s.ClassID}
	for _, path := range s.Paths() {
		el := elementXML{Path: path}
		if nt, ok := s.NodeType(path); ok {
			el.NodeType = string(nt)
		}
		if vt, ok := s.ValueType(path); ok {
			el.ValueType = string(vt)
		}
		if am, ok := s.AccessMode(path); ok {
			el.AccessMode = string(am)
		}
		if dn, ok := s.DisplayedName(path); ok {
			el.DisplayedName = dn
		}
		if d, ok := s.Description(path); ok {
			el.Description = d
		}
		if dt, ok := s.DisplayType(path); ok {
			el.DisplayType = string(dt)
		}
		if u, ok := s.Unit(path); ok {
			el.Unit = u
		}
		doc.Elements = append(doc.Elements, el)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wire: marshaling schema xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// SchemaSummary renders a compact one-line-per-element text summary,
// used by karabo-ctl's plain (non-jq) schema listing.
func SchemaSummary(s *schema.Schema) string {
	var b strings.Builder
	for _, path := range s.Paths() {
		vt, _ := s.ValueType(path)
		am, _ := s.AccessMode(path)
		fmt.Fprintf(&b, "%-40s %-10s %s\n", path, vt, am)
	}
	return b.String()
}
