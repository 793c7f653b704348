// Package schema describes the widgets of a fillable document and fills in
// missing widget geometry from container fields.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind is the fill semantics of a widget.
type Kind string

const (
	KindText    Kind = "text"
	KindButton  Kind = "button"
	KindChoice  Kind = "choice"
	KindUnknown Kind = "unknown"
)

// Fillable reports whether values can be written to a widget of this kind
// directly. Choice and unknown widgets are treated as containers.
func (k Kind) Fillable() bool {
	return k == KindText || k == KindButton
}

// KindFromFieldType maps an AcroForm FT name to a Kind.
func KindFromFieldType(ft string) Kind {
	switch ft {
	case "Tx":
		return KindText
	case "Btn":
		return KindButton
	case "Ch":
		return KindChoice
	default:
		return KindUnknown
	}
}

// Rect is a widget rectangle in PDF user space: x1, y1, x2, y2.
type Rect [4]float64

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r[2] - r[0] }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r[3] - r[1] }

// PlacedRect is a rectangle on a 0-based page.
type PlacedRect struct {
	PageIndex int  `json:"page_index"`
	Rect      Rect `json:"rect"`
}

// Field is one widget descriptor of an introspected document.
type Field struct {
	ID       string       `json:"id"`
	Kind     Kind         `json:"kind"`
	OnValues []string     `json:"on_values,omitempty"`
	Rects    []PlacedRect `json:"rects"`
}

// Schema is the set of widget descriptors of one document.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Clone returns a deep copy of s.
func (s *Schema) Clone() *Schema {
	out := &Schema{Fields: make([]Field, len(s.Fields))}
	for i, f := range s.Fields {
		c := f
		if f.OnValues != nil {
			c.OnValues = append([]string(nil), f.OnValues...)
		}
		if f.Rects != nil {
			c.Rects = append([]PlacedRect(nil), f.Rects...)
		}
		out.Fields[i] = c
	}
	return out
}

// IDs returns the field ids in schema order.
func (s *Schema) IDs() []string {
	ids := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		ids[i] = f.ID
	}
	return ids
}

// Field returns the descriptor with the given id.
func (s *Schema) Field(id string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	for i := range s.Fields {
		if s.Fields[i].Kind == "" {
			s.Fields[i].Kind = KindUnknown
		}
	}
	return &s, nil
}

// LoadFile reads a schema document from path.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal serializes s as indented JSON.
func Marshal(s *Schema) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
