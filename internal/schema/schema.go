// Package schema defines the static shape of a form template: ordered pages, the
// fields on each page, page visibility rules, and the PDF overlay components that
// position values on a rendered PDF.
//
// Templates arrive as JSON (stored in Postgres) or YAML (import files). Decoding
// validates the tree once, at load time, so the stepper never sees unknown field
// types or pages it cannot address.
package schema

import "strings"

// FieldType identifies the kind of input a field renders as.
type FieldType string

const (
	FieldText        FieldType = "textfield"
	FieldTextArea    FieldType = "textarea"
	FieldNumber      FieldType = "number"
	FieldCurrency    FieldType = "currency"
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phoneNumber"
	FieldDateTime    FieldType = "datetime"
	FieldCheckbox    FieldType = "checkbox"
	FieldRadio       FieldType = "radio"
	FieldSelect      FieldType = "select"
	FieldSelectBoxes FieldType = "selectboxes"
	FieldSignature   FieldType = "signature"
	FieldDataGrid    FieldType = "datagrid"
	FieldPanel       FieldType = "panel"
	FieldContent     FieldType = "content"
)

var knownFieldTypes = map[FieldType]bool{
	FieldText:        true,
	FieldTextArea:    true,
	FieldNumber:      true,
	FieldCurrency:    true,
	FieldEmail:       true,
	FieldPhone:       true,
	FieldDateTime:    true,
	FieldCheckbox:    true,
	FieldRadio:       true,
	FieldSelect:      true,
	FieldSelectBoxes: true,
	FieldSignature:   true,
	FieldDataGrid:    true,
	FieldPanel:       true,
	FieldContent:     true,
}

// Known reports whether t is a field type the renderer understands.
func (t FieldType) Known() bool {
	return knownFieldTypes[t]
}

// IsContainer reports whether fields of this type hold nested components.
func (t FieldType) IsContainer() bool {
	return t == FieldDataGrid || t == FieldPanel
}

// IsChoice reports whether the field picks from a fixed set of values.
func (t FieldType) IsChoice() bool {
	switch t {
	case FieldCheckbox, FieldRadio, FieldSelect, FieldSelectBoxes:
		return true
	}
	return false
}

// Option is one selectable value of a radio, select or selectboxes field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Field is a single input on a page. Container fields (datagrid, panel) carry
// their children in Components.
type Field struct {
	Key          string    `json:"key" yaml:"key"`
	Type         FieldType `json:"type" yaml:"type"`
	Label        string    `json:"label" yaml:"label"`
	Required     bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options      []Option  `json:"options,omitempty" yaml:"options,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Components   []Field   `json:"components,omitempty" yaml:"components,omitempty"`
}

// OptionLabel returns the label for value, or value itself when no option matches.
func (f Field) OptionLabel(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Conditional gates a page on the boolean value of one field.
type Conditional struct {
	When string `json:"when" yaml:"when"`
}

// Page is one step of the stepper.
type Page struct {
	Key         string       `json:"key" yaml:"key"`
	Title       string       `json:"title" yaml:"title"`
	Fields      []Field      `json:"fields" yaml:"fields"`
	Conditional *Conditional `json:"conditional,omitempty" yaml:"conditional,omitempty"`
}

// GatingKey returns the field key this page is gated on. A page without a
// conditional, or with an empty "when", is unconditionally visible and returns
// ok=false.
func (p Page) GatingKey() (key string, ok bool) {
	if p.Conditional == nil || p.Conditional.When == "" {
		return "", false
	}
	return LastSegment(p.Conditional.When), true
}

// Template is the authored, ordered set of pages for one data-collection purpose.
type Template struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Pages         []Page         `json:"pages" yaml:"pages"`
	PDFFormSchema *PDFFormSchema `json:"pdfFormSchema,omitempty" yaml:"pdfFormSchema,omitempty"`
}

// KeySet is a set of field keys.
type KeySet map[string]struct{}

// Has reports whether key (or its last path segment) is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[LastSegment(key)]
	return ok
}

// ConditionalKeys returns the last segments of every page's gating key.
func ConditionalKeys(pages []Page) KeySet {
	keys := make(KeySet)
	for _, p := range pages {
		if k, ok := p.GatingKey(); ok {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// FieldKeys returns the last segments of every field key in pages, including
// fields nested in containers.
func FieldKeys(pages []Page) KeySet {
	keys := make(KeySet)
	for _, p := range pages {
		collectFieldKeys(p.Fields, keys)
	}
	return keys
}

func collectFieldKeys(fields []Field, keys KeySet) {
	for _, f := range fields {
		if f.Key != "" {
			keys[LastSegment(f.Key)] = struct{}{}
		}
		collectFieldKeys(f.Components, keys)
	}
}

// LastSegment returns the part of a dotted key after the final dot.
//
//	LastSegment("spouse.hasSpouse") == "hasSpouse"
func LastSegment(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}
