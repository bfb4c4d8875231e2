package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformed wraps every parse failure of a template document.
var ErrMalformed = errors.New("malformed template")

// Format is the serialization of a template document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Decode parses a template document and validates it. The returned Report lists
// everything that was quarantined or looks suspicious; the template itself only
// contains entries the stepper can safely navigate.
func Decode(data []byte, format Format) (*Template, *Report, error) {
	var t Template
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to parse template yaml: %v", ErrMalformed, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&t); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to parse template json: %v", ErrMalformed, err)
		}
	}

	report := Sanitize(&t)
	return &t, report, nil
}

// DecodePages parses the JSON pages column of a stored template.
func DecodePages(data []byte) ([]Page, *Report, error) {
	if len(data) == 0 {
		return nil, &Report{}, nil
	}
	var pages []Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse template pages: %v", ErrMalformed, err)
	}
	t := Template{Pages: pages}
	report := Sanitize(&t)
	return t.Pages, report, nil
}

// DecodePDFFormSchema parses the JSON overlay column of a stored template. An
// empty column yields an empty schema.
func DecodePDFFormSchema(data []byte) (*PDFFormSchema, error) {
	s := NewPDFFormSchema(0)
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse pdf form schema: %w", err)
	}
	if s.Components == nil {
		s.Components = make(map[string]*OverlayField)
	}
	return s, nil
}
