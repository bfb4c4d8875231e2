package schema

// OverlayType is the kind of value an overlay field stamps onto the PDF.
type OverlayType string

const (
	OverlaySignature OverlayType = "signature"
	OverlayInitials  OverlayType = "initials"
	OverlayText      OverlayType = "text"
	OverlayDate      OverlayType = "date"
	OverlayCheckbox  OverlayType = "checkbox"
	OverlayRadio     OverlayType = "radio"
)

// OverlayCustom holds the per-field properties edited in the property panel.
type OverlayCustom struct {
	Signer           string `json:"signer,omitempty" yaml:"signer,omitempty"`
	RadioButtonValue string `json:"radioButtonValue,omitempty" yaml:"radioButtonValue,omitempty"`
	DateFormat       string `json:"dateFormat,omitempty" yaml:"dateFormat,omitempty"`
}

// OverlayRect positions an overlay on a 1-based PDF page, in unscaled PDF points.
type OverlayRect struct {
	Page   int     `json:"page" yaml:"page"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// OverlayField is a positioned marker on a PDF page.
type OverlayField struct {
	ID       string         `json:"id" yaml:"id"`
	Type     OverlayType    `json:"type" yaml:"type"`
	FieldKey string         `json:"fieldKey" yaml:"fieldKey"`
	Custom   *OverlayCustom `json:"custom,omitempty" yaml:"custom,omitempty"`
	Overlay  OverlayRect    `json:"overlay" yaml:"overlay"`
}

// Clone returns a deep copy of f.
func (f *OverlayField) Clone() *OverlayField {
	c := *f
	if f.Custom != nil {
		custom := *f.Custom
		c.Custom = &custom
	}
	return &c
}

// PageSize is the unscaled size of one PDF page in points.
type PageSize struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// PDFFormSchema is the overlay collection of a template, keyed by field id.
type PDFFormSchema struct {
	PDFPath    string                   `json:"pdfPath,omitempty" yaml:"pdfPath,omitempty"`
	PageCount  int                      `json:"pageCount" yaml:"pageCount"`
	PageSizes  []PageSize               `json:"pageSizes,omitempty" yaml:"pageSizes,omitempty"`
	Components map[string]*OverlayField `json:"components" yaml:"components"`
}

// PageSize returns the size of 1-based page, or false when it is not known.
func (s *PDFFormSchema) PageSize(page int) (PageSize, bool) {
	if page < 1 || page > len(s.PageSizes) {
		return PageSize{}, false
	}
	return s.PageSizes[page-1], true
}

// NewPDFFormSchema returns an empty schema for a PDF with pageCount pages.
func NewPDFFormSchema(pageCount int) *PDFFormSchema {
	return &PDFFormSchema{
		PageCount:  pageCount,
		Components: make(map[string]*OverlayField),
	}
}
