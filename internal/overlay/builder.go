package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/google/uuid"
)

var (
	// ErrFieldNotFound is returned when an operation names an unknown overlay id.
	ErrFieldNotFound = errors.New("overlay field not found")
	// ErrPageOutOfRange is returned when a page lies outside 1..PageCount.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrUnknownType is returned when dropping an overlay of an unknown type.
	ErrUnknownType = errors.New("unknown overlay type")
)

// defaultSizes are the unscaled sizes new overlays are dropped with.
var defaultSizes = map[schema.OverlayType]schema.PageSize{
	schema.OverlaySignature: {Width: 90, Height: 34},
	schema.OverlayInitials:  {Width: 45, Height: 34},
	schema.OverlayText:      {Width: 70, Height: 12},
	schema.OverlayDate:      {Width: 70, Height: 12},
	schema.OverlayCheckbox:  {Width: 12, Height: 12},
	schema.OverlayRadio:     {Width: 12, Height: 12},
}

// DefaultSize returns the size a new overlay of type t is created with.
func DefaultSize(t schema.OverlayType) (schema.PageSize, bool) {
	s, ok := defaultSizes[t]
	return s, ok
}

// duplicateOffset is how far a duplicate is moved from its source, in points.
const duplicateOffset = 10.0

// Builder applies editor gestures to a PDF form schema. Positions passed in
// are screen pixels at the builder's scale.
type Builder struct {
	schema *schema.PDFFormSchema
	scale  float64
	newID  func() string
}

// NewBuilder wraps s. s is edited in place.
func NewBuilder(s *schema.PDFFormSchema, scale float64) *Builder {
	if s.Components == nil {
		s.Components = make(map[string]*schema.OverlayField)
	}
	return &Builder{
		schema: s,
		scale:  normalize(scale),
		newID:  func() string { return uuid.New().String() },
	}
}

// Scale returns the scale the builder converts screen values with.
func (b *Builder) Scale() float64 { return b.scale }

// Schema returns the edited schema.
func (b *Builder) Schema() *schema.PDFFormSchema { return b.schema }

// DropRequest creates a new overlay from a palette item.
type DropRequest struct {
	Type     schema.OverlayType    `json:"type"`
	FieldKey string                `json:"fieldKey"`
	Page     int                   `json:"page"`
	X        float64               `json:"x"`
	Y        float64               `json:"y"`
	Custom   *schema.OverlayCustom `json:"custom,omitempty"`
}

// Drop creates an overlay at the drop position with the type's default size.
// The default size is what the user sees on screen, so it is divided by the
// scale like every other screen measurement.
func (b *Builder) Drop(req DropRequest) (*schema.OverlayField, error) {
	size, ok := DefaultSize(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	if err := b.checkPage(req.Page); err != nil {
		return nil, err
	}

	f := &schema.OverlayField{
		ID:       b.newID(),
		Type:     req.Type,
		FieldKey: req.FieldKey,
		Overlay: schema.OverlayRect{
			Page:   req.Page,
			X:      ToStored(req.X, b.scale),
			Y:      ToStored(req.Y, b.scale),
			Width:  clampSize(ToStored(size.Width, b.scale)),
			Height: clampSize(ToStored(size.Height, b.scale)),
		},
	}
	if req.Custom != nil {
		custom := *req.Custom
		f.Custom = &custom
	}
	b.keepOnPage(&f.Overlay)
	b.schema.Components[f.ID] = f
	return f.Clone(), nil
}

// Move repositions an existing overlay, possibly onto another page.
func (b *Builder) Move(id string, page int, x, y float64) (*schema.OverlayField, error) {
	f, err := b.field(id)
	if err != nil {
		return nil, err
	}
	if err := b.checkPage(page); err != nil {
		return nil, err
	}
	f.Overlay.Page = page
	f.Overlay.X = ToStored(x, b.scale)
	f.Overlay.Y = ToStored(y, b.scale)
	b.keepOnPage(&f.Overlay)
	return f.Clone(), nil
}

// Duplicate copies an overlay under a new id, offset down and to the right.
func (b *Builder) Duplicate(id string) (*schema.OverlayField, error) {
	src, err := b.field(id)
	if err != nil {
		return nil, err
	}
	f := src.Clone()
	f.ID = b.newID()
	f.Overlay.X += duplicateOffset
	f.Overlay.Y += duplicateOffset
	b.keepOnPage(&f.Overlay)
	b.schema.Components[f.ID] = f
	return f.Clone(), nil
}

// Delete removes an overlay.
func (b *Builder) Delete(id string) error {
	if _, err := b.field(id); err != nil {
		return err
	}
	delete(b.schema.Components, id)
	return nil
}

// Properties are the property-panel edits. Nil members are left unchanged.
// Width and Height are unscaled points.
type Properties struct {
	FieldKey *string               `json:"fieldKey,omitempty"`
	Type     *schema.OverlayType   `json:"type,omitempty"`
	Custom   *schema.OverlayCustom `json:"custom,omitempty"`
	Width    *float64              `json:"width,omitempty"`
	Height   *float64              `json:"height,omitempty"`
}

// UpdateProperties applies p to the overlay.
func (b *Builder) UpdateProperties(id string, p Properties) (*schema.OverlayField, error) {
	f, err := b.field(id)
	if err != nil {
		return nil, err
	}
	if p.Type != nil {
		if _, ok := DefaultSize(*p.Type); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, *p.Type)
		}
		f.Type = *p.Type
	}
	if p.FieldKey != nil {
		f.FieldKey = *p.FieldKey
	}
	if p.Custom != nil {
		custom := *p.Custom
		f.Custom = &custom
	}
	if p.Width != nil {
		f.Overlay.Width = clampSize(*p.Width)
	}
	if p.Height != nil {
		f.Overlay.Height = clampSize(*p.Height)
	}
	return f.Clone(), nil
}

// Resize is an in-progress corner-handle drag. Drag updates only the local
// buffer; the overlay itself changes once, on Commit.
type Resize struct {
	b      *Builder
	id     string
	width  float64
	height float64
}

// BeginResize starts a resize gesture on the overlay. The buffer starts at the
// overlay's current on-screen size.
func (b *Builder) BeginResize(id string) (*Resize, error) {
	f, err := b.field(id)
	if err != nil {
		return nil, err
	}
	return &Resize{
		b:      b,
		id:     id,
		width:  ToScreen(f.Overlay.Width, b.scale),
		height: ToScreen(f.Overlay.Height, b.scale),
	}, nil
}

// Drag adds a raw pixel delta to the buffered size.
func (r *Resize) Drag(dx, dy float64) {
	r.width += dx
	r.height += dy
}

// Size returns the buffered on-screen size.
func (r *Resize) Size() (width, height float64) {
	return r.width, r.height
}

// Commit writes the buffered size back to the overlay, converted to points
// and clamped to MinSize.
func (r *Resize) Commit() (*schema.OverlayField, error) {
	f, err := r.b.field(r.id)
	if err != nil {
		return nil, err
	}
	f.Overlay.Width = clampSize(ToStored(r.width, r.b.scale))
	f.Overlay.Height = clampSize(ToStored(r.height, r.b.scale))
	return f.Clone(), nil
}

func (b *Builder) field(id string) (*schema.OverlayField, error) {
	f, ok := b.schema.Components[id]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	return f, nil
}

func (b *Builder) checkPage(page int) error {
	if page < 1 || page > b.schema.PageCount {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, b.schema.PageCount)
	}
	return nil
}

// keepOnPage stops an overlay from starting off the page. When the page size
// is known the overlay is pulled back inside its right and bottom edges too.
func (b *Builder) keepOnPage(r *schema.OverlayRect) {
	if size, ok := b.schema.PageSize(r.Page); ok {
		r.X = math.Min(r.X, size.Width-r.Width)
		r.Y = math.Min(r.Y, size.Height-r.Height)
	}
	r.X = math.Max(r.X, 0)
	r.Y = math.Max(r.Y, 0)
}

func clampSize(v float64) float64 {
	if math.IsNaN(v) || v < MinSize {
		return MinSize
	}
	return v
}
