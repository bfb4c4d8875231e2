package overlay

import (
	"fmt"
	"io"

	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFInfo describes an uploaded PDF.
type PDFInfo struct {
	PageCount int
	PageSizes []schema.PageSize
}

// InspectPDF reads the page count and page sizes of a PDF. Validation is
// relaxed so that slightly malformed PDFs from scanners still load.
func InspectPDF(rs io.ReadSeeker) (*PDFInfo, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	info := &PDFInfo{PageCount: ctx.PageCount}
	for _, d := range dims {
		info.PageSizes = append(info.PageSizes, schema.PageSize{Width: d.Width, Height: d.Height})
	}
	return info, nil
}

// Apply records the page layout in s and drops overlays whose page no longer
// exists. It returns the ids of the removed overlays.
func (info *PDFInfo) Apply(s *schema.PDFFormSchema) []string {
	s.PageCount = info.PageCount
	s.PageSizes = info.PageSizes

	var removed []string
	for id, f := range s.Components {
		if f.Overlay.Page < 1 || f.Overlay.Page > info.PageCount {
			delete(s.Components, id)
			removed = append(removed, id)
		}
	}
	return removed
}
