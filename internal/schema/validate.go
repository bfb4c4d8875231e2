package schema

import "fmt"

// IssueKind classifies a problem found while validating a template.
type IssueKind string

const (
	IssueUnknownFieldType  IssueKind = "unknown_field_type"
	IssueMissingFieldKey   IssueKind = "missing_field_key"
	IssueMissingPageKey    IssueKind = "missing_page_key"
	IssueDuplicatePageKey  IssueKind = "duplicate_page_key"
	IssueDanglingCondition IssueKind = "dangling_condition"
	IssueSelfGatedPage     IssueKind = "self_gated_page"
)

// Issue is one validation finding.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	PageKey  string    `json:"pageKey,omitempty"`
	FieldKey string    `json:"fieldKey,omitempty"`
	Detail   string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: page=%q field=%q %s", i.Kind, i.PageKey, i.FieldKey, i.Detail)
}

// Report collects findings. Quarantined entries were removed from the template;
// warnings were left in place.
type Report struct {
	Quarantined []Issue `json:"quarantined,omitempty"`
	Warnings    []Issue `json:"warnings,omitempty"`
}

// Empty reports whether validation found nothing at all.
func (r *Report) Empty() bool {
	return r == nil || (len(r.Quarantined) == 0 && len(r.Warnings) == 0)
}

// All returns quarantined issues followed by warnings.
func (r *Report) All() []Issue {
	if r == nil {
		return nil
	}
	out := make([]Issue, 0, len(r.Quarantined)+len(r.Warnings))
	out = append(out, r.Quarantined...)
	return append(out, r.Warnings...)
}

// Sanitize validates t in place. Fields of unknown type or without a key and
// pages without a unique key are removed; conditions that reference no field in
// the template, or a field on the gated page itself, are reported as warnings.
// Such pages stay in the template and are simply never shown.
func Sanitize(t *Template) *Report {
	report := &Report{}

	seen := make(map[string]bool, len(t.Pages))
	pages := t.Pages[:0]
	for _, p := range t.Pages {
		if p.Key == "" {
			report.Quarantined = append(report.Quarantined, Issue{
				Kind:   IssueMissingPageKey,
				Detail: fmt.Sprintf("page %q has no key", p.Title),
			})
			continue
		}
		if seen[p.Key] {
			report.Quarantined = append(report.Quarantined, Issue{
				Kind:    IssueDuplicatePageKey,
				PageKey: p.Key,
				Detail:  "page key already used by an earlier page",
			})
			continue
		}
		seen[p.Key] = true
		p.Fields = sanitizeFields(p.Key, p.Fields, report)
		pages = append(pages, p)
	}
	t.Pages = pages

	fieldKeys := FieldKeys(t.Pages)
	for _, p := range t.Pages {
		key, ok := p.GatingKey()
		if !ok {
			continue
		}
		if !fieldKeys.Has(key) {
			report.Warnings = append(report.Warnings, Issue{
				Kind:     IssueDanglingCondition,
				PageKey:  p.Key,
				FieldKey: key,
				Detail:   "page is gated on a field that does not exist",
			})
			continue
		}
		own := FieldKeys([]Page{p})
		if own.Has(key) {
			report.Warnings = append(report.Warnings, Issue{
				Kind:     IssueSelfGatedPage,
				PageKey:  p.Key,
				FieldKey: key,
				Detail:   "page is gated on one of its own fields",
			})
		}
	}

	return report
}

func sanitizeFields(pageKey string, fields []Field, report *Report) []Field {
	out := fields[:0]
	for _, f := range fields {
		if !f.Type.Known() {
			report.Quarantined = append(report.Quarantined, Issue{
				Kind:     IssueUnknownFieldType,
				PageKey:  pageKey,
				FieldKey: f.Key,
				Detail:   fmt.Sprintf("field type %q is not supported", f.Type),
			})
			continue
		}
		if f.Key == "" && f.Type != FieldContent && f.Type != FieldPanel {
			report.Quarantined = append(report.Quarantined, Issue{
				Kind:    IssueMissingFieldKey,
				PageKey: pageKey,
				Detail:  fmt.Sprintf("%s field %q has no key", f.Type, f.Label),
			})
			continue
		}
		if f.Type.IsContainer() {
			f.Components = sanitizeFields(pageKey, f.Components, report)
		}
		out = append(out, f)
	}
	return out
}
