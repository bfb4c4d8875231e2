// Package render turns the active stepper page into a view model for one of
// three audiences: the person filling the form (editable), staff previewing a
// form (read-only) and unauthenticated visitors holding a share link (public).
//
// The same PageView is returned as JSON by the API and fed to the HTML
// templates, so both surfaces agree on which actions are offered.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/stepper"
)

// Mode selects how a page is presented.
type Mode string

const (
	ModeEditable Mode = "editable"
	ModeReadOnly Mode = "readonly"
	ModePublic   Mode = "public"
)

// ParseMode converts a query parameter into a Mode, defaulting to editable.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeReadOnly, ModePublic:
		return Mode(s)
	}
	return ModeEditable
}

// FieldView is one field as it should be drawn.
type FieldView struct {
	Key         string           `json:"key"`
	Type        schema.FieldType `json:"type"`
	Label       string           `json:"label"`
	Placeholder string           `json:"placeholder,omitempty"`
	Required    bool             `json:"required"`
	Disabled    bool             `json:"disabled"`
	Options     []schema.Option  `json:"options,omitempty"`
	Value       any              `json:"value,omitempty"`
	Display     string           `json:"display,omitempty"`
	Error       string           `json:"error,omitempty"`
	Components  []FieldView      `json:"components,omitempty"`
}

// InputType returns the HTML input type for simple fields.
func (f FieldView) InputType() string {
	switch f.Type {
	case schema.FieldNumber, schema.FieldCurrency:
		return "number"
	case schema.FieldEmail:
		return "email"
	case schema.FieldPhone:
		return "tel"
	case schema.FieldDateTime:
		return "datetime-local"
	case schema.FieldCheckbox:
		return "checkbox"
	}
	return "text"
}

// Checked reports whether a checkbox field holds boolean true.
func (f FieldView) Checked() bool {
	b, ok := f.Value.(bool)
	return ok && b
}

// Text returns the value to put into a text input: Display in read-only mode,
// the raw value otherwise.
func (f FieldView) Text() string {
	if f.Display != "" || f.Disabled {
		return f.Display
	}
	if f.Value == nil {
		return ""
	}
	return fmt.Sprint(f.Value)
}

// Selected reports whether option is the value of a select or radio field or
// one of the checked options of a selectboxes field.
func (f FieldView) Selected(option string) bool {
	switch v := f.Value.(type) {
	case string:
		return v == option
	case map[string]any:
		b, ok := v[option].(bool)
		return ok && b
	}
	return false
}

// Actions lists the buttons offered below the page.
type Actions struct {
	SaveDraft     bool   `json:"saveDraft"`
	Skip          bool   `json:"skip"`
	Continue      bool   `json:"continue"`
	ContinueLabel string `json:"continueLabel,omitempty"`
	Back          bool   `json:"back"`
	Next          bool   `json:"next"`
}

// Progress counts completed pages among the visible ones.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// PageView is everything needed to draw the active page.
type PageView struct {
	Mode     Mode           `json:"mode"`
	PageKey  string         `json:"pageKey"`
	Title    string         `json:"title"`
	Index    int            `json:"index"`
	Fields   []FieldView    `json:"fields"`
	Actions  Actions        `json:"actions"`
	Steps    []stepper.Step `json:"steps"`
	Progress Progress       `json:"progress"`
	Empty    bool           `json:"empty,omitempty"`
}

// ApplyErrors attaches validation messages to the matching fields.
func (v *PageView) ApplyErrors(errs ValidationErrors) {
	byKey := make(map[string]string, len(errs))
	for _, e := range errs {
		byKey[e.Key] = e.Message
	}
	applyErrors(v.Fields, byKey)
}

func applyErrors(fields []FieldView, byKey map[string]string) {
	for i := range fields {
		if msg, ok := byKey[fields[i].Key]; ok {
			fields[i].Error = msg
		}
		applyErrors(fields[i].Components, byKey)
	}
}

// Renderer builds page views.
type Renderer struct {
	// DateLayout formats datetime values in read-only mode.
	DateLayout string
}

// NewRenderer returns a renderer with the default date layout.
func NewRenderer() *Renderer {
	return &Renderer{DateLayout: "Jan 2, 2006 3:04 PM"}
}

// Render returns the view of the active page of state in the given mode. When
// no page is visible the view has Empty set and no fields.
func (r *Renderer) Render(state stepper.State, mode Mode) PageView {
	if mode == ModeReadOnly {
		state.SetReadOnly(true)
	}

	view := PageView{
		Mode:  mode,
		Index: state.ActiveIndex(),
		Steps: state.Steps(),
		Progress: Progress{
			Completed: state.CompletedVisible(),
			Total:     len(state.Visible()),
		},
	}

	page, ok := state.ActivePage()
	if !ok {
		view.Empty = true
		return view
	}
	view.PageKey = page.Key
	view.Title = page.Title
	view.Fields = r.fieldViews(page.Fields, state.Submission(), mode)
	view.Actions = actionsFor(state, mode)
	return view
}

func actionsFor(state stepper.State, mode Mode) Actions {
	a := Actions{
		Back: state.ActiveIndex() > 0,
		Next: !state.IsLast(),
	}
	if mode == ModeReadOnly {
		return a
	}

	a.Continue = true
	a.ContinueLabel = "Continue"
	page, _ := state.ActivePage()
	if !state.IsCompleted(page.Key) && state.CompletedVisible() == len(state.Visible())-1 {
		a.ContinueLabel = "Submit"
	}
	// Next is only offered to walk back over pages already done.
	a.Next = a.Next && state.IsCompleted(page.Key)

	if mode == ModeEditable {
		a.SaveDraft = true
		a.Skip = true
	}
	return a
}

func (r *Renderer) fieldViews(fields []schema.Field, sub stepper.Submission, mode Mode) []FieldView {
	views := make([]FieldView, 0, len(fields))
	for _, f := range fields {
		views = append(views, r.fieldView(f, sub, mode))
	}
	return views
}

func (r *Renderer) fieldView(f schema.Field, sub stepper.Submission, mode Mode) FieldView {
	value, present := sub[f.Key]
	if !present && mode != ModeReadOnly {
		value = f.DefaultValue
	}

	v := FieldView{
		Key:         f.Key,
		Type:        f.Type,
		Label:       f.Label,
		Placeholder: f.Placeholder,
		Required:    f.Required,
		Options:     f.Options,
		Value:       value,
	}
	if len(f.Components) > 0 {
		v.Components = r.fieldViews(f.Components, sub, mode)
	}

	if mode != ModeReadOnly {
		return v
	}

	v.Disabled = true
	v.Display = r.display(f, value)
	if f.Type.IsChoice() {
		v.Type = schema.FieldText
		v.Options = nil
	}
	return v
}

// display renders value as static text. Choice values map to option labels
// and booleans to Yes/No.
func (r *Renderer) display(f schema.Field, value any) string {
	switch val := value.(type) {
	case nil:
		if f.Type == schema.FieldCheckbox {
			return "No"
		}
		return ""
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		if f.Type == schema.FieldDateTime {
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				return t.Format(r.DateLayout)
			}
		}
		if f.Type.IsChoice() {
			return f.OptionLabel(val)
		}
		return val
	case map[string]any:
		return selectedLabels(f, val)
	case []any:
		labels := make([]string, 0, len(val))
		for _, item := range val {
			labels = append(labels, f.OptionLabel(fmt.Sprint(item)))
		}
		return strings.Join(labels, ", ")
	}
	return fmt.Sprint(value)
}

// selectedLabels renders a selectboxes value ({"a": true, "b": false}) as the
// labels of the checked options, in option order.
func selectedLabels(f schema.Field, val map[string]any) string {
	var labels []string
	seen := make(map[string]bool)
	for _, o := range f.Options {
		if b, ok := val[o.Value].(bool); ok && b {
			labels = append(labels, o.Label)
		}
		seen[o.Value] = true
	}

	var extra []string
	for k, v := range val {
		if b, ok := v.(bool); ok && b && !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return strings.Join(append(labels, extra...), ", ")
}
