package render

import (
	"fmt"
	"strings"

	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/stepper"
)

// FieldError is a single failed field check.
type FieldError struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

// ValidationErrors is returned when a page cannot be submitted. It is a value,
// not a failure of the service: callers show it next to the fields and keep
// the user on the page.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Key, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks the required fields of page against submission. It returns
// nil when the page can be submitted. Fields nested in panels are checked as
// well; datagrid rows are only checked for being present.
func Validate(page schema.Page, submission stepper.Submission) ValidationErrors {
	var errs ValidationErrors
	validateFields(page.Fields, submission, &errs)
	return errs
}

func validateFields(fields []schema.Field, sub stepper.Submission, errs *ValidationErrors) {
	for _, f := range fields {
		if f.Type == schema.FieldPanel {
			validateFields(f.Components, sub, errs)
			continue
		}
		if !f.Required || f.Type == schema.FieldContent {
			continue
		}
		if isEmpty(f.Type, sub[f.Key]) {
			label := f.Label
			if label == "" {
				label = f.Key
			}
			*errs = append(*errs, FieldError{
				Key:     f.Key,
				Label:   label,
				Message: label + " is required",
			})
		}
	}
}

func isEmpty(t schema.FieldType, v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		// a required checkbox must be ticked
		return t == schema.FieldCheckbox && !val
	case []any:
		return len(val) == 0
	case map[string]any:
		if t == schema.FieldSelectBoxes {
			for _, checked := range val {
				if b, ok := checked.(bool); ok && b {
					return false
				}
			}
			return true
		}
		return len(val) == 0
	}
	return false
}
