// Package stepper implements the conditional multi-page form engine: which pages
// are visible for a partial submission, which of them are complete, and where
// next/back/jump navigation lands. Everything here is pure bookkeeping over
// in-memory state; persistence and rendering live in other packages.
package stepper

import (
	"sort"

	"github.com/avissapr/advisordesk/internal/schema"
)

// Submission is the evolving key/value answer map of one form-filling session.
type Submission map[string]any

// Clone returns a shallow copy of s.
func (s Submission) Clone() Submission {
	out := make(Submission, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge copies values into s, overwriting existing keys.
func (s Submission) Merge(values map[string]any) {
	for k, v := range values {
		s[k] = v
	}
}

// VisiblePage is a template page that is currently shown, together with its
// position in the unfiltered template.
type VisiblePage struct {
	schema.Page
	OriginalIndex int
}

// ComputeVisiblePages returns the pages that should be navigable for the given
// submission, in template order. A gated page is included only when the
// submission holds exactly boolean true for its gating key.
func ComputeVisiblePages(pages []schema.Page, submission Submission, keys schema.KeySet) []VisiblePage {
	initial := initialConditionalValues(submission, keys)

	visible := make([]VisiblePage, 0, len(pages))
	for i, p := range pages {
		key, gated := p.GatingKey()
		if !gated || isTrue(initial[key]) {
			visible = append(visible, VisiblePage{Page: p, OriginalIndex: i})
		}
	}
	sortByOriginalIndex(visible)
	return visible
}

// initialConditionalValues records the submission value of every conditional
// key. Submission keys are visited in sorted order so that two keys sharing a
// last segment ("spouse.hasSpouse" and "hasSpouse") resolve the same way on
// every call.
func initialConditionalValues(submission Submission, keys schema.KeySet) map[string]any {
	names := make([]string, 0, len(submission))
	for k := range submission {
		if keys.Has(k) {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	values := make(map[string]any, len(names))
	for _, k := range names {
		values[schema.LastSegment(k)] = submission[k]
	}
	return values
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func sortByOriginalIndex(pages []VisiblePage) {
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].OriginalIndex < pages[j].OriginalIndex
	})
}

// mergeValues merges submitted page values into the submission and runs every
// gating value that changed through applyFieldChange, in key order. Returns
// true when the visible list or the completion map changed.
func (s *State) mergeValues(values map[string]any) bool {
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if on, ok := v.(bool); ok {
			if prev, had := s.submission[k].(bool); had && prev == on {
				continue
			}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	s.submission.Merge(values)
	changed := false
	for _, k := range keys {
		if s.applyFieldChange(k, values[k]) {
			changed = true
		}
	}
	return changed
}

// applyFieldChange updates the visible page list after a single field edit.
// Only edits to a conditional key with a boolean value do anything. Returns
// true when the visible list or the completion map changed.
func (s *State) applyFieldChange(fieldKey string, value any) bool {
	key := schema.LastSegment(fieldKey)
	if !s.keys.Has(key) {
		return false
	}
	on, ok := value.(bool)
	if !ok {
		return false
	}

	activeKey := s.activeKey()
	if on {
		return s.revealPages(key, activeKey)
	}
	return s.hidePages(key, activeKey)
}

// revealPages splices every page gated on key that is not yet visible in right
// after the active page, then restores template order.
func (s *State) revealPages(key, activeKey string) bool {
	var additions []VisiblePage
	for i, p := range s.pages {
		gk, gated := p.GatingKey()
		if gated && gk == key && !s.isVisible(p.Key) {
			additions = append(additions, VisiblePage{Page: p, OriginalIndex: i})
		}
	}
	if len(additions) == 0 {
		return false
	}

	at := s.active + 1
	if at > len(s.visible) {
		at = len(s.visible)
	}
	next := make([]VisiblePage, 0, len(s.visible)+len(additions))
	next = append(next, s.visible[:at]...)
	next = append(next, additions...)
	next = append(next, s.visible[at:]...)
	sortByOriginalIndex(next)

	s.visible = next
	s.follow(activeKey)
	return true
}

// hidePages removes every page gated on key and drops their completion
// entries. With InvalidateActiveOnHide set, the active page's completion entry
// is dropped as well.
func (s *State) hidePages(key, activeKey string) bool {
	changed := false
	kept := s.visible[:0:0]
	for _, vp := range s.visible {
		gk, gated := vp.GatingKey()
		if gated && gk == key {
			delete(s.completed, vp.Key)
			changed = true
			continue
		}
		kept = append(kept, vp)
	}
	s.visible = kept

	if s.policy.InvalidateActiveOnHide && activeKey != "" {
		if _, ok := s.completed[activeKey]; ok {
			delete(s.completed, activeKey)
			changed = true
		}
	}

	s.follow(activeKey)
	return changed
}

func (s *State) isVisible(pageKey string) bool {
	return s.indexOf(pageKey) >= 0
}

func (s *State) indexOf(pageKey string) int {
	for i, vp := range s.visible {
		if vp.Key == pageKey {
			return i
		}
	}
	return -1
}

// follow keeps the active index on the page with activeKey. When that page is
// gone the index stays where it was, clamped to the list.
func (s *State) follow(activeKey string) {
	if i := s.indexOf(activeKey); i >= 0 {
		s.active = i
		return
	}
	s.clampActive()
}

func (s *State) clampActive() {
	if s.active >= len(s.visible) {
		s.active = len(s.visible) - 1
	}
	if s.active < 0 {
		s.active = 0
	}
}
