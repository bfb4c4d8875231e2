package stepper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/avissapr/advisordesk/internal/schema"
)

// ErrPageNotReachable is returned by GoToPage when the target page lies beyond
// the furthest completed page and the stepper is not read-only.
var ErrPageNotReachable = errors.New("page not reachable yet")

// Policy tunes behaviours whose product semantics are still being confirmed.
type Policy struct {
	// InvalidateActiveOnHide drops the active page's completion entry whenever a
	// gating field flips to false, in addition to the entries of the hidden pages.
	InvalidateActiveOnHide bool
}

// DefaultPolicy matches the behaviour forms have shipped with so far.
func DefaultPolicy() Policy {
	return Policy{InvalidateActiveOnHide: true}
}

// State is the complete stepper state of one session. The zero value is an
// empty stepper; use NewState to load a template.
type State struct {
	pages      []schema.Page
	keys       schema.KeySet
	visible    []VisiblePage
	active     int
	completed  map[string]bool
	submission Submission
	readOnly   bool
	policy     Policy
}

// NewState builds the stepper for pages and a prior submission (nil for a new
// form). currentPageKey restores the page the user last saved on; an unknown
// or hidden key starts on the first visible page.
func NewState(pages []schema.Page, prior Submission, currentPageKey string, policy Policy) State {
	if prior == nil {
		prior = Submission{}
	}
	s := State{
		pages:      pages,
		keys:       schema.ConditionalKeys(pages),
		completed:  make(map[string]bool),
		submission: prior.Clone(),
		policy:     policy,
	}
	s.visible = ComputeVisiblePages(s.pages, s.submission, s.keys)
	if i := s.indexOf(currentPageKey); i >= 0 {
		s.active = i
	}
	return s
}

// Clone returns a deep copy of the mutable parts of s. Template pages are
// shared; they are never modified.
func (s State) Clone() State {
	c := s
	c.visible = append([]VisiblePage(nil), s.visible...)
	c.completed = make(map[string]bool, len(s.completed))
	for k, v := range s.completed {
		c.completed[k] = v
	}
	c.submission = s.submission.Clone()
	return c
}

// Visible returns the current visible page list.
func (s State) Visible() []VisiblePage { return s.visible }

// ActiveIndex returns the index of the active page within Visible.
func (s State) ActiveIndex() int { return s.active }

// Submission returns the answers collected so far.
func (s State) Submission() Submission { return s.submission }

// ReadOnly reports whether the stepper is in preview mode.
func (s State) ReadOnly() bool { return s.readOnly }

// SetReadOnly switches preview mode, which allows jumping to any page.
func (s *State) SetReadOnly(ro bool) { s.readOnly = ro }

// ConditionalKeys returns the set of field keys that gate pages.
func (s State) ConditionalKeys() schema.KeySet { return s.keys }

// IsCompleted reports whether pageKey has been submitted.
func (s State) IsCompleted(pageKey string) bool { return s.completed[pageKey] }

// MarkCompleted records pageKey as submitted without moving the stepper. Used
// when restoring a saved form.
func (s *State) MarkCompleted(pageKey string) {
	if s.completed == nil {
		s.completed = make(map[string]bool)
	}
	s.completed[pageKey] = true
}

// CompletedKeys returns the keys of every completed page, including stale keys
// of pages that are no longer visible.
func (s State) CompletedKeys() []string {
	keys := make([]string, 0, len(s.completed))
	for k, v := range s.completed {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ActivePage returns the page the user is on. ok is false when no page is visible.
func (s State) ActivePage() (VisiblePage, bool) {
	if s.active < 0 || s.active >= len(s.visible) {
		return VisiblePage{}, false
	}
	return s.visible[s.active], true
}

func (s State) activeKey() string {
	if p, ok := s.ActivePage(); ok {
		return p.Key
	}
	return ""
}

// CompletedVisible counts completed pages among the visible ones.
func (s State) CompletedVisible() int {
	n := 0
	for _, vp := range s.visible {
		if s.completed[vp.Key] {
			n++
		}
	}
	return n
}

// AllComplete reports whether every visible page has been submitted.
func (s State) AllComplete() bool {
	return len(s.visible) > 0 && s.CompletedVisible() == len(s.visible)
}

// IsLast reports whether the active page is the last visible page.
func (s State) IsLast() bool {
	return s.active == len(s.visible)-1
}

// FurthestCompleted returns the highest visible index whose page is completed,
// or -1 when none is.
func (s State) FurthestCompleted() int {
	for i := len(s.visible) - 1; i >= 0; i-- {
		if s.completed[s.visible[i].Key] {
			return i
		}
	}
	return -1
}

// GoNext moves to the next page that still needs work. On the last page with
// unfinished pages elsewhere it wraps to the first unfinished page. Otherwise
// it scans forward from the active page (inclusive), then from the start up to
// the active page, and finally falls back to the following page. In read-only
// mode it simply moves to the following page. The result is always a valid
// index.
func (s *State) GoNext() {
	total := len(s.visible)
	if total == 0 {
		s.active = 0
		return
	}
	if s.readOnly {
		s.active++
		s.clampActive()
		return
	}

	if s.IsLast() && !s.AllComplete() {
		if i := s.firstIncomplete(0, total); i != -1 {
			s.active = i
			return
		}
	}

	next := s.firstIncomplete(s.active, total)
	if next == -1 {
		next = s.firstIncomplete(0, s.active)
	}
	if next == -1 {
		next = s.active + 1
	}
	s.active = next
	s.clampActive()
}

// firstIncomplete returns the first index in [from, to) whose page is not
// completed, or -1.
func (s State) firstIncomplete(from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > len(s.visible) {
		to = len(s.visible)
	}
	for i := from; i < to; i++ {
		if !s.completed[s.visible[i].Key] {
			return i
		}
	}
	return -1
}

// GoBack moves to the previous page. It does nothing on the first page.
func (s *State) GoBack() {
	if s.active > 0 {
		s.active--
	}
	s.clampActive()
}

// GoToPage jumps to index. Outside read-only mode only the active page and
// pages up to the furthest completed one can be targeted.
func (s *State) GoToPage(index int) error {
	if index < 0 || index >= len(s.visible) {
		return fmt.Errorf("page index %d out of range [0,%d): %w", index, len(s.visible), ErrPageNotReachable)
	}
	if !s.readOnly && index != s.active && index > s.FurthestCompleted() {
		return fmt.Errorf("page index %d beyond furthest completed page %d: %w", index, s.FurthestCompleted(), ErrPageNotReachable)
	}
	s.active = index
	return nil
}

// MarkCurrentComplete records the active page as submitted and advances.
func (s *State) MarkCurrentComplete() {
	if p, ok := s.ActivePage(); ok {
		s.MarkCompleted(p.Key)
	}
	s.GoNext()
}

// skipCurrent moves past the active page without completing it.
func (s *State) skipCurrent() {
	if s.active < len(s.visible)-1 {
		s.active++
		return
	}
	if i := s.firstIncomplete(0, s.active); i != -1 {
		s.active = i
	}
}

// Step describes one entry of the step list shown above the form.
type Step struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Active    bool   `json:"active"`
	Clickable bool   `json:"clickable"`
}

// Steps returns the step list for the visible pages.
func (s State) Steps() []Step {
	furthest := s.FurthestCompleted()
	steps := make([]Step, len(s.visible))
	for i, vp := range s.visible {
		steps[i] = Step{
			Key:       vp.Key,
			Title:     vp.Title,
			Completed: s.completed[vp.Key],
			Active:    i == s.active,
			Clickable: s.readOnly || i == s.active || i <= furthest,
		}
	}
	return steps
}
