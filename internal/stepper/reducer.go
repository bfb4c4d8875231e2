package stepper

import "github.com/avissapr/advisordesk/internal/schema"

// Action is what the user asked for when submitting a page.
type Action string

const (
	ActionContinue Action = "continue"
	ActionDraft    Action = "draft"
	ActionSkip     Action = "skip"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionContinue, ActionDraft, ActionSkip:
		return true
	}
	return false
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// TemplateLoaded replaces the whole state with a freshly loaded template and
// the form's saved progress.
type TemplateLoaded struct {
	Pages          []schema.Page
	Submission     Submission
	CurrentPageKey string
	Completed      []string
	ReadOnly       bool
	Policy         Policy
}

// FieldChanged is emitted for every value change on the active page.
type FieldChanged struct {
	Key   string
	Value any
}

// PageSubmitted merges the page values, completes the active page and advances.
type PageSubmitted struct {
	Values map[string]any
}

// PageSkipped merges the page values and moves on without completing the page.
type PageSkipped struct {
	Values map[string]any
}

// DraftSaved merges the page values and stays on the page.
type DraftSaved struct {
	Values map[string]any
}

// NavigatedNext is the stepper's Next button.
type NavigatedNext struct{}

// NavigatedBack is the stepper's Back button.
type NavigatedBack struct{}

// JumpedTo is a click on a step in the step list.
type JumpedTo struct {
	Index int
}

func (TemplateLoaded) event() {}
func (FieldChanged) event()   {}
func (PageSubmitted) event()  {}
func (PageSkipped) event()    {}
func (DraftSaved) event()     {}
func (NavigatedNext) event()  {}
func (NavigatedBack) event()  {}
func (JumpedTo) event()       {}

// SaveRequest asks the persistence layer to store the submission. PageKey is
// the page the action was taken on; ResumeKey is where the user is afterwards.
type SaveRequest struct {
	Action     Action
	Submission Submission
	PageKey    string
	ResumeKey  string
	Completed  []string
	Skip       bool
	// Final is true whenever every visible page is complete, including
	// saves made after the form was first completed.
	Final bool
}

// Effects are the side effects a transition asks the caller to perform.
type Effects struct {
	Save *SaveRequest
	// FormCompleted is set only by the submit that completes the last open page.
	FormCompleted bool
	// VisibilityChanged is set when a field change or submitted value added or
	// removed pages.
	VisibilityChanged bool
}

// Reduce applies ev to a copy of state and returns the new state together with
// the side effects to run. state itself is never modified.
func Reduce(state State, ev Event) (State, Effects, error) {
	s := state.Clone()
	var fx Effects

	switch e := ev.(type) {
	case TemplateLoaded:
		s = NewState(e.Pages, e.Submission, e.CurrentPageKey, e.Policy)
		for _, k := range e.Completed {
			s.MarkCompleted(k)
		}
		s.SetReadOnly(e.ReadOnly)

	case FieldChanged:
		s.submission[e.Key] = e.Value
		fx.VisibilityChanged = s.applyFieldChange(e.Key, e.Value)

	case PageSubmitted:
		pageKey := s.activeKey()
		fx.VisibilityChanged = s.mergeValues(e.Values)
		s.MarkCurrentComplete()
		fx.Save = &SaveRequest{Action: ActionContinue, PageKey: pageKey}
		// only the submit that finishes the last open page completes the form
		fx.FormCompleted = s.AllComplete() && !state.AllComplete()

	case PageSkipped:
		pageKey := s.activeKey()
		fx.VisibilityChanged = s.mergeValues(e.Values)
		s.skipCurrent()
		fx.Save = &SaveRequest{Action: ActionSkip, PageKey: pageKey, Skip: true}

	case DraftSaved:
		fx.VisibilityChanged = s.mergeValues(e.Values)
		fx.Save = &SaveRequest{Action: ActionDraft, PageKey: s.activeKey()}

	case NavigatedNext:
		s.GoNext()

	case NavigatedBack:
		s.GoBack()

	case JumpedTo:
		if err := s.GoToPage(e.Index); err != nil {
			return state, Effects{}, err
		}
	}

	if fx.Save != nil {
		fx.Save.Submission = s.submission.Clone()
		fx.Save.Final = s.AllComplete()
		fx.Save.ResumeKey = s.activeKey()
		fx.Save.Completed = s.CompletedKeys()
	}
	return s, fx, nil
}
