package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/render"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/stepper"
	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned for an unknown, ended or foreign session id.
	ErrSessionNotFound = errors.New("form session not found")

	// ErrSkipConfirmationRequired is returned when staff skip a page without confirming.
	ErrSkipConfirmationRequired = errors.New("skipping a page requires confirmation")

	// ErrActionNotAllowed is returned for actions the session's mode does not offer.
	ErrActionNotAllowed = errors.New("action not allowed for this session")

	// ErrFormAccessDenied is returned when the caller may not open the form.
	ErrFormAccessDenied = errors.New("access to form denied")

	// ErrNoTemplates is returned when a new form names no template.
	ErrNoTemplates = errors.New("form has no templates")
)

// PersistenceError reports a failed save. The session keeps its in-memory
// state; Notification is the transient message shown to the user.
type PersistenceError struct {
	Notification string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FormStore persists forms. Satisfied by *repository.FormRepository.
type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	SaveProgress(ctx context.Context, form *models.Form) error
	GetByID(ctx context.Context, id string) (*models.Form, error)
	GetByPublicToken(ctx context.Context, token string) (*models.Form, error)
}

// TemplateStore loads stored templates. Satisfied by *repository.TemplateRepository.
type TemplateStore interface {
	GetByID(ctx context.Context, id int) (*models.FormTemplate, error)
}

// AuditLogger writes audit trail entries. Satisfied by *repository.AuditRepository.
type AuditLogger interface {
	Log(ctx context.Context, log *models.AuditLog) error
}

// Caller identifies who is driving a request.
type Caller struct {
	UserID    int
	FirmID    int
	Role      stepper.Role
	IPAddress string
	UserAgent string
}

// Public reports whether the caller is an unauthenticated share-link visitor.
func (c Caller) Public() bool { return c.Role == stepper.RolePublic }

// StartRequest opens a session. FormID resumes a stored form and PublicToken
// opens a shared one; with neither, TemplateIDs and ClientID describe a new
// form that is created on the first save.
type StartRequest struct {
	FormID      string
	PublicToken string
	TemplateIDs []int
	ClientID    int
	ReadOnly    bool
}

// SubmitRequest is a page submission.
type SubmitRequest struct {
	Action      stepper.Action
	Values      map[string]any
	ConfirmSkip bool
}

// Result is returned by every session operation.
type Result struct {
	SessionID     string          `json:"sessionId"`
	FormID        string          `json:"formId,omitempty"`
	View          render.PageView `json:"view"`
	Saved         bool            `json:"saved"`
	FormCompleted bool            `json:"formCompleted"`
	NextURL       string          `json:"nextUrl,omitempty"`
}

// FormService runs form-filling sessions: it loads templates into a stepper,
// feeds user events through it and persists the submission when asked to.
type FormService struct {
	forms     FormStore
	templates TemplateStore
	audit     AuditLogger
	registry  *stepper.Registry
	renderer  *render.Renderer
	validator *security.ValidationService
	logger    *security.Logger

	// Policy is applied to every new session.
	Policy stepper.Policy
	// FinalizeURL is formatted with the form id to build Result.NextURL.
	FinalizeURL string
	// SaveTimeout bounds one save once it has been issued.
	SaveTimeout time.Duration
}

// NewFormService creates a FormService.
//
// Example:
//
//	svc := services.NewFormService(repository.NewFormRepository(), repository.NewTemplateRepository(),
//	    repository.NewAuditRepository(), registry, validator, logger)
func NewFormService(forms FormStore, templates TemplateStore, audit AuditLogger, registry *stepper.Registry,
	validator *security.ValidationService, logger *security.Logger) *FormService {
	return &FormService{
		forms:       forms,
		templates:   templates,
		audit:       audit,
		registry:    registry,
		renderer:    render.NewRenderer(),
		validator:   validator,
		logger:      logger,
		Policy:      stepper.DefaultPolicy(),
		FinalizeURL: "/forms/%s/finalize",
		SaveTimeout: 10 * time.Second,
	}
}

// Start loads the form and its templates and registers a new session.
func (s *FormService) Start(ctx context.Context, caller Caller, req StartRequest) (*Result, error) {
	form, err := s.openForm(ctx, caller, req)
	if err != nil {
		return nil, err
	}

	firmID := caller.FirmID
	if form != nil {
		firmID = form.FirmID
	}
	templateIDs := req.TemplateIDs
	if form != nil {
		templateIDs = form.TemplateIDs
	}

	pages, err := s.loadPages(ctx, firmID, templateIDs)
	if err != nil {
		return nil, err
	}

	loaded := stepper.TemplateLoaded{
		Pages:    pages,
		ReadOnly: req.ReadOnly,
		Policy:   s.Policy,
	}
	formID := ""
	if form != nil {
		formID = form.ID
		loaded.Submission = form.Submission
		loaded.CurrentPageKey = form.CurrentPageKey
		loaded.Completed = form.CompletedPages
		loaded.ReadOnly = loaded.ReadOnly || (form.IsCompleted() && !caller.Role.IsStaff())
	}

	state, _, err := stepper.Reduce(stepper.State{}, loaded)
	if err != nil {
		return nil, err
	}

	meta := stepper.Meta{
		TemplateIDs: templateIDs,
		FirmID:      firmID,
		ClientID:    req.ClientID,
		UserID:      caller.UserID,
		Role:        caller.Role,
		Public:      caller.Public(),
	}
	if form != nil && form.ClientID != nil {
		meta.ClientID = *form.ClientID
	}
	if caller.Role == stepper.RoleClient {
		meta.ClientID = caller.UserID
	}

	sess := s.registry.Create(meta, formID, state)
	if caller.Public() {
		s.logger.SecurityEvent(security.EventFormSessionStart, nil, "", caller.IPAddress, caller.UserAgent,
			map[string]interface{}{"form_id": formID, "session_id": sess.ID, "public": true})
	} else {
		s.logger.SecurityEvent(security.EventFormSessionStart, &caller.UserID, "", caller.IPAddress, caller.UserAgent,
			map[string]interface{}{"form_id": formID, "session_id": sess.ID})
	}

	return s.result(sess), nil
}

// openForm resolves the stored form a start request refers to, checking the
// caller may open it. It returns nil for a form that does not exist yet.
func (s *FormService) openForm(ctx context.Context, caller Caller, req StartRequest) (*models.Form, error) {
	switch {
	case req.PublicToken != "":
		form, err := s.forms.GetByPublicToken(ctx, req.PublicToken)
		if err != nil {
			return nil, fmt.Errorf("failed to load public form: %w", err)
		}
		return form, nil

	case caller.Public():
		return nil, ErrFormAccessDenied

	case req.FormID != "":
		form, err := s.forms.GetByID(ctx, req.FormID)
		if err != nil {
			return nil, fmt.Errorf("failed to load form: %w", err)
		}
		if form.FirmID != caller.FirmID {
			return nil, ErrFormAccessDenied
		}
		if caller.Role == stepper.RoleClient && (form.ClientID == nil || *form.ClientID != caller.UserID) {
			return nil, ErrFormAccessDenied
		}
		return form, nil

	default:
		if !caller.Role.IsStaff() {
			return nil, ErrFormAccessDenied
		}
		if len(req.TemplateIDs) == 0 {
			return nil, ErrNoTemplates
		}
		return nil, nil
	}
}

// loadPages decodes the templates of a form and composes them into one page
// list. Malformed entries are quarantined by the decoder and only logged.
func (s *FormService) loadPages(ctx context.Context, firmID int, templateIDs []int) ([]schema.Page, error) {
	if len(templateIDs) == 0 {
		return nil, ErrNoTemplates
	}

	templates := make([]*schema.Template, 0, len(templateIDs))
	for _, id := range templateIDs {
		row, err := s.templates.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %d: %w", id, err)
		}
		if row.FirmID != firmID {
			return nil, ErrFormAccessDenied
		}

		tpl, report, err := schema.Decode(row.Definition, schema.FormatJSON)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", id, err)
		}
		tpl.ID = strconv.Itoa(row.ID)
		logReport(s.logger, tpl.ID, report)
		templates = append(templates, tpl)
	}

	return schema.Compose(templates...), nil
}

// logReport writes template validation findings as warnings.
func logReport(logger *security.Logger, templateID string, report *schema.Report) {
	for _, issue := range report.All() {
		logger.WarnWith("template validation issue", map[string]interface{}{
			"template_id": templateID,
			"kind":        string(issue.Kind),
			"page_key":    issue.PageKey,
			"field_key":   issue.FieldKey,
			"detail":      issue.Detail,
		})
	}
}

// View returns the current page of a session.
func (s *FormService) View(caller Caller, sessionID string) (*Result, error) {
	sess, err := s.session(caller, sessionID)
	if err != nil {
		return nil, err
	}
	return s.result(sess), nil
}

// ChangeField applies one value change on the active page. Changes to a
// conditional key may reveal or hide pages.
func (s *FormService) ChangeField(caller Caller, sessionID, key string, value any) (*Result, error) {
	sess, err := s.session(caller, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Snapshot().ReadOnly() {
		return nil, ErrActionNotAllowed
	}
	if key == "" {
		return nil, render.ValidationErrors{{Message: "field key is required"}}
	}
	if err := s.validator.ValidateSubmissionValues(map[string]interface{}{key: value}); err != nil {
		return nil, render.ValidationErrors{{Key: key, Message: err.Error()}}
	}

	if _, err := sess.Dispatch(stepper.FieldChanged{Key: key, Value: value}); err != nil {
		return nil, err
	}
	return s.result(sess), nil
}

// Submit runs one of the page actions: continue, draft or skip.
//
// Continue validates required fields first and returns render.ValidationErrors
// together with the annotated view when any are missing. Every action that
// reaches the stepper is persisted; a failed save returns a *PersistenceError
// and leaves the session state as the user left it.
func (s *FormService) Submit(ctx context.Context, caller Caller, sessionID string, req SubmitRequest) (*Result, error) {
	sess, err := s.session(caller, sessionID)
	if err != nil {
		return nil, err
	}
	if !req.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q: %w", req.Action, ErrActionNotAllowed)
	}

	snap := sess.Snapshot()
	if snap.ReadOnly() {
		return nil, ErrActionNotAllowed
	}
	if sess.Public && req.Action != stepper.ActionContinue {
		return nil, ErrActionNotAllowed
	}
	if req.Action == stepper.ActionSkip && sess.Role.IsStaff() && !req.ConfirmSkip {
		return nil, ErrSkipConfirmationRequired
	}
	if err := s.validator.ValidateSubmissionValues(req.Values); err != nil {
		return nil, render.ValidationErrors{{Message: err.Error()}}
	}

	if req.Action == stepper.ActionContinue {
		if page, ok := snap.ActivePage(); ok {
			merged := snap.Submission().Clone()
			merged.Merge(req.Values)
			if errs := render.Validate(page.Page, merged); len(errs) > 0 {
				res := s.result(sess)
				res.View.ApplyErrors(errs)
				return res, errs
			}
		}
	}

	var ev stepper.Event
	switch req.Action {
	case stepper.ActionContinue:
		ev = stepper.PageSubmitted{Values: req.Values}
	case stepper.ActionSkip:
		ev = stepper.PageSkipped{Values: req.Values}
	default:
		ev = stepper.DraftSaved{Values: req.Values}
	}

	fx, err := sess.Dispatch(ev)
	if err != nil {
		return nil, err
	}

	var saved, done bool
	var nextURL string
	if fx.Save != nil {
		formID, err := s.save(ctx, sess, fx.Save)
		if err != nil {
			s.logger.SecurityEvent(security.EventFormSaveFailed, actor(caller), "", caller.IPAddress, caller.UserAgent,
				map[string]interface{}{"session_id": sess.ID, "action": string(fx.Save.Action), "error": err.Error()})
			return nil, &PersistenceError{
				Notification: "We couldn't save your answers. Please try again.",
				Err:          err,
			}
		}
		saved = true

		event := security.EventFormSubmit
		if fx.Save.Skip {
			event = security.EventFormSkip
		}
		s.logger.SecurityEvent(event, actor(caller), "", caller.IPAddress, caller.UserAgent,
			map[string]interface{}{"form_id": formID, "page_key": fx.Save.PageKey, "action": string(fx.Save.Action)})

		if fx.FormCompleted {
			s.completed(ctx, caller, sess, formID)
			done = true
			nextURL = fmt.Sprintf(s.FinalizeURL, formID)
		}
	}

	res := s.result(sess)
	res.Saved, res.FormCompleted, res.NextURL = saved, done, nextURL
	return res, nil
}

// save persists a save request. The write is detached from the request
// context so a disconnecting client cannot abort it halfway. The form id of a
// first save is only recorded on the session if it is still registered.
func (s *FormService) save(ctx context.Context, sess *stepper.Session, req *stepper.SaveRequest) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.SaveTimeout)
	defer cancel()

	form := &models.Form{
		ID:             sess.FormID(),
		FirmID:         sess.FirmID,
		TemplateIDs:    sess.TemplateIDs,
		Submission:     map[string]any(req.Submission),
		CurrentPageKey: req.ResumeKey,
		CompletedPages: req.Completed,
		Status:         statusFor(req),
	}
	if form.CompletedPages == nil {
		form.CompletedPages = []string{}
	}

	if form.ID != "" {
		if err := s.forms.SaveProgress(ctx, form); err != nil {
			return "", err
		}
		return form.ID, nil
	}

	if sess.ClientID != 0 {
		clientID := sess.ClientID
		form.ClientID = &clientID
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return "", err
	}
	if form.Status == models.FormStatusCompleted {
		// stamps completed_at
		if err := s.forms.SaveProgress(ctx, form); err != nil {
			return "", err
		}
	}
	if s.registry.Contains(sess) {
		sess.SetFormID(form.ID)
	}
	return form.ID, nil
}

func statusFor(req *stepper.SaveRequest) string {
	switch {
	case req.Final:
		return models.FormStatusCompleted
	case len(req.Completed) > 0:
		return models.FormStatusInProgress
	default:
		return models.FormStatusDraft
	}
}

// completed records the form-completed side effect. Audit failures are logged
// and do not fail the submission, which is already stored.
func (s *FormService) completed(ctx context.Context, caller Caller, sess *stepper.Session, formID string) {
	firmID := sess.FirmID
	entry := &models.AuditLog{
		FirmID:     &firmID,
		ActorID:    actor(caller),
		Action:     string(security.EventFormCompleted),
		ObjectType: "form",
		ObjectID:   formID,
		IPAddress:  caller.IPAddress,
		UserAgent:  caller.UserAgent,
	}
	if err := s.audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to write form completion audit entry", err)
	}
	s.logger.SecurityEvent(security.EventFormCompleted, actor(caller), "", caller.IPAddress, caller.UserAgent,
		map[string]interface{}{"form_id": formID, "session_id": sess.ID})
}

// Back moves to the previous page.
func (s *FormService) Back(caller Caller, sessionID string) (*Result, error) {
	return s.navigate(caller, sessionID, stepper.NavigatedBack{})
}

// Next moves forward over pages that are already done.
func (s *FormService) Next(caller Caller, sessionID string) (*Result, error) {
	return s.navigate(caller, sessionID, stepper.NavigatedNext{})
}

// Jump moves to the visible page at index. Outside read-only sessions only
// pages up to the furthest completed one are reachable.
func (s *FormService) Jump(caller Caller, sessionID string, index int) (*Result, error) {
	return s.navigate(caller, sessionID, stepper.JumpedTo{Index: index})
}

func (s *FormService) navigate(caller Caller, sessionID string, ev stepper.Event) (*Result, error) {
	sess, err := s.session(caller, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Dispatch(ev); err != nil {
		return nil, err
	}
	return s.result(sess), nil
}

// End destroys the session. Saves already in flight finish but no longer
// update it.
func (s *FormService) End(caller Caller, sessionID string) error {
	if _, err := s.session(caller, sessionID); err != nil {
		return err
	}
	s.registry.Destroy(sessionID)
	return nil
}

// Share creates a public form for templateIDs and returns its share token.
func (s *FormService) Share(ctx context.Context, caller Caller, templateIDs []int) (*models.Form, error) {
	if !caller.Role.IsStaff() {
		return nil, ErrFormAccessDenied
	}
	if _, err := s.loadPages(ctx, caller.FirmID, templateIDs); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	form := &models.Form{
		FirmID:      caller.FirmID,
		TemplateIDs: templateIDs,
		IsPublic:    true,
		PublicToken: &token,
	}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, fmt.Errorf("failed to create public form: %w", err)
	}
	return form, nil
}

// session looks up a session and checks it belongs to the caller.
func (s *FormService) session(caller Caller, sessionID string) (*stepper.Session, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.Public != caller.Public() || sess.UserID != caller.UserID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *FormService) result(sess *stepper.Session) *Result {
	state := sess.Snapshot()
	return &Result{
		SessionID: sess.ID,
		FormID:    sess.FormID(),
		View:      s.renderer.Render(state, modeFor(sess, state)),
	}
}

func modeFor(sess *stepper.Session, state stepper.State) render.Mode {
	switch {
	case state.ReadOnly():
		return render.ModeReadOnly
	case sess.Public:
		return render.ModePublic
	}
	return render.ModeEditable
}

func actor(caller Caller) *int {
	if caller.Public() || caller.UserID == 0 {
		return nil
	}
	id := caller.UserID
	return &id
}
