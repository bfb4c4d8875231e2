package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avissapr/advisordesk/internal/models"
	"github.com/avissapr/advisordesk/internal/repository"
	"github.com/avissapr/advisordesk/internal/schema"
	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// templateRepo is an in-memory services.TemplateRepo.
type templateRepo struct {
	mu     sync.Mutex
	rows   map[int]*models.FormTemplate
	drafts map[int][]byte
	nextID int
	failOn error
}

func newTemplateRepo(rows ...*models.FormTemplate) *templateRepo {
	r := &templateRepo{rows: map[int]*models.FormTemplate{}, drafts: map[int][]byte{}, nextID: 100}
	for _, row := range rows {
		r.rows[row.ID] = row
	}
	return r
}

func (r *templateRepo) GetByID(_ context.Context, id int) (*models.FormTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *row
	return &c, nil
}

func (r *templateRepo) ListByFirm(_ context.Context, firmID int) ([]models.FormTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FormTemplate
	for _, row := range r.rows {
		if row.FirmID == firmID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *templateRepo) Create(_ context.Context, t *models.FormTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	c := *t
	r.rows[t.ID] = &c
	return nil
}

func (r *templateRepo) update(id int, fn func(*models.FormTemplate)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return r.failOn
	}
	row, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(row)
	return nil
}

func (r *templateRepo) UpdateDefinition(_ context.Context, id int, name string, definition []byte) error {
	return r.update(id, func(t *models.FormTemplate) {
		t.Name = name
		t.Definition = definition
		t.DraftPages = nil
	})
}

func (r *templateRepo) SavePDFSchema(_ context.Context, id int, doc []byte) error {
	return r.update(id, func(t *models.FormTemplate) { t.PDFFormSchema = doc })
}

func (r *templateRepo) SetPDF(_ context.Context, id int, path string, doc []byte) error {
	return r.update(id, func(t *models.FormTemplate) {
		t.PDFPath = &path
		t.PDFFormSchema = doc
	})
}

func (r *templateRepo) SaveDraft(_ context.Context, id int, draft []byte) error {
	return r.update(id, func(t *models.FormTemplate) {
		t.DraftPages = draft
		r.drafts[id] = draft
	})
}

func (r *templateRepo) row(id int) models.FormTemplate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

const householdYAML = `
name: Household profile
pages:
  - key: contact
    title: Contact
    fields:
      - key: firstName
        type: textfield
        label: First name
        required: true
      - key: favourite
        type: colorpicker
        label: Favourite colour
  - key: spouse
    title: Spouse
    conditional:
      when: hasSpouse
    fields:
      - key: spouseName
        type: textfield
        label: Spouse name
`

// TestTemplateService_Import verifies YAML import stores a sanitized JSON definition.
func TestTemplateService_Import(t *testing.T) {
	repo := newTemplateRepo()
	audit := &fakeAudit{}
	svc := services.NewTemplateService(repo, audit,
		security.NewValidationService(security.DefaultSecurityConfig()), security.NewLogger())

	row, report, err := svc.Import(context.Background(), advisor, "", []byte(householdYAML), schema.FormatYAML)

	require.NoError(t, err)
	assert.Equal(t, "Household profile", row.Name)
	assert.Equal(t, 3, row.FirmID)
	assert.False(t, report.Empty(), "unknown field type and dangling condition are reported")

	stored, tpl, err := svc.Get(context.Background(), advisor, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, stored.ID)
	require.Len(t, tpl.Pages, 2)
	assert.Len(t, tpl.Pages[0].Fields, 1, "unknown field type is quarantined")

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "form_template", audit.entries[0].ObjectType)
}

// TestTemplateService_Access covers role and firm checks.
func TestTemplateService_Access(t *testing.T) {
	repo := newTemplateRepo(&models.FormTemplate{ID: 7, FirmID: 9, Name: "Other", Definition: []byte(householdDefinition)})
	svc := services.NewTemplateService(repo, &fakeAudit{},
		security.NewValidationService(security.DefaultSecurityConfig()), security.NewLogger())
	ctx := context.Background()

	_, _, err := svc.Import(ctx, client, "x", []byte(householdDefinition), schema.FormatJSON)
	assert.ErrorIs(t, err, services.ErrTemplateAccessDenied)

	_, _, err = svc.Get(ctx, advisor, 7)
	assert.ErrorIs(t, err, services.ErrTemplateAccessDenied)

	_, err = svc.List(ctx, client)
	assert.ErrorIs(t, err, services.ErrTemplateAccessDenied)

	_, _, err = svc.Get(ctx, advisor, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// TestTemplateService_UpdateAndDraft verifies updates replace the definition
// and drafts are validated before they are stored.
func TestTemplateService_UpdateAndDraft(t *testing.T) {
	repo := newTemplateRepo(&models.FormTemplate{ID: 12, FirmID: 3, Name: "Household", Definition: []byte(householdDefinition)})
	svc := services.NewTemplateService(repo, &fakeAudit{},
		security.NewValidationService(security.DefaultSecurityConfig()), security.NewLogger())
	ctx := context.Background()

	_, err := svc.Update(ctx, advisor, 12, []byte(`{"name":"Renamed","pages":[{"key":"only","title":"Only","fields":[]}]}`), schema.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", repo.row(12).Name)

	err = svc.SaveDraft(ctx, advisor, 12, []byte(`not json`))
	assert.Error(t, err)
	assert.Nil(t, repo.row(12).DraftPages)

	draft := []byte(`[{"key":"only","title":"Only","fields":[]}]`)
	require.NoError(t, svc.SaveDraft(ctx, advisor, 12, draft))
	assert.Equal(t, draft, repo.row(12).DraftPages)
}

// TestAutosaver verifies drafts are written once per dirty mark and retried
// after a failure.
func TestAutosaver(t *testing.T) {
	repo := newTemplateRepo(&models.FormTemplate{ID: 12, FirmID: 3})
	drafts := services.NewAutosaver(repo, time.Hour, security.NewLogger())
	ctx := context.Background()

	assert.Zero(t, drafts.Flush(ctx), "nothing dirty")

	drafts.Mark(12, []byte(`[1]`))
	drafts.Mark(12, []byte(`[2]`))
	assert.Equal(t, 1, drafts.Pending())
	assert.Equal(t, 1, drafts.Flush(ctx))
	assert.Equal(t, []byte(`[2]`), repo.row(12).DraftPages)
	assert.Zero(t, drafts.Flush(ctx), "clean after a save")

	repo.failOn = errors.New("database unavailable")
	drafts.Mark(12, []byte(`[3]`))
	assert.Zero(t, drafts.Flush(ctx))
	assert.Equal(t, 1, drafts.Pending(), "failed draft stays dirty")

	repo.failOn = nil
	drafts.Stop()
	assert.Equal(t, []byte(`[3]`), repo.row(12).DraftPages, "stop flushes")
}

// TestTemplateService_QueuedDraft verifies drafts go through the autosaver
// when one is configured.
func TestTemplateService_QueuedDraft(t *testing.T) {
	repo := newTemplateRepo(&models.FormTemplate{ID: 12, FirmID: 3, Definition: []byte(householdDefinition)})
	svc := services.NewTemplateService(repo, &fakeAudit{},
		security.NewValidationService(security.DefaultSecurityConfig()), security.NewLogger())
	svc.Drafts = services.NewAutosaver(repo, time.Hour, security.NewLogger())

	require.NoError(t, svc.SaveDraft(context.Background(), advisor, 12, []byte(`[]`)))

	assert.Nil(t, repo.row(12).DraftPages)
	assert.Equal(t, 1, svc.Drafts.Pending())
}
