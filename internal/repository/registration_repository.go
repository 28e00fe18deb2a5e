package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openregistrar/registrar-api/internal/models"
)

// RegistrationRepository persists in-progress registration drafts. The five
// field groups are stored as JSONB columns so partial saves stay cheap.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

type registrationDraftRow struct {
	ID              string    `db:"id"`
	CurrentStep     int       `db:"current_step"`
	Personal        []byte    `db:"personal"`
	Family          []byte    `db:"family"`
	AcademicCurrent []byte    `db:"academic_current"`
	AcademicHistory []byte    `db:"academic_history"`
	Credentials     []byte    `db:"credentials"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row registrationDraftRow) toModel() (*models.RegistrationDraft, error) {
	draft := &models.RegistrationDraft{
		ID:          row.ID,
		CurrentStep: row.CurrentStep,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	groups := []struct {
		raw  []byte
		dest interface{}
	}{
		{row.Personal, &draft.Personal},
		{row.Family, &draft.Family},
		{row.AcademicCurrent, &draft.AcademicCurrent},
		{row.AcademicHistory, &draft.AcademicHistory},
		{row.Credentials, &draft.Credentials},
	}
	for _, g := range groups {
		if len(g.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(g.raw, g.dest); err != nil {
			return nil, fmt.Errorf("decode draft group: %w", err)
		}
	}
	return draft, nil
}

func rowFromDraft(draft *models.RegistrationDraft) (*registrationDraftRow, error) {
	row := &registrationDraftRow{
		ID:          draft.ID,
		CurrentStep: draft.CurrentStep,
		CreatedAt:   draft.CreatedAt,
		UpdatedAt:   draft.UpdatedAt,
	}
	var err error
	if row.Personal, err = json.Marshal(draft.Personal); err != nil {
		return nil, fmt.Errorf("encode personal group: %w", err)
	}
	if row.Family, err = json.Marshal(draft.Family); err != nil {
		return nil, fmt.Errorf("encode family group: %w", err)
	}
	if row.AcademicCurrent, err = json.Marshal(draft.AcademicCurrent); err != nil {
		return nil, fmt.Errorf("encode academic current group: %w", err)
	}
	if row.AcademicHistory, err = json.Marshal(draft.AcademicHistory); err != nil {
		return nil, fmt.Errorf("encode academic history group: %w", err)
	}
	if row.Credentials, err = json.Marshal(draft.Credentials); err != nil {
		return nil, fmt.Errorf("encode credentials group: %w", err)
	}
	return row, nil
}

// Create inserts a fresh draft at step 1.
func (r *RegistrationRepository) Create(ctx context.Context, draft *models.RegistrationDraft) error {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if draft.CurrentStep == 0 {
		draft.CurrentStep = models.RegistrationFirstStep
	}
	row, err := rowFromDraft(draft)
	if err != nil {
		return err
	}
	const query = `INSERT INTO registration_drafts (id, current_step, personal, family, academic_current, academic_history, credentials, created_at, updated_at)
        VALUES (:id, :current_step, :personal, :family, :academic_current, :academic_history, :credentials, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create registration draft: %w", err)
	}
	return nil
}

// FindByID loads a draft.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.RegistrationDraft, error) {
	const query = `SELECT id, current_step, personal, family, academic_current, academic_history, credentials, created_at, updated_at
        FROM registration_drafts WHERE id = $1`
	var row registrationDraftRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return row.toModel()
}

// Update persists the current step and field groups.
func (r *RegistrationRepository) Update(ctx context.Context, draft *models.RegistrationDraft) error {
	draft.UpdatedAt = time.Now().UTC()
	row, err := rowFromDraft(draft)
	if err != nil {
		return err
	}
	const query = `UPDATE registration_drafts SET current_step = :current_step, personal = :personal, family = :family,
        academic_current = :academic_current, academic_history = :academic_history, credentials = :credentials, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("update registration draft: %w", err)
	}
	return nil
}

// Delete discards a draft.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM registration_drafts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete registration draft: %w", err)
	}
	return nil
}
