package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openregistrar/registrar-api/internal/models"
)

// settingsID pins the singleton row.
const settingsID = "default"

// SettingsRepository manages the singleton institution settings row.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get loads the settings row.
func (r *SettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	const query = `SELECT id, school_name, school_address, registrar_name, principal_name, current_school_year, current_semester, updated_at
        FROM settings WHERE id = $1`
	var settings models.Settings
	if err := r.db.GetContext(ctx, &settings, query, settingsID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes the settings row, creating it on first save.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.Settings) error {
	settings.ID = settingsID
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO settings (id, school_name, school_address, registrar_name, principal_name, current_school_year, current_semester, updated_at)
        VALUES (:id, :school_name, :school_address, :registrar_name, :principal_name, :current_school_year, :current_semester, :updated_at)
        ON CONFLICT (id) DO UPDATE SET school_name = EXCLUDED.school_name, school_address = EXCLUDED.school_address,
        registrar_name = EXCLUDED.registrar_name, principal_name = EXCLUDED.principal_name,
        current_school_year = EXCLUDED.current_school_year, current_semester = EXCLUDED.current_semester,
        updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
