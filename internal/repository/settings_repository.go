package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Settings repository errors.
var (
	ErrSettingsNotFound = errors.New("settings row not found")
)

// SettingsRepository persists the single engine-settings row (always id=1),
// editable from the control surface without a restart.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates the repository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row.
func (r *SettingsRepository) Get() (*models.EngineSettings, error) {
	s := &models.EngineSettings{}
	var prefs []byte
	err := r.db.QueryRow(`
		SELECT id, max_concurrent_trades, notification_prefs, updated_at
		FROM settings
		WHERE id = 1`).
		Scan(&s.ID, &s.MaxConcurrentTrades, &prefs, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &s.NotificationPrefs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Update replaces the settings row.
func (r *SettingsRepository) Update(s *models.EngineSettings) error {
	prefs, err := json.Marshal(s.NotificationPrefs)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	res, err := r.db.Exec(`
		UPDATE settings
		SET max_concurrent_trades = $1, notification_prefs = $2, updated_at = $3
		WHERE id = 1`,
		s.MaxConcurrentTrades, prefs, s.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}

// UpdateNotificationPrefs updates only the notification toggles.
func (r *SettingsRepository) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	blob, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	res, err := r.db.Exec(`
		UPDATE settings
		SET notification_prefs = $1, updated_at = $2
		WHERE id = 1`,
		blob, time.Now())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}
