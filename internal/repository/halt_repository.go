package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Halt repository errors.
var (
	ErrHaltNotFound = errors.New("halt override not found")
	ErrHaltExists   = errors.New("halt override already exists")
)

// HaltRepository persists operator-entered manual halts per underlying.
type HaltRepository struct {
	db *sql.DB
}

// NewHaltRepository creates the repository.
func NewHaltRepository(db *sql.DB) *HaltRepository {
	return &HaltRepository{db: db}
}

// Create inserts a halt override.
func (r *HaltRepository) Create(entry *models.HaltOverride) error {
	query := `
		INSERT INTO halt_overrides (underlying, reason, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	entry.CreatedAt = time.Now()
	err := r.db.QueryRow(query, entry.Underlying, entry.Reason, entry.CreatedAt).Scan(&entry.ID)
	if isUniqueViolation(err) {
		return ErrHaltExists
	}
	return err
}

// GetAll returns every halt override, newest first.
func (r *HaltRepository) GetAll() ([]*models.HaltOverride, error) {
	rows, err := r.db.Query(`
		SELECT id, underlying, reason, created_at
		FROM halt_overrides
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.HaltOverride
	for rows.Next() {
		h := &models.HaltOverride{}
		if err := rows.Scan(&h.ID, &h.Underlying, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetByUnderlying returns the halt for one underlying.
func (r *HaltRepository) GetByUnderlying(underlying string) (*models.HaltOverride, error) {
	h := &models.HaltOverride{}
	err := r.db.QueryRow(`
		SELECT id, underlying, reason, created_at
		FROM halt_overrides
		WHERE underlying = $1`, underlying).
		Scan(&h.ID, &h.Underlying, &h.Reason, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHaltNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Exists reports whether an underlying is halted.
func (r *HaltRepository) Exists(underlying string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM halt_overrides WHERE underlying = $1`, underlying).Scan(&count)
	return count > 0, err
}

// Delete removes the halt for an underlying.
func (r *HaltRepository) Delete(underlying string) error {
	res, err := r.db.Exec(`DELETE FROM halt_overrides WHERE underlying = $1`, underlying)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrHaltNotFound
	}
	return nil
}

// DeleteAll clears every halt override.
func (r *HaltRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM halt_overrides`)
	return err
}

// Count returns the halt count.
func (r *HaltRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM halt_overrides`).Scan(&count)
	return count, err
}
