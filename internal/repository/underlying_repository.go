package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Underlying repository errors.
var (
	ErrUnderlyingNotFound = errors.New("underlying not found")
	ErrUnderlyingExists   = errors.New("underlying already exists")
)

// UnderlyingRepository persists the watched-underlying rows (strike
// geometry, status, accumulated stats).
type UnderlyingRepository struct {
	db *sql.DB
}

// NewUnderlyingRepository creates the repository.
func NewUnderlyingRepository(db *sql.DB) *UnderlyingRepository {
	return &UnderlyingRepository{db: db}
}

const underlyingColumns = `id, underlying, strike_increment, strike_subscription_count,
	status, trades_count, total_pnl, created_at, updated_at`

// Create inserts a watch row.
func (r *UnderlyingRepository) Create(w *models.UnderlyingWatch) error {
	query := `
		INSERT INTO underlyings (underlying, strike_increment, strike_subscription_count,
			status, trades_count, total_pnl, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		w.Underlying,
		w.StrikeIncrement,
		w.StrikeSubscriptionCount,
		w.Status,
		w.TradesCount,
		w.TotalPnl,
		w.CreatedAt,
		w.UpdatedAt,
	).Scan(&w.ID)
	if isUniqueViolation(err) {
		return ErrUnderlyingExists
	}
	return err
}

func scanUnderlying(scanner interface{ Scan(...interface{}) error }) (*models.UnderlyingWatch, error) {
	w := &models.UnderlyingWatch{}
	err := scanner.Scan(
		&w.ID,
		&w.Underlying,
		&w.StrikeIncrement,
		&w.StrikeSubscriptionCount,
		&w.Status,
		&w.TradesCount,
		&w.TotalPnl,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetAll returns every watch row.
func (r *UnderlyingRepository) GetAll() ([]*models.UnderlyingWatch, error) {
	rows, err := r.db.Query(`SELECT ` + underlyingColumns + ` FROM underlyings ORDER BY underlying`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.UnderlyingWatch
	for rows.Next() {
		w, err := scanUnderlying(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetActive returns only active watches.
func (r *UnderlyingRepository) GetActive() ([]*models.UnderlyingWatch, error) {
	rows, err := r.db.Query(`SELECT `+underlyingColumns+` FROM underlyings WHERE status = $1 ORDER BY underlying`,
		models.WatchStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.UnderlyingWatch
	for rows.Next() {
		w, err := scanUnderlying(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetByName returns the watch row for one underlying.
func (r *UnderlyingRepository) GetByName(underlying string) (*models.UnderlyingWatch, error) {
	w, err := scanUnderlying(r.db.QueryRow(
		`SELECT `+underlyingColumns+` FROM underlyings WHERE underlying = $1`, underlying))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnderlyingNotFound
	}
	return w, err
}

// UpdateStatus flips a watch between paused and active.
func (r *UnderlyingRepository) UpdateStatus(underlying, status string) error {
	res, err := r.db.Exec(
		`UPDATE underlyings SET status = $1, updated_at = $2 WHERE underlying = $3`,
		status, time.Now(), underlying)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnderlyingNotFound
	}
	return nil
}

// RecordTrade accumulates a closed trade into the watch row.
func (r *UnderlyingRepository) RecordTrade(underlying string, pnl float64) error {
	res, err := r.db.Exec(`
		UPDATE underlyings
		SET trades_count = trades_count + 1, total_pnl = total_pnl + $1, updated_at = $2
		WHERE underlying = $3`,
		pnl, time.Now(), underlying)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnderlyingNotFound
	}
	return nil
}

// Delete removes a watch row.
func (r *UnderlyingRepository) Delete(underlying string) error {
	res, err := r.db.Exec(`DELETE FROM underlyings WHERE underlying = $1`, underlying)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUnderlyingNotFound
	}
	return nil
}
