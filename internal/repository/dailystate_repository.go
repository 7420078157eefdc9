package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Daily-state repository errors.
var (
	ErrDailyStateNotFound = errors.New("daily state not found")
)

// DailyStateRepository persists the per-day strategy state: one row per
// trading day, upserted as the day progresses and finalized at EOD.
type DailyStateRepository struct {
	db *sql.DB
}

// NewDailyStateRepository creates the repository.
func NewDailyStateRepository(db *sql.DB) *DailyStateRepository {
	return &DailyStateRepository{db: db}
}

// Upsert writes the day's state, replacing any existing row for the date.
func (r *DailyStateRepository) Upsert(s *models.DailyState) error {
	query := `
		INSERT INTO daily_states (date, direction, adx, plus_di, minus_di,
			entries_today, realized_pnl_today, consecutive_losses, trading_halted, halt_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (date) DO UPDATE SET
			direction = EXCLUDED.direction,
			adx = EXCLUDED.adx,
			plus_di = EXCLUDED.plus_di,
			minus_di = EXCLUDED.minus_di,
			entries_today = EXCLUDED.entries_today,
			realized_pnl_today = EXCLUDED.realized_pnl_today,
			consecutive_losses = EXCLUDED.consecutive_losses,
			trading_halted = EXCLUDED.trading_halted,
			halt_reason = EXCLUDED.halt_reason`
	_, err := r.db.Exec(query,
		s.Date,
		s.Direction,
		s.ADX,
		s.PlusDI,
		s.MinusDI,
		s.EntriesToday,
		s.RealizedPnlToday,
		s.ConsecutiveLosses,
		s.TradingHalted,
		s.HaltReason,
	)
	return err
}

// GetByDate returns the state for one trading day.
func (r *DailyStateRepository) GetByDate(date time.Time) (*models.DailyState, error) {
	s := &models.DailyState{}
	err := r.db.QueryRow(`
		SELECT date, direction, adx, plus_di, minus_di,
			entries_today, realized_pnl_today, consecutive_losses, trading_halted, halt_reason
		FROM daily_states
		WHERE date = $1`, date).
		Scan(&s.Date, &s.Direction, &s.ADX, &s.PlusDI, &s.MinusDI,
			&s.EntriesToday, &s.RealizedPnlToday, &s.ConsecutiveLosses, &s.TradingHalted, &s.HaltReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDailyStateNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetRecent returns the latest daily states, newest first.
func (r *DailyStateRepository) GetRecent(limit int) ([]*models.DailyState, error) {
	rows, err := r.db.Query(`
		SELECT date, direction, adx, plus_di, minus_di,
			entries_today, realized_pnl_today, consecutive_losses, trading_halted, halt_reason
		FROM daily_states
		ORDER BY date DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DailyState
	for rows.Next() {
		s := &models.DailyState{}
		if err := rows.Scan(&s.Date, &s.Direction, &s.ADX, &s.PlusDI, &s.MinusDI,
			&s.EntriesToday, &s.RealizedPnlToday, &s.ConsecutiveLosses, &s.TradingHalted, &s.HaltReason); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
