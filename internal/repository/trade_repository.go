package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Trade repository errors.
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository persists closed positions to the trades table — the
// per-day trades record of the durable state layout.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository creates the repository.
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, position_id, underlying, symbol, strike, option_type, qty,
	entry_price, exit_price, entry_time, exit_time, realized_pnl,
	exit_reason, exit_secondary, entry_signal_id`

// Create inserts one closed trade.
func (r *TradeRepository) Create(t *models.TradeRecord) error {
	query := `
		INSERT INTO trades (position_id, underlying, symbol, strike, option_type, qty,
			entry_price, exit_price, entry_time, exit_time, realized_pnl,
			exit_reason, exit_secondary, entry_signal_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	return r.db.QueryRow(
		query,
		t.PositionID,
		t.Underlying,
		t.Symbol,
		t.Strike,
		t.OptionType,
		t.Qty,
		t.EntryPrice,
		t.ExitPrice,
		t.EntryTime,
		t.ExitTime,
		t.RealizedPnl,
		t.ExitReason,
		t.ExitSecondary,
		t.EntrySignalID,
	).Scan(&t.ID)
}

func scanTrade(scanner interface{ Scan(...interface{}) error }) (*models.TradeRecord, error) {
	t := &models.TradeRecord{}
	err := scanner.Scan(
		&t.ID,
		&t.PositionID,
		&t.Underlying,
		&t.Symbol,
		&t.Strike,
		&t.OptionType,
		&t.Qty,
		&t.EntryPrice,
		&t.ExitPrice,
		&t.EntryTime,
		&t.ExitTime,
		&t.RealizedPnl,
		&t.ExitReason,
		&t.ExitSecondary,
		&t.EntrySignalID,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByPositionID returns the trade for a position, if closed.
func (r *TradeRepository) GetByPositionID(positionID string) (*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE position_id = $1`
	t, err := scanTrade(r.db.QueryRow(query, positionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	return t, err
}

// GetRecent returns the most recent trades, newest first.
func (r *TradeRepository) GetRecent(limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY exit_time DESC LIMIT $1`
	return r.queryTrades(query, limit)
}

// GetInRange returns trades with exit_time in [from, to], oldest first.
func (r *TradeRepository) GetInRange(from, to time.Time) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE exit_time >= $1 AND exit_time <= $2
		ORDER BY exit_time ASC`
	return r.queryTrades(query, from, to)
}

// GetByUnderlying returns trades for one underlying, newest first.
func (r *TradeRepository) GetByUnderlying(underlying string, limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE underlying = $1
		ORDER BY exit_time DESC LIMIT $2`
	return r.queryTrades(query, underlying, limit)
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]*models.TradeRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Count returns the total trade count.
func (r *TradeRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&count)
	return count, err
}

// DeleteOlderThan prunes trades exited before the timestamp, returning how
// many rows were removed.
func (r *TradeRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM trades WHERE exit_time < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
