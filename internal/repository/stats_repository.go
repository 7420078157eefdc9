package repository

import (
	"database/sql"
	"time"

	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// StatsRepository aggregates the trades table into the performance summary
// served on the status surface. Data is grouped by day/week/month windows.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates the repository.
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats computes every aggregate in one pass per window.
func (r *StatsRepository) GetStats() (*models.Stats, error) {
	stats := &models.Stats{}

	var err error
	if stats.TotalTrades, stats.TotalPnl, err = r.windowAggregate(time.Time{}); err != nil {
		return nil, err
	}
	if stats.TodayTrades, stats.TodayPnl, err = r.windowAggregate(utils.GetDayStart()); err != nil {
		return nil, err
	}
	if stats.WeekTrades, stats.WeekPnl, err = r.windowAggregate(utils.GetWeekStart()); err != nil {
		return nil, err
	}
	if stats.MonthTrades, stats.MonthPnl, err = r.windowAggregate(utils.GetMonthStart()); err != nil {
		return nil, err
	}

	if stats.StopLossStats, err = r.stopLossStats(); err != nil {
		return nil, err
	}
	if stats.OrderTimeoutStats, err = r.orderTimeoutStats(); err != nil {
		return nil, err
	}

	if stats.TopUnderlyingByTrades, err = r.topUnderlyings(`COUNT(*)`, `COUNT(*) DESC`, ""); err != nil {
		return nil, err
	}
	if stats.TopUnderlyingByProfit, err = r.topUnderlyings(`SUM(realized_pnl)`, `SUM(realized_pnl) DESC`, `HAVING SUM(realized_pnl) > 0`); err != nil {
		return nil, err
	}
	if stats.TopUnderlyingByLoss, err = r.topUnderlyings(`SUM(realized_pnl)`, `SUM(realized_pnl) ASC`, `HAVING SUM(realized_pnl) < 0`); err != nil {
		return nil, err
	}

	return stats, nil
}

// windowAggregate counts trades and sums P&L since the cutoff (zero time
// means all history).
func (r *StatsRepository) windowAggregate(since time.Time) (int, float64, error) {
	var count int
	var pnl sql.NullFloat64
	var err error
	if since.IsZero() {
		err = r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(realized_pnl), 0) FROM trades`).
			Scan(&count, &pnl)
	} else {
		err = r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(realized_pnl), 0) FROM trades WHERE exit_time >= $1`, since).
			Scan(&count, &pnl)
	}
	return count, pnl.Float64, err
}

func (r *StatsRepository) stopLossStats() (models.StopLossStats, error) {
	out := models.StopLossStats{}
	counts := []struct {
		since time.Time
		dst   *int
	}{
		{utils.GetDayStart(), &out.Today},
		{utils.GetWeekStart(), &out.Week},
		{utils.GetMonthStart(), &out.Month},
	}
	for _, c := range counts {
		err := r.db.QueryRow(
			`SELECT COUNT(*) FROM trades WHERE exit_reason = 'StopLoss' AND exit_time >= $1`, c.since).
			Scan(c.dst)
		if err != nil {
			return out, err
		}
	}

	rows, err := r.db.Query(`
		SELECT symbol, underlying, exit_time
		FROM trades
		WHERE exit_reason = 'StopLoss'
		ORDER BY exit_time DESC
		LIMIT 20`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var e models.StopLossEvent
		if err := rows.Scan(&e.Symbol, &e.Underlying, &e.Timestamp); err != nil {
			return out, err
		}
		out.Events = append(out.Events, e)
	}
	return out, rows.Err()
}

func (r *StatsRepository) orderTimeoutStats() (models.OrderTimeoutStats, error) {
	out := models.OrderTimeoutStats{}
	counts := []struct {
		since time.Time
		dst   *int
	}{
		{utils.GetDayStart(), &out.Today},
		{utils.GetWeekStart(), &out.Week},
		{utils.GetMonthStart(), &out.Month},
	}
	for _, c := range counts {
		err := r.db.QueryRow(
			`SELECT COUNT(*) FROM orders WHERE status = $1 AND created_at >= $2`,
			models.OrderStatusTimedOut, c.since).
			Scan(c.dst)
		if err != nil {
			return out, err
		}
	}

	rows, err := r.db.Query(`
		SELECT broker_symbol, side, created_at
		FROM orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT 20`, models.OrderStatusTimedOut)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var e models.OrderTimeoutEvent
		if err := rows.Scan(&e.Symbol, &e.Side, &e.Timestamp); err != nil {
			return out, err
		}
		out.Events = append(out.Events, e)
	}
	return out, rows.Err()
}

func (r *StatsRepository) topUnderlyings(valueExpr, orderBy, having string) ([]models.UnderlyingStat, error) {
	query := `
		SELECT underlying, ` + valueExpr + `
		FROM trades
		GROUP BY underlying ` + having + `
		ORDER BY ` + orderBy + `
		LIMIT 5`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UnderlyingStat
	for rows.Next() {
		var s models.UnderlyingStat
		if err := rows.Scan(&s.Underlying, &s.Value); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
