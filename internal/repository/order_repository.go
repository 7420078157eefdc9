package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Order repository errors.
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository persists order attempts to the orders table. One row per
// submission attempt, keyed back to its position and intent.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates the repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, position_id, intent_id, broker_symbol, side, attempt_index,
	client_order_id, broker_order_id, quantity, limit_price, filled_qty,
	avg_fill_price, status, error_message, created_at, filled_at`

// Create inserts one order attempt row.
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (position_id, intent_id, broker_symbol, side, attempt_index,
			client_order_id, broker_order_id, quantity, limit_price, filled_qty,
			avg_fill_price, status, error_message, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	order.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		order.PositionID,
		order.IntentID,
		order.BrokerSymbol,
		order.Side,
		order.AttemptIndex,
		order.ClientOrderID,
		order.BrokerOrderID,
		order.Quantity,
		order.LimitPrice,
		order.FilledQty,
		order.AvgFillPrice,
		order.Status,
		order.ErrorMessage,
		order.CreatedAt,
		order.FilledAt,
	).Scan(&order.ID)
}

func scanOrder(scanner interface{ Scan(...interface{}) error }) (*models.OrderRecord, error) {
	o := &models.OrderRecord{}
	err := scanner.Scan(
		&o.ID,
		&o.PositionID,
		&o.IntentID,
		&o.BrokerSymbol,
		&o.Side,
		&o.AttemptIndex,
		&o.ClientOrderID,
		&o.BrokerOrderID,
		&o.Quantity,
		&o.LimitPrice,
		&o.FilledQty,
		&o.AvgFillPrice,
		&o.Status,
		&o.ErrorMessage,
		&o.CreatedAt,
		&o.FilledAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID returns one order attempt by row id.
func (r *OrderRepository) GetByID(id int) (*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// GetByClientOrderID resolves an attempt by its idempotency handle.
func (r *OrderRepository) GetByClientOrderID(clientOrderID string) (*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_order_id = $1`
	o, err := scanOrder(r.db.QueryRow(query, clientOrderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// GetByPositionID returns every attempt for a position, newest first.
func (r *OrderRepository) GetByPositionID(positionID string) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE position_id = $1
		ORDER BY created_at DESC`
	return r.queryOrders(query, positionID)
}

// GetRecent returns the most recent attempts.
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`
	return r.queryOrders(query, limit)
}

// GetByStatus filters attempts by persisted status.
func (r *OrderRepository) GetByStatus(status string) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status = $1
		ORDER BY created_at DESC`
	return r.queryOrders(query, status)
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus records a state change with fill details.
func (r *OrderRepository) UpdateStatus(id int, status string, avgFillPrice float64, filledQty int, filledAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, avg_fill_price = $2, filled_qty = $3, filled_at = $4
		WHERE id = $5`
	res, err := r.db.Exec(query, status, avgFillPrice, filledQty, filledAt, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetError records the broker rejection text on an attempt.
func (r *OrderRepository) SetError(id int, errorMessage string) error {
	res, err := r.db.Exec(`UPDATE orders SET error_message = $1 WHERE id = $2`, errorMessage, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Count returns the total attempt count.
func (r *OrderRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count)
	return count, err
}

// CountByStatus returns the attempt count in one status.
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	return count, err
}

// DeleteOlderThan prunes attempts created before the timestamp.
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM orders WHERE created_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
