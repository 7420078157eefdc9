package repository

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"optionscore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NotificationRepository persists engine notifications for the control
// surface's journal view.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts one notification. Meta is stored as a JSON blob.
func (r *NotificationRepository) Create(n *models.Notification) error {
	query := `
		INSERT INTO notifications (timestamp, type, severity, position_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return err
	}
	return r.db.QueryRow(query, n.Timestamp, n.Type, n.Severity, n.PositionID, n.Message, meta).Scan(&n.ID)
}

func scanNotification(scanner interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	n := &models.Notification{}
	var meta []byte
	err := scanner.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &n.PositionID, &n.Message, &meta)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &n.Meta)
	}
	return n, nil
}

// GetRecent returns the latest notifications, newest first.
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, position_id, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`
	return r.queryNotifications(query, limit)
}

// GetByTypes filters by notification type.
func (r *NotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, position_id, message, meta
		FROM notifications
		WHERE type = ANY($1)
		ORDER BY timestamp DESC
		LIMIT $2`
	return r.queryNotifications(query, pq.Array(types), limit)
}

func (r *NotificationRepository) queryNotifications(query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteAll clears the journal.
func (r *NotificationRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM notifications`)
	return err
}

// DeleteOlderThan prunes old notifications, returning the removed count.
func (r *NotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the journal size.
func (r *NotificationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}
