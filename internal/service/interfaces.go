package service

import (
	"time"

	"optionscore/internal/models"
)

// Repository interfaces consumed by the services. Declared here so the
// service tests can substitute mocks without touching the database.

// HaltRepositoryInterface is the halt-override store.
type HaltRepositoryInterface interface {
	Create(entry *models.HaltOverride) error
	GetAll() ([]*models.HaltOverride, error)
	GetByUnderlying(underlying string) (*models.HaltOverride, error)
	Exists(underlying string) (bool, error)
	Delete(underlying string) error
	DeleteAll() error
	Count() (int, error)
}

// SettingsRepositoryInterface is the engine-settings store.
type SettingsRepositoryInterface interface {
	Get() (*models.EngineSettings, error)
	Update(settings *models.EngineSettings) error
	UpdateNotificationPrefs(prefs models.NotificationPreferences) error
}

// NotificationRepositoryInterface is the notification journal.
type NotificationRepositoryInterface interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
	GetByTypes(types []string, limit int) ([]*models.Notification, error)
	DeleteAll() error
	DeleteOlderThan(timestamp time.Time) (int64, error)
	Count() (int, error)
}

// StatsRepositoryInterface is the performance aggregator.
type StatsRepositoryInterface interface {
	GetStats() (*models.Stats, error)
}

// TradeRepositoryInterface is the closed-trades store.
type TradeRepositoryInterface interface {
	Create(t *models.TradeRecord) error
	GetRecent(limit int) ([]*models.TradeRecord, error)
	GetInRange(from, to time.Time) ([]*models.TradeRecord, error)
	GetByUnderlying(underlying string, limit int) ([]*models.TradeRecord, error)
}

// CredentialRepositoryInterface is the encrypted-credentials store.
type CredentialRepositoryInterface interface {
	Create(c *models.BrokerCredential) error
	GetByBroker(broker string) (*models.BrokerCredential, error)
	GetAll() ([]*models.BrokerCredential, error)
	UpdateKeys(broker, apiKey, apiSecret, totpSeed string) error
	UpdateConnection(broker string, connected bool, lastError string) error
	Delete(broker string) error
}

// Broadcaster pushes a notification to connected dashboard clients.
type Broadcaster interface {
	BroadcastNotification(n *models.Notification)
}
