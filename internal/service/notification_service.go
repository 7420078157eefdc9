package service

import (
	"time"

	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// Notification types raised by the engine.
const (
	NotifEntry        = "ENTRY"
	NotifExit         = "EXIT"
	NotifStopLoss     = "STOP_LOSS"
	NotifHalt         = "HALT"
	NotifError        = "ERROR"
	NotifMargin       = "MARGIN"
	NotifOrderTimeout = "ORDER_TIMEOUT"
)

// NotificationService creates and serves notifications, honoring the
// per-type delivery toggles and broadcasting to dashboard clients.
type NotificationService struct {
	notifRepo    NotificationRepositoryInterface
	settingsRepo SettingsRepositoryInterface
	broadcaster  Broadcaster
	log          *utils.Logger
}

// NewNotificationService creates the service. broadcaster may be nil.
func NewNotificationService(notifRepo NotificationRepositoryInterface,
	settingsRepo SettingsRepositoryInterface, broadcaster Broadcaster, log *utils.Logger) *NotificationService {
	return &NotificationService{
		notifRepo:    notifRepo,
		settingsRepo: settingsRepo,
		broadcaster:  broadcaster,
		log:          log.WithComponent("notifications"),
	}
}

// Notify creates a notification if its type is enabled in settings,
// persists it, and pushes it to connected clients.
func (s *NotificationService) Notify(notifType, severity, message string, positionID *string, meta map[string]interface{}) error {
	if !s.typeEnabled(notifType) {
		return nil
	}
	n := &models.Notification{
		Timestamp:  time.Now(),
		Type:       notifType,
		Severity:   severity,
		PositionID: positionID,
		Message:    message,
		Meta:       meta,
	}
	if err := s.notifRepo.Create(n); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastNotification(n)
	}
	return nil
}

// typeEnabled consults the settings toggles; on any settings error the
// notification is delivered rather than silently dropped.
func (s *NotificationService) typeEnabled(notifType string) bool {
	if s.settingsRepo == nil {
		return true
	}
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return true
	}
	prefs := settings.NotificationPrefs
	switch notifType {
	case NotifEntry:
		return prefs.Entry
	case NotifExit:
		return prefs.Exit
	case NotifStopLoss:
		return prefs.StopLoss
	case NotifHalt:
		return prefs.Halt
	case NotifError:
		return prefs.APIError
	case NotifMargin:
		return prefs.Margin
	case NotifOrderTimeout:
		return prefs.OrderTimeout
	default:
		return true
	}
}

// Recent returns the latest notifications.
func (s *NotificationService) Recent(limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.notifRepo.GetRecent(limit)
}

// ByTypes filters the journal by notification types.
func (s *NotificationService) ByTypes(types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if len(types) == 0 {
		return s.notifRepo.GetRecent(limit)
	}
	return s.notifRepo.GetByTypes(types, limit)
}

// Clear empties the journal.
func (s *NotificationService) Clear() error {
	return s.notifRepo.DeleteAll()
}

// Prune removes notifications older than the retention window.
func (s *NotificationService) Prune(olderThan time.Duration) (int64, error) {
	return s.notifRepo.DeleteOlderThan(time.Now().Add(-olderThan))
}
