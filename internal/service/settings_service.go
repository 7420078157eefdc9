package service

import (
	"errors"

	"optionscore/internal/models"
)

// Settings service errors.
var (
	ErrInvalidMaxConcurrentTrades = errors.New("max_concurrent_trades must be >= 1 or null")
)

// SettingsService manages the globally adjustable runtime settings:
// validation, partial updates, and the notification toggles.
type SettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

// NewSettingsService creates the service.
func NewSettingsService(settingsRepo SettingsRepositoryInterface) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

// GetSettings returns the current settings row.
func (s *SettingsService) GetSettings() (*models.EngineSettings, error) {
	return s.settingsRepo.Get()
}

// UpdateSettingsRequest is a partial update: only non-nil fields change.
type UpdateSettingsRequest struct {
	MaxConcurrentTrades *int                             `json:"max_concurrent_trades,omitempty"`
	NotificationPrefs   *models.NotificationPreferences  `json:"notification_prefs,omitempty"`
	// ClearMaxConcurrentTrades explicitly resets the cap to null (engine
	// falls back to the risk config's MAX_POSITIONS).
	ClearMaxConcurrentTrades bool `json:"clear_max_concurrent_trades,omitempty"`
}

// UpdateSettings applies a partial update after validation.
func (s *SettingsService) UpdateSettings(req *UpdateSettingsRequest) (*models.EngineSettings, error) {
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return nil, err
	}

	if req.ClearMaxConcurrentTrades {
		settings.MaxConcurrentTrades = nil
	} else if req.MaxConcurrentTrades != nil {
		if *req.MaxConcurrentTrades < 1 {
			return nil, ErrInvalidMaxConcurrentTrades
		}
		v := *req.MaxConcurrentTrades
		settings.MaxConcurrentTrades = &v
	}
	if req.NotificationPrefs != nil {
		settings.NotificationPrefs = *req.NotificationPrefs
	}

	if err := s.settingsRepo.Update(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// UpdateNotificationPrefs replaces only the notification toggles.
func (s *SettingsService) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(prefs)
}
