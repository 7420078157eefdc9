package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"optionscore/internal/models"
)

func defaultSettings() *models.EngineSettings {
	three := 3
	return &models.EngineSettings{
		ID:                  1,
		MaxConcurrentTrades: &three,
		NotificationPrefs: models.NotificationPreferences{
			Entry: true, Exit: true, StopLoss: true,
		},
	}
}

func TestUpdateSettingsPartial(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo)

	repo.On("Get").Return(defaultSettings(), nil)
	repo.On("Update", mock.MatchedBy(func(s *models.EngineSettings) bool {
		return s.MaxConcurrentTrades != nil && *s.MaxConcurrentTrades == 2
	})).Return(nil)

	two := 2
	updated, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentTrades: &two})
	require.NoError(t, err)
	require.NotNil(t, updated.MaxConcurrentTrades)
	assert.Equal(t, 2, *updated.MaxConcurrentTrades)
	// Untouched fields survive.
	assert.True(t, updated.NotificationPrefs.Entry)
}

func TestUpdateSettingsRejectsZeroCap(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo)
	repo.On("Get").Return(defaultSettings(), nil)

	zero := 0
	_, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentTrades: &zero})
	assert.ErrorIs(t, err, ErrInvalidMaxConcurrentTrades)
}

func TestUpdateSettingsClearCap(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo)

	repo.On("Get").Return(defaultSettings(), nil)
	repo.On("Update", mock.MatchedBy(func(s *models.EngineSettings) bool {
		return s.MaxConcurrentTrades == nil
	})).Return(nil)

	updated, err := svc.UpdateSettings(&UpdateSettingsRequest{ClearMaxConcurrentTrades: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxConcurrentTrades)
}

func TestUpdateNotificationPrefsOnly(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo)

	prefs := models.NotificationPreferences{Entry: true, Halt: true}
	repo.On("UpdateNotificationPrefs", prefs).Return(nil)
	require.NoError(t, svc.UpdateNotificationPrefs(prefs))
	repo.AssertExpectations(t)
}
