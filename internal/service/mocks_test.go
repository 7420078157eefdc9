package service

import (
	"time"

	"github.com/stretchr/testify/mock"

	"optionscore/internal/models"
)

// mockHaltRepo mocks HaltRepositoryInterface.
type mockHaltRepo struct {
	mock.Mock
}

func (m *mockHaltRepo) Create(entry *models.HaltOverride) error {
	return m.Called(entry).Error(0)
}

func (m *mockHaltRepo) GetAll() ([]*models.HaltOverride, error) {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]*models.HaltOverride), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHaltRepo) GetByUnderlying(underlying string) (*models.HaltOverride, error) {
	args := m.Called(underlying)
	if v := args.Get(0); v != nil {
		return v.(*models.HaltOverride), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHaltRepo) Exists(underlying string) (bool, error) {
	args := m.Called(underlying)
	return args.Bool(0), args.Error(1)
}

func (m *mockHaltRepo) Delete(underlying string) error {
	return m.Called(underlying).Error(0)
}

func (m *mockHaltRepo) DeleteAll() error {
	return m.Called().Error(0)
}

func (m *mockHaltRepo) Count() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// mockSettingsRepo mocks SettingsRepositoryInterface.
type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) Get() (*models.EngineSettings, error) {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(*models.EngineSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSettingsRepo) Update(settings *models.EngineSettings) error {
	return m.Called(settings).Error(0)
}

func (m *mockSettingsRepo) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	return m.Called(prefs).Error(0)
}

// mockNotificationRepo mocks NotificationRepositoryInterface.
type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(n *models.Notification) error {
	return m.Called(n).Error(0)
}

func (m *mockNotificationRepo) GetRecent(limit int) ([]*models.Notification, error) {
	args := m.Called(limit)
	if v := args.Get(0); v != nil {
		return v.([]*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationRepo) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	args := m.Called(types, limit)
	if v := args.Get(0); v != nil {
		return v.([]*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationRepo) DeleteAll() error {
	return m.Called().Error(0)
}

func (m *mockNotificationRepo) DeleteOlderThan(ts time.Time) (int64, error) {
	args := m.Called(ts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockNotificationRepo) Count() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// mockTradeRepo mocks TradeRepositoryInterface.
type mockTradeRepo struct {
	mock.Mock
}

func (m *mockTradeRepo) Create(t *models.TradeRecord) error {
	return m.Called(t).Error(0)
}

func (m *mockTradeRepo) GetRecent(limit int) ([]*models.TradeRecord, error) {
	args := m.Called(limit)
	if v := args.Get(0); v != nil {
		return v.([]*models.TradeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTradeRepo) GetInRange(from, to time.Time) ([]*models.TradeRecord, error) {
	args := m.Called(from, to)
	if v := args.Get(0); v != nil {
		return v.([]*models.TradeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTradeRepo) GetByUnderlying(underlying string, limit int) ([]*models.TradeRecord, error) {
	args := m.Called(underlying, limit)
	if v := args.Get(0); v != nil {
		return v.([]*models.TradeRecord), args.Error(1)
	}
	return nil, args.Error(1)
}
