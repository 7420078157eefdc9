package service

import (
	"time"

	"optionscore/internal/models"
)

// StatsService serves the aggregated performance summary and trade history
// for the status surface.
type StatsService struct {
	statsRepo StatsRepositoryInterface
	tradeRepo TradeRepositoryInterface
}

// NewStatsService creates the service.
func NewStatsService(statsRepo StatsRepositoryInterface, tradeRepo TradeRepositoryInterface) *StatsService {
	return &StatsService{statsRepo: statsRepo, tradeRepo: tradeRepo}
}

// GetStats returns the full aggregate summary.
func (s *StatsService) GetStats() (*models.Stats, error) {
	return s.statsRepo.GetStats()
}

// RecentTrades returns the latest closed trades.
func (s *StatsService) RecentTrades(limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.tradeRepo.GetRecent(limit)
}

// TradesForDay returns the closed trades of one trading day.
func (s *StatsService) TradesForDay(day time.Time) ([]*models.TradeRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.tradeRepo.GetInRange(start, start.AddDate(0, 0, 1).Add(-time.Nanosecond))
}

// TradesForUnderlying returns recent trades for one underlying.
func (s *StatsService) TradesForUnderlying(underlying string, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.tradeRepo.GetByUnderlying(underlying, limit)
}
