package service

import (
	"strconv"

	"optionscore/internal/bus"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

// TradeService records closed positions into the per-day trades record. It
// subscribes to PositionClosed on the bus so persistence stays off the
// Position Manager's hot path.
type TradeService struct {
	tradeRepo TradeRepositoryInterface
	notifier  *NotificationService
	log       *utils.Logger
}

// NewTradeService creates the service. notifier may be nil.
func NewTradeService(tradeRepo TradeRepositoryInterface, notifier *NotificationService, log *utils.Logger) *TradeService {
	return &TradeService{
		tradeRepo: tradeRepo,
		notifier:  notifier,
		log:       log.WithComponent("trades"),
	}
}

// HandlePositionClosed is the bus handler for PositionClosed events.
func (s *TradeService) HandlePositionClosed(ev bus.Event) {
	pc, ok := ev.(bus.PositionClosedEvent)
	if !ok {
		return
	}
	record := models.TradeFromPosition(pc.Position, ev.At())
	if err := s.tradeRepo.Create(&record); err != nil {
		s.log.Sugar().Errorf("persist trade for %s: %v", pc.Position.ID, err)
		return
	}
	if s.notifier != nil {
		id := pc.Position.ID
		notifType := NotifExit
		if record.ExitReason == "StopLoss" {
			notifType = NotifStopLoss
		}
		_ = s.notifier.Notify(notifType, severityFor(record.RealizedPnl),
			tradeMessage(record), &id, map[string]interface{}{
				"pnl":    record.RealizedPnl,
				"reason": record.ExitReason,
			})
	}
}

// HandlePositionOpened raises the entry notification.
func (s *TradeService) HandlePositionOpened(ev bus.Event) {
	po, ok := ev.(bus.PositionOpenedEvent)
	if !ok || s.notifier == nil {
		return
	}
	id := po.Position.ID
	_ = s.notifier.Notify(NotifEntry, "info", entryMessage(po.Position), &id, map[string]interface{}{
		"symbol": po.Position.Symbol,
		"qty":    po.Position.Qty,
		"price":  po.Position.EntryPrice,
	})
}

func severityFor(pnl float64) string {
	if pnl < 0 {
		return "warning"
	}
	return "info"
}

func tradeMessage(t models.TradeRecord) string {
	return t.Symbol + " closed (" + t.ExitReason + "), pnl " + formatAmount(t.RealizedPnl)
}

func entryMessage(p models.Position) string {
	return p.Symbol + " opened @ " + formatAmount(p.EntryPrice)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
