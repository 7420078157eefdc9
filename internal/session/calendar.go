package session

import (
	"time"
)

// Calendar is the NSE trading calendar: weekends plus an operator-supplied
// holiday list. Dates are compared in the exchange zone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool // "2006-01-02" in exchange-local time
}

// NewCalendar builds a calendar for the given zone and holiday dates.
func NewCalendar(loc *time.Location, holidays []string) *Calendar {
	h := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		h[d] = true
	}
	return &Calendar{loc: loc, holidays: h}
}

// IsTradingDay reports whether t falls on a trading day.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[local.Format("2006-01-02")]
}

// NextTradingDay returns the first trading day strictly after t.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := t.In(c.loc).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
}

// Location returns the exchange zone the calendar operates in.
func (c *Calendar) Location() *time.Location { return c.loc }
