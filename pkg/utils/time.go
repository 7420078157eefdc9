package utils

import (
	"fmt"
	"time"
)

// time.go - period and clock helpers.
//
// Two audiences share this file: the stats layer aggregates trades over
// day/week/month ranges, and the session clock anchors bar boundaries and
// trading windows on exchange-local wall-clock times.

// ============================================================
// Period boundaries (stats aggregation)
// ============================================================

// GetDayStart returns the start of the current day (00:00:00 UTC).
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom returns the start of day for the given time, in UTC.
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd returns the end of the current day (23:59:59.999999999 UTC).
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom returns the end of day for the given time.
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetWeekStart returns Monday 00:00:00 UTC of the current ISO week.
func GetWeekStart() time.Time {
	return GetWeekStartFrom(time.Now().UTC())
}

// GetWeekStartFrom returns Monday 00:00:00 UTC of the week containing t.
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 { // Sunday maps to 7 under ISO 8601
		weekday = 7
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetWeekEnd returns Sunday 23:59:59.999999999 UTC of the current week.
func GetWeekEnd() time.Time {
	return GetWeekEndFrom(time.Now().UTC())
}

// GetWeekEndFrom returns the end of the week containing t.
func GetWeekEndFrom(t time.Time) time.Time {
	sunday := GetWeekStartFrom(t).AddDate(0, 0, 6)
	return time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetMonthStart returns the 1st 00:00:00 UTC of the current month.
func GetMonthStart() time.Time {
	return GetMonthStartFrom(time.Now().UTC())
}

// GetMonthStartFrom returns the 1st 00:00:00 UTC of t's month.
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetMonthEnd returns the last instant of the current month.
func GetMonthEnd() time.Time {
	return GetMonthEndFrom(time.Now().UTC())
}

// GetMonthEndFrom returns the last instant of t's month.
func GetMonthEndFrom(t time.Time) time.Time {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.Add(-time.Nanosecond)
}

// GetYearStart returns Jan 1 00:00:00 UTC of the current year.
func GetYearStart() time.Time {
	return GetYearStartFrom(time.Now().UTC())
}

// GetYearStartFrom returns Jan 1 00:00:00 UTC of t's year.
func GetYearStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// GetYearEnd returns the last instant of the current year.
func GetYearEnd() time.Time {
	return GetYearEndFrom(time.Now().UTC())
}

// GetYearEndFrom returns the last instant of t's year.
func GetYearEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.December, 31, 23, 59, 59, 999999999, time.UTC)
}

// ============================================================
// Ranges
// ============================================================

// TimeRange is a closed [Start, End] interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns the span of the range.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetDayRange returns today's range.
func GetDayRange() TimeRange {
	return TimeRange{Start: GetDayStart(), End: GetDayEnd()}
}

// GetWeekRange returns this week's range.
func GetWeekRange() TimeRange {
	return TimeRange{Start: GetWeekStart(), End: GetWeekEnd()}
}

// GetMonthRange returns this month's range.
func GetMonthRange() TimeRange {
	return TimeRange{Start: GetMonthStart(), End: GetMonthEnd()}
}

// GetLastNDays returns the range covering the last n days including today.
func GetLastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   GetDayEndFrom(now),
	}
}

// GetLastNHours returns the range covering the last n hours.
func GetLastNHours(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{Start: now.Add(-time.Duration(n) * time.Hour), End: now}
}

// PeriodType selects a stats aggregation window.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodAll   PeriodType = "all"
)

// GetPeriodStart returns the start of the given period type.
func GetPeriodStart(period PeriodType) time.Time {
	switch period {
	case PeriodWeek:
		return GetWeekStart()
	case PeriodMonth:
		return GetMonthStart()
	case PeriodYear:
		return GetYearStart()
	case PeriodAll:
		return time.Time{}
	default:
		return GetDayStart()
	}
}

// GetPeriodRange returns the range for the given period type.
func GetPeriodRange(period PeriodType) TimeRange {
	switch period {
	case PeriodWeek:
		return GetWeekRange()
	case PeriodMonth:
		return GetMonthRange()
	case PeriodYear:
		return TimeRange{Start: GetYearStart(), End: GetYearEnd()}
	case PeriodAll:
		return TimeRange{Start: time.Time{}, End: time.Now().UTC()}
	default:
		return GetDayRange()
	}
}

// IsInPeriod reports whether t falls in the given period.
func IsInPeriod(t time.Time, period PeriodType) bool {
	return GetPeriodRange(period).Contains(t)
}

// ToUTC normalizes a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ============================================================
// Exchange-local clock times
// ============================================================

// ClockTime is a wall-clock time of day (e.g. 09:15) with no date attached.
// Session windows and bar boundaries are defined as ClockTimes in the
// exchange's zone and resolved onto concrete dates with On.
type ClockTime struct {
	Hour   int
	Minute int
}

// NewClockTime builds a ClockTime, normalizing out-of-range values.
func NewClockTime(hour, minute int) ClockTime {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

// On resolves the clock time onto ref's date, in ref's location.
func (c ClockTime) On(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), c.Hour, c.Minute, 0, 0, ref.Location())
}

// Before reports whether c is earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Hour < o.Hour || (c.Hour == o.Hour && c.Minute < o.Minute)
}

// String formats as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// IST returns the exchange zone, falling back to a fixed +05:30 offset when
// the zone database is unavailable.
func IST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// ============================================================
// Formatting and timestamps
// ============================================================

// FormatDuration renders a duration like "2h15m0s", "5m30s" or "45s",
// keeping only its two leading units; from a day up only whole hours are
// kept ("72h0m0s"). A negative duration renders as its absolute value.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return (time.Duration(days*24+hours) * time.Hour).String()
	case hours > 0:
		return (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute).String()
	case minutes > 0:
		return (time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second).String()
	default:
		return (time.Duration(seconds) * time.Second).String()
	}
}

// UnixMillis returns the current Unix time in milliseconds.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis converts Unix milliseconds to a UTC time.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
