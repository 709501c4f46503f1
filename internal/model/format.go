package model

import (
	"fmt"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	dayLayout     = "02.01.2006"
	dayTimeLayout = "02.01.2006 15:04"
)

// FormatClock renders d as HH:MM:SS, clamping negative durations to zero
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatHalfClock renders d as MM:SS. Minutes are uncapped and widen past 99.
func FormatHalfClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatDay renders a YYYY-MM-DD date as DD.MM.YYYY, passing through anything unparsable
func FormatDay(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(dayLayout)
}

// FormatDayTime renders an epoch-ms instant as DD.MM.YYYY HH:MM in loc
func FormatDayTime(ms int64, loc *time.Location) string {
	return FromMillis(ms, loc).Format(dayTimeLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DisplayDate labels a match card: played matches show their match date,
// upcoming ones the scheduled or creation instant.
func DisplayDate(m Match, loc *time.Location) string {
	if !m.Status.Upcoming() && m.MatchDate != nil && *m.MatchDate != "" {
		return FormatDay(*m.MatchDate)
	}
	switch {
	case m.ScheduledTime != nil:
		return FormatDayTime(*m.ScheduledTime, loc)
	case m.CreatedAt > 0:
		return FormatDayTime(m.CreatedAt, loc)
	}
	return "-"
}
