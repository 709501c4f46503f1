package lifecycle

import (
	"time"

	"scoreboard/internal/model"
)

// Elapsed is the time since the current half started, zero unless playing
func Elapsed(m model.Match, now time.Time) time.Duration {
	if m.Status != model.StatusPlaying || m.StartTime <= 0 {
		return 0
	}
	d := now.Sub(time.UnixMilli(m.StartTime))
	if d < 0 {
		return 0
	}
	return d
}

// DisplayStatus derives what observers show: a waiting match with a future
// scheduled time reads as scheduled, a stored scheduled whose time has
// passed reads as waiting.
func DisplayStatus(m model.Match, now time.Time) model.Status {
	if m.Status != model.StatusWaiting && m.Status != model.StatusScheduled {
		return m.Status
	}
	if m.ScheduledTime != nil && *m.ScheduledTime > model.Millis(now) {
		return model.StatusScheduled
	}
	return model.StatusWaiting
}

// Clock is the HH:MM:SS label observers render: live while playing, the
// last synced value otherwise.
func Clock(m model.Match, now time.Time) string {
	if m.Status == model.StatusPlaying {
		return model.FormatClock(Elapsed(m, now))
	}
	if m.Time == "" {
		return "00:00:00"
	}
	return m.Time
}

// View is a match as an observer renders it at one instant
type View struct {
	Match         model.Match  `json:"match"`
	ID            string       `json:"id"`
	DisplayStatus model.Status `json:"displayStatus"`
	StatusText    string       `json:"statusText"`
	Clock         string       `json:"clock"`
	DisplayDate   string       `json:"displayDate"`
}

// Render computes the observer-side fields of a match
func Render(m model.Match, now time.Time, loc *time.Location) View {
	status := DisplayStatus(m, now)
	return View{
		Match:         m,
		ID:            m.ID,
		DisplayStatus: status,
		StatusText:    status.Text(),
		Clock:         Clock(m, now),
		DisplayDate:   model.DisplayDate(m, loc),
	}
}
