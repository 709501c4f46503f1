package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
)

// exact layouts are tried before natural language
var scheduleLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"02.01.2006 15:04",
}

var scheduleParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}()

// ParseSchedule reads a kickoff time such as "2024-06-05 18:30",
// "05.06.2024 18:30", "tomorrow at 6pm" or "in 2 hours", relative to now in
// loc. The result must lie in the future.
func ParseSchedule(input string, now time.Time, loc *time.Location) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty schedule")
	}
	if loc == nil {
		loc = time.Local
	}

	var at time.Time
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			at = t
			break
		}
	}
	if at.IsZero() {
		r, err := scheduleParser.Parse(input, now.In(loc))
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse schedule %q: %w", input, err)
		}
		if r == nil {
			return time.Time{}, fmt.Errorf("could not understand schedule %q", input)
		}
		at = r.Time
	}

	if !at.After(now) {
		return time.Time{}, fmt.Errorf("scheduled time %s is in the past", at.In(loc).Format("02.01.2006 15:04"))
	}
	return at, nil
}
