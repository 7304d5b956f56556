package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/en"
)

// TimeOfDay is a wall-clock time in the series timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// clockParser knows only clock rules; date and duration phrases never match.
// HourMinute is added last so "7:05 pm" is not read as "05 pm".
var clockParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.Hour(rules.Override), en.HourMinute(rules.Override))
	return w
}()

// ParseTimeOfDay accepts canonical "HH:MM" and falls back to clock phrases
// such as "7pm" or "7:30 pm". The phrase must be the whole input.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, ErrValidation("time_of_day is required")
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
	}

	invalid := ErrValidationMeta("time_of_day must look like HH:MM or 7pm", map[string]string{"time_of_day": s})
	in := strings.ToLower(s)
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	r, err := clockParser.Parse(in, base)
	if err != nil || r == nil || r.Index != 0 || len(r.Text) != len(in) {
		return TimeOfDay{}, invalid
	}
	tod := TimeOfDay{Hour: r.Time.Hour(), Minute: r.Time.Minute()}
	if !r.Time.Truncate(24*time.Hour).Equal(base) || !tod.Valid() {
		return TimeOfDay{}, invalid
	}
	return tod, nil
}

// On combines a civil date with t in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}
