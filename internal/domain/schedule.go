package domain

import "time"

// InstanceDates expands s into civil dates inside [from, to], both inclusive.
// Weekly and biweekly phases are anchored on the first matching weekday on or
// after the series start, so the result does not depend on the window.
func InstanceDates(s *Series, from, to time.Time) ([]time.Time, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	from, to = CivilDate(from), CivilDate(to)
	if from.After(to) {
		return nil, ErrValidationMeta("from must not be after to", map[string]string{
			"from": from.Format(time.DateOnly),
			"to":   to.Format(time.DateOnly),
		})
	}

	start := from
	if s.StartDate.After(start) {
		start = s.StartDate
	}
	end := to
	if s.EndDate != nil && s.EndDate.Before(end) {
		end = *s.EndDate
	}
	if start.After(end) {
		return nil, nil
	}

	switch s.Frequency {
	case Monthly:
		return monthlyDates(s.StartDate.Day(), start, end), nil
	case Biweekly:
		return steppedDates(anchorWeekday(s.StartDate, s.DayOfWeek), 14, start, end), nil
	default:
		return steppedDates(anchorWeekday(s.StartDate, s.DayOfWeek), 7, start, end), nil
	}
}

func anchorWeekday(d time.Time, dow int) time.Time {
	shift := (dow - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, shift)
}

func steppedDates(anchor time.Time, step int, start, end time.Time) []time.Time {
	first := anchor
	if first.Before(start) {
		gap := daysBetween(anchor, start)
		k := (gap + step - 1) / step
		first = anchor.AddDate(0, 0, k*step)
	}
	var out []time.Time
	for d := first; !d.After(end); d = d.AddDate(0, 0, step) {
		out = append(out, d)
	}
	return out
}

func monthlyDates(day int, start, end time.Time) []time.Time {
	var out []time.Time
	y, m, _ := start.Date()
	for cur := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC); !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		d := day
		if last := daysIn(cur.Year(), cur.Month()); d > last {
			d = last
		}
		date := time.Date(cur.Year(), cur.Month(), d, 0, 0, 0, 0, time.UTC)
		if date.Before(start) || date.After(end) {
			continue
		}
		out = append(out, date)
	}
	return out
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// NewInstance builds the game for one series date. The caller has already
// validated s.
func NewInstance(id string, s *Series, date time.Time, createdBy string, now time.Time) (*Game, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	day := CivilDate(date)
	return &Game{
		ID:                  id,
		GroupID:             s.GroupID,
		SeriesID:            s.ID,
		InstanceDate:        &day,
		Title:               s.Template.Title,
		Description:         s.Template.Description,
		Location:            s.Template.Location,
		ScheduledTime:       s.TimeOfDay.On(day, loc).UTC(),
		Status:              GameUpcoming,
		MaxParticipants:     s.Template.MaxParticipants,
		CurrentParticipants: 0,
		CreatedBy:           createdBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}
