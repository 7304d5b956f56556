package domain

import (
	"strings"
	"time"
)

type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// TemplateGame holds the fields copied onto every generated instance.
type TemplateGame struct {
	Title           string
	Description     string
	Location        string
	MaxParticipants int
}

func (t TemplateGame) Validate() error {
	title := strings.TrimSpace(t.Title)
	if title == "" || len(title) > 120 {
		return ErrValidation("template title must be non-empty and <= 120 chars")
	}
	if len(t.Description) > 4000 {
		return ErrValidation("template description must be <= 4000 chars")
	}
	if len(t.Location) > 200 {
		return ErrValidation("template location must be <= 200 chars")
	}
	if t.MaxParticipants < 0 {
		return ErrValidation("template max_participants must be >= 0 (0 means unlimited)")
	}
	return nil
}

type Series struct {
	ID        string
	GroupID   string
	Frequency Frequency
	DayOfWeek int // 0 = Sunday

	StartDate time.Time  // civil date, UTC midnight
	EndDate   *time.Time // nil = open ended

	TimeOfDay *TimeOfDay
	Timezone  string // IANA name, empty = UTC

	Template TemplateGame

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (s *Series) Deleted() bool { return s.DeletedAt != nil }

func (s *Series) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, ErrValidationMeta("unknown timezone", map[string]string{"timezone": s.Timezone})
	}
	return loc, nil
}

// Validate checks everything generation depends on. It runs before any write.
func (s *Series) Validate() error {
	if !s.Frequency.Valid() {
		return ErrValidationMeta("frequency must be weekly, biweekly or monthly", map[string]string{"frequency": string(s.Frequency)})
	}
	if s.Frequency != Monthly && (s.DayOfWeek < 0 || s.DayOfWeek > 6) {
		return ErrValidation("day_of_week must be between 0 (Sunday) and 6")
	}
	if s.StartDate.IsZero() {
		return ErrValidation("start_date is required")
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return ErrValidation("end_date must not be before start_date")
	}
	if s.TimeOfDay == nil {
		return ErrValidation("time_of_day is required")
	}
	if !s.TimeOfDay.Valid() {
		return ErrValidation("time_of_day out of range")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// NewSeries validates input and stamps identity fields.
func NewSeries(id, groupID, createdBy string, s Series, now time.Time) (*Series, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, ErrValidation("group_id is required")
	}
	s.ID = id
	s.GroupID = groupID
	s.CreatedBy = createdBy
	if s.Frequency == Monthly {
		s.DayOfWeek = 0
	}
	s.StartDate = CivilDate(s.StartDate)
	if s.EndDate != nil {
		end := CivilDate(*s.EndDate)
		s.EndDate = &end
	}
	s.Template.Title = strings.TrimSpace(s.Template.Title)
	s.Template.Description = strings.TrimSpace(s.Template.Description)
	s.Template.Location = strings.TrimSpace(s.Template.Location)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Template.Validate(); err != nil {
		return nil, err
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return &s, nil
}

// SeriesPatch edits a series. Template edits may cascade to future instances.
type SeriesPatch struct {
	EndDate      *time.Time
	ClearEndDate bool
	Game         GamePatch
}

func (p SeriesPatch) Empty() bool {
	return p.EndDate == nil && !p.ClearEndDate && p.Game.Empty()
}

func (p SeriesPatch) Validate(s *Series) error {
	if p.Empty() {
		return ErrValidation("at least one field must be provided")
	}
	if p.EndDate != nil && p.ClearEndDate {
		return ErrValidation("end_date and clear_end_date are mutually exclusive")
	}
	if p.EndDate != nil && CivilDate(*p.EndDate).Before(s.StartDate) {
		return ErrValidation("end_date must not be before start_date")
	}
	if !p.Game.Empty() {
		return p.Game.Validate()
	}
	return nil
}

func (p SeriesPatch) Apply(s *Series, now time.Time) {
	if p.EndDate != nil {
		end := CivilDate(*p.EndDate)
		s.EndDate = &end
	}
	if p.ClearEndDate {
		s.EndDate = nil
	}
	if p.Game.Title != nil {
		s.Template.Title = strings.TrimSpace(*p.Game.Title)
	}
	if p.Game.Description != nil {
		s.Template.Description = strings.TrimSpace(*p.Game.Description)
	}
	if p.Game.Location != nil {
		s.Template.Location = strings.TrimSpace(*p.Game.Location)
	}
	if p.Game.MaxParticipants != nil {
		s.Template.MaxParticipants = *p.Game.MaxParticipants
	}
	s.UpdatedAt = now
}

// CivilDate drops the clock part and pins the date to UTC midnight.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
