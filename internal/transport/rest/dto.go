package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/domain"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names in error meta
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs the struct tags.
// An empty body is allowed when allowEmpty is set.
func decodeAndValidate(r *http.Request, dst any, allowEmpty bool) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return domain.ErrValidation("invalid body")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return domain.ErrValidation(err.Error())
	}
	meta := make(map[string]string, len(ves))
	for _, fe := range ves {
		meta[fe.Field()] = formatFieldError(fe)
	}
	return domain.ErrValidationMeta("invalid request", meta)
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "timezone":
		return "must be an IANA timezone"
	default:
		return "is invalid"
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, domain.ErrValidationMeta("invalid date", map[string]string{"date": s})
	}
	return t, nil
}

// ---- roster ----

type registerRequest struct {
	// UserID lets a manager register someone else; empty means the caller.
	UserID  string `json:"user_id" validate:"omitempty,max=64"`
	IsGuest bool   `json:"is_guest"`
}

type capacityRequest struct {
	MaxParticipants *int `json:"max_participants" validate:"required,min=0"`
}

type cancelGameRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

type attendanceEntry struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Attended *bool  `json:"attended" validate:"required"`
}

type resultsRequest struct {
	Attendance []attendanceEntry `json:"attendance" validate:"required,min=1,dive"`
}

func (r resultsRequest) sheet() []domain.Attendance {
	out := make([]domain.Attendance, 0, len(r.Attendance))
	for _, a := range r.Attendance {
		out = append(out, domain.Attendance{UserID: strings.TrimSpace(a.UserID), Attended: *a.Attended})
	}
	return out
}

// overrideRequest with a null score clears the override.
type overrideRequest struct {
	Score *int `json:"score" validate:"omitempty,min=0,max=100"`
}

type participantView struct {
	GameID           string     `json:"game_id"`
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	IsGuest          bool       `json:"is_guest"`
	PriorityScore    *int       `json:"priority_score,omitempty"`
	WaitlistJoinedAt *time.Time `json:"waitlist_joined_at,omitempty"`
	RegisteredAt     time.Time  `json:"registered_at"`
}

func toParticipantViews(ps []domain.Participant) []participantView {
	out := make([]participantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, participantView{
			GameID:           p.GameID,
			UserID:           p.UserID,
			Status:           string(p.Status),
			IsGuest:          p.IsGuest,
			PriorityScore:    p.PriorityScore,
			WaitlistJoinedAt: p.WaitlistJoinedAt,
			RegisteredAt:     p.RegisteredAt,
		})
	}
	return out
}

type cancelGameView struct {
	GameID   string `json:"game_id"`
	Status   string `json:"status"`
	Declined int    `json:"declined"`
}

type waitlistRunView struct {
	GameID   string `json:"game_id"`
	Promoted int    `json:"promoted"`
}

// ---- series ----

type createSeriesRequest struct {
	GroupID         string `json:"group_id" validate:"required,max=64"`
	Frequency       string `json:"frequency" validate:"required,oneof=weekly biweekly monthly"`
	DayOfWeek       int    `json:"day_of_week" validate:"min=0,max=6"`
	StartDate       string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	TimeOfDay       string `json:"time_of_day" validate:"required,max=32"`
	Timezone        string `json:"timezone" validate:"omitempty,timezone"`
	Title           string `json:"title" validate:"required,max=120"`
	Description     string `json:"description" validate:"max=4000"`
	Location        string `json:"location" validate:"max=200"`
	MaxParticipants int    `json:"max_participants" validate:"min=0"`
}

func (r createSeriesRequest) toDomain() (domain.Series, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return domain.Series{}, err
	}
	s := domain.Series{
		Frequency: domain.Frequency(strings.ToLower(r.Frequency)),
		DayOfWeek: r.DayOfWeek,
		StartDate: start,
		Timezone:  strings.TrimSpace(r.Timezone),
		Template: domain.TemplateGame{
			Title:           r.Title,
			Description:     r.Description,
			Location:        r.Location,
			MaxParticipants: r.MaxParticipants,
		},
	}
	if r.EndDate != "" {
		end, err := parseDate(r.EndDate)
		if err != nil {
			return domain.Series{}, err
		}
		s.EndDate = &end
	}
	tod, err := domain.ParseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return domain.Series{}, err
	}
	s.TimeOfDay = &tod
	return s, nil
}

type generateRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

type gamePatchRequest struct {
	Title           *string `json:"title" validate:"omitempty,max=120"`
	Description     *string `json:"description" validate:"omitempty,max=4000"`
	Location        *string `json:"location" validate:"omitempty,max=200"`
	MaxParticipants *int    `json:"max_participants" validate:"omitempty,min=0"`
}

func (r gamePatchRequest) toDomain() domain.GamePatch {
	return domain.GamePatch{
		Title:           r.Title,
		Description:     r.Description,
		Location:        r.Location,
		MaxParticipants: r.MaxParticipants,
	}
}

type updateSeriesRequest struct {
	gamePatchRequest
	EndDate      *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ClearEndDate bool    `json:"clear_end_date"`
	// Cascade copies template edits onto future instances.
	Cascade bool `json:"cascade"`
}

func (r updateSeriesRequest) toDomain() (domain.SeriesPatch, error) {
	p := domain.SeriesPatch{ClearEndDate: r.ClearEndDate, Game: r.gamePatchRequest.toDomain()}
	if r.EndDate != nil {
		end, err := parseDate(*r.EndDate)
		if err != nil {
			return domain.SeriesPatch{}, err
		}
		p.EndDate = &end
	}
	return p, nil
}

type seriesView struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id"`
	Frequency       string     `json:"frequency"`
	DayOfWeek       int        `json:"day_of_week"`
	StartDate       string     `json:"start_date"`
	EndDate         *string    `json:"end_date,omitempty"`
	TimeOfDay       string     `json:"time_of_day"`
	Timezone        string     `json:"timezone"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	MaxParticipants int        `json:"max_participants"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

func toSeriesView(s *domain.Series) seriesView {
	v := seriesView{
		ID:              s.ID,
		GroupID:         s.GroupID,
		Frequency:       string(s.Frequency),
		DayOfWeek:       s.DayOfWeek,
		StartDate:       s.StartDate.Format(time.DateOnly),
		Timezone:        s.Timezone,
		Title:           s.Template.Title,
		Description:     s.Template.Description,
		Location:        s.Template.Location,
		MaxParticipants: s.Template.MaxParticipants,
		CreatedBy:       s.CreatedBy,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		DeletedAt:       s.DeletedAt,
	}
	if v.Timezone == "" {
		v.Timezone = "UTC"
	}
	if s.TimeOfDay != nil {
		v.TimeOfDay = s.TimeOfDay.String()
	}
	if s.EndDate != nil {
		end := s.EndDate.Format(time.DateOnly)
		v.EndDate = &end
	}
	return v
}

type gameView struct {
	ID                  string    `json:"id"`
	GroupID             string    `json:"group_id"`
	SeriesID            string    `json:"series_id,omitempty"`
	InstanceDate        string    `json:"instance_date,omitempty"`
	Title               string    `json:"title"`
	Location            string    `json:"location,omitempty"`
	ScheduledTime       time.Time `json:"scheduled_time"`
	Status              string    `json:"status"`
	MaxParticipants     int       `json:"max_participants"`
	CurrentParticipants int       `json:"current_participants"`
}

func toGameViews(games []*domain.Game) []gameView {
	out := make([]gameView, 0, len(games))
	for _, g := range games {
		v := gameView{
			ID:                  g.ID,
			GroupID:             g.GroupID,
			SeriesID:            g.SeriesID,
			Title:               g.Title,
			Location:            g.Location,
			ScheduledTime:       g.ScheduledTime,
			Status:              string(g.Status),
			MaxParticipants:     g.MaxParticipants,
			CurrentParticipants: g.CurrentParticipants,
		}
		if g.InstanceDate != nil {
			v.InstanceDate = g.InstanceDate.Format(time.DateOnly)
		}
		out = append(out, v)
	}
	return out
}
