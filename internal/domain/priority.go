package domain

import (
	"math"
	"time"
)

const (
	MinPriorityScore = 0
	MaxPriorityScore = 100
)

// PriorityFactors is the per-request snapshot the scorer works from.
// Callers fetch it; Score never touches storage.
type PriorityFactors struct {
	Attended    int
	NoShows     int
	MemberSince time.Time
	Override    *int
	EvaluatedAt time.Time
}

func (f PriorityFactors) MemberDays() float64 {
	if f.MemberSince.IsZero() || !f.EvaluatedAt.After(f.MemberSince) {
		return 0
	}
	return f.EvaluatedAt.Sub(f.MemberSince).Hours() / 24
}

type PriorityWeights struct {
	Reliability  float64
	Seniority    float64
	HalfLifeDays float64
	Neutral      int
}

func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		Reliability:  0.6,
		Seniority:    0.4,
		HalfLifeDays: 180,
		Neutral:      50,
	}
}

// Score maps factors to [0,100]. A manager override wins outright; a user
// with no recorded games gets the neutral score.
func (w PriorityWeights) Score(f PriorityFactors) int {
	if f.Override != nil {
		return clampScore(*f.Override)
	}
	total := f.Attended + f.NoShows
	if total <= 0 {
		return clampScore(w.Neutral)
	}
	reliability := float64(f.Attended) / float64(total)

	seniority := 0.0
	if w.HalfLifeDays > 0 {
		seniority = 1 - math.Exp2(-f.MemberDays()/w.HalfLifeDays)
	}

	raw := 100 * (w.Reliability*reliability + w.Seniority*seniority)
	return clampScore(int(math.Round(raw)))
}

func clampScore(v int) int {
	if v < MinPriorityScore {
		return MinPriorityScore
	}
	if v > MaxPriorityScore {
		return MaxPriorityScore
	}
	return v
}

func ValidateOverride(v *int) error {
	if v == nil {
		return nil
	}
	if *v < MinPriorityScore || *v > MaxPriorityScore {
		return ErrValidation("priority override must be between 0 and 100")
	}
	return nil
}
