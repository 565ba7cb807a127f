package matching

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	WeightSpecialization = 0.40
	WeightAgeFit         = 0.30
	WeightAvailability   = 0.20
	WeightModality       = 0.10

	// NeutralModality stands in until modality preferences are collected upstream.
	NeutralModality = 0.5
	// NeutralAvailability is used when no availability source is configured.
	NeutralAvailability = 0.5
)

// Breakdown holds the four component scores, each in [0,1].
type Breakdown struct {
	Specialization float64 `json:"specialization"`
	AgeFit         float64 `json:"age_fit"`
	Availability   float64 `json:"availability"`
	Modality       float64 `json:"modality"`
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Final combines the components into a 0–100 score rounded to one decimal.
func (b Breakdown) Final() float64 {
	sum := WeightSpecialization*clamp01(b.Specialization) +
		WeightAgeFit*clamp01(b.AgeFit) +
		WeightAvailability*clamp01(b.Availability) +
		WeightModality*clamp01(b.Modality)
	return math.Round(sum*1000) / 10
}

type MatchResult struct {
	ProviderID    uuid.UUID  `json:"provider_id"`
	ProviderName  string     `json:"provider_name"`
	Score         float64    `json:"score"`
	Breakdown     Breakdown  `json:"breakdown"`
	Rationale     string     `json:"rationale"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
}
