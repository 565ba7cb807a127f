package matching

import "github.com/carematch/carematch/internal/domain/provider"

// AgeFit scores how central the recipient's age is within a provider's served
// ranges. Both fields are tunable heuristics.
type AgeFit struct {
	// MiddleBandFraction is the share of a range, centered on its midpoint,
	// that counts as a full fit.
	MiddleBandFraction float64
	// EdgeScore is awarded for ages inside the range but outside the band.
	EdgeScore float64
}

var DefaultAgeFit = AgeFit{MiddleBandFraction: 0.5, EdgeScore: 0.9}

// Score returns the best fit across ranges; 0 when no range contains age.
func (f AgeFit) Score(age int, ranges []provider.AgeRange) float64 {
	best := 0.0
	for _, r := range ranges {
		if !r.Contains(age) {
			continue
		}
		s := f.EdgeScore
		if f.inBand(age, r) {
			s = 1.0
		}
		if s > best {
			best = s
		}
	}
	return best
}

func (f AgeFit) inBand(age int, r provider.AgeRange) bool {
	span := float64(r.Max - r.Min)
	margin := span * (1 - f.MiddleBandFraction) / 2
	a := float64(age)
	return a > float64(r.Min)+margin && a < float64(r.Max)-margin
}
