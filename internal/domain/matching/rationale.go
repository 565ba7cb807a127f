package matching

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type rationaleInput struct {
	breakdown    Breakdown
	matchedTags  []string
	tags         []string
	age          int
	availability availabilityResult
	now          time.Time
}

// rationale concatenates canned phrases chosen by component thresholds.
func rationale(in rationaleInput) string {
	var parts []string

	switch b := in.breakdown.Specialization; {
	case b >= 0.7:
		named := in.matchedTags
		if len(named) == 0 {
			named = in.tags
		}
		if len(named) > 2 {
			named = named[:2]
		}
		parts = append(parts, fmt.Sprintf("Specializes in %s.", strings.Join(named, " and ")))
	case b >= 0.4:
		parts = append(parts, "Has experience with related concerns.")
	}

	switch a := in.breakdown.AgeFit; {
	case a >= 1:
		parts = append(parts, fmt.Sprintf("Works regularly with clients aged %d.", in.age))
	case a > 0:
		parts = append(parts, fmt.Sprintf("Serves clients aged %d.", in.age))
	}

	av := in.breakdown.Availability
	switch {
	case in.availability.unchecked:
	case in.availability.usedRequester:
		switch {
		case av >= 0.8:
			parts = append(parts, "Schedule lines up well with your availability.")
		case av > 0:
			parts = append(parts, "Some of their hours overlap with your availability.")
		default:
			parts = append(parts, "Few of their hours overlap with your availability.")
		}
	default:
		switch {
		case av >= 1:
			parts = append(parts, "Has openings within the next week.")
		case av > 0 && in.availability.next != nil:
			days := int(math.Ceil(in.availability.next.Sub(in.now).Hours() / 24))
			parts = append(parts, fmt.Sprintf("Next opening in about %d days.", days))
		default:
			parts = append(parts, "No openings in the next 30 days.")
		}
	}

	return strings.Join(parts, " ")
}
