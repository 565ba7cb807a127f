package matching

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/carematch/carematch/internal/domain/casesession"
)

// subscaleSignal turns an assessment subscale at or above Threshold into a
// concern keyword.
type subscaleSignal struct {
	Subscale  string
	Threshold float64
	Signal    string
}

var subscaleSignals = []subscaleSignal{
	{"anxiety", 10, "anxiety"},
	{"depression", 10, "depression"},
	{"attention", 6, "adhd"},
	{"trauma", 8, "trauma"},
	{"conduct", 6, "behavioral"},
	{"sleep", 7, "sleep"},
}

// Criteria is everything the ranker knows about the person seeking care.
type Criteria struct {
	CaseSessionID    uuid.UUID                     `json:"case_session_id"`
	Age              int                           `json:"age"`
	Concern          string                        `json:"concern"`
	Signals          []string                      `json:"signals,omitempty"`
	PayerID          string                        `json:"payer_id"`
	Jurisdiction     string                        `json:"jurisdiction,omitempty"`
	RequesterWindows []casesession.RequesterWindow `json:"requester_windows,omitempty"`
}

// ExtractCriteria assumes the preconditions were already checked.
func ExtractCriteria(s *casesession.CaseSession, p *casesession.ClinicalProfile, windows []casesession.RequesterWindow) Criteria {
	c := Criteria{
		CaseSessionID:    s.ID,
		Age:              p.RecipientAge,
		Concern:          strings.TrimSpace(p.ConcernSummary),
		Signals:          Signals(p.SubscaleScores),
		RequesterWindows: windows,
	}
	if s.PayerID != nil {
		c.PayerID = *s.PayerID
	}
	if s.Jurisdiction != nil {
		c.Jurisdiction = *s.Jurisdiction
	}
	return c
}

// Signals lists, in a stable order, the concern keywords implied by subscale scores.
func Signals(scores map[string]float64) []string {
	var out []string
	for _, sig := range subscaleSignals {
		if v, ok := scores[sig.Subscale]; ok && v >= sig.Threshold {
			out = append(out, sig.Signal)
		}
	}
	sort.Strings(out)
	return out
}

// ConcernText is the free text followed by the scored signals.
func (c Criteria) ConcernText() string {
	if len(c.Signals) == 0 {
		return c.Concern
	}
	return strings.TrimSpace(c.Concern + " " + strings.Join(c.Signals, " "))
}

func (c Criteria) HasRequesterAvailability() bool {
	return len(c.RequesterWindows) > 0
}
