package matching

import "github.com/carematch/carematch/internal/domain/provider"

// The payer filter runs in the store as part of the candidate query; the two
// below are applied in process, jurisdiction first.

func filterJurisdiction(candidates []*provider.Provider, jurisdiction string) []*provider.Provider {
	if jurisdiction == "" {
		return candidates
	}
	out := candidates[:0:0]
	for _, p := range candidates {
		if p.LicensedIn(jurisdiction) {
			out = append(out, p)
		}
	}
	return out
}

func filterAge(candidates []*provider.Provider, age int) []*provider.Provider {
	out := candidates[:0:0]
	for _, p := range candidates {
		if _, ok := p.RangeFor(age); ok {
			out = append(out, p)
		}
	}
	return out
}
