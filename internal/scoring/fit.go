// Package scoring computes fit and composite scores for discovered companies.
// Scorers are pure functions so the same inputs always produce the same score
// and the same reason trail.
package scoring

import (
	"fmt"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Dimension weights for the fit score. Relative values, normalized over the
// dimensions the profile actually configures.
const (
	weightIndustry  = 1.5
	weightEmployees = 1.0
	weightRevenue   = 1.0
	weightFunding   = 0.75
	weightTechStack = 1.25
	weightGeography = 0.75
	weightKeywords  = 1.0
)

// FitResult is the outcome of scoring one company against a profile.
type FitResult struct {
	Score   float64
	Reasons []string
}

// Fit scores the company against the profile's configured dimensions. Each
// set dimension contributes a weighted partial score; unset dimensions are
// left out of the normalization entirely, so a sparse profile neither rewards
// nor penalizes what it does not ask about. Reasons are appended in a fixed
// dimension order so identical inputs always produce an identical trail.
func Fit(company *model.Company, profile *model.TargetProfile) FitResult {
	var (
		weighted    float64
		totalWeight float64
		reasons     []string
	)

	score := func(weight, partial float64, reason string) {
		totalWeight += weight
		if partial <= 0 {
			return
		}
		weighted += weight * partial
		reasons = append(reasons, reason)
	}

	if len(profile.Industries) > 0 {
		match := containsFold(profile.Industries, company.Industry)
		partial := 0.0
		if match {
			partial = 1.0
		}
		score(weightIndustry, partial,
			fmt.Sprintf("industry %q matches target industries", company.Industry))
	}

	if profile.EmployeeCountMin != nil || profile.EmployeeCountMax != nil {
		partial := 0.0
		if company.EmployeeCount != nil && inIntRange(*company.EmployeeCount, profile.EmployeeCountMin, profile.EmployeeCountMax) {
			partial = 1.0
		}
		count := 0
		if company.EmployeeCount != nil {
			count = *company.EmployeeCount
		}
		score(weightEmployees, partial,
			fmt.Sprintf("employee count %d within target range", count))
	}

	if profile.RevenueMinUSD != nil || profile.RevenueMaxUSD != nil {
		partial := 0.0
		revenue := 0.0
		if company.RevenueUSD != nil {
			revenue = *company.RevenueUSD
			if inFloatRange(revenue, profile.RevenueMinUSD, profile.RevenueMaxUSD) {
				partial = 1.0
			}
		}
		score(weightRevenue, partial,
			fmt.Sprintf("revenue $%.0f within target range", revenue))
	}

	if len(profile.FundingStages) > 0 {
		partial := 0.0
		if containsFold(profile.FundingStages, company.FundingStage) {
			partial = 1.0
		}
		score(weightFunding, partial,
			fmt.Sprintf("funding stage %q matches target stages", company.FundingStage))
	}

	if len(profile.TechStack) > 0 {
		overlap := overlapFraction(profile.TechStack, company.TechStack)
		score(weightTechStack, overlap,
			fmt.Sprintf("tech stack overlaps target stack (%.0f%%)", overlap*100))
	}

	if len(profile.Countries) > 0 {
		partial := 0.0
		if containsFold(profile.Countries, company.Country) {
			partial = 1.0
		}
		score(weightGeography, partial,
			fmt.Sprintf("country %q within target geography", company.Country))
	}

	if len(profile.Keywords) > 0 {
		haystack := strings.ToLower(company.Name + " " + company.Description)
		matched := 0
		for _, kw := range profile.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				matched++
			}
		}
		partial := float64(matched) / float64(len(profile.Keywords))
		score(weightKeywords, partial,
			fmt.Sprintf("matched %d of %d target keywords", matched, len(profile.Keywords)))
	}

	if totalWeight == 0 {
		return FitResult{}
	}
	return FitResult{Score: weighted / totalWeight, Reasons: reasons}
}

// Excluded reports whether the profile's exclusion lists rule the company
// out before scoring: domain on the excluded-domains list, or industry
// containing an excluded-industry substring.
func Excluded(company *model.Company, profile *model.TargetProfile) bool {
	domain := company.NormalizedDomain()
	for _, d := range profile.ExcludedDomains {
		if domain != "" && domain == model.NormalizeDomain(d) {
			return true
		}
	}
	industry := strings.ToLower(company.Industry)
	for _, ex := range profile.ExcludedIndustries {
		if ex != "" && strings.Contains(industry, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

func containsFold(set []string, value string) bool {
	if value == "" {
		return false
	}
	for _, s := range set {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

// overlapFraction returns the fraction of wanted items present in have,
// case-insensitively.
func overlapFraction(wanted, have []string) float64 {
	if len(wanted) == 0 {
		return 0
	}
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[strings.ToLower(h)] = struct{}{}
	}
	matched := 0
	for _, w := range wanted {
		if _, ok := haveSet[strings.ToLower(w)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(wanted))
}

func inIntRange(v int, min, max *int) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

func inFloatRange(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}
