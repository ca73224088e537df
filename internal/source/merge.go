package source

import "github.com/sells-group/prospect-cli/internal/model"

// FillGaps merges src into dst using the fill-gaps-only policy: a field
// already populated in dst is never overwritten, regardless of what the later
// source reports. Returns the keys of the fields that were filled, which
// callers record as the source's contribution.
func FillGaps(dst *model.Company, src *model.Company) []string {
	var filled []string

	if dst.Name == "" && src.Name != "" {
		dst.Name = src.Name
		filled = append(filled, "name")
	}
	if dst.Domain == "" && src.Domain != "" {
		dst.Domain = src.Domain
		filled = append(filled, "domain")
	}
	if dst.Industry == "" && src.Industry != "" {
		dst.Industry = src.Industry
		filled = append(filled, "industry")
	}
	if dst.EmployeeCount == nil && src.EmployeeCount != nil {
		v := *src.EmployeeCount
		dst.EmployeeCount = &v
		filled = append(filled, "employee_count")
	}
	if dst.RevenueUSD == nil && src.RevenueUSD != nil {
		v := *src.RevenueUSD
		dst.RevenueUSD = &v
		filled = append(filled, "revenue_usd")
	}
	if dst.FundingTotalUSD == nil && src.FundingTotalUSD != nil {
		v := *src.FundingTotalUSD
		dst.FundingTotalUSD = &v
		filled = append(filled, "funding_total_usd")
	}
	if dst.FundingStage == "" && src.FundingStage != "" {
		dst.FundingStage = src.FundingStage
		filled = append(filled, "funding_stage")
	}
	if dst.LastFundingAt == nil && src.LastFundingAt != nil {
		v := *src.LastFundingAt
		dst.LastFundingAt = &v
		filled = append(filled, "last_funding_at")
	}
	if dst.Country == "" && src.Country != "" {
		dst.Country = src.Country
		filled = append(filled, "country")
	}
	if dst.City == "" && src.City != "" {
		dst.City = src.City
		filled = append(filled, "city")
	}
	if len(dst.TechStack) == 0 && len(src.TechStack) > 0 {
		dst.TechStack = append([]string(nil), src.TechStack...)
		filled = append(filled, "tech_stack")
	}
	if dst.Description == "" && src.Description != "" {
		dst.Description = src.Description
		filled = append(filled, "description")
	}

	// External IDs union: only absent keys are added, existing IDs win.
	for k, v := range src.ExternalIDs {
		if dst.ExternalIDs == nil {
			dst.ExternalIDs = make(map[string]string)
		}
		if _, ok := dst.ExternalIDs[k]; !ok {
			dst.ExternalIDs[k] = v
			filled = append(filled, "external_id:"+k)
		}
	}

	return filled
}
