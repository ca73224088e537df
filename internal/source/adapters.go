package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/pkg/apollo"
	"github.com/sells-group/prospect-cli/pkg/hunter"
	"github.com/sells-group/prospect-cli/pkg/pdl"
)

// Per-call list prices used for budget gating. These track the vendors'
// published credit rates, not negotiated contracts.
const (
	apolloSearchCost = 0.01
	apolloEnrichCost = 0.02
	apolloPeopleCost = 0.03
	pdlEnrichCost    = 0.05
	hunterSearchCost = 0.02
	hunterEmailCost  = 0.04
)

// ApolloAdapter exposes Apollo as a search, enrich, and people-search source.
type ApolloAdapter struct {
	client apollo.Client
}

// NewApolloAdapter wraps an Apollo client.
func NewApolloAdapter(client apollo.Client) *ApolloAdapter {
	return &ApolloAdapter{client: client}
}

func (a *ApolloAdapter) Name() string { return "apollo" }

func (a *ApolloAdapter) Capabilities() []Capability {
	return []Capability{CapSearch, CapEnrich, CapPeopleSearch}
}

func (a *ApolloAdapter) CostPerCall(op Capability) float64 {
	switch op {
	case CapSearch:
		return apolloSearchCost
	case CapEnrich:
		return apolloEnrichCost
	case CapPeopleSearch:
		return apolloPeopleCost
	default:
		return 0
	}
}

func (a *ApolloAdapter) Search(ctx context.Context, q SearchQuery) ([]model.Company, error) {
	req := apollo.OrgSearchRequest{
		QKeywords:  strings.Join(q.Keywords, " "),
		Industries: q.Industries,
		Locations:  q.Countries,
		PerPage:    q.Limit,
	}
	if r := employeeRange(q.EmployeeMin, q.EmployeeMax); r != "" {
		req.EmployeeRanges = []string{r}
	}

	resp, err := a.client.SearchOrganizations(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: search organizations")
	}

	out := make([]model.Company, 0, len(resp.Organizations))
	for _, org := range resp.Organizations {
		out = append(out, companyFromApollo(org))
	}
	return out, nil
}

func (a *ApolloAdapter) Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error) {
	if hints.Domain == "" {
		return nil, eris.New("apollo: enrich requires a domain")
	}
	org, err := a.client.EnrichOrganization(ctx, hints.Domain)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: enrich organization")
	}
	c := companyFromApollo(*org)
	return &c, nil
}

func (a *ApolloAdapter) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	resp, err := a.client.SearchPeople(ctx, apollo.PeopleSearchRequest{
		OrganizationDomains: []string{q.Domain},
		PersonTitles:        q.Titles,
		PersonSeniorities:   q.Seniorities,
		PerPage:             q.Limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "apollo: search people")
	}

	out := make([]model.Contact, 0, len(resp.People))
	for _, p := range resp.People {
		department := ""
		if len(p.Departments) > 0 {
			department = p.Departments[0]
		}
		out = append(out, model.Contact{
			FullName:      p.Name,
			Title:         p.Title,
			Seniority:     p.Seniority,
			Department:    department,
			Email:         p.Email,
			EmailVerified: p.EmailStatus == "verified",
			LinkedInURL:   p.LinkedinURL,
			Source:        a.Name(),
		})
	}
	return out, nil
}

func (a *ApolloAdapter) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	return nil, ErrNotSupported
}

func companyFromApollo(org apollo.Organization) model.Company {
	c := model.Company{
		Name:        org.Name,
		Domain:      model.NormalizeDomain(org.PrimaryDomain),
		Industry:    org.Industry,
		Country:     org.Country,
		City:        org.City,
		TechStack:   org.Technologies,
		Description: org.ShortDescription,
	}
	if org.ID != "" {
		c.ExternalIDs = map[string]string{"apollo": org.ID}
	}
	if org.EstimatedNumEmployees > 0 {
		n := org.EstimatedNumEmployees
		c.EmployeeCount = &n
	}
	if org.AnnualRevenue > 0 {
		rev := org.AnnualRevenue
		c.RevenueUSD = &rev
	}
	if org.TotalFunding > 0 {
		total := org.TotalFunding
		c.FundingTotalUSD = &total
	}
	c.FundingStage = org.LatestFundingStage
	if t, err := time.Parse("2006-01-02", org.LatestFundingDate); err == nil {
		c.LastFundingAt = &t
	}
	return c
}

// employeeRange renders a min/max pair in Apollo's "min,max" range syntax.
func employeeRange(min, max *int) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%d,%d", *min, *max)
	case min != nil:
		return fmt.Sprintf("%d,", *min)
	case max != nil:
		return fmt.Sprintf("1,%d", *max)
	default:
		return ""
	}
}

// PDLAdapter exposes People Data Labs as an enrich-only source.
type PDLAdapter struct {
	client pdl.Client
}

// NewPDLAdapter wraps a PDL client.
func NewPDLAdapter(client pdl.Client) *PDLAdapter {
	return &PDLAdapter{client: client}
}

func (a *PDLAdapter) Name() string { return "pdl" }

func (a *PDLAdapter) Capabilities() []Capability {
	return []Capability{CapEnrich}
}

func (a *PDLAdapter) CostPerCall(op Capability) float64 {
	if op == CapEnrich {
		return pdlEnrichCost
	}
	return 0
}

func (a *PDLAdapter) Search(ctx context.Context, q SearchQuery) ([]model.Company, error) {
	return nil, ErrNotSupported
}

func (a *PDLAdapter) Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error) {
	if hints.Domain == "" {
		return nil, eris.New("pdl: enrich requires a domain")
	}
	rec, err := a.client.EnrichCompany(ctx, hints.Domain)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: enrich company")
	}

	c := &model.Company{
		Name:         rec.Name,
		Domain:       model.NormalizeDomain(rec.Website),
		Industry:     rec.Industry,
		FundingStage: rec.LatestFundingStage,
		Country:      rec.Location.Country,
		City:         rec.Location.Locality,
		TechStack:    rec.Tags,
		Description:  rec.Summary,
	}
	if rec.EmployeeCount > 0 {
		n := rec.EmployeeCount
		c.EmployeeCount = &n
	}
	if rec.TotalFundingRaised > 0 {
		total := rec.TotalFundingRaised
		c.FundingTotalUSD = &total
	}
	if t, err := time.Parse("2006-01-02", rec.LastFundingDate); err == nil {
		c.LastFundingAt = &t
	}
	return c, nil
}

func (a *PDLAdapter) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	return nil, ErrNotSupported
}

func (a *PDLAdapter) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	return nil, ErrNotSupported
}

// HunterAdapter exposes Hunter as a people-search and email-finding source.
type HunterAdapter struct {
	client hunter.Client
}

// NewHunterAdapter wraps a Hunter client.
func NewHunterAdapter(client hunter.Client) *HunterAdapter {
	return &HunterAdapter{client: client}
}

func (a *HunterAdapter) Name() string { return "hunter" }

func (a *HunterAdapter) Capabilities() []Capability {
	return []Capability{CapPeopleSearch, CapEmailFind}
}

func (a *HunterAdapter) CostPerCall(op Capability) float64 {
	switch op {
	case CapPeopleSearch:
		return hunterSearchCost
	case CapEmailFind:
		return hunterEmailCost
	default:
		return 0
	}
}

func (a *HunterAdapter) Search(ctx context.Context, q SearchQuery) ([]model.Company, error) {
	return nil, ErrNotSupported
}

func (a *HunterAdapter) Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error) {
	return nil, ErrNotSupported
}

func (a *HunterAdapter) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	res, err := a.client.DomainSearch(ctx, q.Domain, q.Limit)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: domain search")
	}

	out := make([]model.Contact, 0, len(res.Emails))
	for _, e := range res.Emails {
		if !matchesAny(e.Position, q.Titles) {
			continue
		}
		if len(q.Seniorities) > 0 && !matchesAny(e.Seniority, q.Seniorities) {
			continue
		}
		out = append(out, model.Contact{
			FullName:      strings.TrimSpace(e.FirstName + " " + e.LastName),
			Title:         e.Position,
			Seniority:     e.Seniority,
			Department:    e.Department,
			Email:         e.Value,
			EmailVerified: e.Confidence >= 90,
			LinkedInURL:   e.LinkedIn,
			Source:        a.Name(),
		})
	}
	return out, nil
}

func (a *HunterAdapter) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	res, err := a.client.FindEmail(ctx, q.Domain, q.FirstName, q.LastName)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: find email")
	}
	return &model.Contact{
		FullName:      strings.TrimSpace(q.FirstName + " " + q.LastName),
		Title:         res.Position,
		Email:         res.Email,
		EmailVerified: res.Verified,
		Source:        a.Name(),
	}, nil
}

// matchesAny reports whether value contains any of the filters,
// case-insensitively. An empty filter list matches everything.
func matchesAny(value string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	v := strings.ToLower(value)
	for _, f := range filters {
		if strings.Contains(v, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

var (
	_ Adapter = (*ApolloAdapter)(nil)
	_ Adapter = (*PDLAdapter)(nil)
	_ Adapter = (*HunterAdapter)(nil)
)
