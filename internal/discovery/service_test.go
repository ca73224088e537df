package discovery

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/source"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

type fakeOrch struct {
	searchResults []model.Company
	searchErr     error
	searchCalls   int
	enrichCalls   int
	enrichFill    func(c *model.Company)
}

func (f *fakeOrch) Search(_ context.Context, q source.SearchQuery) (*source.SearchOutcome, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &source.SearchOutcome{
		Companies:    f.searchResults,
		SourcesUsed:  []string{"apollo"},
		TotalCostUSD: 0.01,
	}, nil
}

func (f *fakeOrch) Enrich(_ context.Context, c *model.Company, _ source.EnrichHints) (*source.EnrichOutcome, error) {
	f.enrichCalls++
	if f.enrichFill != nil {
		f.enrichFill(c)
	}
	return &source.EnrichOutcome{Company: c, TotalCostUSD: 0.02}, nil
}

type fakeStore struct {
	companies map[string]*model.Company
	contacts  []model.Contact
	inserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{companies: make(map[string]*model.Company)}
}

func (f *fakeStore) UpsertCompany(_ context.Context, c *model.Company) (bool, error) {
	key := model.NormalizeDomain(c.Domain)
	if key != "" {
		if existing, ok := f.companies[key]; ok {
			source.FillGaps(existing, c)
			*c = *existing
			return false, nil
		}
	}
	if c.ID == "" {
		c.ID = "id-" + c.Name
	}
	f.inserts++
	if key != "" {
		f.companies[key] = c
	}
	return true, nil
}

func (f *fakeStore) UpsertContact(_ context.Context, c *model.Contact) error {
	f.contacts = append(f.contacts, *c)
	return nil
}

type fakeSuggestLLM struct {
	text  string
	calls int
}

func (f *fakeSuggestLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	return &anthropic.MessageResponse{Text: f.text}, nil
}

func saasProfile() *model.TargetProfile {
	min, max := 50, 500
	return &model.TargetProfile{
		ClientID:         "client-1",
		Industries:       []string{"SaaS"},
		EmployeeCountMin: &min,
		EmployeeCountMax: &max,
	}
}

func resultCompany(name, domain string, employees int) model.Company {
	return model.Company{
		Name:          name,
		Domain:        domain,
		Industry:      "SaaS",
		EmployeeCount: &employees,
		Country:       "US",
	}
}

func TestDiscoverBlocklistDropsPlatformDomains(t *testing.T) {
	results := []model.Company{
		resultCompany("A", "a.com", 100), resultCompany("B", "b.com", 100),
		resultCompany("C", "c.com", 100), resultCompany("D", "d.com", 100),
		resultCompany("E", "e.com", 100), resultCompany("F", "f.com", 100),
		resultCompany("G", "g.com", 100), resultCompany("H", "h.com", 100),
		resultCompany("Linktree", "linktr.ee", 100),
		resultCompany("Facebook", "facebook.com", 100),
	}
	orch := &fakeOrch{searchResults: results}
	store := newFakeStore()
	svc := NewService(orch, store, nil, nil, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Discovered)
	assert.Equal(t, 8, res.Scored)
	assert.Equal(t, 8, res.CompaniesAdded)
}

func TestDiscoverZeroResultsInvokesFallbackOnce(t *testing.T) {
	orch := &fakeOrch{}
	store := newFakeStore()
	llm := &fakeSuggestLLM{text: `[]`}
	suggester := NewSuggester(llm, "claude-sonnet-4-5", 10)
	svc := NewService(orch, store, nil, suggester, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, 0, res.CompaniesAdded)
	assert.NotEmpty(t, res.Warnings)
}

func TestDiscoverFallbackSuggestionsAreEnrichedAndKept(t *testing.T) {
	orch := &fakeOrch{enrichFill: func(c *model.Company) {
		c.Industry = "SaaS"
		n := 120
		c.EmployeeCount = &n
		c.Country = "US"
	}}
	store := newFakeStore()
	llm := &fakeSuggestLLM{text: `[{"name":"Acme","domain":"acme.com","reason":"known saas vendor"}]`}
	suggester := NewSuggester(llm, "claude-sonnet-4-5", 10)
	svc := NewService(orch, store, nil, suggester, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 1, res.CompaniesAdded)
	assert.GreaterOrEqual(t, orch.enrichCalls, 1)
}

func TestDiscoverDedupByDomain(t *testing.T) {
	results := []model.Company{
		resultCompany("Acme", "acme.com", 100),
		resultCompany("ACME Corp", "www.ACME.com", 100),
	}
	orch := &fakeOrch{searchResults: results}
	store := newFakeStore()
	svc := NewService(orch, store, nil, nil, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.CompaniesAdded)
	assert.Equal(t, 2, res.Scored)
	assert.Equal(t, 1, store.inserts)
}

func TestDiscoverBackfillBounded(t *testing.T) {
	var results []model.Company
	for _, name := range []string{"A", "B", "C", "D"} {
		// Missing industry/headcount/country triggers backfill.
		results = append(results, model.Company{Name: name + " Inc", Domain: name + ".com"})
	}
	orch := &fakeOrch{searchResults: results}
	store := newFakeStore()
	svc := NewService(orch, store, nil, nil, nil, Policy{AcceptThreshold: 0.2, BackfillBatch: 2})

	_, err := svc.Discover(context.Background(), saasProfile(), 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 2, orch.enrichCalls)
}

func TestDiscoverNonCompanyNamesDropped(t *testing.T) {
	results := []model.Company{
		resultCompany("Acme", "acme.com", 100),
		resultCompany("Top 10 SaaS Companies", "toplist.io", 100),
	}
	orch := &fakeOrch{searchResults: results}
	store := newFakeStore()
	svc := NewService(orch, store, nil, nil, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Scored)
}

func TestDiscoverExclusionsApplied(t *testing.T) {
	profile := saasProfile()
	profile.ExcludedDomains = []string{"rival.com"}

	orch := &fakeOrch{searchResults: []model.Company{
		resultCompany("Acme", "acme.com", 100),
		resultCompany("Rival", "rival.com", 100),
	}}
	store := newFakeStore()
	svc := NewService(orch, store, nil, nil, nil, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), profile, 10, Options{SkipDeepEnrich: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Scored)
}

func TestDiscoverDeepEnrichFindsContacts(t *testing.T) {
	orch := &fakeOrch{searchResults: []model.Company{resultCompany("Acme", "acme.com", 100)}}
	store := newFakeStore()
	people := &fakePeople{contacts: []model.Contact{
		{FullName: "Pat Lee", Title: "VP Engineering", Email: "pat@acme.com"},
	}}
	svc := NewService(orch, store, nil, nil, people, Policy{AcceptThreshold: 0.2})

	res, err := svc.Discover(context.Background(), saasProfile(), 10, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.SecondaryEntitiesFound)
	require.Len(t, store.contacts, 1)
	assert.Equal(t, "id-Acme", store.contacts[0].CompanyID)
}

func TestDiscoverSearchErrorPropagates(t *testing.T) {
	orch := &fakeOrch{searchErr: eris.New("context cancelled")}
	svc := NewService(orch, newFakeStore(), nil, nil, nil, Policy{})

	_, err := svc.Discover(context.Background(), saasProfile(), 10, Options{})
	assert.Error(t, err)
}

type fakePeople struct {
	contacts []model.Contact
}

func (f *fakePeople) SearchPeople(_ context.Context, _ source.PeopleQuery) ([]model.Contact, error) {
	return f.contacts, nil
}
