package source

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

// fakeAdapter is a scriptable in-memory adapter for orchestrator tests.
type fakeAdapter struct {
	name   string
	caps   []Capability
	cost   float64
	enrich *model.Company
	search []model.Company
	people []model.Contact
	email  *model.Contact
	err    error
	calls  int
}

func (f *fakeAdapter) Name() string                   { return f.name }
func (f *fakeAdapter) Capabilities() []Capability     { return f.caps }
func (f *fakeAdapter) CostPerCall(Capability) float64 { return f.cost }

func (f *fakeAdapter) Search(ctx context.Context, q SearchQuery) ([]model.Company, error) {
	f.calls++
	return f.search, f.err
}

func (f *fakeAdapter) Enrich(ctx context.Context, hints EnrichHints) (*model.Company, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.enrich
	return &cp, nil
}

func (f *fakeAdapter) SearchPeople(ctx context.Context, q PeopleQuery) ([]model.Contact, error) {
	f.calls++
	return f.people, f.err
}

func (f *fakeAdapter) FindEmail(ctx context.Context, q EmailQuery) (*model.Contact, error) {
	f.calls++
	return f.email, f.err
}

// captureRecorder collects metrics for assertions.
type captureRecorder struct {
	metrics []CallMetrics
}

func (r *captureRecorder) Record(_ context.Context, m CallMetrics) {
	r.metrics = append(r.metrics, m)
}

// rankingRecorder additionally implements Ranker with a fixed order.
type rankingRecorder struct {
	captureRecorder
	order []string
}

func (r *rankingRecorder) Rank(Capability, []string) []string { return r.order }

func registryWith(t *testing.T, adapters ...*fakeAdapter) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, a := range adapters {
		reg.Register(NewLimited(a, LimitConfig{PerSecond: 100, PerMinute: 6000}))
	}
	return reg
}

func TestEnrichWaterfallFillsGapsInPriorityOrder(t *testing.T) {
	first := &fakeAdapter{
		name: "apollo", caps: []Capability{CapEnrich}, cost: 0.02,
		enrich: &model.Company{Industry: "software", EmployeeCount: intPtr(50)},
	}
	second := &fakeAdapter{
		name: "pdl", caps: []Capability{CapEnrich}, cost: 0.05,
		enrich: &model.Company{Industry: "fintech", Country: "US", Description: "desc"},
	}

	rec := &captureRecorder{}
	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder: []string{"apollo", "pdl"},
	}, rec)

	company := &model.Company{Name: "Acme", Domain: "acme.com"}
	out, err := orch.Enrich(context.Background(), company, EnrichHints{})
	require.NoError(t, err)

	// apollo wins the industry tie; pdl only fills what apollo left empty.
	assert.Equal(t, "software", company.Industry)
	assert.Equal(t, "US", company.Country)
	assert.Equal(t, []string{"apollo", "pdl"}, out.SourcesUsed)
	assert.Equal(t, "apollo", company.PrimarySource)
	assert.InDelta(t, 0.07, out.TotalCostUSD, 1e-9)
	require.Len(t, rec.metrics, 2)
	assert.True(t, rec.metrics[0].Success)
	assert.Equal(t, 2, rec.metrics[0].FieldsPopulated)
}

func TestEnrichStopsAtQualityThreshold(t *testing.T) {
	first := &fakeAdapter{
		name: "apollo", caps: []Capability{CapEnrich}, cost: 0.02,
		enrich: &model.Company{
			Industry: "software", EmployeeCount: intPtr(50), RevenueUSD: floatPtr(1e6),
			FundingStage: "series_a", Country: "US",
			TechStack: []string{"go"}, Description: "desc",
		},
	}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{}}

	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder:      []string{"apollo", "pdl"},
		QualityThreshold: 0.7,
	}, nil)

	company := &model.Company{Name: "Acme", Domain: "acme.com"}
	out, err := orch.Enrich(context.Background(), company, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"apollo"}, out.SourcesUsed)
	assert.Equal(t, 0, second.calls)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "quality threshold met", out.Skipped[0].Reason)
}

func TestEnrichRespectsProviderCap(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, enrich: &model.Company{Industry: "x"}}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{Country: "US"}}

	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder:  []string{"apollo", "pdl"},
		MaxProviders: 1,
	}, nil)

	out, err := orch.Enrich(context.Background(), &model.Company{Domain: "acme.com"}, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"apollo"}, out.SourcesUsed)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "provider cap reached", out.Skipped[0].Reason)
}

func TestEnrichRespectsCostBudget(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, cost: 0.02, enrich: &model.Company{Industry: "x"}}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, cost: 0.05, enrich: &model.Company{Country: "US"}}

	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder:   []string{"apollo", "pdl"},
		CostBudgetUSD: 0.03,
	}, nil)

	out, err := orch.Enrich(context.Background(), &model.Company{Domain: "acme.com"}, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"apollo"}, out.SourcesUsed)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "cost budget exhausted", out.Skipped[0].Reason)
	assert.Equal(t, 0, second.calls)
}

func TestEnrichFollowsPerformanceRanking(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, enrich: &model.Company{Industry: "software"}}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{Industry: "fintech"}}

	rec := &rankingRecorder{order: []string{"pdl", "apollo"}}
	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder:        []string{"apollo", "pdl"},
		OrderByPerformance: true,
	}, rec)

	company := &model.Company{Domain: "acme.com"}
	out, err := orch.Enrich(context.Background(), company, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"pdl", "apollo"}, out.SourcesUsed)
	assert.Equal(t, "fintech", company.Industry, "the ranked leader wins merge priority")
	assert.Equal(t, "pdl", company.PrimarySource)
}

func TestEnrichKeepsConfiguredOrderWhenRankingDisabled(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, enrich: &model.Company{Industry: "software"}}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{Industry: "fintech"}}

	rec := &rankingRecorder{order: []string{"pdl", "apollo"}}
	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder: []string{"apollo", "pdl"},
	}, rec)

	company := &model.Company{Domain: "acme.com"}
	out, err := orch.Enrich(context.Background(), company, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"apollo", "pdl"}, out.SourcesUsed)
	assert.Equal(t, "software", company.Industry)
}

func TestEnrichContinuesPastFailedSource(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, err: eris.New("upstream 500")}
	second := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{Country: "US"}}

	rec := &captureRecorder{}
	orch := NewOrchestrator(registryWith(t, first, second), Strategy{
		SourceOrder: []string{"apollo", "pdl"},
	}, rec)

	company := &model.Company{Domain: "acme.com"}
	out, err := orch.Enrich(context.Background(), company, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"pdl"}, out.SourcesUsed)
	assert.Equal(t, "US", company.Country)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "call failed", out.Skipped[0].Reason)
	require.Len(t, rec.metrics, 2)
	assert.False(t, rec.metrics[0].Success)
}

func TestEnrichSkipsIncapableSource(t *testing.T) {
	searchOnly := &fakeAdapter{name: "hunter", caps: []Capability{CapEmailFind}}
	enricher := &fakeAdapter{name: "pdl", caps: []Capability{CapEnrich}, enrich: &model.Company{Country: "US"}}

	orch := NewOrchestrator(registryWith(t, searchOnly, enricher), Strategy{
		SourceOrder: []string{"hunter", "pdl"},
	}, nil)

	out, err := orch.Enrich(context.Background(), &model.Company{Domain: "acme.com"}, EnrichHints{})
	require.NoError(t, err)

	assert.Equal(t, []string{"pdl"}, out.SourcesUsed)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, "enrich not supported", out.Skipped[0].Reason)
	assert.Equal(t, 0, searchOnly.calls)
}

func TestSearchConcatenatesBatches(t *testing.T) {
	first := &fakeAdapter{
		name: "apollo", caps: []Capability{CapSearch}, cost: 0.01,
		search: []model.Company{{Name: "A", Domain: "a.com"}, {Name: "B", Domain: "b.com"}},
	}

	orch := NewOrchestrator(registryWith(t, first), Strategy{
		SourceOrder: []string{"apollo"},
	}, nil)

	out, err := orch.Search(context.Background(), SearchQuery{Keywords: []string{"saas"}})
	require.NoError(t, err)

	require.Len(t, out.Companies, 2)
	assert.Equal(t, "apollo", out.Companies[0].PrimarySource)
	assert.True(t, out.Companies[0].HasSource("apollo"))
	assert.Equal(t, []string{"apollo"}, out.SourcesUsed)
}

func TestEnrichCancelledContext(t *testing.T) {
	first := &fakeAdapter{name: "apollo", caps: []Capability{CapEnrich}, enrich: &model.Company{}}
	orch := NewOrchestrator(registryWith(t, first), Strategy{SourceOrder: []string{"apollo"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Enrich(ctx, &model.Company{Domain: "acme.com"}, EnrichHints{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, first.calls)
}

func TestSearchPeopleFirstNonEmptyWins(t *testing.T) {
	empty := &fakeAdapter{name: "apollo", caps: []Capability{CapPeopleSearch}}
	hunter := &fakeAdapter{
		name: "hunter", caps: []Capability{CapPeopleSearch}, cost: 0.02,
		people: []model.Contact{{FullName: "Jordan Reyes", Title: "VP Sales"}},
	}

	rec := &captureRecorder{}
	orch := NewOrchestrator(registryWith(t, empty, hunter), Strategy{
		SourceOrder: []string{"apollo", "hunter"},
	}, rec)

	contacts, err := orch.SearchPeople(context.Background(), PeopleQuery{Domain: "acme.com"})
	require.NoError(t, err)

	require.Len(t, contacts, 1)
	assert.Equal(t, "Jordan Reyes", contacts[0].FullName)
	assert.Equal(t, 1, empty.calls, "empty batch should fall through to the next source")
	require.Len(t, rec.metrics, 2)
	assert.True(t, rec.metrics[1].Success)
}

func TestSearchPeopleSkipsFailingSource(t *testing.T) {
	broken := &fakeAdapter{name: "apollo", caps: []Capability{CapPeopleSearch}, err: eris.New("upstream 500")}
	hunter := &fakeAdapter{
		name: "hunter", caps: []Capability{CapPeopleSearch},
		people: []model.Contact{{FullName: "Sam Okafor"}},
	}

	orch := NewOrchestrator(registryWith(t, broken, hunter), Strategy{
		SourceOrder: []string{"apollo", "hunter"},
	}, nil)

	contacts, err := orch.SearchPeople(context.Background(), PeopleQuery{Domain: "acme.com"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
}

func TestFindEmailFirstHitWins(t *testing.T) {
	noHit := &fakeAdapter{name: "apollo", caps: []Capability{CapEmailFind}, email: &model.Contact{}}
	hunter := &fakeAdapter{
		name: "hunter", caps: []Capability{CapEmailFind}, cost: 0.04,
		email: &model.Contact{Email: "jordan@acme.com", EmailVerified: true},
	}

	orch := NewOrchestrator(registryWith(t, noHit, hunter), Strategy{
		SourceOrder: []string{"apollo", "hunter"},
	}, nil)

	contact, err := orch.FindEmail(context.Background(), EmailQuery{Domain: "acme.com", FirstName: "Jordan", LastName: "Reyes"})
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "jordan@acme.com", contact.Email)
}

func TestFindEmailNoSourceFindsAddress(t *testing.T) {
	noHit := &fakeAdapter{name: "hunter", caps: []Capability{CapEmailFind}, email: &model.Contact{}}
	orch := NewOrchestrator(registryWith(t, noHit), Strategy{SourceOrder: []string{"hunter"}}, nil)

	contact, err := orch.FindEmail(context.Background(), EmailQuery{Domain: "acme.com"})
	require.NoError(t, err)
	assert.Nil(t, contact)
}
