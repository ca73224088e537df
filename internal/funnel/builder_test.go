package funnel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

type fakeStore struct {
	funnels   map[string]*model.Funnel
	profiles  map[string]*model.TargetProfile
	personas  map[string]*model.PersonaFilter
	companies map[string]*model.Company
	contacts  map[string][]model.Contact
	members   []model.FunnelMember
	signals   map[string][]model.Signal

	memberSeq int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		funnels:   map[string]*model.Funnel{},
		profiles:  map[string]*model.TargetProfile{},
		personas:  map[string]*model.PersonaFilter{},
		companies: map[string]*model.Company{},
		contacts:  map[string][]model.Contact{},
		signals:   map[string][]model.Signal{},
	}
}

func (f *fakeStore) GetFunnel(_ context.Context, id string) (*model.Funnel, error) {
	fn, ok := f.funnels[id]
	if !ok {
		return nil, fmt.Errorf("funnel %s not found", id)
	}
	return fn, nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (*model.TargetProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	return p, nil
}

func (f *fakeStore) GetPersona(_ context.Context, id string) (*model.PersonaFilter, error) {
	p, ok := f.personas[id]
	if !ok {
		return nil, fmt.Errorf("persona %s not found", id)
	}
	return p, nil
}

func (f *fakeStore) GetCompany(_ context.Context, id string) (*model.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, fmt.Errorf("company %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListCompanies(_ context.Context, filter store.CompanyFilter) ([]model.Company, error) {
	var out []model.Company
	for _, c := range f.companies {
		if filter.ClientID != "" && c.ClientID != filter.ClientID {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) AdvanceCompanyStage(_ context.Context, id string, from, to model.PipelineStage) error {
	c, ok := f.companies[id]
	if !ok {
		return fmt.Errorf("company %s not found", id)
	}
	if c.Stage != from {
		return fmt.Errorf("company %s at %s, not %s", id, c.Stage, from)
	}
	c.Stage = to
	return nil
}

func (f *fakeStore) ListContactsByCompany(_ context.Context, companyID string) ([]model.Contact, error) {
	return f.contacts[companyID], nil
}

func (f *fakeStore) AddFunnelMember(_ context.Context, member *model.FunnelMember) (bool, error) {
	for _, m := range f.members {
		if m.RemovedAt != nil || m.FunnelID != member.FunnelID {
			continue
		}
		if member.ContactID == nil && m.ContactID == nil && m.CompanyID == member.CompanyID {
			return false, nil
		}
		if member.ContactID != nil && m.ContactID != nil && *m.ContactID == *member.ContactID {
			return false, nil
		}
	}
	f.memberSeq++
	member.ID = fmt.Sprintf("m-%d", f.memberSeq)
	member.AddedAt = time.Now().UTC()
	f.members = append(f.members, *member)
	return true, nil
}

func (f *fakeStore) ListActiveMembers(_ context.Context, funnelID string) ([]model.FunnelMember, error) {
	var out []model.FunnelMember
	for _, m := range f.members {
		if m.FunnelID == funnelID && m.RemovedAt == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveMembersAtStage(ctx context.Context, funnelID string, stage model.PipelineStage) ([]model.FunnelMember, error) {
	members, _ := f.ListActiveMembers(ctx, funnelID)
	var out []model.FunnelMember
	for _, m := range members {
		if c, ok := f.companies[m.CompanyID]; ok && c.Stage == stage {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMemberScores(_ context.Context, memberID string, scores store.MemberScores) error {
	for i := range f.members {
		if f.members[i].ID == memberID {
			f.members[i].FitScore = model.ScoreDecimal(scores.Fit)
			f.members[i].SignalScore = model.ScoreDecimal(scores.Signal)
			f.members[i].CompositeScore = model.ScoreDecimal(scores.Composite)
			f.members[i].PersonaScore = model.ScoreDecimal(scores.Persona)
			return nil
		}
	}
	return fmt.Errorf("member %s not found", memberID)
}

func (f *fakeStore) RemoveActiveMembers(_ context.Context, funnelID string) (int, error) {
	now := time.Now().UTC()
	removed := 0
	for i := range f.members {
		if f.members[i].FunnelID == funnelID && f.members[i].RemovedAt == nil {
			f.members[i].RemovedAt = &now
			removed++
		}
	}
	return removed, nil
}

func (f *fakeStore) CountActiveMembers(ctx context.Context, funnelID string) (int, error) {
	members, _ := f.ListActiveMembers(ctx, funnelID)
	return len(members), nil
}

func (f *fakeStore) InsertSignals(_ context.Context, signals []model.Signal) error {
	for _, s := range signals {
		f.signals[s.CompanyID] = append(f.signals[s.CompanyID], s)
	}
	return nil
}

func (f *fakeStore) GetSignalsForCompanies(_ context.Context, companyIDs []string, now time.Time) (map[string][]model.Signal, error) {
	out := map[string][]model.Signal{}
	for _, id := range companyIDs {
		for _, s := range f.signals[id] {
			if !s.Expired(now) {
				out[id] = append(out[id], s)
			}
		}
	}
	return out, nil
}

type fakeDetector struct {
	strengths map[string]float64
	err       error
	calls     int
}

func (d *fakeDetector) Detect(_ context.Context, company *model.Company, _ model.ClientContext) ([]model.Signal, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	strength, ok := d.strengths[company.ID]
	if !ok {
		return nil, nil
	}
	return []model.Signal{{
		ID:        fmt.Sprintf("sig-%s", company.ID),
		CompanyID: company.ID,
		Type:      model.SignalFundingRecency,
		Strength:  model.ScoreDecimal(strength),
		Evidence:  "raised a round",
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 30),
	}}, nil
}

func seedFixture(st *fakeStore, companies ...*model.Company) {
	st.funnels["f1"] = &model.Funnel{ID: "f1", ClientID: "client-1", ProfileID: "p1", Name: "Q3 SaaS"}
	st.profiles["p1"] = &model.TargetProfile{
		ID:         "p1",
		ClientID:   "client-1",
		Industries: []string{"SaaS"},
		Countries:  []string{"US"},
	}
	for _, c := range companies {
		st.companies[c.ID] = c
	}
}

func fitCompany(id, name string) *model.Company {
	return &model.Company{
		ID:       id,
		ClientID: "client-1",
		Name:     name,
		Domain:   name + ".com",
		Industry: "SaaS",
		Country:  "US",
		Stage:    model.StageTAM,
	}
}

func TestBuildAddsMatchingCompanies(t *testing.T) {
	st := newFakeStore()
	seedFixture(st,
		fitCompany("c1", "acme"),
		fitCompany("c2", "globex"),
		&model.Company{ID: "c3", ClientID: "client-1", Name: "Initech", Domain: "initech.com", Industry: "Logistics", Country: "DE", Stage: model.StageTAM},
	)

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Considered)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 2, res.MembersAdded)
	assert.Equal(t, 2, res.ActiveMembers)

	// Accepted members advance tam -> active_segment; the miss stays put.
	assert.Equal(t, model.StageActiveSegment, st.companies["c1"].Stage)
	assert.Equal(t, model.StageActiveSegment, st.companies["c2"].Stage)
	assert.Equal(t, model.StageTAM, st.companies["c3"].Stage)
}

func TestBuildIsIdempotent(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"))

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	_, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)

	res, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MembersAdded, "second build must not duplicate members")
	assert.Equal(t, 1, res.ActiveMembers)
}

func TestBuildRespectsLimit(t *testing.T) {
	st := newFakeStore()
	seedFixture(st,
		fitCompany("c1", "acme"),
		fitCompany("c2", "globex"),
		fitCompany("c3", "hooli"),
	)

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.MembersAdded)
}

func TestBuildLimitCapsTotalActiveMembers(t *testing.T) {
	st := newFakeStore()
	seedFixture(st,
		fitCompany("c1", "acme"),
		fitCompany("c2", "globex"),
		fitCompany("c3", "hooli"),
		fitCompany("c4", "initrode"),
	)

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	first, err := b.Build(context.Background(), "f1", "", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.MembersAdded)
	assert.Equal(t, 2, first.ActiveMembers)

	second, err := b.Build(context.Background(), "f1", "", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.MembersAdded, "a rerun at the same limit must not grow the funnel")
	assert.Equal(t, 2, second.ActiveMembers)

	// Raising the limit only admits the difference.
	third, err := b.Build(context.Background(), "f1", "", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, third.MembersAdded)
	assert.Equal(t, 3, third.ActiveMembers)
}

func TestBuildSkipsBlockedAndNonCompanies(t *testing.T) {
	st := newFakeStore()
	blocked := fitCompany("c1", "acme")
	blocked.Domain = "www.linkedin.com"
	listicle := fitCompany("c2", "globex")
	listicle.Name = "Top 10 SaaS Companies"
	seedFixture(st, blocked, listicle, fitCompany("c3", "hooli"))

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.MembersAdded)
}

func TestBuildAppliesProfileExclusions(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"), fitCompany("c2", "globex"))
	st.profiles["p1"].ExcludedDomains = []string{"globex.com"}

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MembersAdded)
}

func TestBuildWithDetectorRanksBySignal(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"), fitCompany("c2", "globex"))

	det := &fakeDetector{strengths: map[string]float64{"c2": 0.9}}
	b := NewBuilder(st, det, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 1, nil)
	require.NoError(t, err)

	require.Equal(t, 1, res.MembersAdded)
	members, _ := st.ListActiveMembers(context.Background(), "f1")
	require.Len(t, members, 1)
	assert.Equal(t, "c2", members[0].CompanyID, "the signal-bearing company must outrank its peer")
	sig, _ := members[0].SignalScore.Float64()
	assert.InDelta(t, 0.9, sig, 0.0001)
}

func TestBuildUsesProfileScoringStrategy(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"), fitCompany("c2", "globex"))
	st.profiles["p1"].Strategy = &model.ScoringStrategy{SignalWeight: 1}

	det := &fakeDetector{strengths: map[string]float64{"c2": 0.9}}
	b := NewBuilder(st, det, Policy{AcceptThreshold: 0.5})
	_, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)

	// A signal-only strategy collapses the composite onto signal strength.
	members, _ := st.ListActiveMembers(context.Background(), "f1")
	require.Len(t, members, 2)
	for _, m := range members {
		comp, _ := m.CompositeScore.Float64()
		sig, _ := m.SignalScore.Float64()
		assert.InDelta(t, sig, comp, 0.0001)
	}
}

func TestBuildDetectorErrorDegradesGracefully(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"))

	det := &fakeDetector{err: fmt.Errorf("llm unavailable")}
	b := NewBuilder(st, det, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MembersAdded)
}

func TestBuildAddsPersonaMembers(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"))
	st.personas["vp-sales"] = &model.PersonaFilter{
		ID:     "vp-sales",
		Titles: []string{"VP Sales", "Head of Sales"},
	}
	st.contacts["c1"] = []model.Contact{
		{ID: "ct1", CompanyID: "c1", FullName: "Jordan Reyes", Title: "VP Sales, Americas"},
		{ID: "ct2", CompanyID: "c1", FullName: "Sam Okafor", Title: "Staff Engineer"},
	}

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	res, err := b.Build(context.Background(), "f1", "vp-sales", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MembersAdded)
	assert.Equal(t, 1, res.PersonaAdded)

	members, _ := st.ListActiveMembers(context.Background(), "f1")
	require.Len(t, members, 2)
	var contactMember *model.FunnelMember
	for i := range members {
		if members[i].ContactID != nil {
			contactMember = &members[i]
		}
	}
	require.NotNil(t, contactMember)
	assert.Equal(t, "ct1", *contactMember.ContactID)
}

func TestRefreshRemovesThenRebuilds(t *testing.T) {
	st := newFakeStore()
	seedFixture(st, fitCompany("c1", "acme"), fitCompany("c2", "globex"))

	b := NewBuilder(st, nil, Policy{AcceptThreshold: 0.5})
	_, err := b.Build(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)

	// globex no longer fits; a refresh should drop it.
	st.companies["c2"].Industry = "Logistics"

	res, err := b.Refresh(context.Background(), "f1", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Equal(t, 1, res.MembersAdded)
	assert.Equal(t, 1, res.ActiveMembers)
}

func TestRunCompanySignalsAdvancesStrongMembers(t *testing.T) {
	st := newFakeStore()
	strong := fitCompany("c1", "acme")
	strong.Stage = model.StageActiveSegment
	weak := fitCompany("c2", "globex")
	weak.Stage = model.StageActiveSegment
	seedFixture(st, strong, weak)
	for _, id := range []string{"c1", "c2"} {
		_, err := st.AddFunnelMember(context.Background(), &model.FunnelMember{
			FunnelID:  "f1",
			CompanyID: id,
			FitScore:  model.ScoreDecimal(0.8),
		})
		require.NoError(t, err)
	}

	det := &fakeDetector{strengths: map[string]float64{"c1": 0.8, "c2": 0.3}}
	b := NewBuilder(st, det, Policy{AdvanceStrength: 0.5})
	res, err := b.RunCompanySignals(context.Background(), "f1", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, model.StageQualified, st.companies["c1"].Stage)
	assert.Equal(t, model.StageActiveSegment, st.companies["c2"].Stage)

	// Scores on the advancing member were refreshed with the new signal.
	members, _ := st.ListActiveMembers(context.Background(), "f1")
	for _, m := range members {
		if m.CompanyID != "c1" {
			continue
		}
		sig, _ := m.SignalScore.Float64()
		assert.InDelta(t, 0.8, sig, 0.0001)
	}
}

func TestRunCompanySignalsUsesProfileScoringStrategy(t *testing.T) {
	st := newFakeStore()
	c := fitCompany("c1", "acme")
	c.Stage = model.StageActiveSegment
	seedFixture(st, c)
	st.profiles["p1"].Strategy = &model.ScoringStrategy{SignalWeight: 1}
	_, err := st.AddFunnelMember(context.Background(), &model.FunnelMember{
		FunnelID:  "f1",
		CompanyID: "c1",
		FitScore:  model.ScoreDecimal(0.8),
	})
	require.NoError(t, err)

	det := &fakeDetector{strengths: map[string]float64{"c1": 0.6}}
	b := NewBuilder(st, det, Policy{AdvanceStrength: 0.9})
	_, err = b.RunCompanySignals(context.Background(), "f1", nil)
	require.NoError(t, err)

	members, _ := st.ListActiveMembers(context.Background(), "f1")
	require.Len(t, members, 1)
	comp, _ := members[0].CompositeScore.Float64()
	assert.InDelta(t, 0.6, comp, 0.0001, "the profile's weights must reach the signal run")
}

func TestRunCompanySignalsRequiresDetector(t *testing.T) {
	b := NewBuilder(newFakeStore(), nil, Policy{})
	_, err := b.RunCompanySignals(context.Background(), "f1", nil)
	assert.Error(t, err)
}

func TestRunPersonaSignalsAdvancesOnMatch(t *testing.T) {
	st := newFakeStore()
	matched := fitCompany("c1", "acme")
	matched.Stage = model.StageQualified
	unmatched := fitCompany("c2", "globex")
	unmatched.Stage = model.StageQualified
	seedFixture(st, matched, unmatched)
	st.personas["vp-sales"] = &model.PersonaFilter{ID: "vp-sales", Titles: []string{"VP Sales"}}
	st.contacts["c1"] = []model.Contact{{ID: "ct1", CompanyID: "c1", Title: "VP Sales"}}
	st.contacts["c2"] = []model.Contact{{ID: "ct2", CompanyID: "c2", Title: "Accountant"}}
	for _, id := range []string{"c1", "c2"} {
		_, err := st.AddFunnelMember(context.Background(), &model.FunnelMember{FunnelID: "f1", CompanyID: id})
		require.NoError(t, err)
	}

	b := NewBuilder(st, nil, Policy{PersonaThreshold: 0.5})
	res, err := b.RunPersonaSignals(context.Background(), "f1", "vp-sales", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Advanced)
	assert.Equal(t, model.StageReadyToApproach, st.companies["c1"].Stage)
	assert.Equal(t, model.StageQualified, st.companies["c2"].Stage)
}

func TestAdvanceManualTransition(t *testing.T) {
	st := newFakeStore()
	c := fitCompany("c1", "acme")
	c.Stage = model.StageReadyToApproach
	seedFixture(st, c)

	b := NewBuilder(st, nil, Policy{})
	require.NoError(t, b.Advance(context.Background(), "c1", model.StageInSequence))
	assert.Equal(t, model.StageInSequence, st.companies["c1"].Stage)

	assert.Error(t, b.Advance(context.Background(), "c1", model.PipelineStage("launched")))
}

func TestPersonaMatch(t *testing.T) {
	tests := []struct {
		name    string
		contact model.Contact
		persona model.PersonaFilter
		want    float64
	}{
		{
			name:    "title substring match",
			contact: model.Contact{Title: "Senior VP Sales, EMEA"},
			persona: model.PersonaFilter{Titles: []string{"vp sales"}},
			want:    1,
		},
		{
			name:    "configured dimension miss",
			contact: model.Contact{Title: "Engineer"},
			persona: model.PersonaFilter{Titles: []string{"VP Sales"}},
			want:    0,
		},
		{
			name:    "partial across dimensions",
			contact: model.Contact{Title: "VP Sales", Seniority: "manager"},
			persona: model.PersonaFilter{Titles: []string{"VP Sales"}, Seniorities: []string{"executive"}},
			want:    0.5,
		},
		{
			name:    "empty filter matches everything",
			contact: model.Contact{Title: "Anyone"},
			persona: model.PersonaFilter{},
			want:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PersonaMatch(&tt.contact, &tt.persona), 0.0001)
		})
	}
}
