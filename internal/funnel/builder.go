// Package funnel builds and refreshes scored funnels and drives companies
// through the qualification stage machine.
package funnel

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/scoring"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Store is the persistence surface the builder consumes.
type Store interface {
	GetFunnel(ctx context.Context, id string) (*model.Funnel, error)
	GetProfile(ctx context.Context, id string) (*model.TargetProfile, error)
	GetPersona(ctx context.Context, id string) (*model.PersonaFilter, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error)
	AdvanceCompanyStage(ctx context.Context, id string, from, to model.PipelineStage) error
	ListContactsByCompany(ctx context.Context, companyID string) ([]model.Contact, error)
	AddFunnelMember(ctx context.Context, member *model.FunnelMember) (bool, error)
	ListActiveMembers(ctx context.Context, funnelID string) ([]model.FunnelMember, error)
	ListActiveMembersAtStage(ctx context.Context, funnelID string, stage model.PipelineStage) ([]model.FunnelMember, error)
	UpdateMemberScores(ctx context.Context, memberID string, scores store.MemberScores) error
	RemoveActiveMembers(ctx context.Context, funnelID string) (int, error)
	CountActiveMembers(ctx context.Context, funnelID string) (int, error)
	InsertSignals(ctx context.Context, signals []model.Signal) error
	GetSignalsForCompanies(ctx context.Context, companyIDs []string, now time.Time) (map[string][]model.Signal, error)
}

// Detector produces signals for a company. Optional; when absent the builder
// ranks by fit score alone.
type Detector interface {
	Detect(ctx context.Context, company *model.Company, client model.ClientContext) ([]model.Signal, error)
}

// Policy holds the builder's tunable thresholds.
type Policy struct {
	// AcceptThreshold is the fit score floor for funnel membership.
	AcceptThreshold float64
	// AdvanceStrength is the signal strength a member needs to advance a
	// stage.
	AdvanceStrength float64
	// PersonaThreshold is the persona match score a contact needs for the
	// ready-to-approach transition.
	PersonaThreshold float64
}

// BuildResult reports what a build or refresh did.
type BuildResult struct {
	Considered    int      `json:"considered"`
	Accepted      int      `json:"accepted"`
	MembersAdded  int      `json:"membersAdded"`
	PersonaAdded  int      `json:"personaMembersAdded"`
	Removed       int      `json:"removed,omitempty"`
	ActiveMembers int      `json:"activeMembers"`
	Warnings      []string `json:"warnings,omitempty"`
}

// AdvanceResult reports a stage-transition run.
type AdvanceResult struct {
	Evaluated int `json:"evaluated"`
	Advanced  int `json:"advanced"`
}

// Builder assembles funnels from the client's full company pool.
type Builder struct {
	store     Store
	detector  Detector
	blocklist *discovery.Blocklist
	policy    Policy
	now       func() time.Time
	log       *zap.Logger
}

// NewBuilder wires a funnel builder. detector may be nil.
func NewBuilder(st Store, detector Detector, policy Policy) *Builder {
	if policy.AcceptThreshold <= 0 {
		policy.AcceptThreshold = 0.2
	}
	if policy.AdvanceStrength <= 0 {
		policy.AdvanceStrength = 0.5
	}
	if policy.PersonaThreshold <= 0 {
		policy.PersonaThreshold = 0.5
	}
	return &Builder{
		store:     st,
		detector:  detector,
		blocklist: discovery.NewBlocklist(nil),
		policy:    policy,
		now:       time.Now,
		log:       zap.L().Named("funnel"),
	}
}

// WithNow overrides the clock for tests.
func (b *Builder) WithNow(now func() time.Time) *Builder {
	b.now = now
	return b
}

type candidate struct {
	company   *model.Company
	fit       scoring.FitResult
	signal    float64
	composite float64
}

// Build re-scores the client's whole company pool against the funnel's
// profile and inserts members for survivors. Already-active members are left
// untouched, and limit caps the funnel's total active company members
// including those, so repeated builds are idempotent. personaID, when
// non-empty, additionally inserts contact members under each surviving
// company.
func (b *Builder) Build(ctx context.Context, funnelID, personaID string, limit int, progress func(processed, total int)) (*BuildResult, error) {
	funnel, err := b.store.GetFunnel(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	profile, err := b.store.GetProfile(ctx, funnel.ProfileID)
	if err != nil {
		return nil, err
	}

	var persona *model.PersonaFilter
	if personaID != "" {
		persona, err = b.store.GetPersona(ctx, personaID)
		if err != nil {
			return nil, err
		}
	}

	companies, err := b.store.ListCompanies(ctx, store.CompanyFilter{ClientID: funnel.ClientID})
	if err != nil {
		return nil, err
	}

	active, err := b.activeCompanySet(ctx, funnelID)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{}
	candidates := b.scorePool(ctx, companies, profile, active, res, progress)

	if limit > 0 {
		// Members already active count against the limit, otherwise every
		// rerun would admit the next-best batch on top of the last.
		room := limit - len(active)
		if room < 0 {
			room = 0
		}
		if len(candidates) > room {
			candidates = candidates[:room]
		}
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		member := &model.FunnelMember{
			FunnelID:       funnelID,
			CompanyID:      cand.company.ID,
			FitScore:       model.ScoreDecimal(cand.fit.Score),
			SignalScore:    model.ScoreDecimal(cand.signal),
			CompositeScore: model.ScoreDecimal(cand.composite),
			Reasons:        cand.fit.Reasons,
		}
		added, err := b.store.AddFunnelMember(ctx, member)
		if err != nil {
			return res, err
		}
		if added {
			res.MembersAdded++
			b.advanceIfAt(ctx, cand.company, model.StageTAM)
		}

		if persona != nil {
			n, err := b.addPersonaMembers(ctx, funnelID, cand, persona)
			if err != nil {
				return res, err
			}
			res.PersonaAdded += n
		}
	}

	res.ActiveMembers, err = b.store.CountActiveMembers(ctx, funnelID)
	if err != nil {
		return res, err
	}
	return res, nil
}

// Refresh soft-removes all active members then rebuilds. Members present in
// both the old and new result set end up with exactly one active row.
func (b *Builder) Refresh(ctx context.Context, funnelID, personaID string, limit int, progress func(int, int)) (*BuildResult, error) {
	removed, err := b.store.RemoveActiveMembers(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx, funnelID, personaID, limit, progress)
	if res != nil {
		res.Removed = removed
	}
	return res, err
}

// scorePool scores every company not already an active member, dropping
// blocked and implausible entries, and returns survivors ranked best-first.
func (b *Builder) scorePool(ctx context.Context, companies []model.Company, profile *model.TargetProfile, active map[string]bool, res *BuildResult, progress func(int, int)) []candidate {
	clientCtx := model.ClientContext{
		ClientID:        profile.ClientID,
		ProductKeywords: profile.TechStack,
		Strategy:        profile.Strategy,
	}
	total := len(companies)

	var out []candidate
	for i := range companies {
		if ctx.Err() != nil {
			return out
		}
		c := &companies[i]
		if progress != nil {
			progress(i+1, total)
		}
		if active[c.ID] {
			continue
		}
		if b.blocklist.IsBlockedDomain(c.Domain) || discovery.IsNonCompanyName(c.Name) {
			continue
		}
		if scoring.Excluded(c, profile) {
			continue
		}
		res.Considered++

		fit := scoring.Fit(c, profile)
		if fit.Score < b.policy.AcceptThreshold {
			continue
		}
		res.Accepted++

		cand := candidate{company: c, fit: fit, composite: fit.Score}
		if b.detector != nil {
			cand.signal = b.signalScore(ctx, c, clientCtx)
			cand.composite = scoring.Composite(scoring.CompositeInputs{
				Fit:            fit.Score,
				Signal:         cand.signal,
				Originality:    scoring.Originality(c),
				CostEfficiency: b.costEfficiency(c),
			}, clientCtx.Strategy)
		}
		out = append(out, cand)
	}

	// Rank by composite, fit breaking ties, stable for determinism.
	sortCandidates(out)
	return out
}

// signalScore detects and persists fresh signals, then folds current
// non-expired signals into one strength in [0,1].
func (b *Builder) signalScore(ctx context.Context, company *model.Company, clientCtx model.ClientContext) float64 {
	detected, err := b.detector.Detect(ctx, company, clientCtx)
	if err != nil {
		b.log.Warn("signal detection failed", zap.String("company_id", company.ID), zap.Error(err))
	} else if len(detected) > 0 {
		if err := b.store.InsertSignals(ctx, detected); err != nil {
			b.log.Warn("signal persist failed", zap.String("company_id", company.ID), zap.Error(err))
		}
	}

	existing, err := b.store.GetSignalsForCompanies(ctx, []string{company.ID}, b.now())
	if err != nil {
		b.log.Warn("signal lookup failed", zap.String("company_id", company.ID), zap.Error(err))
		return maxStrength(detected)
	}
	return maxStrength(append(existing[company.ID], detected...))
}

// costEfficiency approximates assembly cost from provenance: the more
// sources a record needed, the more it cost to fill.
func (b *Builder) costEfficiency(c *model.Company) float64 {
	populated := 0
	for _, key := range model.CoreFieldKeys {
		if c.FieldPopulated(key) {
			populated++
		}
	}
	const estCostPerSourceUSD = 0.02
	return scoring.CostEfficiency(populated, estCostPerSourceUSD*float64(len(c.Sources)))
}

func (b *Builder) activeCompanySet(ctx context.Context, funnelID string) (map[string]bool, error) {
	members, err := b.store.ListActiveMembers(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(members))
	for _, m := range members {
		if m.ContactID == nil {
			out[m.CompanyID] = true
		}
	}
	return out, nil
}

// addPersonaMembers inserts one contact member per contact matching the
// persona filter under the company.
func (b *Builder) addPersonaMembers(ctx context.Context, funnelID string, cand candidate, persona *model.PersonaFilter) (int, error) {
	contacts, err := b.store.ListContactsByCompany(ctx, cand.company.ID)
	if err != nil {
		return 0, err
	}

	added := 0
	for i := range contacts {
		contact := &contacts[i]
		score := PersonaMatch(contact, persona)
		if score < b.policy.PersonaThreshold {
			continue
		}
		contactID := contact.ID
		member := &model.FunnelMember{
			FunnelID:       funnelID,
			CompanyID:      cand.company.ID,
			ContactID:      &contactID,
			FitScore:       model.ScoreDecimal(cand.fit.Score),
			SignalScore:    model.ScoreDecimal(cand.signal),
			CompositeScore: model.ScoreDecimal(cand.composite),
			PersonaScore:   model.ScoreDecimal(score),
			Reasons:        []string{"persona match: " + contact.Title},
		}
		ok, err := b.store.AddFunnelMember(ctx, member)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// RunCompanySignals evaluates active-segment members: signals are detected
// for each member's company, scores are updated, and members whose signal
// strength clears the advance threshold move to qualified. Members at other
// stages are never touched.
func (b *Builder) RunCompanySignals(ctx context.Context, funnelID string, progress func(int, int)) (*AdvanceResult, error) {
	if b.detector == nil {
		return nil, eris.New("funnel: signal services not configured")
	}
	funnel, err := b.store.GetFunnel(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	profile, err := b.store.GetProfile(ctx, funnel.ProfileID)
	if err != nil {
		return nil, err
	}
	clientCtx := model.ClientContext{
		ClientID:        funnel.ClientID,
		ProductKeywords: profile.TechStack,
		Strategy:        profile.Strategy,
	}

	members, err := b.store.ListActiveMembersAtStage(ctx, funnelID, model.StageActiveSegment)
	if err != nil {
		return nil, err
	}

	res := &AdvanceResult{}
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if progress != nil {
			progress(i+1, len(members))
		}
		if m.ContactID != nil {
			continue
		}
		res.Evaluated++

		company, err := b.store.GetCompany(ctx, m.CompanyID)
		if err != nil {
			b.log.Warn("member company lookup failed", zap.String("company_id", m.CompanyID), zap.Error(err))
			continue
		}

		sigScore := b.signalScore(ctx, company, clientCtx)
		fit, _ := m.FitScore.Float64()
		composite := scoring.Composite(scoring.CompositeInputs{
			Fit:            fit,
			Signal:         sigScore,
			Originality:    scoring.Originality(company),
			CostEfficiency: b.costEfficiency(company),
		}, clientCtx.Strategy)

		if err := b.store.UpdateMemberScores(ctx, m.ID, store.MemberScores{
			Fit:       fit,
			Signal:    sigScore,
			Composite: composite,
			Reasons:   m.Reasons,
		}); err != nil {
			return res, err
		}

		if sigScore >= b.policy.AdvanceStrength {
			if b.advanceIfAt(ctx, company, model.StageActiveSegment) {
				res.Advanced++
			}
		}
	}
	return res, nil
}

// RunPersonaSignals evaluates qualified members: companies with a contact
// matching the persona move to ready_to_approach.
func (b *Builder) RunPersonaSignals(ctx context.Context, funnelID, personaID string, progress func(int, int)) (*AdvanceResult, error) {
	persona, err := b.store.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}

	members, err := b.store.ListActiveMembersAtStage(ctx, funnelID, model.StageQualified)
	if err != nil {
		return nil, err
	}

	res := &AdvanceResult{}
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if progress != nil {
			progress(i+1, len(members))
		}
		if m.ContactID != nil {
			continue
		}
		res.Evaluated++

		contacts, err := b.store.ListContactsByCompany(ctx, m.CompanyID)
		if err != nil {
			b.log.Warn("contact lookup failed", zap.String("company_id", m.CompanyID), zap.Error(err))
			continue
		}

		best := 0.0
		for i := range contacts {
			if s := PersonaMatch(&contacts[i], persona); s > best {
				best = s
			}
		}
		if best < b.policy.PersonaThreshold {
			continue
		}

		fit, _ := m.FitScore.Float64()
		sig, _ := m.SignalScore.Float64()
		comp, _ := m.CompositeScore.Float64()
		if err := b.store.UpdateMemberScores(ctx, m.ID, store.MemberScores{
			Fit:       fit,
			Signal:    sig,
			Composite: comp,
			Persona:   best,
			Reasons:   m.Reasons,
		}); err != nil {
			return res, err
		}

		company, err := b.store.GetCompany(ctx, m.CompanyID)
		if err != nil {
			continue
		}
		if b.advanceIfAt(ctx, company, model.StageQualified) {
			res.Advanced++
		}
	}
	return res, nil
}

// Advance performs an explicit, human-initiated stage transition. Demotion is
// allowed here and only here.
func (b *Builder) Advance(ctx context.Context, companyID string, to model.PipelineStage) error {
	if to.Rank() < 0 {
		return eris.Errorf("funnel: unknown stage %q", to)
	}
	company, err := b.store.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	return b.store.AdvanceCompanyStage(ctx, companyID, company.Stage, to)
}

// advanceIfAt moves the company one stage forward only when it currently
// sits at the expected stage.
func (b *Builder) advanceIfAt(ctx context.Context, company *model.Company, at model.PipelineStage) bool {
	if company.Stage != at {
		return false
	}
	next := at.Next()
	if err := b.store.AdvanceCompanyStage(ctx, company.ID, at, next); err != nil {
		b.log.Warn("stage advance failed",
			zap.String("company_id", company.ID),
			zap.String("from", string(at)),
			zap.Error(err))
		return false
	}
	company.Stage = next
	return true
}

// PersonaMatch scores a contact against the persona filter: each configured
// dimension (titles, seniorities, departments) contributes equally, matching
// by case-insensitive substring. Returns 0 when a configured dimension
// misses entirely; an unconfigured filter matches everything at 1.
func PersonaMatch(contact *model.Contact, persona *model.PersonaFilter) float64 {
	type dim struct {
		patterns []string
		value    string
	}
	dims := []dim{
		{persona.Titles, contact.Title},
		{persona.Seniorities, contact.Seniority},
		{persona.Departments, contact.Department},
	}

	configured, matched := 0, 0
	for _, d := range dims {
		if len(d.patterns) == 0 {
			continue
		}
		configured++
		if matchesSubstring(d.value, d.patterns) {
			matched++
		}
	}
	if configured == 0 {
		return 1
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(configured)
}

func matchesSubstring(value string, patterns []string) bool {
	v := strings.ToLower(value)
	for _, p := range patterns {
		if p != "" && strings.Contains(v, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func maxStrength(signals []model.Signal) float64 {
	best := 0.0
	for i := range signals {
		if s, _ := signals[i].Strength.Float64(); s > best {
			best = s
		}
	}
	return best
}

func sortCandidates(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].composite != cands[j].composite {
			return cands[i].composite > cands[j].composite
		}
		return cands[i].fit.Score > cands[j].fit.Score
	})
}
