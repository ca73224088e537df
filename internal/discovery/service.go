// Package discovery finds companies matching a target profile through the
// source waterfall, filters out non-companies, and upserts survivors with
// dedup-by-domain semantics.
package discovery

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/scoring"
	"github.com/sells-group/prospect-cli/internal/source"
)

// Orchestrator is the waterfall surface discovery consumes.
type Orchestrator interface {
	Search(ctx context.Context, q source.SearchQuery) (*source.SearchOutcome, error)
	Enrich(ctx context.Context, company *model.Company, hints source.EnrichHints) (*source.EnrichOutcome, error)
}

// Store is the persistence surface discovery consumes.
type Store interface {
	UpsertCompany(ctx context.Context, company *model.Company) (bool, error)
	UpsertContact(ctx context.Context, contact *model.Contact) error
}

// PeopleSearcher finds contacts at a company. Optional; nil skips the
// contact-discovery step.
type PeopleSearcher interface {
	SearchPeople(ctx context.Context, q source.PeopleQuery) ([]model.Contact, error)
}

// Policy holds the discovery pipeline's tunable constants.
type Policy struct {
	// OverfetchMultiplier scales the requested limit on the provider side
	// to absorb filtering and dedup loss.
	OverfetchMultiplier int
	// AcceptThreshold is the fit score floor for candidates that already
	// passed a provider-side filter.
	AcceptThreshold float64
	// BackfillBatch caps best-effort enrichment calls for candidates
	// missing core attributes.
	BackfillBatch int
	// DeepEnrichTop caps the contact-discovery pass over the best-scored
	// candidates.
	DeepEnrichTop int
}

// Options modify a single discover call.
type Options struct {
	// SkipDeepEnrich disables the top-N contact-discovery pass.
	SkipDeepEnrich bool
	// Progress, when set, receives processed/total counts as the pipeline
	// works through candidates.
	Progress func(processed, total int)
}

// Result is the reported outcome of one discover call. Zero results is a
// valid outcome, explained through Warnings rather than an error.
type Result struct {
	Discovered             int      `json:"discovered"`
	Scored                 int      `json:"scored"`
	CompaniesAdded         int      `json:"companiesAdded"`
	SecondaryEntitiesFound int      `json:"secondaryEntitiesFound"`
	Warnings               []string `json:"warnings,omitempty"`
	SourcesUsed            []string `json:"sourcesUsed,omitempty"`
	TotalCostUSD           float64  `json:"totalCostUsd"`
}

// Service runs the discovery pipeline.
type Service struct {
	orch      Orchestrator
	store     Store
	blocklist *Blocklist
	suggester *Suggester
	people    PeopleSearcher
	policy    Policy
	log       *zap.Logger
}

// NewService wires the discovery pipeline. suggester and people may be nil.
func NewService(orch Orchestrator, store Store, blocklist *Blocklist, suggester *Suggester, people PeopleSearcher, policy Policy) *Service {
	if policy.OverfetchMultiplier <= 0 {
		policy.OverfetchMultiplier = 2
	}
	if policy.BackfillBatch <= 0 {
		policy.BackfillBatch = 10
	}
	if policy.DeepEnrichTop <= 0 {
		policy.DeepEnrichTop = 20
	}
	if blocklist == nil {
		blocklist = NewBlocklist(nil)
	}
	return &Service{
		orch:      orch,
		store:     store,
		blocklist: blocklist,
		suggester: suggester,
		people:    people,
		policy:    policy,
		log:       zap.L().Named("discovery"),
	}
}

type scored struct {
	company *model.Company
	fit     scoring.FitResult
}

// Discover runs the full pipeline for one profile. Source failures are
// absorbed by the orchestrator; only store and context errors abort the run.
func (s *Service) Discover(ctx context.Context, profile *model.TargetProfile, limit int, opts Options) (*Result, error) {
	if limit <= 0 {
		limit = 50
	}
	res := &Result{}

	outcome, err := s.orch.Search(ctx, s.searchQuery(profile, limit))
	if err != nil {
		return res, err
	}
	res.SourcesUsed = outcome.SourcesUsed
	res.TotalCostUSD = outcome.TotalCostUSD
	for _, skip := range outcome.Skipped {
		if skip.Reason == "rate limited" || skip.Reason == "call failed" {
			res.Warnings = append(res.Warnings, "source "+skip.Source+" skipped: "+skip.Reason)
		}
	}

	candidates := s.dropBlocked(outcome.Companies)

	if len(candidates) == 0 {
		candidates = s.fallbackSuggestions(ctx, profile, res)
		if len(candidates) == 0 {
			res.Warnings = append(res.Warnings, "no companies found by any source or fallback")
			return res, nil
		}
	}
	res.Discovered = len(candidates)

	candidates = s.dropNonCompanies(candidates)
	candidates = s.dropExcluded(candidates, profile)
	s.backfill(ctx, candidates, res)

	accepted, err := s.persistAndScore(ctx, candidates, profile, res, opts.Progress)
	if err != nil {
		return res, err
	}

	if !opts.SkipDeepEnrich {
		s.deepEnrich(ctx, accepted, profile, res)
	}
	return res, nil
}

// searchQuery translates the profile into provider-agnostic parameters,
// over-fetching to absorb downstream loss.
func (s *Service) searchQuery(profile *model.TargetProfile, limit int) source.SearchQuery {
	keywords := profile.SearchTerms
	if len(keywords) == 0 {
		keywords = profile.Keywords
	}
	return source.SearchQuery{
		SemanticQuery: profile.SemanticQuery,
		Keywords:      keywords,
		Industries:    profile.Industries,
		Countries:     profile.Countries,
		EmployeeMin:   profile.EmployeeCountMin,
		EmployeeMax:   profile.EmployeeCountMax,
		Limit:         limit * s.policy.OverfetchMultiplier,
	}
}

func (s *Service) dropBlocked(in []model.Company) []*model.Company {
	out := make([]*model.Company, 0, len(in))
	for i := range in {
		c := &in[i]
		if s.blocklist.IsBlockedDomain(c.Domain) {
			s.log.Debug("blocked domain dropped", zap.String("domain", c.Domain))
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Service) dropNonCompanies(in []*model.Company) []*model.Company {
	out := in[:0]
	for _, c := range in {
		if IsNonCompanyName(c.Name) {
			s.log.Debug("non-company name dropped", zap.String("name", c.Name))
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Service) dropExcluded(in []*model.Company, profile *model.TargetProfile) []*model.Company {
	out := in[:0]
	for _, c := range in {
		if scoring.Excluded(c, profile) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// fallbackSuggestions runs the LLM suggestion path exactly once, upgrading
// each suggestion with a domain through one best-effort enrichment.
func (s *Service) fallbackSuggestions(ctx context.Context, profile *model.TargetProfile, res *Result) []*model.Company {
	if s.suggester == nil {
		return nil
	}
	suggestions, err := s.suggester.Suggest(ctx, profile)
	if err != nil {
		s.log.Warn("suggestion fallback failed", zap.Error(err))
		res.Warnings = append(res.Warnings, "llm suggestion fallback failed")
		return nil
	}
	if len(suggestions) == 0 {
		return nil
	}
	res.Warnings = append(res.Warnings, "no source results; using llm suggestions")

	out := make([]*model.Company, 0, len(suggestions))
	for i := range suggestions {
		c := &suggestions[i]
		if s.blocklist.IsBlockedDomain(c.Domain) {
			continue
		}
		if c.Domain != "" {
			// A failed upgrade keeps the bare suggestion.
			if outcome, err := s.orch.Enrich(ctx, c, source.EnrichHints{Domain: c.Domain, Name: c.Name}); err == nil {
				res.TotalCostUSD += outcome.TotalCostUSD
			}
		}
		out = append(out, c)
	}
	return out
}

// backfill issues one enrichment call for candidates that have a domain but
// lack the attributes scoring needs, bounded by the batch cap.
func (s *Service) backfill(ctx context.Context, candidates []*model.Company, res *Result) {
	backfilled := 0
	for _, c := range candidates {
		if backfilled >= s.policy.BackfillBatch {
			break
		}
		if ctx.Err() != nil {
			return
		}
		if c.Domain == "" || !c.MissingCoreAttributes() {
			continue
		}
		outcome, err := s.orch.Enrich(ctx, c, source.EnrichHints{Domain: c.Domain, Name: c.Name})
		if err != nil {
			s.log.Warn("backfill enrich failed", zap.String("domain", c.Domain), zap.Error(err))
			continue
		}
		res.TotalCostUSD += outcome.TotalCostUSD
		backfilled++
	}
}

// persistAndScore upserts every surviving candidate, then scores the
// canonical rows and keeps those at or above the acceptance threshold.
func (s *Service) persistAndScore(ctx context.Context, candidates []*model.Company, profile *model.TargetProfile, res *Result, progress func(int, int)) ([]scored, error) {
	var accepted []scored
	total := len(candidates)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}
		c.ClientID = profile.ClientID

		created, err := s.store.UpsertCompany(ctx, c)
		if err != nil {
			return accepted, err
		}
		if created {
			res.CompaniesAdded++
		}

		fit := scoring.Fit(c, profile)
		res.Scored++
		if fit.Score >= s.policy.AcceptThreshold {
			accepted = append(accepted, scored{company: c, fit: fit})
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].fit.Score > accepted[j].fit.Score
	})
	return accepted, nil
}

// deepEnrich runs the contact-discovery pass over the top scored candidates.
func (s *Service) deepEnrich(ctx context.Context, accepted []scored, profile *model.TargetProfile, res *Result) {
	if s.people == nil {
		return
	}
	top := accepted
	if len(top) > s.policy.DeepEnrichTop {
		top = top[:s.policy.DeepEnrichTop]
	}
	for _, sc := range top {
		if ctx.Err() != nil {
			return
		}
		if sc.company.Domain == "" {
			continue
		}
		contacts, err := s.people.SearchPeople(ctx, source.PeopleQuery{
			Domain: sc.company.Domain,
			Limit:  5,
		})
		if err != nil {
			s.log.Warn("people search failed",
				zap.String("domain", sc.company.Domain), zap.Error(err))
			continue
		}
		for i := range contacts {
			contacts[i].CompanyID = sc.company.ID
			if err := s.store.UpsertContact(ctx, &contacts[i]); err != nil {
				s.log.Warn("contact upsert failed", zap.Error(err))
				continue
			}
			res.SecondaryEntitiesFound++
		}
	}
}

// WarningsText joins warnings for job output.
func (r *Result) WarningsText() string {
	return strings.Join(r.Warnings, "; ")
}
